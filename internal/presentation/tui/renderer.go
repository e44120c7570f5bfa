package tui

import (
	"io"

	"github.com/muesli/termenv"

	"github.com/aretw0/strata/pkg/domain"
)

// Renderer styles run output for the terminal behind w. On anything that
// is not a terminal it returns text unchanged.
type Renderer struct {
	out *termenv.Output
}

// NewRenderer detects the color profile of w.
func NewRenderer(w io.Writer) *Renderer {
	return &Renderer{out: termenv.NewOutput(w)}
}

// Status colors a run status by outcome.
func (r *Renderer) Status(s domain.RunStatus) string {
	style := r.out.String(string(s))
	switch s {
	case domain.StatusCompleted:
		style = style.Foreground(r.out.Color("2")).Bold()
	case domain.StatusFailed:
		style = style.Foreground(r.out.Color("1")).Bold()
	case domain.StatusBranched, domain.StatusRunning:
		style = style.Foreground(r.out.Color("3"))
	}
	return style.String()
}

// Error highlights an error message.
func (r *Renderer) Error(msg string) string {
	return r.out.String(msg).Foreground(r.out.Color("1")).String()
}

// Faint dims secondary information such as layer ids.
func (r *Renderer) Faint(s string) string {
	return r.out.String(s).Faint().String()
}

package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/aretw0/strata/pkg/domain"
)

// StreamManager fans run events out to subscribers keyed by run ID.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan string]struct{}
	logger      *slog.Logger
}

// NewStreamManager creates an empty manager.
func NewStreamManager(logger *slog.Logger) *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan string]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a buffered channel for runID. The returned function
// unsubscribes and closes the channel.
func (sm *StreamManager) Subscribe(runID string) (<-chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 16)
	if _, ok := sm.subscribers[runID]; !ok {
		sm.subscribers[runID] = make(map[chan string]struct{})
	}
	sm.subscribers[runID][ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			subs := sm.subscribers[runID]
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, runID)
			}
		})
	}
}

// Subscribers returns the number of subscribers of runID.
func (sm *StreamManager) Subscribers(runID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[runID])
}

// Broadcast delivers msg to every subscriber of runID. Slow subscribers miss messages.
func (sm *StreamManager) Broadcast(runID, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	for ch := range sm.subscribers[runID] {
		select {
		case ch <- msg:
		default:
			sm.logger.Warn("sse client buffer full, dropping event", "run_id", runID)
		}
	}
}

func (sm *StreamManager) publish(runID string, ev any) {
	data, err := json.Marshal(ev)
	if err != nil {
		sm.logger.Error("failed to encode run event", "run_id", runID, "err", err)
		return
	}
	sm.Broadcast(runID, string(data))
}

// Hooks returns lifecycle hooks that publish every run event.
func (sm *StreamManager) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStepStart: func(_ context.Context, ev *domain.StepEvent) { sm.publish(ev.RunID, ev) },
		OnStepEnd: func(_ context.Context, ev *domain.StepEvent) {
			out := struct {
				*domain.StepEvent
				Error string `json:"error,omitempty"`
			}{StepEvent: ev}
			if ev.Err != nil {
				out.Error = ev.Err.Error()
			}
			sm.publish(ev.RunID, out)
		},
		OnLayerAppended: func(_ context.Context, ev *domain.LayerEvent) { sm.publish(ev.RunID, ev) },
		OnCheckpoint:    func(_ context.Context, ev *domain.CheckpointEvent) { sm.publish(ev.RunID, ev) },
	}
}

// subscribeEvents streams the events of one run as server-sent events.
func (s *Server) subscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	runID := chi.URLParam(r, "runID")
	events, unsubscribe := s.streams.Subscribe(runID)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprint(w, "event: ping\ndata: {}\n\n")
	flusher.Flush()

	s.logger.Debug("sse client subscribed", "run_id", runID)
	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("sse client disconnected", "run_id", runID)
			return
		case msg, ok := <-events:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: run\ndata: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

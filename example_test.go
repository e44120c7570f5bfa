package strata_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/strata"
	"github.com/aretw0/strata/pkg/adapters/memory"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/workflow"
)

// ExampleNew_memory runs a workflow held in memory, without touching the
// filesystem.
func ExampleNew_memory() {
	loader := memory.NewLoader(map[string]string{
		"workflow.yaml": `
title: argon pair
base:
  atoms:
    - {element: 18, position: [0, 0, 0]}
    - {element: 18, position: [3.8, 0, 0]}
steps:
  - run: AppendLayers
    with:
      - Translation: {select: "index:0", vector: [1, 0, 0]}
`,
	})

	eng, err := strata.New("", strata.WithSourceLoader(loader))
	if err != nil {
		log.Fatal(err)
	}
	defer eng.Close()

	ctx := context.Background()
	state, err := eng.RunFile(ctx, "workflow.yaml", workflow.RunOptions{RunID: "example"})
	if err != nil {
		log.Fatal(err)
	}

	tip := state.Tips[domain.DefaultModel]
	s, err := eng.Materialize(ctx, tip)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("status:", state.Status)
	fmt.Println("tip:", tip)
	fmt.Println("first atom:", s.Atoms[0].Position)
	// Output:
	// status: completed
	// tip: 2
	// first atom: [1 0 0]
}

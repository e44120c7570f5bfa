/*
Package strata is a layered store for molecular models.

Every edit to a structure is recorded as an immutable layer that references
its parent. A structure is never stored whole: it is materialized by replaying
the chain of layers from a root, and an LRU cache keeps recent results so that
branches sharing a prefix are cheap to derive.

# Concept

Workflows are YAML files of steps executed by named runners (AppendLayers,
Substituent, Calculation, Rename, CheckPoint, Output). A run keeps a set of
tips, one per model, and named checkpoints. Steps may branch from any
checkpoint, so alternatives explored from a common ancestor share its layers
rather than copying them.

# Key Features

  - Append-only history: layers are never modified, only added.
  - Deterministic replay: the same chain always materializes the same structure.
  - Durable runs: run state is persisted after every step and can be resumed.
  - Pluggable adapters: SQLite or in-memory layers, file or Redis run state,
    filesystem or S3 exports, external programs or in-process tools for
    calculations.
  - Inspection: an HTTP API with live run events, an MCP server, Mermaid
    graphs of the layer tree and a static workflow linter.

# Usage

	eng, err := strata.New("./workspace", strata.WithDatabase(".strata/layers.db"))
	if err != nil {
		log.Fatal(err)
	}
	defer eng.Close()

	state, err := eng.RunFile(ctx, "workflow.yaml", workflow.RunOptions{})
	if err != nil {
		log.Fatal(err)
	}
	s, err := eng.Materialize(ctx, state.Tips[domain.DefaultModel])

The strata command wraps the same engine; see cmd/strata.
*/
package strata

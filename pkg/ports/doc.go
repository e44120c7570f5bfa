/*
Package ports defines the driven ports (interfaces) for the Strata engine.

These interfaces decouple the layer model and the workflow machine from
concrete storage, process and transport implementations.

# Key Interfaces

  - LayerStore: Append-only, durable storage of immutable layers.
  - RunStore: Persists the mutable RunState of workflow runs.
  - SourceLoader: Reads workflow templates and fragment files by reference.
  - CalculationRunner: Executes an external program against a structure.
  - ExportSink: Receives exported structures (filesystem, object storage).
  - DistributedLocker: Serializes access to a run across replicas.
*/
package ports

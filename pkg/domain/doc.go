/*
Package domain contains the core models of the Strata layer store.

A molecular model is never stored as a snapshot. It is the result of replaying
an ordered chain of Layers, each carrying one Operation, from a root down to a
tip. Layers are immutable and can be shared by any number of descendants,
which is what makes cheap branching possible.

This package is kept pure and free of I/O or persistence concerns, following
Hexagonal Architecture principles.

# Key Entities

  - Layer: An immutable record (ID, Parent, Operation) in the append-only store.
  - Operation: A closed set of structural edits, applied through a Handler.
  - Selector: A declarative description of which atoms an operation targets.
  - Structure: The materialized model (atoms, bonds, ids, groups).
  - RunState: The mutable state of a workflow run (tips, checkpoints, step).
*/
package domain

/*
Package domain contains the core domain models of the pipetree engine.

It defines the entities shared by the state tree, the driver and every adapter:
step configuration, node snapshots, consistency and validation info, persisted
records and the closed command protocol. This package is kept pure and free of
I/O, following Hexagonal Architecture principles.

# Key Entities

  - ItemConfig / PipelineConfiguration: the structural configuration returned by a provider.
  - PipelineState: an immutable, serializable snapshot of one tree node and its children.
  - ConsistencyInfo, CallState, ValidationResult: per-node derived information.
  - Record: the persisted shape of a node (one wrapper record plus one per step).
  - Command: one of the protocol messages accepted by the driver.
*/
package domain

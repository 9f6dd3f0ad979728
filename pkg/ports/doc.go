/*
Package ports defines the driven ports (interfaces) of the pipetree engine.

These interfaces decouple the state tree and the driver from concrete
implementations, allowing the engine to work with various record stores,
configuration providers and function runtimes.

# Key Interfaces

  - RecordStore: persists one record per tree node (plus the pipeline wrapper).
  - DistributedLocker: serializes saves of the same pipeline across replicas.
  - ConfigProvider: resolves a named, versioned provider into a configuration.
  - FuncExecutor: invokes the function bound to a step.
  - Validator: checks the inputs of a step and reports per-parameter results.
*/
package ports

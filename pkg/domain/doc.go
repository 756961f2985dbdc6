/*
Package domain contains the core domain models for the journeysim
orchestration engine.

It defines the fundamental entities of worker orchestration, such as Step
Descriptors, Worker Instances, Port Reservations and Call Results. This
package is kept free of I/O and persistence concerns, following Hexagonal
Architecture principles.

# Key Entities

  - StepDescriptor: One step of a customer journey as seen by the core.
  - WorkerInstance: A live worker process bound to an owner key and a port.
  - WorkerLaunchSpec: Typed description of how to start a worker process.
  - CallResult: The structured outcome of a single chained HTTP call.
  - CircuitState: The per-worker circuit breaker gate position.
*/
package domain

// Package sim provides the discrete-event simulation engine for queueing networks.
//
// # Reading Guide
//
// Start with these files to understand the simulation kernel:
//   - scheduler.go: virtual clock, event queue, effects and the Race combinator
//   - resource.go: capacity-bound resources with FIFO, priority and preemptive disciplines
//   - flow.go: the per-entity state machine (routing, queueing, reneging, service, departure)
//   - simulator.go: the Run Controller that wires everything from a Config
//
// # Architecture
//
// Entity and background logic are continuation chains: a process issues an Effect
// (Timeout, a resource Request, or a Race of several) and is resumed by the Scheduler
// when it resolves. Every run is single-threaded and deterministic for a given
// SimulationKey; independent replications (sim/replication/) run concurrently.
//
// Sub-packages:
//   - sim/dist/: distribution spec parsing ("uniform(a,b)", "normal(m,s)", "exp(mean)")
//   - sim/trace/: decision trace recording
//   - sim/replication/: concurrent independent replications and summary statistics
//
// # Key Interfaces
//
//   - Effect: anything a process can suspend on
//   - BalkPolicy: decide whether an arriving entity joins
//   - dist.Distribution: random variate source
package sim

/*
Package journeysim simulates multi-step customer journeys by spawning one
short-lived worker process per journey step and chaining HTTP calls between
them while propagating W3C-style trace context.

The package wires the orchestration core together: a collision-free port
allocator, a per-worker circuit breaker, a trace context builder, the
worker orchestrator and the chained call client. Journey collaborators talk
to the core only through step descriptors and call results.

# Usage

	core, err := journeysim.New(
		journeysim.WithWorkerCommand(os.Args[0], "worker"),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer core.StopAll()

	j, _ := journey.Load("journeys/retail.yaml")
	rec, err := core.RunJourney(ctx, j)
*/
package journeysim

// Package engine is the checkpointed step-execution engine. It advances a
// thread one node at a time, persists a checkpoint after every transition,
// halts in front of approval gates, and resumes or cancels on a decision.
//
// # Building an Engine
//
//	reg := node.MustRegistry(
//	    node.Spec{Name: "a", Func: stepA},
//	    node.Spec{Name: "b", Func: stepB},
//	    node.Spec{Name: "c", Func: stepC},
//	)
//	gates, _ := gate.NewSet(reg, "b")
//
//	eng, err := engine.New(reg, gates, pgStore,
//	    engine.WithConcurrency(20),
//	    engine.WithExtension(myExtension),
//	    engine.WithMiddleware(myMiddleware),
//	)
//	if err := eng.Start(ctx); err != nil { ... }
//	defer eng.Stop(ctx)
//
// # Thread Operations
//
//	cp, err := eng.StartThread(ctx, id.NewThreadID(), checkpoint.State{Input: "q3 revenue"})
//	cp, err = eng.Poll(ctx, cp.ThreadID)
//	cp, err = eng.Decide(ctx, cp.ThreadID, true)
//
// Every persisted write increments the checkpoint sequence by one. Calls
// against the same thread are serialized in-process, and the store's
// compare-and-swap on sequence guards against writers in other processes.
//
// # Options
//
//   - [WithLogger]: set the structured logger
//   - [WithConfig]: replace the whole configuration
//   - [WithConcurrency]: number of threads advanced in parallel
//   - [WithInlineScheduler]: run threads on the caller's goroutine
//   - [WithExtension]: register a lifecycle extension
//   - [WithMiddleware]: add a middleware to the node execution chain
//   - [WithBackoff]: set the retry strategy for transient run failures
//   - [WithTracerProvider]: set the OpenTelemetry tracer provider
//   - [WithMeterProvider]: set the OpenTelemetry meter provider
package engine

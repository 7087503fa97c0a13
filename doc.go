// Package tracecore is the transaction-tracing core of an APM agent: a
// segment tree that records timed, nested, async-aware intervals for one
// request or background job, a two-pass finalizer that turns the tree
// into a trace-JSON document, a bounded vector of span events, and a
// rollup metric table, and a distributed-trace propagation layer
// supporting both W3C Trace Context and a proprietary JSON+base64
// payload format.
//
// A typical lifecycle:
//
//	app := tracecore.NewApp(client, tracecore.WithAttributeFilter(filter))
//	txn := tracecore.Begin(app, tracecore.New(tracecore.WithTraceThreshold(time.Second.Nanoseconds())), sink)
//	seg := txn.SegmentStart(txn.Root(), "")
//	// ... do work, add attributes, mark errors ...
//	seg.End()
//	txn.SetPath("/users/:id", ext.PathURI, false)
//	txn.End()
//
// Txn.End runs the finalizer and hands the resulting Artifacts to the
// configured HarvestSink; everything past that point — batching,
// transport, the daemon IPC connection — lives outside this package.
//
// The core does no I/O, spawns no goroutines, and takes no internal
// locks past App's reference count: a Txn is owned by exactly one
// execution context for its lifetime.
package tracecore

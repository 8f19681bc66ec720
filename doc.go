// Package ember provides a high-throughput, low-latency application
// logging engine core: a lock-free MPSC ring buffer with a configurable
// overflow policy, and a family of sinks (memory-mapped, batched,
// rotating + compressing) that consume from it.
//
// # Quick start
//
// A memory-mapped sink fed by an async ring buffer:
//
//	sink, err := ember.NewMMapSink(ember.MMapSinkConfig{Path: "app.log"}, ember.Info, nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer sink.Close()
//
//	worker, err := ember.NewAsyncWorker(ember.AsyncWorkerConfig{
//		Capacity: 4096,
//		Policy:   ember.DropOldest,
//	}, sink)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer worker.Shutdown(5 * time.Second)
//
//	worker.Publish(ember.NewRecordNow(ember.Info, "app", "hello", ""))
//
// # Sinks
//
// Three sink implementations ship in this package: MMapSink (growing
// memory-mapped region), BatchSink (count/time dual-threshold buffering),
// and RotatingSink (size/age rotation with an asynchronous compression
// pipeline and an adaptive back-pressure policy that doubles the rotation
// threshold when the compressor saturates). All three implement the Sink
// interface and can be attached to an AsyncWorker, or driven directly for
// synchronous use.
//
// # Out of scope
//
// This package has no public logging facade, configuration file loader,
// formatter/layout library, or network/database/syslog sinks — those are
// left to callers, matching this package's narrow, composable core.
package ember

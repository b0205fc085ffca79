// Package coordinator drives scheduled catalog sync cycles.
//
// The coordinator runs one cycle on start and then one per interval, with a
// random jitter applied to every tick so that several replicas sharing a
// store do not hit the search API at the same moment. Scheduled cycles are
// never forced: the orchestrator's window and single-flight guard decide
// whether they actually run.
//
// Start blocks until its context is cancelled or Stop is called:
//
//	coord := coordinator.New(orchestrator, coordinator.WithInterval(time.Hour))
//	go func() {
//		_ = coord.Start(ctx)
//	}()
//	defer coord.Stop()
package coordinator

package analytics

import "eventinsight/internal/registry"

// Publish registers the ingestion and aggregation capabilities so that the
// HTTP layer and the scheduler can resolve them by name.
func Publish(reg *registry.Registry, tracker Tracker, runner CycleRunner) error {
	if err := reg.Register(CapabilityTracker, tracker); err != nil {
		return err
	}
	return reg.Register(CapabilityAggregator, runner)
}

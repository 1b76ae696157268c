package testutil

import (
	"testing"

	"bazaar-backend/lib/respcache"
	"bazaar-backend/lib/sources"
	"bazaar-backend/lib/telemetry"
)

// SetupPipeline builds the fixture shared by scraper and service
// tests: test telemetry, a policy registry with batch throttling
// zeroed out, and a memory-backed response cache.
func SetupPipeline(t testing.TB, name string) (sources.PipelineContext, func()) {
	cleanup := telemetry.SetupForTesting(t, name)

	config := sources.DefaultConfig()
	for keyname, policy := range config {
		policy.BatchFetchDelaySeconds = 0
		config[keyname] = policy
	}
	registry, err := sources.RegistryFromConfig(config)
	if err != nil {
		t.Fatal(err)
	}

	return sources.NewPipelineContext(registry, respcache.NewMemory()), cleanup
}

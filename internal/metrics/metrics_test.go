package metrics_test

import (
	"strings"
	"testing"

	"github.com/developingchet/guild-counter-sync/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestMetricCollectorsNonNil verifies all package-level metric variables
// are non-nil and pass Prometheus linting rules.
func TestMetricCollectorsNonNil(t *testing.T) {
	tests := []struct {
		name string
		c    prometheus.Collector
	}{
		{"SweepsTotal", metrics.SweepsTotal},
		{"SweepDuration", metrics.SweepDuration},
		{"CommunitiesSwept", metrics.CommunitiesSwept},
		{"Renames", metrics.Renames},
		{"DanglingSurfaces", metrics.DanglingSurfaces},
		{"APICalls", metrics.APICalls},
		{"APIDuration", metrics.APIDuration},
		{"EventsReceived", metrics.EventsReceived},
		{"EventsFiltered", metrics.EventsFiltered},
		{"SweepsCoalesced", metrics.SweepsCoalesced},
		{"SweepsMerged", metrics.SweepsMerged},
		{"SweepsDropped", metrics.SweepsDropped},
		{"SweepQueueDepth", metrics.SweepQueueDepth},
		{"Authorizations", metrics.Authorizations},
		{"ConfiguredCommunities", metrics.ConfiguredCommunities},
		{"DBSizeBytes", metrics.DBSizeBytes},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.c == nil {
				t.Fatal("collector is nil")
			}
			lintErrs, err := testutil.CollectAndLint(tc.c)
			if err != nil {
				t.Errorf("CollectAndLint gather error: %v", err)
			}
			if len(lintErrs) > 0 {
				t.Errorf("prometheus lint errors: %v", lintErrs)
			}
		})
	}
}

// TestMetricNamesAndHelp verifies all expected metrics are registered under the
// guild_counters_ namespace and have non-empty help strings.
func TestMetricNamesAndHelp(t *testing.T) {
	cases := []struct {
		name string
		c    prometheus.Collector
	}{
		{"guild_counters_sweeps_total", metrics.SweepsTotal},
		{"guild_counters_sweep_duration_seconds", metrics.SweepDuration},
		{"guild_counters_communities_swept_total", metrics.CommunitiesSwept},
		{"guild_counters_renames_total", metrics.Renames},
		{"guild_counters_dangling_surfaces", metrics.DanglingSurfaces},
		{"guild_counters_api_calls_total", metrics.APICalls},
		{"guild_counters_api_duration_seconds", metrics.APIDuration},
		{"guild_counters_events_received_total", metrics.EventsReceived},
		{"guild_counters_events_filtered_total", metrics.EventsFiltered},
		{"guild_counters_sweeps_coalesced_total", metrics.SweepsCoalesced},
		{"guild_counters_sweeps_merged_total", metrics.SweepsMerged},
		{"guild_counters_sweeps_dropped_total", metrics.SweepsDropped},
		{"guild_counters_sweep_queue_depth", metrics.SweepQueueDepth},
		{"guild_counters_authorizations_total", metrics.Authorizations},
		{"guild_counters_configured_communities", metrics.ConfiguredCommunities},
		{"guild_counters_db_size_bytes", metrics.DBSizeBytes},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ch := make(chan *prometheus.Desc, 32)
			go func() {
				tc.c.Describe(ch)
				close(ch)
			}()

			found := false
			for d := range ch {
				s := d.String()
				if strings.Contains(s, tc.name) {
					found = true
					if strings.Contains(s, `help: ""`) {
						t.Errorf("descriptor for %s has an empty help string", tc.name)
					}
				}
			}
			if !found {
				t.Errorf("no descriptor containing %q returned by Describe()", tc.name)
			}
		})
	}
}

package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_RegistersCollectors(t *testing.T) {
	m := New()

	m.Resolves.WithLabelValues("sparky", "ok").Inc()
	m.Uploads.WithLabelValues("ok").Inc()
	m.CodeConflicts.Inc()

	if got := testutil.ToFloat64(m.Resolves.WithLabelValues("sparky", "ok")); got != 1 {
		t.Errorf("resolves = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.CodeConflicts); got != 1 {
		t.Errorf("conflicts = %v, want 1", got)
	}

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	joined := strings.Join(names, " ")
	for _, want := range []string{"twitvid_resolver_requests_total", "twitvid_upload_short_code_conflicts_total", "go_goroutines"} {
		if !strings.Contains(joined, want) {
			t.Errorf("metric %s not gathered", want)
		}
	}
}

func TestNew_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.CodeConflicts.Inc()
	if testutil.ToFloat64(b.CodeConflicts) != 0 {
		t.Error("registries must not share collectors")
	}
}

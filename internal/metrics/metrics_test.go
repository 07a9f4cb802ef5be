package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterIdempotentAndCountersWork(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	// idempotent: calling again should be no-op
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}

	IncBootstrapRun("success")
	ObserveBootstrapDuration(0.42)
	IncDepCheck("pandas", true)
	IncDepCheck("binance", false)
	IncDepInstall("python-binance", true)
	IncDepInstall("requests", false)
	IncChildStart("monitor")
	IncChildExit("main", 0)
	IncChildExit("main", 2)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	wantNames := map[string]bool{
		"tradeboot_bootstrap_runs_total":       false,
		"tradeboot_bootstrap_duration_seconds": false,
		"tradeboot_deps_checks_total":          false,
		"tradeboot_deps_installs_total":        false,
		"tradeboot_child_starts_total":         false,
		"tradeboot_child_exits_total":          false,
	}
	for _, mf := range mfs {
		n := mf.GetName()
		if _, ok := wantNames[n]; ok {
			wantNames[n] = true
			if len(mf.GetMetric()) == 0 {
				t.Fatalf("metric %s has no samples", n)
			}
		}
	}
	for n, ok := range wantNames {
		if !ok {
			t.Fatalf("expected to find metric %s", n)
		}
	}
}

func TestChildExitOutcomeLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}

	IncChildExit("main", 0)
	IncChildExit("main", 2)
	IncChildStopped("monitor")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := map[string]bool{}
	for _, mf := range mfs {
		if mf.GetName() != "tradeboot_child_exits_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			var name, outcome string
			for _, lp := range m.GetLabel() {
				switch lp.GetName() {
				case "name":
					name = lp.GetValue()
				case "outcome":
					outcome = lp.GetValue()
				}
			}
			found[name+"/"+outcome] = true
		}
	}
	for _, want := range []string{"main/success", "main/failure", "monitor/stopped"} {
		if !found[want] {
			t.Fatalf("missing outcome sample %s, got %v", want, found)
		}
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	if err := RegisterDefault(); err != nil {
		t.Fatalf("RegisterDefault: %v", err)
	}
	IncChildStart("monitor")

	srv := httptest.NewServer(Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "tradeboot_child_starts_total") {
		t.Fatalf("metrics output missing child starts counter")
	}
}

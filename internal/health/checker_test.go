package health_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/ErlanBelekov/otp-auth/internal/health"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func pinger(err error) health.Pinger {
	return health.PingFunc(func(_ context.Context) error { return err })
}

func newTestChecker(deps ...health.Dependency) (*health.Checker, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return health.NewChecker(slog.Default(), reg, deps...), reg
}

func TestLiveness_AlwaysUp(t *testing.T) {
	c, _ := newTestChecker(health.Dependency{Name: "postgres", Pinger: pinger(errors.New("db down"))})

	result := c.Liveness(context.Background())
	if result.Status != "up" {
		t.Fatalf("expected status up, got %s", result.Status)
	}
	if result.Checks != nil {
		t.Fatalf("expected no checks, got %v", result.Checks)
	}
}

func TestReadiness_AllUp(t *testing.T) {
	c, reg := newTestChecker(
		health.Dependency{Name: "postgres", Pinger: pinger(nil)},
		health.Dependency{Name: "dynamodb", Pinger: pinger(nil)},
	)

	result := c.Readiness(context.Background())
	if result.Status != "up" {
		t.Fatalf("expected status up, got %s", result.Status)
	}
	for _, name := range []string{"postgres", "dynamodb"} {
		if got := result.Checks[name].Status; got != "up" {
			t.Errorf("%s status = %q, want up", name, got)
		}
	}

	n, err := testutil.GatherAndCount(reg, "otpauth_health_check_up")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 gauge series, got %d", n)
	}
}

func TestReadiness_OneDown(t *testing.T) {
	c, reg := newTestChecker(
		health.Dependency{Name: "postgres", Pinger: pinger(nil)},
		health.Dependency{Name: "sqs", Pinger: pinger(errors.New("connection refused"))},
	)

	result := c.Readiness(context.Background())
	if result.Status != "down" {
		t.Fatalf("expected status down, got %s", result.Status)
	}
	sqs := result.Checks["sqs"]
	if sqs.Status != "down" || sqs.Error == "" {
		t.Fatalf("expected sqs down with error, got %+v", sqs)
	}
	if result.Checks["postgres"].Status != "up" {
		t.Fatal("postgres should still report up")
	}

	if got := testGauge(t, reg, "otpauth_health_check_up", "sqs"); got != 0 {
		t.Fatalf("expected gauge 0, got %f", got)
	}
	if got := testGauge(t, reg, "otpauth_health_check_up", "postgres"); got != 1 {
		t.Fatalf("expected gauge 1, got %f", got)
	}
}

func testGauge(t *testing.T, reg *prometheus.Registry, name, depLabel string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "dependency" && lp.GetValue() == depLabel {
					return m.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s{dependency=%q} not found", name, depLabel)
	return 0
}

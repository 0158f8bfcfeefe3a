package circuit

import (
	"errors"
	"testing"
	"time"
)

func testBreaker(threshold, cooldownSec, probes int) (*Breaker, *time.Time) {
	b := NewBreaker(&BreakerConfig{
		Enabled:          true,
		FailureThreshold: threshold,
		CooldownSeconds:  cooldownSec,
		ProbeCount:       probes,
	})
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	return b, &now
}

func TestStartsClosedAndAllows(t *testing.T) {
	b, _ := testBreaker(3, 60, 1)
	if b.State() != StateClosed {
		t.Fatalf("state = %s, want closed", b.State())
	}
	if ok, reason := b.Allow(); !ok {
		t.Errorf("Allow() = false (%s), want true", reason)
	}
}

func TestOpensAtFailureThreshold(t *testing.T) {
	b, _ := testBreaker(3, 60, 1)

	b.RecordFailure(errors.New("timeout"))
	b.RecordFailure(errors.New("timeout"))
	if b.State() != StateClosed {
		t.Fatalf("state = %s after 2 failures, want closed", b.State())
	}

	b.RecordFailure(errors.New("timeout"))
	if b.State() != StateOpen {
		t.Fatalf("state = %s after 3 failures, want open", b.State())
	}
	if ok, reason := b.Allow(); ok || reason == "" {
		t.Errorf("Allow() = %v (%q), want blocked with reason", ok, reason)
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b, _ := testBreaker(3, 60, 1)

	b.RecordFailure(errors.New("timeout"))
	b.RecordFailure(errors.New("timeout"))
	b.RecordSuccess()
	b.RecordFailure(errors.New("timeout"))
	b.RecordFailure(errors.New("timeout"))

	if b.State() != StateClosed {
		t.Errorf("state = %s, success should have reset the count", b.State())
	}
}

func TestHalfOpenAfterCooldown(t *testing.T) {
	b, now := testBreaker(1, 60, 1)

	b.RecordFailure(errors.New("down"))
	if ok, _ := b.Allow(); ok {
		t.Fatal("Allow() = true inside cooldown")
	}

	*now = now.Add(61 * time.Second)
	ok, _ := b.Allow()
	if !ok {
		t.Fatal("Allow() = false after cooldown, want probe admitted")
	}
	if b.State() != StateHalfOpen {
		t.Errorf("state = %s, want half_open", b.State())
	}

	// Only one probe at a time.
	if ok, _ := b.Allow(); ok {
		t.Error("second probe admitted while first in flight")
	}
}

func TestProbeSuccessCloses(t *testing.T) {
	b, now := testBreaker(1, 60, 2)

	b.RecordFailure(errors.New("down"))
	*now = now.Add(61 * time.Second)

	for i := 0; i < 2; i++ {
		if ok, reason := b.Allow(); !ok {
			t.Fatalf("probe %d blocked: %s", i, reason)
		}
		b.RecordSuccess()
	}

	if b.State() != StateClosed {
		t.Errorf("state = %s after %d probe successes, want closed", b.State(), 2)
	}
}

func TestProbeFailureReopens(t *testing.T) {
	b, now := testBreaker(1, 60, 1)

	b.RecordFailure(errors.New("down"))
	*now = now.Add(61 * time.Second)
	if ok, _ := b.Allow(); !ok {
		t.Fatal("probe not admitted")
	}

	b.RecordFailure(errors.New("still down"))
	if b.State() != StateOpen {
		t.Errorf("state = %s after failed probe, want open", b.State())
	}
	if ok, _ := b.Allow(); ok {
		t.Error("Allow() = true immediately after reopen")
	}
}

func TestCallbacks(t *testing.T) {
	b, now := testBreaker(1, 60, 1)

	tripped := make(chan string, 1)
	recovered := make(chan struct{}, 1)
	b.OnTrip(func(reason string) { tripped <- reason })
	b.OnRecover(func() { recovered <- struct{}{} })

	b.RecordFailure(errors.New("down"))
	select {
	case reason := <-tripped:
		if reason == "" {
			t.Error("empty trip reason")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnTrip not called")
	}

	*now = now.Add(61 * time.Second)
	b.Allow()
	b.RecordSuccess()
	select {
	case <-recovered:
	case <-time.After(2 * time.Second):
		t.Fatal("OnRecover not called")
	}
}

func TestDisabledBreakerAlwaysAllows(t *testing.T) {
	b := NewBreaker(&BreakerConfig{Enabled: false, FailureThreshold: 1})
	for i := 0; i < 10; i++ {
		b.RecordFailure(errors.New("down"))
	}
	if ok, _ := b.Allow(); !ok {
		t.Error("disabled breaker blocked a request")
	}
	if b.State() != StateClosed {
		t.Errorf("state = %s, want closed", b.State())
	}
}

func TestReset(t *testing.T) {
	b, _ := testBreaker(1, 600, 1)
	b.RecordFailure(errors.New("down"))
	if b.State() != StateOpen {
		t.Fatal("breaker did not open")
	}
	b.Reset()
	if b.State() != StateClosed {
		t.Errorf("state = %s after Reset, want closed", b.State())
	}
	if ok, _ := b.Allow(); !ok {
		t.Error("Allow() = false after Reset")
	}
}

func TestStatusSnapshot(t *testing.T) {
	b, _ := testBreaker(1, 60, 1)
	b.RecordFailure(errors.New("connection refused"))

	status := b.Status()
	if status["state"] != string(StateOpen) {
		t.Errorf("status state = %v, want open", status["state"])
	}
	if status["last_failure"] != "connection refused" {
		t.Errorf("last_failure = %v", status["last_failure"])
	}
	if status["trip_count"].(int64) != 1 {
		t.Errorf("trip_count = %v, want 1", status["trip_count"])
	}
}

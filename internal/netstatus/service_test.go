package netstatus

import (
	"errors"
	"testing"
	"time"
)

func TestService_OpensAfterThreshold(t *testing.T) {
	s := New(Options{FailureThreshold: 3, OpenTimeout: time.Minute})

	failure := errors.New("connection refused")
	for i := 0; i < 2; i++ {
		s.RecordFailure(failure)
		if !s.CanMakeRequest() {
			t.Fatalf("breaker must stay closed after %d failures", i+1)
		}
	}

	s.RecordFailure(failure)
	if s.CanMakeRequest() {
		t.Fatal("breaker must open at the failure threshold")
	}

	snap := s.Snapshot()
	if snap.State != CircuitOpen || snap.Reachable {
		t.Fatalf("expected open and unreachable, got %+v", snap)
	}
	if snap.ConsecutiveFailures != 3 {
		t.Fatalf("expected 3 consecutive failures, got %d", snap.ConsecutiveFailures)
	}
}

func TestService_SuccessResetsCounter(t *testing.T) {
	s := New(Options{FailureThreshold: 3, OpenTimeout: time.Minute})

	s.RecordFailure(errors.New("boom"))
	s.RecordFailure(errors.New("boom"))
	s.RecordSuccess()
	s.RecordFailure(errors.New("boom"))
	s.RecordFailure(errors.New("boom"))

	if !s.CanMakeRequest() {
		t.Fatal("success must reset the consecutive failure counter")
	}
}

func TestService_HalfOpenProbe(t *testing.T) {
	s := New(Options{FailureThreshold: 1, OpenTimeout: 10 * time.Millisecond})

	s.RecordFailure(errors.New("boom"))
	if s.CanMakeRequest() {
		t.Fatal("breaker must be open right after tripping")
	}

	time.Sleep(30 * time.Millisecond)

	if !s.CanMakeRequest() {
		t.Fatal("breaker must allow a probe after the open timeout")
	}
	if st := s.Snapshot().State; st != CircuitHalfOpen {
		t.Fatalf("expected half-open, got %v", st)
	}
}

func TestService_HalfOpenTransitions(t *testing.T) {
	tests := []struct {
		name      string
		probe     func(*Service)
		wantState CircuitState
	}{
		{
			name:      "failed probe reopens",
			probe:     func(s *Service) { s.RecordFailure(errors.New("still down")) },
			wantState: CircuitOpen,
		},
		{
			name:      "successful probe closes",
			probe:     func(s *Service) { s.RecordSuccess() },
			wantState: CircuitClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(Options{FailureThreshold: 1, OpenTimeout: time.Millisecond})
			s.RecordFailure(errors.New("boom"))
			time.Sleep(5 * time.Millisecond)
			if !s.CanMakeRequest() {
				t.Fatal("probe must be allowed")
			}

			tt.probe(s)
			if st := s.Snapshot().State; st != tt.wantState {
				t.Fatalf("expected %v, got %v", tt.wantState, st)
			}
		})
	}
}

func TestService_ObserveProbeLatency(t *testing.T) {
	tests := []struct {
		name string
		rtt  time.Duration
		want Quality
	}{
		{name: "fast probe", rtt: 50 * time.Millisecond, want: QualityGood},
		{name: "medium probe", rtt: 400 * time.Millisecond, want: QualityFair},
		{name: "slow probe", rtt: 2 * time.Second, want: QualityPoor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(Options{})
			s.ObserveProbeLatency(tt.rtt)
			if got := s.Snapshot().Quality; got != tt.want {
				t.Fatalf("expected quality %q, got %q", tt.want, got)
			}
		})
	}
}

func TestService_QualityDoesNotAffectBreaker(t *testing.T) {
	s := New(Options{FailureThreshold: 5})
	s.ObserveProbeLatency(5 * time.Second)
	if !s.CanMakeRequest() {
		t.Fatal("poor quality must not block requests")
	}
}

func TestService_SubscribeOnTransitions(t *testing.T) {
	s := New(Options{FailureThreshold: 1, OpenTimeout: time.Minute})

	var states []CircuitState
	unsubscribe := s.Subscribe(func(snap Snapshot) {
		states = append(states, snap.State)
	})

	s.RecordFailure(errors.New("boom"))
	s.RecordSuccess()

	if len(states) != 2 || states[0] != CircuitOpen || states[1] != CircuitClosed {
		t.Fatalf("expected open then closed notifications, got %v", states)
	}

	unsubscribe()
	s.RecordFailure(errors.New("boom"))
	if len(states) != 2 {
		t.Fatal("unsubscribed callback must not fire")
	}
}

func TestService_Reset(t *testing.T) {
	s := New(Options{FailureThreshold: 1})
	s.RecordFailure(errors.New("boom"))
	s.Reset()

	snap := s.Snapshot()
	if snap.State != CircuitClosed || snap.ConsecutiveFailures != 0 || snap.Quality != QualityUnknown {
		t.Fatalf("reset must restore the initial state, got %+v", snap)
	}
}

func TestCircuitState_String(t *testing.T) {
	if CircuitClosed.String() != "closed" || CircuitOpen.String() != "open" || CircuitHalfOpen.String() != "half-open" {
		t.Fatal("state names mismatch")
	}
	if CircuitState(42).String() != "unknown" {
		t.Fatal("unexpected name for unknown state")
	}
}

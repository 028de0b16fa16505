package notify

import (
	"testing"
	"time"
)

func TestRetryPolicy_ShouldRetry(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: time.Minute}

	if !p.ShouldRetry(1) {
		t.Error("attempt 1 of 3 should retry")
	}
	if !p.ShouldRetry(2) {
		t.Error("attempt 2 of 3 should retry")
	}
	if p.ShouldRetry(3) {
		t.Error("attempt 3 of 3 should not retry")
	}
	if p.ShouldRetry(7) {
		t.Error("attempts past the cap should not retry")
	}
}

func TestRetryPolicy_NextDelayDoubles(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: 30 * time.Second, MaxDelay: 15 * time.Minute}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 30 * time.Second},
		{2, 60 * time.Second},
		{3, 120 * time.Second},
		{4, 240 * time.Second},
	}

	for _, tt := range tests {
		if got := p.NextDelay(tt.attempt); got != tt.want {
			t.Errorf("NextDelay(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}

func TestRetryPolicy_NextDelayCapped(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 10, BaseDelay: 30 * time.Second, MaxDelay: 2 * time.Minute}

	if got := p.NextDelay(9); got != 2*time.Minute {
		t.Errorf("expected cap at %s, got %s", 2*time.Minute, got)
	}
}

func TestRetryPolicy_NextDelayClampsBadAttempt(t *testing.T) {
	p := DefaultRetryPolicy()

	if got := p.NextDelay(0); got != p.BaseDelay {
		t.Errorf("expected base delay for attempt 0, got %s", got)
	}
}

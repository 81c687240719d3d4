package services

import (
	"testing"
	"time"
)

func TestRetryBackoffDoublesUntilCap(t *testing.T) {
	base := 100 * time.Millisecond
	limit := 500 * time.Millisecond
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 500 * time.Millisecond, 500 * time.Millisecond}
	for i, expected := range want {
		if got := RetryBackoff(i+1, base, limit); got != expected {
			t.Fatalf("attempt %d: expected %s, got %s", i+1, expected, got)
		}
	}
}

func TestRetryBackoffDefaults(t *testing.T) {
	if got := RetryBackoff(0, 0, 0); got != DefaultRetryBase {
		t.Fatalf("expected default base, got %s", got)
	}
	if got := RetryBackoff(40, 0, 0); got != DefaultRetryCap {
		t.Fatalf("expected default cap, got %s", got)
	}
}

func TestInterBatchDelayShrinksWithProgress(t *testing.T) {
	base := 100 * time.Millisecond
	early := InterBatchDelay(base, 0, 100, 3)
	late := InterBatchDelay(base, 90, 100, 1)
	if early != base {
		t.Fatalf("expected full base delay early, got %s", early)
	}
	if late >= early {
		t.Fatalf("expected late delay below early delay, got %s >= %s", late, early)
	}
	if long := InterBatchDelay(base, 0, 100, 20); long <= base {
		t.Fatalf("expected stretched delay for long runs, got %s", long)
	}
	if none := InterBatchDelay(base, 10, 100, 0); none != 0 {
		t.Fatalf("expected no delay after last batch, got %s", none)
	}
}

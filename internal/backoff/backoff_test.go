package backoff

import (
	"errors"
	"testing"
	"time"
)

func TestPolicy_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Policy{MaxAttempts: 3, Base: time.Millisecond}.Do(func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestPolicy_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Policy{MaxAttempts: 5, Base: time.Millisecond}.Do(func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestPolicy_ExhaustsAttempts(t *testing.T) {
	want := errors.New("down")
	calls := 0
	err := Policy{MaxAttempts: 3, Base: time.Millisecond}.Do(func() error {
		calls++
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("Do() error = %v, want %v", err, want)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

package ratelimiter

import (
	"testing"
	"time"
)

func TestAllowBurstThenThrottle(t *testing.T) {
	l := New(1, 2, time.Minute)
	now := time.Now()

	if !l.Allow("a", now) || !l.Allow("a", now) {
		t.Fatalf("burst of 2 should be allowed")
	}
	if l.Allow("a", now) {
		t.Fatalf("third attempt in same instant should be throttled")
	}
	if !l.Allow("a", now.Add(2*time.Second)) {
		t.Fatalf("attempt after refill window should be allowed")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := New(1, 1, time.Minute)
	now := time.Now()

	if !l.Allow("a", now) {
		t.Fatalf("first attempt for key a should be allowed")
	}
	if l.Allow("a", now) {
		t.Fatalf("second attempt for key a should be throttled")
	}
	if !l.Allow("b", now) {
		t.Fatalf("key b has its own bucket")
	}
}

func TestNilAndBlankKeyAllowEverything(t *testing.T) {
	var l *AttemptLimiter
	if !l.Allow("a", time.Now()) {
		t.Fatalf("nil limiter must allow")
	}

	l = New(1, 1, time.Minute)
	now := time.Now()
	for i := 0; i < 5; i++ {
		if !l.Allow("  ", now) {
			t.Fatalf("blank keys are not limited")
		}
	}
}

func TestInvalidArgsReturnNil(t *testing.T) {
	if New(0, 1, time.Minute) != nil {
		t.Fatalf("zero rate is invalid")
	}
	if New(1, 0, time.Minute) != nil {
		t.Fatalf("zero burst is invalid")
	}
}

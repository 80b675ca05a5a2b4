package amqp

import (
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"
)

func TestNewSnapshotChangedMessage(t *testing.T) {
	msg := NewSnapshotChangedMessage("user-1", "2024-03", ReasonDebtPayment)

	if msg.UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", msg.UserID)
	}
	if msg.Month != "2024-03" {
		t.Errorf("Month = %q, want 2024-03", msg.Month)
	}
	if msg.Reason != ReasonDebtPayment {
		t.Errorf("Reason = %q, want %q", msg.Reason, ReasonDebtPayment)
	}
	if msg.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}
	if msg.Timestamp.Location() != time.UTC {
		t.Error("Timestamp should be UTC")
	}
}

func TestSnapshotChangedMessage_JSON(t *testing.T) {
	original := NewSnapshotChangedMessage("user-2", "2025-01", ReasonMonthPropagate)

	data, err := original.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON failed: %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("produced invalid JSON: %v", err)
	}
	for _, key := range []string{"user_id", "month", "reason", "timestamp"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("JSON missing field %q", key)
		}
	}

	decoded, err := SnapshotChangedMessageFromJSON(data)
	if err != nil {
		t.Fatalf("FromJSON failed: %v", err)
	}
	if decoded.UserID != original.UserID || decoded.Month != original.Month || decoded.Reason != original.Reason {
		t.Errorf("round trip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestSnapshotChangedMessageFromJSON_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"malformed", []byte("{not json")},
		{"missing user", []byte(`{"month":"2024-01","reason":"entry_changed"}`)},
		{"empty", []byte(``)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := SnapshotChangedMessageFromJSON(tt.data); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second}, // capped
		{10, 30 * time.Second},
		{-1, 1 * time.Second},
	}

	for _, tt := range tests {
		if got := exponentialBackoff(tt.attempt); got != tt.want {
			t.Errorf("exponentialBackoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"refused", errors.New("dial tcp 127.0.0.1:5672: connection refused"), true},
		{"reset", errors.New("read: connection reset by peer"), true},
		{"broken pipe", errors.New("write: broken pipe"), true},
		{"closed channel", errors.New("Exception (504) Reason: \"channel/connection is not open\""), true},
		{"timeout", &net.DNSError{Err: "timeout", IsTimeout: true}, true},
		{"protocol error", errors.New("PRECONDITION_FAILED - inequivalent arg 'durable'"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isConnectionError(tt.err); got != tt.want {
				t.Errorf("isConnectionError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	c := &Client{url: "amqp://localhost:5672"}

	for i := 0; i < maxFailures-1; i++ {
		c.recordFailure()
		if !c.allowRequest() {
			t.Fatalf("breaker opened after %d failures, want %d", i+1, maxFailures)
		}
	}

	c.recordFailure()
	if c.state != StateOpen {
		t.Errorf("state = %v after %d failures, want StateOpen", c.state, maxFailures)
	}
	if c.allowRequest() {
		t.Error("open breaker should reject requests")
	}
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	c := &Client{}

	for i := 0; i < maxFailures; i++ {
		c.recordFailure()
	}
	// Age the failure past the open timeout.
	c.lastFailure = time.Now().Add(-openTimeout - time.Second)

	if !c.allowRequest() {
		t.Fatal("breaker should allow a probe after the open timeout")
	}
	if c.state != StateHalfOpen {
		t.Errorf("state = %v, want StateHalfOpen", c.state)
	}

	// A failed probe reopens immediately.
	c.recordFailure()
	if c.state != StateOpen {
		t.Errorf("state after failed probe = %v, want StateOpen", c.state)
	}
}

func TestCircuitBreaker_SuccessResets(t *testing.T) {
	c := &Client{}

	c.recordFailure()
	c.recordFailure()
	c.recordSuccess()

	if c.failures != 0 {
		t.Errorf("failures = %d after success, want 0", c.failures)
	}
	if c.state != StateClosed {
		t.Errorf("state = %v after success, want StateClosed", c.state)
	}
}

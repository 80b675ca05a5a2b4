package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Reasons attached to snapshot change notifications.
const (
	ReasonEntryChanged   = "entry_changed"
	ReasonDebtPayment    = "debt_payment"
	ReasonGoalProgress   = "goal_progress"
	ReasonMonthPropagate = "month_propagated"
	ReasonSampleData     = "sample_data"
)

// SnapshotChangedMessage announces that a user's month snapshot is stale
// and downstream consumers should rebuild derived data for it.
type SnapshotChangedMessage struct {
	UserID    string    `json:"user_id"`
	Month     string    `json:"month"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// NewSnapshotChangedMessage creates a notification stamped with the current time.
func NewSnapshotChangedMessage(userID, month, reason string) SnapshotChangedMessage {
	return SnapshotChangedMessage{
		UserID:    userID,
		Month:     month,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON serializes the message for publishing
func (m SnapshotChangedMessage) ToJSON() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot changed message: %w", err)
	}
	return data, nil
}

// SnapshotChangedMessageFromJSON deserializes a message received from the queue
func SnapshotChangedMessageFromJSON(data []byte) (SnapshotChangedMessage, error) {
	var m SnapshotChangedMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return SnapshotChangedMessage{}, fmt.Errorf("failed to unmarshal snapshot changed message: %w", err)
	}
	if m.UserID == "" {
		return SnapshotChangedMessage{}, fmt.Errorf("snapshot changed message missing user_id")
	}
	return m, nil
}

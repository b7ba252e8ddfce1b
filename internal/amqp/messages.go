package amqp

import (
	"encoding/json"
	"time"
)

const (
	ActionConfirmed = "confirmed"
	ActionDeleted   = "deleted"
)

// BillEventMessage notifies downstream consumers that a bill changed state and
// its year's aggregates were recomputed. Consumers fetch details themselves.
type BillEventMessage struct {
	BillID    string    `json:"billId"`
	Year      int       `json:"year"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

func NewBillEventMessage(billID string, year int, action string) *BillEventMessage {
	return &BillEventMessage{
		BillID:    billID,
		Year:      year,
		Action:    action,
		Timestamp: time.Now(),
	}
}

func (m *BillEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func BillEventMessageFromJSON(data []byte) (*BillEventMessage, error) {
	var msg BillEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

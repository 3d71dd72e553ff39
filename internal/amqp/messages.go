package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// ExportMessage asks the worker to export one outbox job to Google Sheets.
// It carries only the job ID and version; the worker loads the timeline from
// the database.
type ExportMessage struct {
	JobID     string    `json:"job_id"`
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// NewExportMessage creates a message for the given job version.
func NewExportMessage(jobID string, version int64) *ExportMessage {
	return &ExportMessage{
		JobID:     jobID,
		Version:   version,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ExportMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExportMessageFromJSON parses a message and requires a job ID.
func ExportMessageFromJSON(data []byte) (*ExportMessage, error) {
	var msg ExportMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.JobID == "" {
		return nil, errors.New("export message without job_id")
	}
	return &msg, nil
}

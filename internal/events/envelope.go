// README: CloudEvents-style envelope for trip lifecycle messages.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	eventSource     = "smartride-api"
	specVersion     = "1.0"
	typePrefix      = "smartride.trip."
	dataContentType = "application/json"
)

type CloudEvent struct {
	SpecVersion     string          `json:"specversion"`
	ID              string          `json:"id"`
	Source          string          `json:"source"`
	Type            string          `json:"type"`
	Subject         string          `json:"subject,omitempty"`
	Time            time.Time       `json:"time"`
	DataContentType string          `json:"datacontenttype"`
	Data            json.RawMessage `json:"data"`
}

func NewCloudEvent(eventType, subject string, at time.Time, data any) (CloudEvent, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return CloudEvent{}, fmt.Errorf("marshal %s data: %w", eventType, err)
	}
	return CloudEvent{
		SpecVersion:     specVersion,
		ID:              uuid.NewString(),
		Source:          eventSource,
		Type:            eventType,
		Subject:         subject,
		Time:            at.UTC(),
		DataContentType: dataContentType,
		Data:            raw,
	}, nil
}

func (e CloudEvent) ParseData(out any) error {
	return json.Unmarshal(e.Data, out)
}

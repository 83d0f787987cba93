package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType — тип события realtime-канала.
type EventType string

const (
	EventTypeJobStatus EventType = "job-status"
	EventTypeRunStatus EventType = "run-status"
)

// Event — событие, рассылаемое подписчикам кампании.
//
// На проводе сериализуется плоско: {eventId, type, campaignId, timestamp, ...data}.
type Event struct {
	ID         string         `json:"eventId"`
	Type       EventType      `json:"type"`
	CampaignID uuid.UUID      `json:"campaignId"`
	Timestamp  time.Time      `json:"timestamp"`
	Data       map[string]any `json:"-"`
}

// NewEvent создаёт событие с новым ID и текущим временем.
func NewEvent(typ EventType, campaignID uuid.UUID, data map[string]any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		CampaignID: campaignID,
		Timestamp:  time.Now().UTC(),
		Data:       data,
	}
}

// MarshalJSON разворачивает Data на верхний уровень.
func (e Event) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Data)+4)
	for k, v := range e.Data {
		out[k] = v
	}
	out["eventId"] = e.ID
	out["type"] = e.Type
	out["campaignId"] = e.CampaignID
	out["timestamp"] = e.Timestamp
	return json.Marshal(out)
}

// UnmarshalJSON собирает неизвестные поля обратно в Data.
func (e *Event) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	type header struct {
		ID         string    `json:"eventId"`
		Type       EventType `json:"type"`
		CampaignID uuid.UUID `json:"campaignId"`
		Timestamp  time.Time `json:"timestamp"`
	}
	var h header
	if err := json.Unmarshal(b, &h); err != nil {
		return err
	}
	e.ID, e.Type, e.CampaignID, e.Timestamp = h.ID, h.Type, h.CampaignID, h.Timestamp

	e.Data = make(map[string]any)
	for k, v := range raw {
		switch k {
		case "eventId", "type", "campaignId", "timestamp":
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return err
		}
		e.Data[k] = val
	}
	return nil
}

package advisory

import (
	"encoding/json"
	"fmt"

	"scriptlab/internal/merge"
)

// EventType tags an advisory event.
type EventType string

const (
	EventText          EventType = "text"
	EventContentUpdate EventType = "content_update"
	EventStatus        EventType = "status"
	EventError         EventType = "error"
)

// Event is one frame of an advisory turn. Content is a JSON string for text,
// status and error events, and an update object for content_update.
type Event struct {
	Type    EventType       `json:"type"`
	Content json.RawMessage `json:"content"`
}

// TextEvent carries a prose delta.
func TextEvent(text string) Event { return stringEvent(EventText, text) }

// StatusEvent carries progress narration.
func StatusEvent(text string) Event { return stringEvent(EventStatus, text) }

// ErrorEvent reports a failed turn.
func ErrorEvent(text string) Event { return stringEvent(EventError, text) }

func stringEvent(t EventType, text string) Event {
	encoded, _ := json.Marshal(text)
	return Event{Type: t, Content: encoded}
}

// UpdateEvent wraps a structured plan update.
func UpdateEvent(u merge.Update) (Event, error) {
	encoded, err := merge.Encode(u)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: EventContentUpdate, Content: encoded}, nil
}

// Text returns the string content of a text, status or error event.
func (e Event) Text() string {
	var s string
	if err := json.Unmarshal(e.Content, &s); err != nil {
		return string(e.Content)
	}
	return s
}

// Update decodes the update carried by a content_update event.
func (e Event) Update() (merge.Update, error) {
	if e.Type != EventContentUpdate {
		return nil, fmt.Errorf("advisory: %s event carries no update", e.Type)
	}
	return merge.Decode(e.Content)
}

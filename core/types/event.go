package types

// Event is the rendered form of a committed state change, as published to
// subscribers and recorded in the event journal.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Attributes shared by every gift card event.
const (
	AttrOwner  = "owner"
	AttrCardID = "cardId"
)

// Attr returns the named attribute, or "" when absent.
func (e *Event) Attr(key string) string {
	if e == nil || e.Attributes == nil {
		return ""
	}
	return e.Attributes[key]
}

package types

// Event is the broadcast form of a ledger or governance event. Sequence is
// assigned by the event hub and increases by one per delivered event, so a
// stream consumer can detect events it missed.
type Event struct {
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Attr returns the named attribute, or "" when absent.
func (e *Event) Attr(key string) string {
	if e == nil {
		return ""
	}
	return e.Attributes[key]
}

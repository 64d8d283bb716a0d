package types

// Event represents a typed event emitted during an invocation.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

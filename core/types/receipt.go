package types

// ReceiptStatus reports whether an invocation committed.
type ReceiptStatus uint8

const (
	ReceiptFailed ReceiptStatus = iota
	ReceiptCommitted
)

func (s ReceiptStatus) String() string {
	if s == ReceiptCommitted {
		return "committed"
	}
	return "failed"
}

// Receipt summarises the outcome of one invocation. Events are only present
// on committed receipts.
type Receipt struct {
	ID       [32]byte      `json:"id"`
	Contract [20]byte      `json:"contract"`
	Method   Method        `json:"method"`
	Sequence uint32        `json:"sequence"`
	Status   ReceiptStatus `json:"status"`
	Error    string        `json:"error,omitempty"`
	Events   []Event       `json:"events,omitempty"`
}

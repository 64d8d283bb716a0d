package state

import "fmt"

var (
	noncePrefix = []byte("auth/nonce/")
	sequenceKey = []byte("host/sequence")
)

func nonceKey(addr [20]byte) []byte {
	buf := make([]byte, 0, len(noncePrefix)+len(addr))
	buf = append(buf, noncePrefix...)
	return append(buf, addr[:]...)
}

// Nonce returns the last committed authorization nonce of addr.
func (m *Manager) Nonce(addr [20]byte) (uint64, error) {
	var nonce uint64
	if _, err := m.KVGet(nonceKey(addr), &nonce); err != nil {
		return 0, err
	}
	return nonce, nil
}

// ConsumeNonce requires nonce to be exactly one above the stored value and
// records it.
func (m *Manager) ConsumeNonce(addr [20]byte, nonce uint64) error {
	current, err := m.Nonce(addr)
	if err != nil {
		return err
	}
	if nonce != current+1 {
		return fmt.Errorf("state: nonce %d invalid, expected %d", nonce, current+1)
	}
	return m.KVPut(nonceKey(addr), nonce)
}

// LastSequence returns the ledger sequence of the last committed invocation.
func (m *Manager) LastSequence() (uint32, error) {
	var seq uint32
	if _, err := m.KVGet(sequenceKey, &seq); err != nil {
		return 0, err
	}
	return seq, nil
}

// SetLastSequence records the sequence of a committed invocation.
func (m *Manager) SetLastSequence(seq uint32) error {
	return m.KVPut(sequenceKey, seq)
}

package state

import (
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"droplet/storage"
)

// TTLLimits bounds the lifetime of contract instance storage, measured in
// ledger sequences.
type TTLLimits struct {
	Min uint32
	Max uint32
}

// DefaultTTLLimits matches the defaults written by config.Load.
var DefaultTTLLimits = TTLLimits{Min: 4_096, Max: 3_110_400}

// Manager reads and writes RLP-encoded state on top of a key/value database
// at a fixed ledger sequence. A manager is bound to one invocation; the host
// hands it an overlay so every write can be committed or dropped as a unit.
type Manager struct {
	db       storage.Database
	sequence uint32
	limits   TTLLimits
}

// NewManager creates a state manager over db at the supplied ledger sequence.
func NewManager(db storage.Database, sequence uint32, limits TTLLimits) *Manager {
	if limits.Max == 0 {
		limits = DefaultTTLLimits
	}
	if limits.Min == 0 || limits.Min > limits.Max {
		limits.Min = limits.Max
	}
	return &Manager{db: db, sequence: sequence, limits: limits}
}

// Sequence returns the ledger sequence the manager is bound to.
func (m *Manager) Sequence() uint32 { return m.sequence }

// Limits returns the TTL bounds in force.
func (m *Manager) Limits() TTLLimits { return m.limits }

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// KVPut RLP-encodes value and stores it under key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.db.Put(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.db.Get(kvKey(key))
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVHas reports whether key holds a value.
func (m *Manager) KVHas(key []byte) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	return m.db.Has(kvKey(key))
}

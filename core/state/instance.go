package state

import (
	"errors"
	"fmt"
	"math"

	"droplet/crypto"
)

var (
	// ErrInstanceArchived is returned when the instance TTL lapsed before
	// the current ledger sequence.
	ErrInstanceArchived = errors.New("state: contract instance archived")
	// ErrTTLExceedsMax is returned when an extension asks for more than the
	// maximum TTL.
	ErrTTLExceedsMax = errors.New("state: ttl extension exceeds maximum")
)

var (
	instancePrefix    = []byte("instance/")
	instanceTTLPrefix = []byte("instance-ttl/")
)

func instanceKey(contract [20]byte, key string) []byte {
	buf := make([]byte, 0, len(instancePrefix)+len(contract)+1+len(key))
	buf = append(buf, instancePrefix...)
	buf = append(buf, contract[:]...)
	buf = append(buf, ':')
	buf = append(buf, key...)
	return buf
}

func instanceTTLKey(contract [20]byte) []byte {
	buf := make([]byte, 0, len(instanceTTLPrefix)+len(contract))
	buf = append(buf, instanceTTLPrefix...)
	return append(buf, contract[:]...)
}

// Instance is the storage of a single contract instance. All of its entries
// share one lifetime: the instance is live while its LiveUntil sequence is
// not below the manager's current sequence.
type Instance struct {
	m        *Manager
	contract [20]byte
}

// Instance returns the storage view of contract.
func (m *Manager) Instance(contract [20]byte) *Instance {
	return &Instance{m: m, contract: contract}
}

// LiveUntil returns the last ledger sequence at which the instance is live.
// The boolean is false for an instance that has never been written.
func (i *Instance) LiveUntil() (uint32, bool, error) {
	var liveUntil uint32
	ok, err := i.m.KVGet(instanceTTLKey(i.contract), &liveUntil)
	if err != nil {
		return 0, false, err
	}
	return liveUntil, ok, nil
}

func (i *Instance) ensureLive() error {
	liveUntil, ok, err := i.LiveUntil()
	if err != nil {
		return err
	}
	if ok && liveUntil < i.m.sequence {
		return fmt.Errorf("%w: %s live until %d, ledger at %d", ErrInstanceArchived, crypto.FormatContract(i.contract), liveUntil, i.m.sequence)
	}
	return nil
}

// Get decodes the entry stored under key into out.
func (i *Instance) Get(key string, out interface{}) (bool, error) {
	if err := i.ensureLive(); err != nil {
		return false, err
	}
	return i.m.KVGet(instanceKey(i.contract, key), out)
}

// Has reports whether key holds a value.
func (i *Instance) Has(key string) (bool, error) {
	if err := i.ensureLive(); err != nil {
		return false, err
	}
	return i.m.KVHas(instanceKey(i.contract, key))
}

// Set stores value under key. The first write to an instance gives it the
// minimum TTL.
func (i *Instance) Set(key string, value interface{}) error {
	if err := i.ensureLive(); err != nil {
		return err
	}
	if err := i.ensureTTL(); err != nil {
		return err
	}
	return i.m.KVPut(instanceKey(i.contract, key), value)
}

func (i *Instance) ensureTTL() error {
	_, ok, err := i.LiveUntil()
	if err != nil || ok {
		return err
	}
	return i.m.KVPut(instanceTTLKey(i.contract), addSequence(i.m.sequence, i.m.limits.Min-1))
}

// MaxTTL returns the largest extension the host accepts.
func (i *Instance) MaxTTL() uint32 { return i.m.limits.Max }

// ExtendTTL extends the instance lifetime to extendTo ledgers past the
// current sequence when the remaining TTL is below threshold. Extensions
// never shorten the lifetime.
func (i *Instance) ExtendTTL(threshold, extendTo uint32) error {
	if extendTo > i.m.limits.Max {
		return fmt.Errorf("%w: %d > %d", ErrTTLExceedsMax, extendTo, i.m.limits.Max)
	}
	if threshold > extendTo {
		return fmt.Errorf("state: ttl threshold %d above extension %d", threshold, extendTo)
	}
	if err := i.ensureLive(); err != nil {
		return err
	}
	liveUntil, ok, err := i.LiveUntil()
	if err != nil {
		return err
	}
	if ok && liveUntil-i.m.sequence >= threshold {
		return nil
	}
	target := addSequence(i.m.sequence, extendTo)
	if ok && target <= liveUntil {
		return nil
	}
	return i.m.KVPut(instanceTTLKey(i.contract), target)
}

func addSequence(seq, delta uint32) uint32 {
	sum := uint64(seq) + uint64(delta)
	if sum > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(sum)
}

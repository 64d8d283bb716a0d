package state

import (
	"errors"
	"math/big"
	"testing"

	"droplet/storage"
)

func testContract(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func TestKVRoundTrip(t *testing.T) {
	m := NewManager(storage.NewMemDB(), 1, TTLLimits{Min: 10, Max: 100})
	if err := m.KVPut([]byte("k"), big.NewInt(42)); err != nil {
		t.Fatalf("put: %v", err)
	}
	got := new(big.Int)
	ok, err := m.KVGet([]byte("k"), got)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Int64() != 42 {
		t.Fatalf("unexpected value %s", got)
	}
	ok, err = m.KVGet([]byte("missing"), got)
	if err != nil || ok {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}
	if err := m.KVPut(nil, 1); err == nil {
		t.Fatalf("expected empty key error")
	}
}

func TestInstanceFirstWriteGetsMinTTL(t *testing.T) {
	db := storage.NewMemDB()
	m := NewManager(db, 100, TTLLimits{Min: 10, Max: 1000})
	inst := m.Instance(testContract(0x01))

	if _, ok, _ := inst.LiveUntil(); ok {
		t.Fatalf("fresh instance should have no ttl")
	}
	if err := inst.Set("OWNER", testContract(0xAA)); err != nil {
		t.Fatalf("set: %v", err)
	}
	liveUntil, ok, err := inst.LiveUntil()
	if err != nil || !ok {
		t.Fatalf("live until: ok=%v err=%v", ok, err)
	}
	if liveUntil != 109 {
		t.Fatalf("live until = %d, want 109", liveUntil)
	}

	var owner [20]byte
	ok, err = inst.Get("OWNER", &owner)
	if err != nil || !ok || owner != testContract(0xAA) {
		t.Fatalf("get owner: ok=%v err=%v owner=%x", ok, err, owner)
	}

	// other instances are isolated
	other := m.Instance(testContract(0x02))
	if has, err := other.Has("OWNER"); err != nil || has {
		t.Fatalf("isolation broken: has=%v err=%v", has, err)
	}
}

func TestInstanceArchivesAfterTTL(t *testing.T) {
	db := storage.NewMemDB()
	contract := testContract(0x03)
	if err := NewManager(db, 100, TTLLimits{Min: 10, Max: 1000}).Instance(contract).Set("K", uint64(1)); err != nil {
		t.Fatalf("set: %v", err)
	}

	live := NewManager(db, 109, TTLLimits{Min: 10, Max: 1000}).Instance(contract)
	if _, err := live.Has("K"); err != nil {
		t.Fatalf("instance should still be live: %v", err)
	}

	archived := NewManager(db, 110, TTLLimits{Min: 10, Max: 1000}).Instance(contract)
	if _, err := archived.Get("K", new(uint64)); !errors.Is(err, ErrInstanceArchived) {
		t.Fatalf("expected archived error, got %v", err)
	}
	if err := archived.Set("K", uint64(2)); !errors.Is(err, ErrInstanceArchived) {
		t.Fatalf("expected archived error on set, got %v", err)
	}
}

func TestExtendTTL(t *testing.T) {
	db := storage.NewMemDB()
	contract := testContract(0x04)
	limits := TTLLimits{Min: 10, Max: 1000}
	inst := NewManager(db, 100, limits).Instance(contract)
	if err := inst.Set("K", uint64(1)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := inst.ExtendTTL(inst.MaxTTL(), inst.MaxTTL()); err != nil {
		t.Fatalf("extend: %v", err)
	}
	liveUntil, _, _ := inst.LiveUntil()
	if liveUntil != 1100 {
		t.Fatalf("live until = %d, want 1100", liveUntil)
	}

	// remaining ttl above threshold: no change
	later := NewManager(db, 150, limits).Instance(contract)
	if err := later.ExtendTTL(500, 1000); err != nil {
		t.Fatalf("extend: %v", err)
	}
	if got, _, _ := later.LiveUntil(); got != 1100 {
		t.Fatalf("live until changed to %d", got)
	}
	// remaining ttl below threshold: extended from current sequence
	if err := later.ExtendTTL(1000, 1000); err != nil {
		t.Fatalf("extend: %v", err)
	}
	if got, _, _ := later.LiveUntil(); got != 1150 {
		t.Fatalf("live until = %d, want 1150", got)
	}

	if err := later.ExtendTTL(1001, 1001); !errors.Is(err, ErrTTLExceedsMax) {
		t.Fatalf("expected max ttl error, got %v", err)
	}
}

func TestConsumeNonce(t *testing.T) {
	m := NewManager(storage.NewMemDB(), 1, DefaultTTLLimits)
	addr := testContract(0x05)
	if err := m.ConsumeNonce(addr, 2); err == nil {
		t.Fatalf("expected gap to be rejected")
	}
	if err := m.ConsumeNonce(addr, 1); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if err := m.ConsumeNonce(addr, 1); err == nil {
		t.Fatalf("expected replay to be rejected")
	}
	if n, _ := m.Nonce(addr); n != 1 {
		t.Fatalf("nonce = %d", n)
	}
}

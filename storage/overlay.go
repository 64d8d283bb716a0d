package storage

import (
	"errors"
	"sort"
	"sync"
)

var errOverlayClosed = errors.New("storage: overlay already committed or discarded")

// Overlay buffers writes on top of a parent database. Reads observe the
// buffered writes first. Nothing reaches the parent until Commit, which
// flushes every pending write in a single batch. Discard drops them.
type Overlay struct {
	mu      sync.RWMutex
	parent  Database
	pending map[string][]byte
	deleted map[string]struct{}
	closed  bool
}

// NewOverlay opens a write buffer over parent.
func NewOverlay(parent Database) *Overlay {
	return &Overlay{
		parent:  parent,
		pending: make(map[string][]byte),
		deleted: make(map[string]struct{}),
	}
}

func (o *Overlay) Put(key []byte, value []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return errOverlayClosed
	}
	k := string(key)
	delete(o.deleted, k)
	o.pending[k] = append([]byte(nil), value...)
	return nil
}

func (o *Overlay) Get(key []byte) ([]byte, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return nil, errOverlayClosed
	}
	k := string(key)
	if value, ok := o.pending[k]; ok {
		return append([]byte(nil), value...), nil
	}
	if _, ok := o.deleted[k]; ok {
		return nil, ErrNotFound
	}
	return o.parent.Get(key)
}

func (o *Overlay) Has(key []byte) (bool, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return false, errOverlayClosed
	}
	k := string(key)
	if _, ok := o.pending[k]; ok {
		return true, nil
	}
	if _, ok := o.deleted[k]; ok {
		return false, nil
	}
	return o.parent.Has(key)
}

func (o *Overlay) Delete(key []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return errOverlayClosed
	}
	k := string(key)
	delete(o.pending, k)
	o.deleted[k] = struct{}{}
	return nil
}

// NewBatch returns a batch that writes into the overlay, not the parent.
func (o *Overlay) NewBatch() Batch {
	return &overlayBatch{overlay: o}
}

// Dirty reports the number of buffered writes and deletes.
func (o *Overlay) Dirty() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.pending) + len(o.deleted)
}

// Commit flushes all buffered operations to the parent atomically. Keys are
// applied in sorted order so the batch contents are deterministic.
func (o *Overlay) Commit() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return errOverlayClosed
	}
	batch := o.parent.NewBatch()
	keys := make([]string, 0, len(o.pending)+len(o.deleted))
	for k := range o.pending {
		keys = append(keys, k)
	}
	for k := range o.deleted {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if value, ok := o.pending[k]; ok {
			batch.Put([]byte(k), value)
			continue
		}
		batch.Delete([]byte(k))
	}
	if batch.Len() > 0 {
		if err := batch.Write(); err != nil {
			return err
		}
	}
	o.closed = true
	o.pending = nil
	o.deleted = nil
	return nil
}

// Discard drops every buffered operation. It is safe to call after Commit.
func (o *Overlay) Discard() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	o.pending = nil
	o.deleted = nil
}

// Close discards the overlay; the parent database stays open.
func (o *Overlay) Close() { o.Discard() }

type overlayBatch struct {
	overlay *Overlay
	ops     []memOp
}

func (b *overlayBatch) Put(key []byte, value []byte) {
	b.ops = append(b.ops, memOp{key: string(key), value: append([]byte(nil), value...)})
}

func (b *overlayBatch) Delete(key []byte) {
	b.ops = append(b.ops, memOp{key: string(key), delete: true})
}

func (b *overlayBatch) Len() int { return len(b.ops) }

func (b *overlayBatch) Write() error {
	for _, op := range b.ops {
		var err error
		if op.delete {
			err = b.overlay.Delete([]byte(op.key))
		} else {
			err = b.overlay.Put([]byte(op.key), op.value)
		}
		if err != nil {
			return err
		}
	}
	b.ops = nil
	return nil
}

package nvs

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/muurk/serial2ip/internal/syserr"
)

// MaxKeyLen is the longest key accepted by the store.
const MaxKeyLen = 15

// Backend persists committed blobs. Implementations only ever see whole
// committed batches.
type Backend interface {
	// Get returns the committed value for (namespace, key). ok is false when
	// the key does not exist.
	Get(ctx context.Context, namespace, key string) (value []byte, ok bool, err error)
	// Apply atomically writes puts and removes deletes within one namespace.
	Apply(ctx context.Context, namespace string, puts map[string][]byte, deletes []string) error
	// Keys lists committed keys of a namespace.
	Keys(ctx context.Context, namespace string) ([]string, error)
	Close() error
}

// Store is a namespaced key/value blob store. Writes are staged per namespace
// and become durable on Commit.
type Store struct {
	backend Backend

	// commitMu orders commits so batches reach the backend one at a time.
	commitMu sync.Mutex

	mu      sync.Mutex
	pending map[string]*batch
}

type batch struct {
	puts    map[string][]byte
	deletes map[string]struct{}
}

// New creates a Store over the given backend.
func New(backend Backend) *Store {
	return &Store{
		backend: backend,
		pending: make(map[string]*batch),
	}
}

// NewMemory creates a Store backed by process memory.
func NewMemory() *Store {
	return New(NewMemoryBackend())
}

// Open returns a handle bound to one namespace.
func (s *Store) Open(namespace string) (*Handle, error) {
	if namespace == "" || len(namespace) > MaxKeyLen {
		return nil, syserr.InvalidArgument("nvs.open", "invalid namespace %q", namespace)
	}
	return &Handle{store: s, namespace: namespace}, nil
}

// Close closes the backend. Uncommitted writes are discarded.
func (s *Store) Close() error {
	s.mu.Lock()
	s.pending = make(map[string]*batch)
	s.mu.Unlock()
	return s.backend.Close()
}

func (s *Store) batchFor(namespace string) *batch {
	b, ok := s.pending[namespace]
	if !ok {
		b = &batch{puts: make(map[string][]byte), deletes: make(map[string]struct{})}
		s.pending[namespace] = b
	}
	return b
}

// Handle gives access to a single namespace of a Store.
type Handle struct {
	store     *Store
	namespace string
}

// Namespace returns the namespace this handle is bound to.
func (h *Handle) Namespace() string {
	return h.namespace
}

// GetBlob returns the value of key, including staged writes. A missing key
// yields a NotFound error.
func (h *Handle) GetBlob(key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}

	h.store.mu.Lock()
	if b, ok := h.store.pending[h.namespace]; ok {
		if v, ok := b.puts[key]; ok {
			h.store.mu.Unlock()
			return append([]byte(nil), v...), nil
		}
		if _, ok := b.deletes[key]; ok {
			h.store.mu.Unlock()
			return nil, syserr.NotFound("nvs.get", "key %s/%s not found", h.namespace, key)
		}
	}
	h.store.mu.Unlock()

	v, ok, err := h.store.backend.Get(context.Background(), h.namespace, key)
	if err != nil {
		return nil, syserr.IO("nvs.get", fmt.Sprintf("failed to read %s/%s", h.namespace, key), err)
	}
	if !ok {
		return nil, syserr.NotFound("nvs.get", "key %s/%s not found", h.namespace, key)
	}
	return v, nil
}

// SetBlob stages a write of key.
func (h *Handle) SetBlob(key string, value []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}

	h.store.mu.Lock()
	defer h.store.mu.Unlock()

	b := h.store.batchFor(h.namespace)
	b.puts[key] = append([]byte(nil), value...)
	delete(b.deletes, key)
	return nil
}

// Erase stages removal of key. Erasing a missing key is not an error.
func (h *Handle) Erase(key string) error {
	if err := checkKey(key); err != nil {
		return err
	}

	h.store.mu.Lock()
	defer h.store.mu.Unlock()

	b := h.store.batchFor(h.namespace)
	delete(b.puts, key)
	b.deletes[key] = struct{}{}
	return nil
}

// Commit makes all staged writes of this namespace durable in one step. A
// failed commit keeps the writes staged.
func (h *Handle) Commit() error {
	h.store.commitMu.Lock()
	defer h.store.commitMu.Unlock()

	h.store.mu.Lock()
	b, ok := h.store.pending[h.namespace]
	if !ok || (len(b.puts) == 0 && len(b.deletes) == 0) {
		h.store.mu.Unlock()
		return nil
	}
	puts := make(map[string][]byte, len(b.puts))
	for k, v := range b.puts {
		puts[k] = v
	}
	deletes := make([]string, 0, len(b.deletes))
	for k := range b.deletes {
		deletes = append(deletes, k)
	}
	h.store.mu.Unlock()

	if err := h.store.backend.Apply(context.Background(), h.namespace, puts, deletes); err != nil {
		return syserr.IO("nvs.commit", "failed to commit namespace "+h.namespace, err)
	}

	// Drop what was applied; writes staged meanwhile stay pending.
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	for k, v := range puts {
		if cur, ok := b.puts[k]; ok && bytes.Equal(cur, v) {
			delete(b.puts, k)
		}
	}
	for _, k := range deletes {
		if _, put := b.puts[k]; !put {
			delete(b.deletes, k)
		}
	}
	if len(b.puts) == 0 && len(b.deletes) == 0 {
		delete(h.store.pending, h.namespace)
	}
	return nil
}

// Keys lists the committed keys of the namespace.
func (h *Handle) Keys() ([]string, error) {
	keys, err := h.store.backend.Keys(context.Background(), h.namespace)
	if err != nil {
		return nil, syserr.IO("nvs.keys", "failed to list namespace "+h.namespace, err)
	}
	return keys, nil
}

// GetU16 reads a little-endian u16 blob.
func (h *Handle) GetU16(key string) (uint16, error) {
	v, err := h.GetBlob(key)
	if err != nil {
		return 0, err
	}
	if len(v) != 2 {
		return 0, syserr.InvalidArgument("nvs.get_u16", "key %s has %d bytes, want 2", key, len(v))
	}
	return binary.LittleEndian.Uint16(v), nil
}

// SetU16 stages a little-endian u16 blob.
func (h *Handle) SetU16(key string, value uint16) error {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, value)
	return h.SetBlob(key, buf)
}

// GetU32 reads a little-endian u32 blob.
func (h *Handle) GetU32(key string) (uint32, error) {
	v, err := h.GetBlob(key)
	if err != nil {
		return 0, err
	}
	if len(v) != 4 {
		return 0, syserr.InvalidArgument("nvs.get_u32", "key %s has %d bytes, want 4", key, len(v))
	}
	return binary.LittleEndian.Uint32(v), nil
}

// SetU32 stages a little-endian u32 blob.
func (h *Handle) SetU32(key string, value uint32) error {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, value)
	return h.SetBlob(key, buf)
}

// GetString reads a blob as a string.
func (h *Handle) GetString(key string) (string, error) {
	v, err := h.GetBlob(key)
	if err != nil {
		return "", err
	}
	return string(v), nil
}

// SetString stages a string blob.
func (h *Handle) SetString(key, value string) error {
	return h.SetBlob(key, []byte(value))
}

func checkKey(key string) error {
	if key == "" || len(key) > MaxKeyLen {
		return syserr.InvalidArgument("nvs", "invalid key %q", key)
	}
	return nil
}

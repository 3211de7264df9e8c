package state

import (
	"errors"
	"fmt"
	"sort"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"giftchain/storage"
)

// Manager reads through a write overlay into the backing database. Writes stay
// in the overlay until Commit flushes them in a single batch; Snapshot and
// RevertToSnapshot unwind overlay writes made since the snapshot was taken.
//
// A Manager is not safe for concurrent use. The node serializes access.
type Manager struct {
	db      storage.Database
	dirty   map[string]overlayEntry
	journal []journalEntry

	provisionAsset   string
	provisionDeposit uint64
}

type overlayEntry struct {
	value   []byte
	deleted bool
}

type journalEntry struct {
	key     string
	prev    overlayEntry
	present bool
}

// NewManager creates a state manager operating on db.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db, dirty: make(map[string]overlayEntry)}
}

// SetProvisionDeposit configures the native deposit charged when a gift card
// record is allocated. A zero amount disables the deposit.
func (m *Manager) SetProvisionDeposit(asset string, amount uint64) {
	m.provisionAsset = asset
	m.provisionDeposit = amount
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (m *Manager) get(key []byte) ([]byte, error) {
	if entry, ok := m.dirty[string(key)]; ok {
		if entry.deleted {
			return nil, nil
		}
		return append([]byte(nil), entry.value...), nil
	}
	value, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("state: read: %w", err)
	}
	return value, nil
}

func (m *Manager) record(key string) {
	prev, present := m.dirty[key]
	m.journal = append(m.journal, journalEntry{key: key, prev: prev, present: present})
}

func (m *Manager) put(key, value []byte) {
	k := string(key)
	m.record(k)
	m.dirty[k] = overlayEntry{value: append([]byte(nil), value...)}
}

func (m *Manager) del(key []byte) {
	k := string(key)
	m.record(k)
	m.dirty[k] = overlayEntry{deleted: true}
}

func (m *Manager) loadRLP(key []byte, out interface{}) (bool, error) {
	data, err := m.get(key)
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("state: decode: %w", err)
	}
	return true, nil
}

func (m *Manager) writeRLP(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode: %w", err)
	}
	m.put(key, encoded)
	return nil
}

// KVGet reads a raw value. A missing key yields (nil, false, nil).
func (m *Manager) KVGet(key []byte) ([]byte, bool, error) {
	data, err := m.get(kvKey(key))
	if err != nil {
		return nil, false, err
	}
	return data, data != nil, nil
}

// KVPut stores a raw value.
func (m *Manager) KVPut(key, value []byte) {
	m.put(kvKey(key), value)
}

// KVDelete removes a raw value.
func (m *Manager) KVDelete(key []byte) {
	m.del(kvKey(key))
}

// Snapshot returns an identifier for the current overlay revision.
func (m *Manager) Snapshot() int {
	return len(m.journal)
}

// RevertToSnapshot undoes every overlay write made after the snapshot id.
func (m *Manager) RevertToSnapshot(id int) {
	if id < 0 {
		id = 0
	}
	for i := len(m.journal) - 1; i >= id; i-- {
		entry := m.journal[i]
		if entry.present {
			m.dirty[entry.key] = entry.prev
		} else {
			delete(m.dirty, entry.key)
		}
	}
	if id < len(m.journal) {
		m.journal = m.journal[:id]
	}
}

// Dirty reports the number of keys pending in the overlay.
func (m *Manager) Dirty() int {
	return len(m.dirty)
}

// Commit writes the overlay to the database in one batch and clears it.
func (m *Manager) Commit() error {
	if len(m.dirty) == 0 {
		m.journal = m.journal[:0]
		return nil
	}
	keys := make([]string, 0, len(m.dirty))
	for k := range m.dirty {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	batch := storage.NewBatch()
	for _, k := range keys {
		entry := m.dirty[k]
		if entry.deleted {
			batch.Delete([]byte(k))
			continue
		}
		batch.Put([]byte(k), entry.value)
	}
	if err := m.db.Write(batch); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	m.Discard()
	return nil
}

// Discard drops every pending write.
func (m *Manager) Discard() {
	m.dirty = make(map[string]overlayEntry)
	m.journal = m.journal[:0]
}

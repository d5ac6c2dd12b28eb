package state

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"communitymint/storage"
)

// ErrTxClosed is returned when a committed or discarded transaction is reused.
var ErrTxClosed = errors.New("state: transaction closed")

// backend is the raw key space shared by the manager and its transactions.
// Keys passed to it are already hashed.
type backend interface {
	get(key []byte) ([]byte, error)
	put(key []byte, value []byte) error
}

// Manager reads and writes rlp encoded values on top of a key-value database.
// Writes performed directly on the manager are applied immediately; writes that
// must land together go through a Tx obtained from Begin.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func (m *Manager) get(key []byte) ([]byte, error) {
	data, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return data, err
}

func (m *Manager) put(key []byte, value []byte) error {
	return m.db.Put(key, value)
}

// Begin opens a write overlay. Reads observe the overlay first and fall back to
// the committed database. Nothing reaches the database until Commit.
func (m *Manager) Begin() *Tx {
	return &Tx{db: m.db, writes: make(map[string][]byte)}
}

// KVPut stores the rlp encoding of value under key.
func (m *Manager) KVPut(key []byte, value interface{}) error { return kvPut(m, key, value) }

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) { return kvGet(m, key, out) }

// SetRole associates an address with the specified role. Duplicate assignments
// are ignored while the stored list remains sorted for determinism.
func (m *Manager) SetRole(role string, addr []byte) error { return setRole(m, role, addr) }

// RoleMembers returns all addresses assigned to the provided role.
func (m *Manager) RoleMembers(role string) ([][]byte, error) { return roleMembers(m, role) }

// HasRole reports whether the provided address is associated with the
// specified role. Errors while reading the underlying state result in a false
// return.
func (m *Manager) HasRole(role string, addr []byte) bool { return hasRole(m, role, addr) }

// Tx is a staged set of writes over a Manager's database.
type Tx struct {
	db     storage.Database
	writes map[string][]byte
	order  []string
	closed bool
}

func (tx *Tx) get(key []byte) ([]byte, error) {
	if tx.closed {
		return nil, ErrTxClosed
	}
	if value, ok := tx.writes[string(key)]; ok {
		return append([]byte(nil), value...), nil
	}
	data, err := tx.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return data, err
}

func (tx *Tx) put(key []byte, value []byte) error {
	if tx.closed {
		return ErrTxClosed
	}
	k := string(key)
	if _, ok := tx.writes[k]; !ok {
		tx.order = append(tx.order, k)
	}
	tx.writes[k] = append([]byte(nil), value...)
	return nil
}

// Pending reports how many distinct keys the transaction would write.
func (tx *Tx) Pending() int { return len(tx.order) }

// Commit writes every staged value in a single database batch.
func (tx *Tx) Commit() error {
	if tx.closed {
		return ErrTxClosed
	}
	tx.closed = true
	if len(tx.order) == 0 {
		return nil
	}
	batch := tx.db.NewBatch()
	for _, k := range tx.order {
		batch.Put([]byte(k), tx.writes[k])
	}
	return batch.Write()
}

// Discard drops every staged write. Discarding a closed transaction is a no-op.
func (tx *Tx) Discard() {
	tx.closed = true
	tx.writes = nil
	tx.order = nil
}

func (tx *Tx) KVPut(key []byte, value interface{}) error { return kvPut(tx, key, value) }
func (tx *Tx) KVGet(key []byte, out interface{}) (bool, error) { return kvGet(tx, key, out) }
func (tx *Tx) SetRole(role string, addr []byte) error { return setRole(tx, role, addr) }
func (tx *Tx) RoleMembers(role string) ([][]byte, error) { return roleMembers(tx, role) }
func (tx *Tx) HasRole(role string, addr []byte) bool { return hasRole(tx, role, addr) }

func roleKey(role string) []byte {
	return ethcrypto.Keccak256([]byte("role/" + role))
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func kvPut(b backend, key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return b.put(kvKey(key), encoded)
}

func kvGet(b backend, key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := b.get(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func setRole(b backend, role string, addr []byte) error {
	trimmed := strings.TrimSpace(role)
	if trimmed == "" {
		return fmt.Errorf("role must not be empty")
	}
	if len(addr) == 0 {
		return fmt.Errorf("address must not be empty")
	}
	members, err := roleMembers(b, trimmed)
	if err != nil {
		return err
	}
	for _, existing := range members {
		if bytes.Equal(existing, addr) {
			return nil
		}
	}
	members = append(members, append([]byte(nil), addr...))
	sort.Slice(members, func(i, j int) bool {
		return hex.EncodeToString(members[i]) < hex.EncodeToString(members[j])
	})
	encoded, err := rlp.EncodeToBytes(members)
	if err != nil {
		return err
	}
	return b.put(roleKey(trimmed), encoded)
}

func roleMembers(b backend, role string) ([][]byte, error) {
	data, err := b.get(roleKey(strings.TrimSpace(role)))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return [][]byte{}, nil
	}
	var members [][]byte
	if err := rlp.DecodeBytes(data, &members); err != nil {
		return nil, err
	}
	return members, nil
}

func hasRole(b backend, role string, addr []byte) bool {
	if len(addr) == 0 {
		return false
	}
	members, err := roleMembers(b, role)
	if err != nil {
		return false
	}
	for _, member := range members {
		if bytes.Equal(member, addr) {
			return true
		}
	}
	return false
}

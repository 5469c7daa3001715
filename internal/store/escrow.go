// Package store persists the agent's escrow tables in a single BoltDB file:
// one bucket per named escrow, plus a settings bucket for admin-controlled
// runtime state (the paused flag).
package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Table names, each backed by its own bbolt bucket. These mirror the six
// escrow stages a presentation or revocation moves through.
const (
	TableSnd  = "snd"  // notice intake: sender AID of each presented credential, keyed by SAID
	TableIss  = "iss"  // presentation escrow: presentation arrivals awaiting a verifiable chain
	TableRev  = "rev"  // revocation escrow: credentials awaiting a revoked TEL state
	TableRecv = "recv" // verified presentations awaiting webhook delivery (issuance, or a revoked presentation)
	TableRevk = "revk" // confirmed revocations awaiting webhook delivery
	TableAck  = "ack"  // acknowledged deliveries, logged and removed by the ack reaper
)

var allTables = []string{TableSnd, TableIss, TableRev, TableRecv, TableRevk, TableAck}

var bucketSettings = []byte("settings")

// Record is a single escrow entry: a credential SAID, its payload, and the
// timestamp it was pinned into its current table (used for timeout checks).
type Record struct {
	SAID      string          `json:"said"`
	PinnedAt  time.Time       `json:"pinned_at"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts,omitempty"`
}

// Store wraps a BoltDB database for escrow persistence.
type Store struct {
	db *bolt.DB
}

// Open creates or opens a BoltDB database at the given path and ensures all
// required buckets exist.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range allTables {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		_, err := tx.CreateBucketIfNotExists(bucketSettings)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying BoltDB.
func (s *Store) Close() error {
	return s.db.Close()
}

// singleKeyTables are the (SAID,)-keyed stores from the data model: a
// second pin for the same SAID overwrites in place rather than creating a
// second entry. recv and revk are (SAID, ts)-keyed instead, since a
// credential can be re-presented after completing a prior cycle and each
// cycle's delivery must be tracked separately.
var singleKeyTables = map[string]bool{
	TableSnd: true,
	TableIss: true,
	TableRev: true,
	TableAck: true,
}

// Pin stores or overwrites a record keyed by SAID in the named table.
func (s *Store) Pin(table, said string, payload json.RawMessage, now time.Time) error {
	rec := Record{SAID: said, PinnedAt: now, Payload: payload}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal escrow record: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(table))
		if b == nil {
			return fmt.Errorf("unknown escrow table %q", table)
		}
		return b.Put(escrowKey(table, said, now), data)
	})
}

// Get returns the record for said in the named table, or ok=false if absent.
// When a table uses composite (said, timestamp) keys, Get returns the most
// recently pinned entry for said.
func (s *Store) Get(table, said string) (Record, bool, error) {
	var rec Record
	found := false

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(table))
		if b == nil {
			return fmt.Errorf("unknown escrow table %q", table)
		}
		if singleKeyTables[table] {
			v := b.Get([]byte(said))
			if v == nil {
				return nil
			}
			found = true
			return json.Unmarshal(v, &rec)
		}
		prefix := []byte(said + "::")
		c := b.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var r Record
			if err := json.Unmarshal(v, &r); err != nil {
				continue
			}
			if !found || r.PinnedAt.After(rec.PinnedAt) {
				rec = r
			}
			found = true
		}
		return nil
	})
	return rec, found, err
}

// Rem removes all entries for said from the named table.
func (s *Store) Rem(table, said string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(table))
		if b == nil {
			return fmt.Errorf("unknown escrow table %q", table)
		}
		if singleKeyTables[table] {
			return b.Delete([]byte(said))
		}
		prefix := []byte(said + "::")
		c := b.Cursor()
		var keys [][]byte
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetItemIter returns every record currently held in the named table. For
// the (SAID, ts)-keyed recv/revk tables the records are sorted by pin time
// (oldest first), which is what the Delivery Engine's insertion-order
// processing (spec §4.4) relies on. The (SAID,)-keyed tables have no such
// ordering requirement; GetItemIter there returns entries in SAID order.
func (s *Store) GetItemIter(table string) ([]Record, error) {
	var recs []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(table))
		if b == nil {
			return fmt.Errorf("unknown escrow table %q", table)
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				continue
			}
			recs = append(recs, rec)
		}
		return nil
	})
	if err == nil && !singleKeyTables[table] {
		sort.SliceStable(recs, func(i, j int) bool {
			return recs[i].PinnedAt.Before(recs[j].PinnedAt)
		})
	}
	return recs, err
}

// Len returns the number of entries currently held in the named table.
func (s *Store) Len(table string) (int, error) {
	n := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(table))
		if b == nil {
			return fmt.Errorf("unknown escrow table %q", table)
		}
		n = b.Stats().KeyN
		return nil
	})
	return n, err
}

// Clear removes every entry from every escrow table. Used at startup when
// AGENT_CLEAR_ESCROWS is set, mirroring a cold-start recovery mode.
func (s *Store) Clear() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range allTables {
			b := tx.Bucket([]byte(name))
			c := b.Cursor()
			var keys [][]byte
			for k, _ := c.First(); k != nil; k, _ = c.Next() {
				keys = append(keys, append([]byte(nil), k...))
			}
			for _, k := range keys {
				if err := b.Delete(k); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// Depths returns the current number of entries in every named escrow table,
// keyed by table name — the admin API's escrow-inspection view.
func (s *Store) Depths() map[string]int {
	depths := make(map[string]int, len(allTables))
	for _, t := range allTables {
		n, err := s.Len(t)
		if err != nil {
			continue
		}
		depths[t] = n
	}
	return depths
}

// GetSetting returns a stored setting value, or ("", false) if unset.
func (s *Store) GetSetting(key string) (string, bool) {
	var val string
	_ = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSettings)
		v := b.Get([]byte(key))
		if v != nil {
			val = string(v)
		}
		return nil
	})
	return val, val != ""
}

// SetSetting stores a setting value.
func (s *Store) SetSetting(key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSettings)
		return b.Put([]byte(key), []byte(value))
	})
}

// escrowKey builds the storage key for a pin into the named table. Tables
// in singleKeyTables key by SAID alone, so a repeat pin for the same SAID
// overwrites the existing entry instead of accumulating a second one.
// Every other table keys by SAID plus an RFC3339Nano timestamp, so each pin
// of the same SAID is kept as a separate entry. Cursor order over these keys
// is by SAID first; readers that need pin order sort by PinnedAt.
func escrowKey(table, said string, t time.Time) []byte {
	if singleKeyTables[table] {
		return []byte(said)
	}
	return []byte(fmt.Sprintf("%s::%s", said, t.UTC().Format(time.RFC3339Nano)))
}

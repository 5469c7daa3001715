// Package localstore provides the agent's concrete view onto verified
// credentials and their TEL state: a thin bbolt-backed cache in front of
// whatever upstream KERI witness/watcher keeps it populated. It does not
// issue credentials, walk a KEL, or run TEL validation itself — those are
// the pre-existing KERI-stack concerns the collab.ACDCStore/collab.TELEngine
// interfaces abstract over. Seed, SetIssued and SetRevoked exist so that component that
// does that work (a sidecar, a shared database, an admin loader) has
// something to write into.
package localstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/Will-Luck/sally-agent/internal/acdc"
	"github.com/Will-Luck/sally-agent/internal/collab"
)

var (
	bucketCredentials = []byte("credentials")
	bucketTEL         = []byte("tel")
	bucketCues        = []byte("revocation_cues")
)

// Store is a bbolt-backed ACDCStore and TELEngine implementation.
type Store struct {
	db *bolt.DB
}

// Open creates or opens a bbolt database at path and ensures the buckets
// this store needs exist. It opens its own bbolt handle, and bbolt locks the
// file for the handle that holds it, so path must not be the file that
// internal/store has open (cmd/agent uses the escrow path plus ".creds").
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketCredentials); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketTEL); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketCues)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get implements collab.ACDCStore.
func (s *Store) Get(_ context.Context, said string) (acdc.Credential, bool, error) {
	var cred acdc.Credential
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketCredentials).Get([]byte(said))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &cred)
	})
	return cred, found, err
}

// Seed records a verified credential, making it resolvable by Get. It is
// the write side a KEL/registry watcher uses to populate this cache.
func (s *Store) Seed(cred acdc.Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCredentials).Put([]byte(cred.SAID), data)
	})
}

type telRecord struct {
	Status              acdc.TELStatus `json:"status"`
	RevocationTimestamp time.Time      `json:"revocation_timestamp,omitempty"`
}

// State implements collab.TELEngine. An unset (regi, said) pair reports
// acdc.TELAbsent — the credential has been presented before its issuance
// event reached this agent's TEL cache.
func (s *Store) State(_ context.Context, regi, said string) (acdc.TELState, error) {
	var rec telRecord
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketTEL).Get(telKey(regi, said))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &rec)
	})
	if err != nil {
		return acdc.TELState{}, err
	}
	if !found {
		return acdc.TELState{Status: acdc.TELAbsent}, nil
	}
	return acdc.TELState{Status: rec.Status, RevocationTimestamp: rec.RevocationTimestamp}, nil
}

// SetIssued marks a credential issued (not revoked) within its registry.
func (s *Store) SetIssued(regi, said string) error {
	return s.putTEL(regi, said, telRecord{Status: acdc.TELIssued})
}

// SetRevoked marks a credential revoked within its registry at the given
// revocation timestamp. If said was previously presented to this agent
// (seeded by the parser) and this is the first observed transition to
// revoked, it also queues a revocation cue: the production producer
// DrainRevocationCues hands to the pipeline's cue router, which is what
// actually pins the rev escrow entry the Revocation Watcher sweeps.
func (s *Store) SetRevoked(regi, said string, at time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		telBucket := tx.Bucket(bucketTEL)
		key := telKey(regi, said)

		var prev telRecord
		wasRevoked := false
		if v := telBucket.Get(key); v != nil {
			if err := json.Unmarshal(v, &prev); err != nil {
				return fmt.Errorf("unmarshal tel record: %w", err)
			}
			wasRevoked = prev.Status == acdc.TELRevoked
		}

		rec := telRecord{Status: acdc.TELRevoked, RevocationTimestamp: at}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal tel record: %w", err)
		}
		if err := telBucket.Put(key, data); err != nil {
			return err
		}

		if wasRevoked {
			return nil // already cued on the first transition; nothing new to report
		}
		if tx.Bucket(bucketCredentials).Get([]byte(said)) == nil {
			return nil // never presented to this agent; no one is watching for this cue
		}
		return queueCue(tx, regi, said)
	})
}

func (s *Store) putTEL(regi, said string, rec telRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal tel record: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTEL).Put(telKey(regi, said), data)
	})
}

func telKey(regi, said string) []byte {
	return []byte(regi + "::" + said)
}

func queueCue(tx *bolt.Tx, regi, said string) error {
	data, err := json.Marshal(collab.RevocationCue{Regi: regi, SAID: said})
	if err != nil {
		return fmt.Errorf("marshal revocation cue: %w", err)
	}
	b := tx.Bucket(bucketCues)
	seq, err := b.NextSequence()
	if err != nil {
		return fmt.Errorf("sequence revocation cue: %w", err)
	}
	return b.Put(cueKey(seq), data)
}

func cueKey(seq uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	return buf
}

// DrainRevocationCues implements collab.TELEngine. It returns every cue
// queued since the last drain, in the order they were queued, and clears
// the queue so each cue is handed to exactly one caller.
func (s *Store) DrainRevocationCues(_ context.Context) ([]collab.RevocationCue, error) {
	var cues []collab.RevocationCue
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCues)
		c := b.Cursor()
		var keys [][]byte
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var cue collab.RevocationCue
			if err := json.Unmarshal(v, &cue); err != nil {
				return fmt.Errorf("unmarshal revocation cue: %w", err)
			}
			cues = append(cues, cue)
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	return cues, err
}

var _ collab.TELEngine = (*Store)(nil)

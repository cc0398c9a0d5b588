/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: store.go
Description: Bolt-backed persistence for models, session summaries and strides. A stride
is one executed transition of a session, stored under a big-endian sequence key so a
cursor walks them in execution order.
*/

package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/kleascm/akaylee-automaton/pkg/automaton"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketModels   = []byte("models")
	bucketSessions = []byte("sessions")
	bucketStrides  = []byte("strides")
)

// ErrNotFound is returned when a key is absent
var ErrNotFound = errors.New("not found")

// SessionSummary is the persisted outcome of a session
type SessionSummary struct {
	ID           string         `json:"id"`
	Model        string         `json:"model"`
	Role         automaton.Role `json:"role"`
	Seed         int64          `json:"seed"`
	InitialState string         `json:"initial_state"`
	FinalState   string         `json:"final_state"`
	Steps        int            `json:"steps"`
	Reason       string         `json:"reason"`
	Error        string         `json:"error,omitempty"`
	Started      time.Time      `json:"started"`
	Finished     time.Time      `json:"finished"`
}

// Summarize converts a session result into a summary
func Summarize(model string, res *automaton.Result) SessionSummary {
	s := SessionSummary{
		ID:           res.SessionID,
		Model:        model,
		Role:         res.Role,
		Seed:         res.Seed,
		InitialState: res.InitialState,
		FinalState:   res.FinalState,
		Steps:        res.Steps,
		Reason:       res.Reason.String(),
		Started:      res.Started,
		Finished:     res.Finished,
	}
	if res.Err != nil {
		s.Error = res.Err.Error()
	}
	return s
}

// Stride is one executed transition
type Stride struct {
	Seq        uint64    `json:"seq"`
	Transition string    `json:"transition"`
	Kind       string    `json:"kind"`
	Source     string    `json:"source"`
	Target     string    `json:"target"`
	Received   string    `json:"received,omitempty"`
	Time       time.Time `json:"time"`
}

// Store wraps a bolt database
type Store struct {
	filename string
	db       *bolt.DB
}

// Open opens or creates the database at filename
func Open(filename string) (*Store, error) {
	db, err := bolt.Open(filename, 0o644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", filename, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketModels, bucketSessions, bucketStrides} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	return &Store{filename: filename, db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file
func (s *Store) Path() string {
	return s.filename
}

// SaveModel stores the automaton records under its name
func (s *Store) SaveModel(snap automaton.Snapshot) error {
	if snap.Name == "" {
		return errors.New("model snapshot without a name")
	}
	js, err := json.Marshal(&snap)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketModels).Put([]byte(snap.Name), js)
	})
}

// Model loads a stored automaton snapshot
func (s *Store) Model(name string) (automaton.Snapshot, error) {
	var snap automaton.Snapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		bs := tx.Bucket(bucketModels).Get([]byte(name))
		if bs == nil {
			return fmt.Errorf("model %s: %w", name, ErrNotFound)
		}
		return json.Unmarshal(bs, &snap)
	})
	return snap, err
}

// Models lists stored model names in key order
func (s *Store) Models() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketModels).ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	return names, err
}

// SaveSession stores a session summary
func (s *Store) SaveSession(sum SessionSummary) error {
	if sum.ID == "" {
		return errors.New("session summary without an identifier")
	}
	js, err := json.Marshal(&sum)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSessions).Put([]byte(sum.ID), js)
	})
}

// Session loads one session summary
func (s *Store) Session(id string) (SessionSummary, error) {
	var sum SessionSummary
	err := s.db.View(func(tx *bolt.Tx) error {
		bs := tx.Bucket(bucketSessions).Get([]byte(id))
		if bs == nil {
			return fmt.Errorf("session %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(bs, &sum)
	})
	return sum, err
}

// Sessions lists all summaries, most recent first
func (s *Store) Sessions() ([]SessionSummary, error) {
	var sums []SessionSummary
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSessions).ForEach(func(_, v []byte) error {
			var sum SessionSummary
			if err := json.Unmarshal(v, &sum); err != nil {
				return err
			}
			sums = append(sums, sum)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(sums, func(i, j int) bool {
		return sums[i].Started.After(sums[j].Started)
	})
	return sums, nil
}

// AppendStride adds a stride to the session's log and returns its sequence number
func (s *Store) AppendStride(sessionID string, st Stride) (uint64, error) {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(bucketStrides).CreateBucketIfNotExists([]byte(sessionID))
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		st.Seq = seq
		js, err := json.Marshal(&st)
		if err != nil {
			return err
		}
		return b.Put(seqKey(seq), js)
	})
	return st.Seq, err
}

// Strides returns the session's strides in execution order
func (s *Store) Strides(sessionID string) ([]Stride, error) {
	strides := make([]Stride, 0, 32)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketStrides).Bucket([]byte(sessionID))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var st Stride
			if err := json.Unmarshal(v, &st); err != nil {
				return err
			}
			strides = append(strides, st)
		}
		return nil
	})
	return strides, err
}

// DeleteSession removes a summary and its strides
func (s *Store) DeleteSession(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketSessions).Delete([]byte(id)); err != nil {
			return err
		}
		err := tx.Bucket(bucketStrides).DeleteBucket([]byte(id))
		if errors.Is(err, bolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}

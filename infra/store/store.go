// Package store records run reports in pebble. Every report doubles as an
// outbox entry whose state tracks whether it has been published.
package store

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"memlab/report"
)

// ErrNotFound is returned when no report has the requested id.
var ErrNotFound = errors.New("store: report not found")

// -------------------- State --------------------

type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	default:
		return "UNKNOWN"
	}
}

// Entry is a stored report with its publish state.
type Entry struct {
	ID      uint64
	State   State
	Payload []byte
}

func (e Entry) Report() (*report.Report, error) {
	return report.Decode(e.Payload)
}

// value layout: [state:1][payload]
func encodeValue(s State, payload []byte) []byte {
	buf := make([]byte, 1+len(payload))
	buf[0] = byte(s)
	copy(buf[1:], payload)
	return buf
}

func decodeValue(id uint64, b []byte) (Entry, error) {
	if len(b) == 0 {
		return Entry{}, errors.Newf("store: empty value for report %d", id)
	}
	return Entry{
		ID:      id,
		State:   State(b[0]),
		Payload: bytes.Clone(b[1:]),
	}, nil
}

// -------------------- Store --------------------

type Store struct {
	db *pebble.DB
}

type Option func(*pebble.Options)

// InMemory keeps the database in memory; for tests.
func InMemory() Option {
	return func(o *pebble.Options) { o.FS = vfs.NewMem() }
}

func Open(dir string, opts ...Option) (*Store, error) {
	o := &pebble.Options{}
	for _, opt := range opts {
		opt(o)
	}
	db, err := pebble.Open(dir, o)
	if err != nil {
		return nil, errors.Wrapf(err, "store: open %s", dir)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Put records r as a NEW entry.
func (s *Store) Put(r *report.Report) error {
	payload, err := report.Encode(r)
	if err != nil {
		return err
	}
	return s.db.Set(keyFor(r.ID), encodeValue(StateNew, payload), pebble.Sync)
}

func (s *Store) Get(id uint64) (Entry, error) {
	val, closer, err := s.db.Get(keyFor(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return Entry{}, errors.Wrapf(ErrNotFound, "id %d", id)
	}
	if err != nil {
		return Entry{}, errors.Wrapf(err, "store: get %d", id)
	}
	defer closer.Close()
	return decodeValue(id, val)
}

func (s *Store) setState(id uint64, state State) error {
	e, err := s.Get(id)
	if err != nil {
		return err
	}
	return s.db.Set(keyFor(id), encodeValue(state, e.Payload), pebble.Sync)
}

func (s *Store) MarkSent(id uint64) error  { return s.setState(id, StateSent) }
func (s *Store) MarkAcked(id uint64) error { return s.setState(id, StateAcked) }

// -------------------- Scan --------------------

// List returns up to limit entries, newest first. limit <= 0 means all.
func (s *Store) List(limit int) ([]Entry, error) {
	iter, err := s.newIter()
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []Entry
	for iter.Last(); iter.Valid(); iter.Prev() {
		e, err := entryAt(iter)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, iter.Error()
}

// LastID returns the highest recorded id, 0 when empty.
func (s *Store) LastID() (uint64, error) {
	iter, err := s.newIter()
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	if !iter.Last() {
		return 0, iter.Error()
	}
	return parseKey(iter.Key())
}

// ScanPending calls fn, oldest first, for every entry not yet acknowledged.
// SENT entries are included: a send that was never acked is retried.
func (s *Store) ScanPending(fn func(Entry) error) error {
	iter, err := s.newIter()
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		e, err := entryAt(iter)
		if err != nil {
			return err
		}
		if e.State == StateAcked {
			continue
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (s *Store) newIter() (*pebble.Iterator, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix + "~"),
	})
	return iter, errors.Wrap(err, "store: iterator")
}

func entryAt(iter *pebble.Iterator) (Entry, error) {
	id, err := parseKey(iter.Key())
	if err != nil {
		return Entry{}, err
	}
	return decodeValue(id, iter.Value())
}

// -------------------- Helpers --------------------

const keyPrefix = "report/"

func keyFor(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", keyPrefix, id))
}

func parseKey(b []byte) (uint64, error) {
	id, err := strconv.ParseUint(string(bytes.TrimPrefix(b, []byte(keyPrefix))), 10, 64)
	return id, errors.Wrapf(err, "store: key %q", b)
}

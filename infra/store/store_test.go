package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memlab/report"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open("reports", InMemory())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func rep(id uint64) *report.Report {
	return &report.Report{
		ID:        id,
		StartedAt: time.Unix(int64(id), 0).UTC(),
		Sections:  []report.Section{{Number: 1, Title: "REFERENCE COUNTING"}},
	}
}

func TestPutGet(t *testing.T) {
	s := openTest(t)
	require.NoError(t, s.Put(rep(1)))

	e, err := s.Get(1)
	require.NoError(t, err)
	assert.Equal(t, StateNew, e.State)

	r, err := e.Report()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), r.ID)
	assert.Equal(t, "REFERENCE COUNTING", r.Sections[0].Title)

	_, err = s.Get(2)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListNewestFirstAndLastID(t *testing.T) {
	s := openTest(t)
	id, err := s.LastID()
	require.NoError(t, err)
	assert.Zero(t, id)

	for _, id := range []uint64{3, 1, 10, 2} {
		require.NoError(t, s.Put(rep(id)))
	}

	all, err := s.List(0)
	require.NoError(t, err)
	ids := make([]uint64, 0, len(all))
	for _, e := range all {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []uint64{10, 3, 2, 1}, ids)

	two, err := s.List(2)
	require.NoError(t, err)
	assert.Len(t, two, 2)

	id, err = s.LastID()
	require.NoError(t, err)
	assert.Equal(t, uint64(10), id)
}

func TestOutboxStates(t *testing.T) {
	s := openTest(t)
	for id := uint64(1); id <= 3; id++ {
		require.NoError(t, s.Put(rep(id)))
	}
	require.NoError(t, s.MarkSent(2))
	require.NoError(t, s.MarkAcked(3))

	var pending []uint64
	require.NoError(t, s.ScanPending(func(e Entry) error {
		pending = append(pending, e.ID)
		return nil
	}))
	assert.Equal(t, []uint64{1, 2}, pending)

	e, err := s.Get(2)
	require.NoError(t, err)
	assert.Equal(t, "SENT", e.State.String())
	_, err = e.Report()
	assert.NoError(t, err, "state changes keep the payload")

	assert.ErrorIs(t, s.MarkAcked(42), ErrNotFound)
}

func TestReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Put(rep(7)))
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()
	id, err := s.LastID()
	require.NoError(t, err)
	assert.Equal(t, uint64(7), id)
}

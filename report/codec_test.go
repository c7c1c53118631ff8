package report

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
)

func sample() *Report {
	r := &Report{
		ID:        1<<60 + 7,
		Instance:  "3f0c7a52-5d0e-4d84-9d8e-0c6c3f1f9a11",
		StartedAt: time.Date(2026, 10, 16, 9, 30, 0, 123, time.UTC),
		Duration:  1500 * time.Millisecond,
		Host:      Host{Hostname: "lab", GoVersion: "go1.25", NumCPU: 8, RSSBytes: 1 << 40},
	}
	sec := Section{Number: 1, Title: "REFERENCE COUNTING", Duration: time.Millisecond}
	sec.Add("destroyed_at_release", 2, "").Note("Object 'test' destroyed")
	r.Sections = append(r.Sections, sec, Section{Number: 7, Title: "GC", Duration: time.Second})
	return r
}

func TestEncodeDecodePreservesLargeIntegers(t *testing.T) {
	in := sample()
	b, err := Encode(in)
	require.NoError(t, err)

	out, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.Host.RSSBytes, out.Host.RSSBytes)
	assert.True(t, in.StartedAt.Equal(out.StartedAt))
	assert.Equal(t, in.Sections[0].Metrics, out.Sections[0].Metrics)
	assert.Equal(t, in.Sections[0].Notes, out.Sections[0].Notes)
	assert.Nil(t, out.Sections[1].Notes)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte{0xff, 0xff, 0xff})
	assert.Error(t, err)

	s, err := structpb.NewStruct(map[string]any{"id": "not-a-number"})
	require.NoError(t, err)
	_, err = FromProto(s)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestJSON(t *testing.T) {
	b, err := JSON(sample())
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "1152921504606846983", m["id"])
}

func TestSectionLookup(t *testing.T) {
	r := sample()
	sec, ok := r.Section(1)
	require.True(t, ok)
	m, ok := sec.Metric("destroyed_at_release")
	require.True(t, ok)
	assert.Equal(t, 2.0, m.Value)

	_, ok = sec.Metric("missing")
	assert.False(t, ok)
	_, ok = r.Section(99)
	assert.False(t, ok)
}

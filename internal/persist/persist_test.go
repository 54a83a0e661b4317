package persist

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Timestamp time.Time `msgpack:"timestamp"`
	Dry       []bool    `msgpack:"dry"`
}

func openTestStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := OpenBolt(filepath.Join(t.TempDir(), "drip.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBoltStore_SaveLoad(t *testing.T) {
	s := openTestStore(t)
	at := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	in := []sample{
		{Timestamp: at, Dry: []bool{true, false, true, true, false, true}},
		{Timestamp: at.Add(2 * time.Hour), Dry: []bool{false, false, false, false, false, false}},
	}

	require.NoError(t, s.Save(context.Background(), "moisture_history", in))

	var out []sample
	require.NoError(t, s.Load("moisture_history", &out))
	require.Len(t, out, 2)
	assert.True(t, out[0].Timestamp.Equal(in[0].Timestamp))
	assert.Equal(t, in[0].Dry, out[0].Dry)
	assert.Equal(t, in[1].Dry, out[1].Dry)
}

func TestBoltStore_SaveReplaces(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "n", []int{1, 2, 3}))
	require.NoError(t, s.Save(ctx, "n", []int{4}))

	var out []int
	require.NoError(t, s.Load("n", &out))
	assert.Equal(t, []int{4}, out)

	names, err := s.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"n"}, names)
}

func TestBoltStore_LoadMissing(t *testing.T) {
	s := openTestStore(t)

	var out []int
	err := s.Load("safety_shutdowns", &out)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBoltStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drip.db")
	s, err := OpenBolt(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background(), "n", "kept"))
	require.NoError(t, s.Close())

	s, err = OpenBolt(path)
	require.NoError(t, err)
	defer s.Close()

	var out string
	require.NoError(t, s.Load("n", &out))
	assert.Equal(t, "kept", out)
}

func TestBoltStore_CancelledContext(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Save(ctx, "n", 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMulti_JoinsErrors(t *testing.T) {
	ok := NewMemorySink()
	bad := NewMemorySink()
	bad.Err = errors.New("disk full")

	m := NewMulti(bad, nil, ok)
	err := m.Save(context.Background(), "n", 1)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 1, ok.Saves("n"), "healthy sink still written")
}

func TestMemorySink_Load(t *testing.T) {
	m := NewMemorySink()
	require.NoError(t, m.Save(context.Background(), "n", map[string]int{"a": 1}))

	var out map[string]int
	require.NoError(t, m.Load("n", &out))
	assert.Equal(t, 1, out["a"])

	assert.ErrorIs(t, m.Load("other", &out), ErrNotFound)
}

func TestNoop(t *testing.T) {
	assert.NoError(t, Noop{}.Save(context.Background(), "n", 1))
}

package schedule

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := OpenStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedules.db")
	s := openTestStore(t, path)

	e := Entry{
		ID:          "morning",
		StartHour:   6,
		StartMinute: 30,
		Duration:    90 * time.Second,
		Days:        []int{0, 2, 4},
		Enabled:     true,
		CreatedAt:   time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.SaveEntry(e))

	loaded, err := s.LoadEntries()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	got := loaded[0]
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, e.StartHour, got.StartHour)
	assert.Equal(t, e.StartMinute, got.StartMinute)
	assert.Equal(t, e.Duration, got.Duration)
	assert.Equal(t, e.Days, got.Days)
	assert.True(t, got.Enabled)
}

func TestStoreUpsertReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedules.db")
	s := openTestStore(t, path)

	e := Entry{ID: "a", StartHour: 6, Duration: time.Minute, Enabled: true}
	require.NoError(t, s.SaveEntry(e))
	e.StartHour = 8
	e.Enabled = false
	require.NoError(t, s.SaveEntry(e))

	loaded, err := s.LoadEntries()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, 8, loaded[0].StartHour)
	assert.False(t, loaded[0].Enabled)
}

func TestStoreDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedules.db")
	s := openTestStore(t, path)

	require.NoError(t, s.SaveEntry(Entry{ID: "a", StartHour: 6, Duration: time.Minute}))
	require.NoError(t, s.DeleteEntry("a"))
	require.NoError(t, s.DeleteEntry("a"), "deleting an absent id is not an error")

	loaded, err := s.LoadEntries()
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedules.db")
	s := openTestStore(t, path)
	require.NoError(t, s.SaveEntry(Entry{ID: "a", StartHour: 6, Duration: time.Minute, Enabled: true}))
	require.NoError(t, s.Close())

	s2 := openTestStore(t, path)
	loaded, err := s2.LoadEntries()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "a", loaded[0].ID)
}

func TestEngineWritesThroughToStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedules.db")
	s := openTestStore(t, path)
	g := NewEngine(s)

	mustUpsert(t, g, Entry{ID: "a", StartHour: 6, Duration: time.Minute, Enabled: true})
	require.NoError(t, g.SetEnabled("a", false))

	loaded, err := s.LoadEntries()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.False(t, loaded[0].Enabled)

	require.NoError(t, g.Remove("a"))
	loaded, err = s.LoadEntries()
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestDayMaskRoundTrip(t *testing.T) {
	assert.Equal(t, uint8(0x7F), DaysToMask(nil))
	assert.Nil(t, MaskToDays(0x7F))

	days := []int{0, 3, 6}
	assert.Equal(t, days, MaskToDays(DaysToMask(days)))
}

package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nilo-qa/nilo-loadtest/internal/engine"
	"github.com/nilo-qa/nilo-loadtest/internal/export"
	"github.com/nilo-qa/nilo-loadtest/internal/metrics"
	"github.com/nilo-qa/nilo-loadtest/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport(id string, started time.Time, passed bool) *export.Report {
	return &export.Report{
		RunID:       id,
		Application: "functionary",
		Strategy:    "smoke",
		Environment: "sandbox",
		Scenario:    "functionary",
		StartedAt:   started,
		FinishedAt:  started.Add(time.Minute),
		Profile:     engine.Fixed(2, time.Minute),
		Iterations:  12,
		PeakVUs:     2,
		Metrics: []metrics.Aggregate{
			{Name: metrics.HTTPReqDuration, Kind: "trend", Count: 36, Avg: 120, P95: 300},
		},
		Passed: passed,
	}
}

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(testutil.CreateInMemoryDB(t))
	require.NoError(t, err)
	return s
}

func TestStore_SaveAndList(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.Save(ctx, sampleReport("aaa-1", base, true)))
	require.NoError(t, s.Save(ctx, sampleReport("bbb-2", base.Add(time.Hour), false)))
	require.NoError(t, s.Save(ctx, sampleReport("ccc-3", base.Add(2*time.Hour), true)))

	entries, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "ccc-3", entries[0].ID)
	assert.Equal(t, "aaa-1", entries[2].ID)
	assert.False(t, entries[1].Passed)
	assert.Equal(t, int64(12), entries[0].Iterations)
	assert.True(t, base.Equal(entries[2].StartedAt))
	assert.Equal(t, time.Minute, entries[2].FinishedAt.Sub(entries[2].StartedAt))

	entries, err = s.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestStore_SaveReplaces(t *testing.T) {
	db := testutil.CreateInMemoryDB(t)
	s, err := NewStore(db)
	require.NoError(t, err)
	ctx := context.Background()
	r := sampleReport("run-1", time.Now(), false)
	require.NoError(t, s.Save(ctx, r))
	r.Passed = true
	require.NoError(t, s.Save(ctx, r))

	assert.Equal(t, 1, testutil.CountRows(t, db, "runs"))
	entries, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Passed)
}

func TestStore_Get(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.Save(ctx, sampleReport("4f1c-aa", now, true)))
	require.NoError(t, s.Save(ctx, sampleReport("4f1c-bb", now, true)))
	require.NoError(t, s.Save(ctx, sampleReport("4f1c", now, false)))
	require.NoError(t, s.Save(ctx, sampleReport("9e_x", now, true)))

	tests := []struct {
		name    string
		id      string
		wantID  string
		wantErr error
	}{
		{name: "exact", id: "4f1c-aa", wantID: "4f1c-aa"},
		{name: "unique prefix", id: "4f1c-b", wantID: "4f1c-bb"},
		{name: "exact beats prefix", id: "4f1c", wantID: "4f1c"},
		{name: "ambiguous prefix", id: "4f", wantErr: ErrAmbiguous},
		{name: "missing", id: "zzz", wantErr: ErrNotFound},
		{name: "empty", id: "", wantErr: ErrNotFound},
		{name: "underscore is literal", id: "9e_", wantID: "9e_x"},
		{name: "wildcard is literal", id: "9e%", wantErr: ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := s.Get(ctx, tt.id)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, r.RunID)
			assert.Equal(t, engine.Fixed(2, time.Minute), r.Profile)
			m, ok := r.Metric(metrics.HTTPReqDuration)
			require.True(t, ok)
			assert.Equal(t, 300.0, m.P95)
		})
	}
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(testutil.CreateTempDir(t), "nested", "history.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background(), sampleReport("r1", time.Now(), true)))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	entries, err := s.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDefaultPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	path, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".nilo-loadtest", "history.db"), path)
}

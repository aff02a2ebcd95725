package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/3cpo-dev/rdeploy/pkg/api"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordAndRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Unix(1700000000, 0)

	first := api.RunSpec{
		Workflow: api.WorkflowDeploy, Host: "10.0.0.5:22",
		StartedAt: base, FinishedAt: base.Add(3 * time.Second), Status: api.RunSucceeded,
		Stages: []api.StageResult{{Stage: api.StageRedeploy, Status: api.RunSucceeded, DurationMS: 3000}},
	}
	second := api.RunSpec{
		Workflow: api.WorkflowRestart, Host: "10.0.0.5:22",
		StartedAt: base.Add(time.Minute), FinishedAt: base.Add(time.Minute + time.Second),
		Status: api.RunFailed, Error: "shutdown: exit 1",
		Stages: []api.StageResult{{Stage: api.StageShutdown, Command: "bash -lc shutdown.sh", Status: api.RunFailed, DurationMS: 12, Error: "exit 1"}},
	}
	id1, err := s.Record(ctx, first)
	require.NoError(t, err)
	id2, err := s.Record(ctx, second)
	require.NoError(t, err)
	require.Greater(t, id2, id1)

	runs, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	got := runs[0]
	require.Equal(t, id2, got.ID)
	require.Equal(t, api.WorkflowRestart, got.Workflow)
	require.Equal(t, api.RunFailed, got.Status)
	require.Equal(t, "shutdown: exit 1", got.Error)
	require.True(t, got.StartedAt.Equal(second.StartedAt))
	require.Equal(t, second.Stages, got.Stages)

	require.Equal(t, id1, runs[1].ID)
	require.Equal(t, first.Stages, runs[1].Stages)
}

func TestRecentLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		at := time.Unix(int64(1700000000+i), 0)
		_, err := s.Record(ctx, api.RunSpec{Workflow: api.WorkflowFile, StartedAt: at, FinishedAt: at, Status: api.RunSucceeded})
		require.NoError(t, err)
	}
	runs, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, int64(1700000004), runs[0].StartedAt.Unix())
	require.Empty(t, runs[0].Stages)
}

func TestReopenKeepsRuns(t *testing.T) {
	p := filepath.Join(t.TempDir(), "history.db")
	s, err := NewStore(p)
	require.NoError(t, err)
	_, err = s.Record(context.Background(), api.RunSpec{Workflow: api.WorkflowDeploy, Status: api.RunSucceeded})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = NewStore(p)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Ping(context.Background()))
	runs, err := s.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
}

func TestNewStoreEmptyPath(t *testing.T) {
	_, err := NewStore("")
	require.Error(t, err)
}

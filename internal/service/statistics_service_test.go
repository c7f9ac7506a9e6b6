package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatchconsole/internal/model"
	"dispatchconsole/internal/testutil"
)

func TestGetStatistics(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := context.Background()

	first := f.open(t, f.machine.ID, "CREATION", `{"location":"Dock 3"}`)
	_, err := f.approvals.ApproveRequest(ctx, viewerOf(f.manager), first.ID, ApproveRequestDTO{})
	require.NoError(t, err)

	second := testutil.CreateMachine(t, f.db, &f.so.ID, f.dispatcher.ID, false, "")
	f.open(t, second.ID, "CREATION", `{"location":"Dock 4"}`)

	now := time.Now()
	stats, err := f.stats.GetStatistics(ctx, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, int64(1), stats.RequestsByStatus[model.ApprovalApproved])
	assert.Equal(t, int64(1), stats.RequestsByStatus[model.ApprovalPending])
	assert.Equal(t, int64(2), stats.RequestsByType["CREATION"])
	assert.Equal(t, int64(1), stats.MachinesApproved)
	assert.Equal(t, int64(1), stats.MachinesAwaiting)

	require.Len(t, stats.PendingByCategory, 1)
	assert.Equal(t, "Pumps", stats.PendingByCategory[0].CategoryName)
	assert.Equal(t, int64(1), stats.PendingByCategory[0].Pending)

	empty, err := f.stats.GetStatistics(ctx, now.Add(-48*time.Hour), now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, empty.RequestsByStatus)
	assert.Equal(t, int64(1), empty.MachinesApproved)
}

package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatchconsole/internal/websocket"
	"dispatchconsole/internal/worker"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []websocket.Event
	target []websocket.Target
	err    error
}

func (p *recordingPublisher) Publish(target websocket.Target, evt websocket.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	p.target = append(p.target, target)
	return p.err
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func newPool(t *testing.T) *worker.Pool {
	t.Helper()
	pool, err := worker.New(context.Background(), 2)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Shutdown(time.Second) })
	return pool
}

func TestDispatcher_NotifyApprovers(t *testing.T) {
	pub := &recordingPublisher{}
	d := NewDispatcher(newPool(t), pub)

	reqID, machineID := uuid.New(), uuid.New()
	d.NotifyApprovers(context.Background(), []string{"manager"}, reqID, machineID)

	require.Eventually(t, func() bool { return pub.count() == 1 }, time.Second, 10*time.Millisecond)
	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.Equal(t, TypeApprovalPending, pub.events[0].Type)
	assert.Equal(t, reqID.String(), pub.events[0].RequestID)
	assert.Equal(t, machineID.String(), pub.events[0].MachineID)
	assert.Equal(t, []string{"manager"}, pub.target[0].Roles)
}

func TestDispatcher_NoRolesIsSkipped(t *testing.T) {
	pub := &recordingPublisher{}
	d := NewDispatcher(newPool(t), pub)

	d.NotifyApprovers(context.Background(), nil, uuid.New(), uuid.New())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, pub.count())
}

func TestDispatcher_PublishFailureIsSwallowed(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("queue full")}
	d := NewDispatcher(newPool(t), pub)

	requester := uuid.New()
	d.NotifyRequester(context.Background(), requester, uuid.New(), "REJECTED")

	require.Eventually(t, func() bool { return pub.count() == 1 }, time.Second, 10*time.Millisecond)
	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.Equal(t, []uuid.UUID{requester}, pub.target[0].Users)
}

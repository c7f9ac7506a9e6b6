// Package notification tells approvers about new requests and requesters about
// decisions. Delivery is best-effort and never fails the operation that caused it.
package notification

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dispatchconsole/internal/logger"
	"dispatchconsole/internal/metrics"
	"dispatchconsole/internal/websocket"
	"dispatchconsole/internal/worker"
)

// Event types pushed to consoles.
const (
	TypeApprovalPending = "approval.pending"
	TypeApprovalDecided = "approval.decided"
)

// Notifier is the outbound port of the approval workflow.
type Notifier interface {
	// NotifyApprovers announces a pending request to every holder of roles.
	NotifyApprovers(ctx context.Context, roles []string, requestID, machineID uuid.UUID)
	// NotifyRequester tells the requester their request reached status.
	NotifyRequester(ctx context.Context, requester, requestID uuid.UUID, status string)
}

// Publisher delivers an event to a set of recipients.
type Publisher interface {
	Publish(target websocket.Target, evt websocket.Event) error
}

// Dispatcher pushes notifications through a Publisher on the worker pool.
type Dispatcher struct {
	pool      *worker.Pool
	publisher Publisher
}

func NewDispatcher(pool *worker.Pool, publisher Publisher) *Dispatcher {
	return &Dispatcher{pool: pool, publisher: publisher}
}

func (d *Dispatcher) NotifyApprovers(_ context.Context, roles []string, requestID, machineID uuid.UUID) {
	if len(roles) == 0 {
		logger.Warn("approval request has no approver roles to notify", zap.String("request_id", requestID.String()))
		return
	}
	d.dispatch(TypeApprovalPending, websocket.Target{Roles: roles}, websocket.Event{
		Type:      TypeApprovalPending,
		RequestID: requestID.String(),
		MachineID: machineID.String(),
		Payload:   map[string]interface{}{"approver_roles": roles},
	})
}

func (d *Dispatcher) NotifyRequester(_ context.Context, requester, requestID uuid.UUID, status string) {
	d.dispatch(TypeApprovalDecided, websocket.Target{Users: []uuid.UUID{requester}}, websocket.Event{
		Type:      TypeApprovalDecided,
		RequestID: requestID.String(),
		Payload:   map[string]interface{}{"status": status},
	})
}

// dispatch runs detached from the request: the caller has already committed and
// must not wait on delivery.
func (d *Dispatcher) dispatch(kind string, target websocket.Target, evt websocket.Event) {
	err := d.pool.SubmitDetached(func(context.Context) {
		if err := d.publisher.Publish(target, evt); err != nil {
			metrics.NotificationsSent.WithLabelValues(kind, "failed").Inc()
			logger.Warn("notification delivery failed",
				zap.String("type", kind),
				zap.String("request_id", evt.RequestID),
				zap.Error(err))
			return
		}
		metrics.NotificationsSent.WithLabelValues(kind, "sent").Inc()
	})
	if err != nil {
		metrics.NotificationsSent.WithLabelValues(kind, "dropped").Inc()
		logger.Warn("notification not scheduled", zap.String("type", kind), zap.Error(err))
	}
}

// Nop discards notifications. Used when notifications are disabled.
type Nop struct{}

func (Nop) NotifyApprovers(context.Context, []string, uuid.UUID, uuid.UUID) {}
func (Nop) NotifyRequester(context.Context, uuid.UUID, uuid.UUID, string)   {}

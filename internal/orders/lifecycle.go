package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

const (
	rejectForbidden = "forbidden"
	rejectNoOp      = "no_op"
	rejectIllegal   = "illegal"
	rejectConflict  = "conflict"
)

// transitions lists the only legal edges. Cancelled and delivered have none.
var transitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:  {enums.OrderStatusApproved, enums.OrderStatusCancelled},
	enums.OrderStatusApproved: {enums.OrderStatusDelivered, enums.OrderStatusCancelled},
}

// CanTransition reports whether from -> to is an edge of the order state machine.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the statuses reachable from status in one step.
func AllowedTransitions(status enums.OrderStatus) []enums.OrderStatus {
	next := transitions[status]
	out := make([]enums.OrderStatus, len(next))
	copy(out, next)
	return out
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Lifecycle governs order status changes.
type Lifecycle interface {
	Transition(ctx context.Context, input TransitionInput) (*models.Order, error)
}

// TransitionInput describes a requested status change. ExpectedStatus is the status the
// caller last observed; when set, the transition is rejected if the order has moved on.
type TransitionInput struct {
	OrderID        uuid.UUID
	Target         enums.OrderStatus
	ExpectedStatus *enums.OrderStatus
	Actor          auth.Actor
}

type lifecycle struct {
	repo    Repository
	tx      txRunner
	outbox  outbox.Emitter
	metrics *metrics.OrderMetrics
	logg    *logger.Logger
	now     func() time.Time
}

// NewLifecycle builds the order state machine with the required dependencies.
func NewLifecycle(repo Repository, tx txRunner, emitter outbox.Emitter, orderMetrics *metrics.OrderMetrics, logg *logger.Logger) (Lifecycle, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &lifecycle{
		repo:    repo,
		tx:      tx,
		outbox:  emitter,
		metrics: orderMetrics,
		logg:    logg,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (l *lifecycle) Transition(ctx context.Context, input TransitionInput) (*models.Order, error) {
	if input.Actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !input.Actor.IsAdmin() {
		l.metrics.IncRejected(rejectForbidden)
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only admins can change order status")
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid target status").
			WithDetails(map[string]any{"status": input.Target})
	}
	if input.ExpectedStatus != nil && !input.ExpectedStatus.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid expected status").
			WithDetails(map[string]any{"expectedStatus": *input.ExpectedStatus})
	}

	var (
		updated *models.Order
		from    enums.OrderStatus
	)
	err := l.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := l.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, input.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		from = order.Status

		if input.ExpectedStatus != nil && *input.ExpectedStatus != order.Status {
			return conflictError(order.Status, input.Target)
		}
		if order.Status == input.Target {
			return pkgerrors.New(pkgerrors.CodeNoOpTransition, "order already has this status").
				WithDetails(map[string]any{"status": order.Status})
		}
		if !CanTransition(order.Status, input.Target) {
			return pkgerrors.New(pkgerrors.CodeIllegalTransition, "transition not allowed").
				WithDetails(map[string]any{
					"from":    order.Status,
					"to":      input.Target,
					"allowed": AllowedTransitions(order.Status),
				})
		}

		at := l.now()
		rows, err := repo.UpdateStatusIfCurrent(ctx, order.ID, order.Status, input.Target, at)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if rows == 0 {
			return conflictError(order.Status, input.Target)
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: input.Actor.UserID, Role: input.Actor.Role.String()},
			OccurredAt:    at,
			Data: payloads.OrderStatusChangedEvent{
				OrderID:   order.ID,
				From:      order.Status,
				To:        input.Target,
				ChangedBy: input.Actor.UserID,
				ChangedAt: at,
			},
		}
		if err := l.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order status event")
		}

		order.Status = input.Target
		order.UpdatedAt = at
		updated = order
		return nil
	})
	if err != nil {
		l.metrics.IncRejected(rejectReason(err))
		return nil, err
	}

	l.metrics.IncTransition(from.String(), input.Target.String())
	if l.logg != nil {
		logCtx := l.logg.WithOrderID(l.logg.WithUserID(ctx, input.Actor.UserID.String()), updated.ID.String())
		logCtx = l.logg.WithFields(logCtx, map[string]any{"from": from, "to": input.Target})
		l.logg.Info(logCtx, "order status changed")
	}
	return updated, nil
}

func conflictError(current, target enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "order status changed, refresh and retry").
		WithDetails(map[string]any{"currentStatus": current, "requestedStatus": target})
}

func rejectReason(err error) string {
	switch pkgerrors.CodeOf(err) {
	case pkgerrors.CodeNoOpTransition:
		return rejectNoOp
	case pkgerrors.CodeIllegalTransition:
		return rejectIllegal
	case pkgerrors.CodeConflict:
		return rejectConflict
	case pkgerrors.CodeNotFound:
		return "not_found"
	}
	return "error"
}

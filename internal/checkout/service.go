package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/checkout/helpers"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service commits a user's cart into a pending order.
type Service interface {
	Commit(ctx context.Context, actor auth.Actor) (*orders.OrderDTO, error)
}

// ServiceConfig carries the optional collaborators of checkout.
type ServiceConfig struct {
	MaxQty  int
	Metrics *metrics.OrderMetrics
	Logger  *logger.Logger
}

type service struct {
	tx         txRunner
	cartRepo   cart.Repository
	ordersRepo orders.Repository
	catalog    products.Provider
	outbox     outbox.Emitter
	maxQty     int
	metrics    *metrics.OrderMetrics
	logg       *logger.Logger
}

// NewService wires checkout orchestration.
func NewService(tx txRunner, cartRepo cart.Repository, ordersRepo orders.Repository, catalog products.Provider, emitter outbox.Emitter, cfg ServiceConfig) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if cartRepo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("product provider required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	maxQty := cfg.MaxQty
	if maxQty <= 0 {
		maxQty = pricing.MaxQty
	}
	return &service{
		tx:         tx,
		cartRepo:   cartRepo,
		ordersRepo: ordersRepo,
		catalog:    catalog,
		outbox:     emitter,
		maxQty:     maxQty,
		metrics:    cfg.Metrics,
		logg:       cfg.Logger,
	}, nil
}

// Commit revalidates and reprices the cart from fresh snapshots, then atomically creates
// the order, removes the committed lines and queues order_created. Nothing the client
// computed is trusted. A line updated or removed between the read and the commit fails the
// checkout with a conflict and leaves the cart and orders untouched.
func (s *service) Commit(ctx context.Context, actor auth.Actor) (*orders.OrderDTO, error) {
	if err := helpers.ValidateBuyer(actor); err != nil {
		return nil, err
	}

	items, err := s.cartRepo.ListByUser(ctx, actor.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cart is empty")
	}

	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	snaps, err := s.catalog.Snapshots(ctx, ids)
	if err != nil {
		return nil, err
	}

	lines, err := helpers.ValidateLines(items, snaps, s.maxQty)
	if err != nil {
		return nil, err
	}
	quote, err := pricing.Compute(lines)
	if err != nil {
		var lineErr *pricing.LineError
		if errors.As(err, &lineErr) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "cart line cannot be priced").
				WithDetails(map[string]any{"productId": lineErr.ProductID})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "cart cannot be priced")
	}

	order := helpers.BuildOrder(actor.UserID, quote, lines)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.ordersRepo.WithTx(tx).Create(ctx, &order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		// only the committed lines, and only as they were priced; a line changed meanwhile
		// rolls the whole checkout back
		cartRepo := s.cartRepo.WithTx(tx)
		for _, item := range items {
			n, err := cartRepo.DeleteIfUnchanged(ctx, item.ID, item.Qty)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear committed cart lines")
			}
			if n == 0 {
				return pkgerrors.New(pkgerrors.CodeConflict, "cart changed during checkout, retry").
					WithDetails(map[string]any{"productId": item.ProductID})
			}
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: actor.Role.String()},
			Data: payloads.OrderCreatedEvent{
				OrderID:    order.ID,
				UserID:     order.UserID,
				Status:     order.Status,
				ItemCount:  len(order.Items),
				TotalPrice: order.TotalPrice,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order created event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncCreated()
	if s.logg != nil {
		logCtx := s.logg.WithOrderID(s.logg.WithUserID(ctx, actor.UserID.String()), order.ID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{"items": len(order.Items), "total": order.TotalPrice.String()})
		s.logg.Info(logCtx, "order created")
	}

	dto := orders.ToDTO(order)
	return &dto, nil
}

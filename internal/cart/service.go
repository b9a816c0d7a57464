package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

const (
	opAdd    = "add"
	opUpdate = "update_qty"
	opStep   = "step_qty"
	opRemove = "remove"
	opClear  = "clear"

	resultOK   = "ok"
	resultNoop = "noop"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes the per-user cart. Every mutation runs the quantity guard against the
// current product snapshot and returns the freshly priced cart.
type Service interface {
	Get(ctx context.Context, userID uuid.UUID) (*View, error)
	AddItem(ctx context.Context, userID, productID uuid.UUID, qty int) (*View, error)
	UpdateQty(ctx context.Context, userID, productID uuid.UUID, qty int) (*View, error)
	StepQty(ctx context.Context, userID, productID uuid.UUID, delta int) (*View, error)
	RemoveItem(ctx context.Context, userID, productID uuid.UUID) (*View, error)
	Clear(ctx context.Context, userID uuid.UUID) error
}

// ServiceConfig carries the optional collaborators of the cart service.
type ServiceConfig struct {
	MaxQty  int
	Metrics *metrics.CartMetrics
	Logger  *logger.Logger
}

type service struct {
	repo    Repository
	tx      txRunner
	catalog products.Provider
	locker  Locker
	maxQty  int
	metrics *metrics.CartMetrics
	logg    *logger.Logger
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo Repository, tx txRunner, catalog products.Provider, locker Locker, cfg ServiceConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("product provider required")
	}
	if locker == nil {
		return nil, fmt.Errorf("cart locker required")
	}
	maxQty := cfg.MaxQty
	if maxQty <= 0 {
		maxQty = pricing.MaxQty
	}
	return &service{
		repo:    repo,
		tx:      tx,
		catalog: catalog,
		locker:  locker,
		maxQty:  maxQty,
		metrics: cfg.Metrics,
		logg:    cfg.Logger,
	}, nil
}

// Get prices the cart against the current catalog. Stored lines are not modified.
func (s *service) Get(ctx context.Context, userID uuid.UUID) (*View, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	items, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}

	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	snaps, err := s.catalog.Snapshots(ctx, ids)
	if err != nil {
		return nil, err
	}

	view, err := buildView(userID, items, snaps, s.maxQty)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "price cart")
	}
	return view, nil
}

// AddItem inserts the product or merges into the existing line by summing quantities. The
// merged quantity is clamped to what stock and the platform cap allow.
func (s *service) AddItem(ctx context.Context, userID, productID uuid.UUID, qty int) (*View, error) {
	if err := validateIDs(userID, productID); err != nil {
		return nil, err
	}
	if qty < 1 {
		return nil, s.reject(opAdd, productID, &pricing.QuantityError{Reason: pricing.ReasonBelowMinimum, Requested: qty, Allowed: 1})
	}

	unlock, err := s.locker.Lock(ctx, ItemLockKey(userID, productID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	snap, err := s.catalog.Snapshot(ctx, productID)
	if err != nil {
		return nil, err
	}

	var adjustment *Adjustment
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindByUserAndProduct(ctx, userID, productID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
		}

		requested := qty
		if existing != nil {
			requested += existing.Qty
		}
		applied, err := pricing.Clamp(requested, snap.Stock, s.maxQty)
		if err != nil {
			return s.reject(opAdd, productID, err)
		}
		adjustment = clampAdjustment(productID, requested, applied, snap.Stock, s.maxQty)

		if existing == nil {
			item := newItem(userID, productID, applied)
			if err := repo.Create(ctx, &item); err != nil {
				if db.IsUniqueViolation(err, UniqueItemConstraint) {
					return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "cart item changed concurrently, retry")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart item")
			}
			return nil
		}
		if existing.Qty == applied {
			return nil
		}
		if _, err := repo.UpdateQty(ctx, existing.ID, applied); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncMutation(opAdd, resultOK)
	return s.viewWith(ctx, userID, adjustment)
}

// UpdateQty sets the quantity of a line already in the cart. Absent lines are left alone.
func (s *service) UpdateQty(ctx context.Context, userID, productID uuid.UUID, qty int) (*View, error) {
	if err := validateIDs(userID, productID); err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, ItemLockKey(userID, productID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	existing, err := s.findItem(ctx, userID, productID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		s.metrics.IncMutation(opUpdate, resultNoop)
		return s.Get(ctx, userID)
	}
	if qty < 1 {
		return nil, s.reject(opUpdate, productID, &pricing.QuantityError{Reason: pricing.ReasonBelowMinimum, Requested: qty, Allowed: 1})
	}

	snap, err := s.catalog.Snapshot(ctx, productID)
	if err != nil {
		return nil, err
	}
	applied, err := pricing.Clamp(qty, snap.Stock, s.maxQty)
	if err != nil {
		return nil, s.reject(opUpdate, productID, err)
	}

	adjustment := clampAdjustment(productID, qty, applied, snap.Stock, s.maxQty)
	if err := s.writeQty(ctx, existing, applied); err != nil {
		return nil, err
	}

	s.metrics.IncMutation(opUpdate, resultOK)
	return s.viewWith(ctx, userID, adjustment)
}

// StepQty increments or decrements a line without leaving [1, ceiling]. Stepping past a
// bound is a no-op, not an error.
func (s *service) StepQty(ctx context.Context, userID, productID uuid.UUID, delta int) (*View, error) {
	if err := validateIDs(userID, productID); err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, ItemLockKey(userID, productID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	existing, err := s.findItem(ctx, userID, productID)
	if err != nil {
		return nil, err
	}
	if existing == nil || delta == 0 {
		s.metrics.IncMutation(opStep, resultNoop)
		return s.Get(ctx, userID)
	}

	snap, err := s.catalog.Snapshot(ctx, productID)
	if err != nil {
		return nil, err
	}
	next, err := pricing.Step(existing.Qty, delta, snap.Stock, s.maxQty)
	if err != nil {
		return nil, s.reject(opStep, productID, err)
	}
	if next == existing.Qty {
		s.metrics.IncMutation(opStep, resultNoop)
		return s.Get(ctx, userID)
	}
	if err := s.writeQty(ctx, existing, next); err != nil {
		return nil, err
	}

	s.metrics.IncMutation(opStep, resultOK)
	return s.Get(ctx, userID)
}

// RemoveItem deletes the line. Removing a product that is not in the cart succeeds.
func (s *service) RemoveItem(ctx context.Context, userID, productID uuid.UUID) (*View, error) {
	if err := validateIDs(userID, productID); err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, ItemLockKey(userID, productID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var removed int64
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := s.repo.WithTx(tx).DeleteByUserAndProduct(ctx, userID, productID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart item")
		}
		removed = n
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncMutation(opRemove, resultOf(removed))
	return s.Get(ctx, userID)
}

// Clear empties the cart. Clearing an empty cart succeeds.
func (s *service) Clear(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	var removed int64
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := s.repo.WithTx(tx).DeleteAllByUser(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
		}
		removed = n
		return nil
	})
	if err != nil {
		return err
	}
	s.metrics.IncMutation(opClear, resultOf(removed))
	return nil
}

func (s *service) findItem(ctx context.Context, userID, productID uuid.UUID) (*models.CartItem, error) {
	item, err := s.repo.FindByUserAndProduct(ctx, userID, productID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
	}
	return item, nil
}

func (s *service) writeQty(ctx context.Context, item *models.CartItem, qty int) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.repo.WithTx(tx).UpdateQty(ctx, item.ID, qty); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
		}
		return nil
	})
}

func (s *service) viewWith(ctx context.Context, userID uuid.UUID, adjustment *Adjustment) (*View, error) {
	view, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if adjustment != nil {
		view.Adjustments = append(view.Adjustments, *adjustment)
		if s.logg != nil {
			logCtx := s.logg.WithProductID(s.logg.WithUserID(ctx, userID.String()), adjustment.ProductID.String())
			logCtx = s.logg.WithFields(logCtx, map[string]any{"requested_qty": adjustment.Requested, "applied_qty": adjustment.Applied})
			s.logg.Debug(logCtx, "cart quantity clamped")
		}
	}
	return view, nil
}

func (s *service) reject(op string, productID uuid.UUID, err error) error {
	var qe *pricing.QuantityError
	if errors.As(err, &qe) {
		s.metrics.IncMutation(op, string(qe.Reason))
	}
	return WrapQuantityError(err, productID)
}

// WrapQuantityError maps a quantity guard rejection to a validation error that carries the
// valid alternative. Other errors pass through unchanged.
func WrapQuantityError(err error, productID uuid.UUID) error {
	var qe *pricing.QuantityError
	if !errors.As(err, &qe) {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, qe.Error()).WithDetails(map[string]any{
		"productId":    productID,
		"reason":       string(qe.Reason),
		"requestedQty": qe.Requested,
		"allowedQty":   qe.Allowed,
	})
}

func newItem(userID, productID uuid.UUID, qty int) models.CartItem {
	return models.CartItem{
		ID:        uuid.New(),
		UserID:    userID,
		ProductID: productID,
		Qty:       qty,
	}
}

func validateIDs(userID, productID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if productID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	return nil
}

func resultOf(affected int64) string {
	if affected == 0 {
		return resultNoop
	}
	return resultOK
}

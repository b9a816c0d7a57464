package products

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"

	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// ErrProductNotFound is returned when a requested product is not in the catalog.
var ErrProductNotFound = errors.New("product not found")

// Provider returns authoritative, current product snapshots. Results are never cached;
// every call reads the catalog.
type Provider interface {
	Snapshot(ctx context.Context, productID uuid.UUID) (pricing.Snapshot, error)
	Snapshots(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]pricing.Snapshot, error)
}

const defaultLookupTimeout = 5 * time.Second

type provider struct {
	repo          Repository
	logg          *logger.Logger
	group         singleflight.Group
	breaker       *gobreaker.CircuitBreaker[[]models.Product]
	lookupTimeout time.Duration
}

// NewProvider wraps repo with request collapsing and a circuit breaker so a struggling
// catalog fails fast instead of piling up cart reads.
func NewProvider(repo Repository, cfg config.CatalogConfig, logg *logger.Logger) (Provider, error) {
	if repo == nil {
		return nil, fmt.Errorf("products repository required")
	}
	maxFailures := cfg.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}

	lookupTimeout := cfg.LookupTimeout
	if lookupTimeout <= 0 {
		lookupTimeout = defaultLookupTimeout
	}

	p := &provider{repo: repo, logg: logg, lookupTimeout: lookupTimeout}
	p.breaker = gobreaker.NewCircuitBreaker[[]models.Product](gobreaker.Settings{
		Name:     "catalog",
		Interval: cfg.BreakerInterval,
		Timeout:  cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if p.logg == nil {
				return
			}
			ctx := p.logg.WithFields(context.Background(), map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
			p.logg.Warn(ctx, "catalog circuit breaker state changed")
		},
	})
	return p, nil
}

func (p *provider) Snapshot(ctx context.Context, productID uuid.UUID) (pricing.Snapshot, error) {
	snaps, err := p.Snapshots(ctx, []uuid.UUID{productID})
	if err != nil {
		return pricing.Snapshot{}, err
	}
	snap, ok := snaps[productID]
	if !ok {
		return pricing.Snapshot{}, pkgerrors.Wrap(pkgerrors.CodeNotFound, ErrProductNotFound, "product not found").
			WithDetails(map[string]any{"productId": productID})
	}
	return snap, nil
}

// Snapshots returns the snapshots that exist; callers decide how to treat missing ids.
func (p *provider) Snapshots(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]pricing.Snapshot, error) {
	ids := uniqueSorted(productIDs)
	out := make(map[uuid.UUID]pricing.Snapshot, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	// The lookup is shared by every caller joining the group, so it must outlive the caller
	// that started it. Each caller still stops waiting on its own ctx below.
	ch := p.group.DoChan(groupKey(ids), func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.lookupTimeout)
		defer cancel()
		return p.breaker.Execute(func() ([]models.Product, error) {
			return p.repo.FindByIDs(lookupCtx, ids)
		})
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, ctx.Err(), "catalog lookup canceled")
	case res = <-ch:
	}
	if res.Err != nil {
		if errors.Is(res.Err, gobreaker.ErrOpenState) || errors.Is(res.Err, gobreaker.ErrTooManyRequests) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Err, "catalog temporarily unavailable")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Err, "catalog lookup failed")
	}

	for _, row := range res.Val.([]models.Product) {
		out[row.ID] = ToSnapshot(row)
	}
	return out, nil
}

// ToSnapshot maps a catalog row to the pricing input.
func ToSnapshot(row models.Product) pricing.Snapshot {
	return pricing.Snapshot{
		ProductID:     row.ID,
		CurrentPrice:  row.CurrentPrice,
		PreviousPrice: row.PreviousPrice,
		Tax:           row.Tax,
		Stock:         row.Stock,
	}
}

func uniqueSorted(ids []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id != uuid.Nil {
			out = append(out, id)
		}
	}
	slices.SortFunc(out, func(a, b uuid.UUID) int {
		return strings.Compare(a.String(), b.String())
	})
	return slices.Compact(out)
}

func groupKey(ids []uuid.UUID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ",")
}

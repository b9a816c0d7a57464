package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

// QueryService is the read model behind admin order review. It never mutates orders.
type QueryService interface {
	List(ctx context.Context, input ListInput) (*OrderList, error)
	Get(ctx context.Context, orderID uuid.UUID) (*OrderDTO, error)
}

// ListInput selects a page of orders. Status is "all" (or empty) or an order status.
type ListInput struct {
	Status string
	Page   int
	Limit  int
}

type queryService struct {
	repo         Repository
	defaultLimit int
	maxLimit     int
}

// NewQueryService builds the order read model. Non-positive limits fall back to the
// pagination defaults.
func NewQueryService(repo Repository, defaultLimit, maxLimit int) (QueryService, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if defaultLimit <= 0 {
		defaultLimit = pagination.DefaultLimit
	}
	if maxLimit <= 0 {
		maxLimit = pagination.MaxLimit
	}
	return &queryService{repo: repo, defaultLimit: defaultLimit, maxLimit: maxLimit}, nil
}

// List returns the requested page. A page past the last one is empty rather than an
// error; callers reset to page 1.
func (s *queryService) List(ctx context.Context, input ListInput) (*OrderList, error) {
	filter, err := parseStatusFilter(input.Status)
	if err != nil {
		return nil, err
	}
	params := pagination.Normalize(pagination.Params{Page: input.Page, Limit: input.Limit}, s.defaultLimit, s.maxLimit)

	rows, total, err := s.repo.List(ctx, filter, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}

	out := &OrderList{
		Orders:     make([]OrderDTO, 0, len(rows)),
		TotalPages: pagination.TotalPages(total, params.Limit),
		Page:       params.Page,
		Limit:      params.Limit,
		Total:      total,
	}
	for _, row := range rows {
		out.Orders = append(out.Orders, ToDTO(row))
	}
	return out, nil
}

func (s *queryService) Get(ctx context.Context, orderID uuid.UUID) (*OrderDTO, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	dto := ToDTO(*order)
	return &dto, nil
}

func parseStatusFilter(raw string) (*enums.OrderStatus, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" || value == enums.OrderStatusFilterAll {
		return nil, nil
	}
	status, err := enums.ParseOrderStatus(value)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter").
			WithDetails(map[string]any{"status": raw})
	}
	return &status, nil
}

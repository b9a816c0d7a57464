package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

func TestQueryServiceListTotalPages(t *testing.T) {
	conn := setupOrdersTestDB(t)
	repo := NewRepository(conn)
	base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 23; i++ {
		seedOrder(t, repo, enums.OrderStatusPending, base.Add(time.Duration(i)*time.Second))
	}
	seedOrder(t, repo, enums.OrderStatusCancelled, base)

	svc, err := NewQueryService(repo, 10, 100)
	if err != nil {
		t.Fatalf("new query service: %v", err)
	}
	ctx := context.Background()

	list, err := svc.List(ctx, ListInput{Status: "pending", Page: 1, Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if list.TotalPages != 3 || list.Total != 23 || len(list.Orders) != 10 {
		t.Fatalf("unexpected page %+v", list)
	}
	for _, order := range list.Orders {
		if order.Status != enums.OrderStatusPending {
			t.Fatalf("filter leaked status %s", order.Status)
		}
	}

	beyond, err := svc.List(ctx, ListInput{Status: "pending", Page: 4, Limit: 10})
	if err != nil {
		t.Fatalf("page past the end must not error: %v", err)
	}
	if len(beyond.Orders) != 0 || beyond.TotalPages != 3 {
		t.Fatalf("expected empty page with totalPages 3, got %+v", beyond)
	}

	all, err := svc.List(ctx, ListInput{Status: "all"})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if all.Total != 24 || all.Page != 1 || all.Limit != 10 || all.TotalPages != 3 {
		t.Fatalf("unexpected defaults %+v", all)
	}
}

func TestQueryServiceListLimits(t *testing.T) {
	conn := setupOrdersTestDB(t)
	repo := NewRepository(conn)
	svc, err := NewQueryService(repo, 10, 100)
	if err != nil {
		t.Fatalf("new query service: %v", err)
	}

	base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 23; i++ {
		seedOrder(t, repo, enums.OrderStatusPending, base.Add(time.Duration(i)*time.Second))
	}

	small, err := svc.List(context.Background(), ListInput{Status: "all", Limit: 3})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if small.Limit != 3 || small.TotalPages != 8 || len(small.Orders) != 3 {
		t.Fatalf("expected limit 3 honored with 8 pages, got limit=%d totalPages=%d orders=%d", small.Limit, small.TotalPages, len(small.Orders))
	}

	single, err := svc.List(context.Background(), ListInput{Page: 23, Limit: 1})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if single.TotalPages != 23 || len(single.Orders) != 1 {
		t.Fatalf("expected one order on the last of 23 pages, got %+v", single)
	}

	large, err := svc.List(context.Background(), ListInput{Limit: 1000})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if large.Limit != 100 || large.TotalPages != 1 || len(large.Orders) != 23 {
		t.Fatalf("expected limit capped at 100, got %+v", large)
	}
}

func TestQueryServiceRejectsUnknownStatus(t *testing.T) {
	svc, err := NewQueryService(newStubOrdersRepo(), 0, 0)
	if err != nil {
		t.Fatalf("new query service: %v", err)
	}
	_, err = svc.List(context.Background(), ListInput{Status: "shipped"})
	if pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestQueryServiceGet(t *testing.T) {
	order := orderWithStatus(enums.OrderStatusApproved)
	svc, err := NewQueryService(newStubOrdersRepo(order), 0, 0)
	if err != nil {
		t.Fatalf("new query service: %v", err)
	}

	got, err := svc.Get(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != order.ID || got.Status != enums.OrderStatusApproved {
		t.Fatalf("unexpected order %+v", got)
	}

	_, err = svc.Get(context.Background(), uuid.New())
	if pkgerrors.CodeOf(err) != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

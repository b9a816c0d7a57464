package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	orders := `
CREATE TABLE orders (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  subtotal NUMERIC NOT NULL,
  discount NUMERIC NOT NULL DEFAULT 0,
  tax NUMERIC NOT NULL DEFAULT 0,
  total_price NUMERIC NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`
	orderItems := `
CREATE TABLE order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
  product_id TEXT NOT NULL,
  qty INTEGER NOT NULL,
  unit_price NUMERIC NOT NULL,
  previous_price NUMERIC,
  unit_tax NUMERIC NOT NULL DEFAULT 0,
  line_total NUMERIC NOT NULL,
  created_at DATETIME
);`
	require.NoError(t, conn.Exec(orders).Error)
	require.NoError(t, conn.Exec(orderItems).Error)
	return conn
}

func seedOrder(t *testing.T, repo Repository, status enums.OrderStatus, createdAt time.Time) models.Order {
	t.Helper()
	order := models.Order{
		UserID:     uuid.New(),
		Status:     status,
		Subtotal:   decimal.RequireFromString("240"),
		Discount:   decimal.RequireFromString("40"),
		Tax:        decimal.RequireFromString("10"),
		TotalPrice: decimal.RequireFromString("210"),
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
		Items: []models.OrderItem{{
			ProductID:     uuid.New(),
			Qty:           2,
			UnitPrice:     decimal.RequireFromString("100"),
			PreviousPrice: decimal.NewNullDecimal(decimal.RequireFromString("120")),
			UnitTax:       decimal.RequireFromString("5"),
			LineTotal:     decimal.RequireFromString("210"),
		}},
	}
	require.NoError(t, repo.Create(context.Background(), &order))
	return order
}

func TestRepositoryCreateAndFind(t *testing.T) {
	conn := setupOrdersTestDB(t)
	repo := NewRepository(conn)

	order := seedOrder(t, repo, enums.OrderStatusPending, time.Now().UTC())
	require.NotEqual(t, uuid.Nil, order.ID)

	found, err := repo.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, found.Status)
	require.Len(t, found.Items, 1)
	assert.Equal(t, order.ID, found.Items[0].OrderID)
	assert.True(t, found.Items[0].PreviousPrice.Valid)
	assert.True(t, found.TotalPrice.Equal(decimal.RequireFromString("210")))

	_, err = repo.FindByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositoryUpdateStatusIfCurrent(t *testing.T) {
	conn := setupOrdersTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	order := seedOrder(t, repo, enums.OrderStatusPending, time.Now().UTC().Add(-time.Hour))
	at := time.Now().UTC()

	rows, err := repo.UpdateStatusIfCurrent(ctx, order.ID, enums.OrderStatusPending, enums.OrderStatusApproved, at)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rows)

	// a second writer that still believes the order is pending loses
	rows, err = repo.UpdateStatusIfCurrent(ctx, order.ID, enums.OrderStatusPending, enums.OrderStatusCancelled, at)
	require.NoError(t, err)
	assert.EqualValues(t, 0, rows)

	found, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusApproved, found.Status)
	assert.WithinDuration(t, at, found.UpdatedAt, time.Second)
}

func TestRepositoryListPaginatesAndFilters(t *testing.T) {
	conn := setupOrdersTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 23; i++ {
		seedOrder(t, repo, enums.OrderStatusPending, base.Add(time.Duration(i)*time.Minute))
	}
	for i := 0; i < 4; i++ {
		seedOrder(t, repo, enums.OrderStatusApproved, base.Add(time.Duration(i)*time.Minute))
	}

	pending := enums.OrderStatusPending
	page, total, err := repo.List(ctx, &pending, pagination.Params{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 23, total)
	require.Len(t, page, 10)
	assert.True(t, page[0].CreatedAt.After(page[9].CreatedAt), "expected newest first")
	require.Len(t, page[0].Items, 1)

	last, _, err := repo.List(ctx, &pending, pagination.Params{Page: 3, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, last, 3)

	beyond, total, err := repo.List(ctx, &pending, pagination.Params{Page: 4, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, beyond)
	assert.EqualValues(t, 23, total)

	all, total, err := repo.List(ctx, nil, pagination.Params{Page: 1, Limit: 100})
	require.NoError(t, err)
	assert.EqualValues(t, 27, total)
	assert.Len(t, all, 27)
}

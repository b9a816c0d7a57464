package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

// Repository defines persistence operations for orders and their items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	// UpdateStatusIfCurrent applies to only when the stored status still equals from and
	// reports the number of rows changed.
	UpdateStatusIfCurrent(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, at time.Time) (int64, error)
	List(ctx context.Context, status *enums.OrderStatus, params pagination.Params) ([]models.Order, int64, error)
}

package cart

import "github.com/google/uuid"

type addItemRequest struct {
	ProductID uuid.UUID `json:"productId" validate:"required"`
	Qty       int       `json:"qty"`
}

type updateQtyRequest struct {
	Qty int `json:"qty"`
}

type stepQtyRequest struct {
	Delta int `json:"delta"`
}

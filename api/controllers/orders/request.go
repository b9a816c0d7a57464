package orders

type statusChangeRequest struct {
	Status         string  `json:"status" validate:"required"`
	ExpectedStatus *string `json:"expectedStatus"`
}

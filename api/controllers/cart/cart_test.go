package cart

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	cartsvc "github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type stubCartService struct {
	get    func(ctx context.Context, userID uuid.UUID) (*cartsvc.View, error)
	add    func(ctx context.Context, userID, productID uuid.UUID, qty int) (*cartsvc.View, error)
	update func(ctx context.Context, userID, productID uuid.UUID, qty int) (*cartsvc.View, error)
	step   func(ctx context.Context, userID, productID uuid.UUID, delta int) (*cartsvc.View, error)
	remove func(ctx context.Context, userID, productID uuid.UUID) (*cartsvc.View, error)
	clear  func(ctx context.Context, userID uuid.UUID) error
}

func (s *stubCartService) Get(ctx context.Context, userID uuid.UUID) (*cartsvc.View, error) {
	if s.get != nil {
		return s.get(ctx, userID)
	}
	return &cartsvc.View{UserID: userID}, nil
}

func (s *stubCartService) AddItem(ctx context.Context, userID, productID uuid.UUID, qty int) (*cartsvc.View, error) {
	if s.add != nil {
		return s.add(ctx, userID, productID, qty)
	}
	return &cartsvc.View{UserID: userID}, nil
}

func (s *stubCartService) UpdateQty(ctx context.Context, userID, productID uuid.UUID, qty int) (*cartsvc.View, error) {
	if s.update != nil {
		return s.update(ctx, userID, productID, qty)
	}
	return &cartsvc.View{UserID: userID}, nil
}

func (s *stubCartService) StepQty(ctx context.Context, userID, productID uuid.UUID, delta int) (*cartsvc.View, error) {
	if s.step != nil {
		return s.step(ctx, userID, productID, delta)
	}
	return &cartsvc.View{UserID: userID}, nil
}

func (s *stubCartService) RemoveItem(ctx context.Context, userID, productID uuid.UUID) (*cartsvc.View, error) {
	if s.remove != nil {
		return s.remove(ctx, userID, productID)
	}
	return &cartsvc.View{UserID: userID}, nil
}

func (s *stubCartService) Clear(ctx context.Context, userID uuid.UUID) error {
	if s.clear != nil {
		return s.clear(ctx, userID)
	}
	return nil
}

func newCartRouter(svc cartsvc.Service, actor *auth.Actor) http.Handler {
	r := chi.NewRouter()
	if actor != nil {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(middleware.WithActor(req.Context(), *actor)))
			})
		})
	}
	r.Get("/cart", CartFetch(svc, nil))
	r.Delete("/cart", CartClear(svc, nil))
	r.Post("/cart/items", CartAddItem(svc, nil))
	r.Put("/cart/items/{productId}", CartUpdateQty(svc, nil))
	r.Post("/cart/items/{productId}/step", CartStepQty(svc, nil))
	r.Delete("/cart/items/{productId}", CartRemoveItem(svc, nil))
	return r
}

func customer() *auth.Actor {
	return &auth.Actor{UserID: uuid.New(), Role: enums.UserRoleCustomer, EmailVerified: true}
}

func TestCartAddItemPassesBodyToService(t *testing.T) {
	actor := customer()
	productID := uuid.New()
	var gotUser, gotProduct uuid.UUID
	var gotQty int
	svc := &stubCartService{add: func(ctx context.Context, userID, pid uuid.UUID, qty int) (*cartsvc.View, error) {
		gotUser, gotProduct, gotQty = userID, pid, qty
		return &cartsvc.View{UserID: userID, Totals: pricing.Totals{}}, nil
	}}

	req := httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(`{"productId":"`+productID.String()+`","qty":3}`))
	resp := httptest.NewRecorder()
	newCartRouter(svc, actor).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if gotUser != actor.UserID || gotProduct != productID || gotQty != 3 {
		t.Fatalf("unexpected service input user=%s product=%s qty=%d", gotUser, gotProduct, gotQty)
	}
}

func TestCartAddItemRejectsMissingProduct(t *testing.T) {
	called := false
	svc := &stubCartService{add: func(ctx context.Context, userID, pid uuid.UUID, qty int) (*cartsvc.View, error) {
		called = true
		return nil, nil
	}}

	req := httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(`{"qty":3}`))
	resp := httptest.NewRecorder()
	newCartRouter(svc, customer()).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if called {
		t.Fatal("service must not run on invalid input")
	}
}

func TestCartMutationSurfacesQuantityRejection(t *testing.T) {
	productID := uuid.New()
	svc := &stubCartService{update: func(ctx context.Context, userID, pid uuid.UUID, qty int) (*cartsvc.View, error) {
		return nil, cartsvc.WrapQuantityError(&pricing.QuantityError{Reason: pricing.ReasonExceedsMaximum, Requested: qty, Allowed: 4}, pid)
	}}

	req := httptest.NewRequest(http.MethodPut, "/cart/items/"+productID.String(), strings.NewReader(`{"qty":9}`))
	resp := httptest.NewRecorder()
	newCartRouter(svc, customer()).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	var body struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != string(pkgerrors.CodeValidation) {
		t.Fatalf("unexpected code %s", body.Error.Code)
	}
	if body.Error.Details["reason"] != string(pricing.ReasonExceedsMaximum) || body.Error.Details["allowedQty"] != float64(4) {
		t.Fatalf("unexpected details %v", body.Error.Details)
	}
}

func TestCartStepQtyParsesDelta(t *testing.T) {
	productID := uuid.New()
	var gotDelta int
	svc := &stubCartService{step: func(ctx context.Context, userID, pid uuid.UUID, delta int) (*cartsvc.View, error) {
		gotDelta = delta
		return &cartsvc.View{UserID: userID}, nil
	}}

	req := httptest.NewRequest(http.MethodPost, "/cart/items/"+productID.String()+"/step", strings.NewReader(`{"delta":-1}`))
	resp := httptest.NewRecorder()
	newCartRouter(svc, customer()).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK || gotDelta != -1 {
		t.Fatalf("expected 200 with delta -1, got %d delta=%d", resp.Code, gotDelta)
	}
}

func TestCartRemoveItemRejectsBadProductID(t *testing.T) {
	req := httptest.NewRequest(http.MethodDelete, "/cart/items/not-a-uuid", nil)
	resp := httptest.NewRecorder()
	newCartRouter(&stubCartService{}, customer()).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCartClearReturnsNoContent(t *testing.T) {
	resp := httptest.NewRecorder()
	newCartRouter(&stubCartService{}, customer()).ServeHTTP(resp, httptest.NewRequest(http.MethodDelete, "/cart", nil))
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", resp.Code)
	}
}

func TestCartRequiresActor(t *testing.T) {
	resp := httptest.NewRecorder()
	newCartRouter(&stubCartService{}, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/cart", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

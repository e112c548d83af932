package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pricepulse/pricepulse/internal/middleware"
	"github.com/pricepulse/pricepulse/internal/model"
	"github.com/pricepulse/pricepulse/internal/tracking"
)

// --- モック定義 ---

// mockProductService はProductServiceInterfaceのモック実装。
type mockProductService struct {
	trackFn         func(ctx context.Context, ownerID, rawURL string) (*model.Product, error)
	getProductFn    func(ctx context.Context, ownerID, productID string) (*tracking.ProductDetail, error)
	listProductsFn  func(ctx context.Context, ownerID string) ([]*tracking.ProductSummary, error)
	deleteProductFn func(ctx context.Context, ownerID, productID string) error
}

func (m *mockProductService) Track(ctx context.Context, ownerID, rawURL string) (*model.Product, error) {
	if m.trackFn != nil {
		return m.trackFn(ctx, ownerID, rawURL)
	}
	return nil, nil
}

func (m *mockProductService) GetProduct(ctx context.Context, ownerID, productID string) (*tracking.ProductDetail, error) {
	if m.getProductFn != nil {
		return m.getProductFn(ctx, ownerID, productID)
	}
	return nil, nil
}

func (m *mockProductService) ListProducts(ctx context.Context, ownerID string) ([]*tracking.ProductSummary, error) {
	if m.listProductsFn != nil {
		return m.listProductsFn(ctx, ownerID)
	}
	return nil, nil
}

func (m *mockProductService) DeleteProduct(ctx context.Context, ownerID, productID string) error {
	if m.deleteProductFn != nil {
		return m.deleteProductFn(ctx, ownerID, productID)
	}
	return nil
}

// --- テストヘルパー ---

// withUserID はテスト用にリクエストコンテキストにユーザーIDを注入するヘルパー。
func withUserID(r *http.Request, userID string) *http.Request {
	ctx := middleware.ContextWithUserID(r.Context(), userID)
	return r.WithContext(ctx)
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

// testProduct はテスト用の商品を生成する。
func testProduct(id, ownerID string) *model.Product {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &model.Product{
		ID:           id,
		OwnerID:      ownerID,
		SourceURL:    "https://www.amazon.in/dp/B0EXAMPLE",
		Name:         "Wireless Earbuds Pro",
		ImageURL:     "https://images.example.com/earbuds.jpg",
		CurrentPrice: 2499,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// --- POST /api/products テスト ---

func TestProductHandler_Track_Success(t *testing.T) {
	svc := &mockProductService{
		trackFn: func(ctx context.Context, ownerID, rawURL string) (*model.Product, error) {
			if ownerID != "user-123" {
				t.Errorf("ownerID = %q, want %q", ownerID, "user-123")
			}
			if rawURL != "https://www.amazon.in/dp/B0EXAMPLE" {
				t.Errorf("rawURL = %q, want %q", rawURL, "https://www.amazon.in/dp/B0EXAMPLE")
			}
			return testProduct("prod-1", ownerID), nil
		},
	}

	h := NewProductHandler(svc)

	body := `{"url": "https://www.amazon.in/dp/B0EXAMPLE"}`
	req := httptest.NewRequest(http.MethodPost, "/api/products", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.Track(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	var got productResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.ID != "prod-1" {
		t.Errorf("id = %q, want %q", got.ID, "prod-1")
	}
	if got.Name != "Wireless Earbuds Pro" {
		t.Errorf("name = %q, want %q", got.Name, "Wireless Earbuds Pro")
	}
	if got.CurrentPrice != 2499 {
		t.Errorf("current_price = %v, want 2499", got.CurrentPrice)
	}
}

func TestProductHandler_Track_EmptyURL(t *testing.T) {
	trackCalled := false
	svc := &mockProductService{
		trackFn: func(ctx context.Context, ownerID, rawURL string) (*model.Product, error) {
			trackCalled = true
			return nil, nil
		},
	}

	h := NewProductHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/products", bytes.NewBufferString(`{"url": ""}`))
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.Track(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}
	if trackCalled {
		t.Error("空のURLではサービスを呼び出すべきではない")
	}

	body := parseAPIErrorResponse(t, w)
	if body["code"] != "INVALID_URL" {
		t.Errorf("code = %q, want %q", body["code"], "INVALID_URL")
	}
}

func TestProductHandler_Track_InvalidJSON(t *testing.T) {
	h := NewProductHandler(&mockProductService{})

	req := httptest.NewRequest(http.MethodPost, "/api/products", bytes.NewBufferString(`{not json`))
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.Track(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}

	body := parseAPIErrorResponse(t, w)
	if body["code"] != "INVALID_REQUEST" {
		t.Errorf("code = %q, want %q", body["code"], "INVALID_REQUEST")
	}
}

func TestProductHandler_Track_Unauthorized(t *testing.T) {
	h := NewProductHandler(&mockProductService{})

	req := httptest.NewRequest(http.MethodPost, "/api/products", bytes.NewBufferString(`{"url": "https://example.com"}`))
	w := httptest.NewRecorder()

	h.Track(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

// TestProductHandler_Track_ServiceErrors はサービス層のAPIErrorがHTTPステータスに
// 正しくマッピングされることを検証する。
func TestProductHandler_Track_ServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		serviceErr *model.APIError
		wantStatus int
		wantCode   string
	}{
		{"InvalidURL", model.NewInvalidURLError("bad"), http.StatusBadRequest, "INVALID_URL"},
		{"SSRFBlocked", model.NewSSRFBlockedError(), http.StatusForbidden, "SSRF_BLOCKED"},
		{"ScrapeFailed", model.NewScrapeFailedError("timeout"), http.StatusBadGateway, "SCRAPE_FAILED"},
		{"PriceNotFound", model.NewPriceNotFoundError(), http.StatusUnprocessableEntity, "PRICE_NOT_FOUND"},
		{"InvalidPrice", model.NewInvalidPriceError(), http.StatusUnprocessableEntity, "INVALID_PRICE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockProductService{
				trackFn: func(ctx context.Context, ownerID, rawURL string) (*model.Product, error) {
					return nil, tt.serviceErr
				},
			}

			h := NewProductHandler(svc)

			req := httptest.NewRequest(http.MethodPost, "/api/products", bytes.NewBufferString(`{"url": "https://example.com/item"}`))
			req = withUserID(req, "user-123")
			w := httptest.NewRecorder()

			h.Track(w, req)

			if w.Result().StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Result().StatusCode, tt.wantStatus)
			}

			body := parseAPIErrorResponse(t, w)
			if body["code"] != tt.wantCode {
				t.Errorf("code = %q, want %q", body["code"], tt.wantCode)
			}
		})
	}
}

// --- GET /api/products テスト ---

func TestProductHandler_ListProducts_Success(t *testing.T) {
	observed := time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)
	svc := &mockProductService{
		listProductsFn: func(ctx context.Context, ownerID string) ([]*tracking.ProductSummary, error) {
			return []*tracking.ProductSummary{
				{
					Product: testProduct("prod-1", ownerID),
					LatestSample: &model.PriceSample{
						ID:         "s-1",
						ProductID:  "prod-1",
						Price:      2499,
						ObservedAt: observed,
					},
				},
				// 観測点がまだ無い商品
				{Product: testProduct("prod-2", ownerID)},
			}, nil
		},
	}

	h := NewProductHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.ListProducts(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}

	var got []productListItemResponse
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(products) = %d, want 2", len(got))
	}
	if got[0].ID != "prod-1" || got[1].ID != "prod-2" {
		t.Errorf("product IDs = [%q, %q], want [prod-1, prod-2]", got[0].ID, got[1].ID)
	}
	if got[0].LastCheckedAt != "2025-06-02T09:30:00Z" {
		t.Errorf("last_checked_at = %q, want %q", got[0].LastCheckedAt, "2025-06-02T09:30:00Z")
	}
	// 観測点が無い場合はフィールドが省略される
	if got[1].LastCheckedAt != "" {
		t.Errorf("last_checked_at = %q, want empty", got[1].LastCheckedAt)
	}
}

func TestProductHandler_ListProducts_Empty(t *testing.T) {
	svc := &mockProductService{
		listProductsFn: func(ctx context.Context, ownerID string) ([]*tracking.ProductSummary, error) {
			return nil, nil
		},
	}

	h := NewProductHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.ListProducts(w, req)

	// 空の場合もnullではなく空配列を返す
	if body := w.Body.String(); body != "[]\n" {
		t.Errorf("body = %q, want %q", body, "[]\n")
	}
}

// --- GET /api/products/:id テスト ---

func TestProductHandler_GetProduct_WithHistory(t *testing.T) {
	observed1 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	observed2 := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	svc := &mockProductService{
		getProductFn: func(ctx context.Context, ownerID, productID string) (*tracking.ProductDetail, error) {
			if productID != "prod-1" {
				t.Errorf("productID = %q, want %q", productID, "prod-1")
			}
			return &tracking.ProductDetail{
				Product: testProduct("prod-1", ownerID),
				History: []*model.PriceSample{
					{ID: "s-1", ProductID: "prod-1", Price: 2799, ObservedAt: observed1},
					{ID: "s-2", ProductID: "prod-1", Price: 2499, ObservedAt: observed2},
				},
				Alerts: []*model.Alert{
					{ID: "alert-1", ProductID: "prod-1", TargetPrice: 2000, NotifyEmail: "user@example.com", CreatedAt: observed1},
				},
			}, nil
		},
	}

	h := NewProductHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/products/prod-1", nil)
	req = withUserID(req, "user-123")
	req = withChiURLParam(req, "id", "prod-1")
	w := httptest.NewRecorder()

	h.GetProduct(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}

	var got productDetailResponse
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(got.History) != 2 {
		t.Fatalf("len(history) = %d, want 2", len(got.History))
	}
	// 価格履歴は観測時刻の昇順
	if got.History[0].Price != 2799 || got.History[1].Price != 2499 {
		t.Errorf("history prices = [%v, %v], want [2799, 2499]", got.History[0].Price, got.History[1].Price)
	}
	if got.History[0].ObservedAt != "2025-06-01T10:00:00Z" {
		t.Errorf("observed_at = %q, want %q", got.History[0].ObservedAt, "2025-06-01T10:00:00Z")
	}
	if len(got.Alerts) != 1 {
		t.Fatalf("len(alerts) = %d, want 1", len(got.Alerts))
	}
	if got.Alerts[0].TargetPrice != 2000 {
		t.Errorf("target_price = %v, want 2000", got.Alerts[0].TargetPrice)
	}
}

func TestProductHandler_GetProduct_NotFound(t *testing.T) {
	svc := &mockProductService{
		getProductFn: func(ctx context.Context, ownerID, productID string) (*tracking.ProductDetail, error) {
			return nil, model.NewProductNotFoundError(productID)
		},
	}

	h := NewProductHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/products/no-such", nil)
	req = withUserID(req, "user-123")
	req = withChiURLParam(req, "id", "no-such")
	w := httptest.NewRecorder()

	h.GetProduct(w, req)

	if w.Result().StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNotFound)
	}

	body := parseAPIErrorResponse(t, w)
	if body["code"] != "PRODUCT_NOT_FOUND" {
		t.Errorf("code = %q, want %q", body["code"], "PRODUCT_NOT_FOUND")
	}
}

// --- DELETE /api/products/:id テスト ---

func TestProductHandler_DeleteProduct_Success(t *testing.T) {
	deletedID := ""
	svc := &mockProductService{
		deleteProductFn: func(ctx context.Context, ownerID, productID string) error {
			deletedID = productID
			return nil
		},
	}

	h := NewProductHandler(svc)

	req := httptest.NewRequest(http.MethodDelete, "/api/products/prod-1", nil)
	req = withUserID(req, "user-123")
	req = withChiURLParam(req, "id", "prod-1")
	w := httptest.NewRecorder()

	h.DeleteProduct(w, req)

	if w.Result().StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNoContent)
	}
	if deletedID != "prod-1" {
		t.Errorf("deleted productID = %q, want %q", deletedID, "prod-1")
	}
}

func TestProductHandler_DeleteProduct_NotFound(t *testing.T) {
	svc := &mockProductService{
		deleteProductFn: func(ctx context.Context, ownerID, productID string) error {
			return model.NewProductNotFoundError(productID)
		},
	}

	h := NewProductHandler(svc)

	req := httptest.NewRequest(http.MethodDelete, "/api/products/no-such", nil)
	req = withUserID(req, "user-123")
	req = withChiURLParam(req, "id", "no-such")
	w := httptest.NewRecorder()

	h.DeleteProduct(w, req)

	if w.Result().StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNotFound)
	}
}

package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pricepulse/pricepulse/internal/model"
	"github.com/pricepulse/pricepulse/internal/tracking"
)

// mockAlertService はAlertServiceInterfaceのモック実装。
type mockAlertService struct {
	registerAlertFn func(ctx context.Context, ownerID, productID string, targetPrice float64, email string) (*tracking.AlertOutcome, error)
	listAlertsFn    func(ctx context.Context, ownerID string) ([]*model.Alert, error)
	deleteAlertFn   func(ctx context.Context, ownerID, alertID string) error
}

func (m *mockAlertService) RegisterAlert(ctx context.Context, ownerID, productID string, targetPrice float64, email string) (*tracking.AlertOutcome, error) {
	if m.registerAlertFn != nil {
		return m.registerAlertFn(ctx, ownerID, productID, targetPrice, email)
	}
	return nil, nil
}

func (m *mockAlertService) ListAlerts(ctx context.Context, ownerID string) ([]*model.Alert, error) {
	if m.listAlertsFn != nil {
		return m.listAlertsFn(ctx, ownerID)
	}
	return nil, nil
}

func (m *mockAlertService) DeleteAlert(ctx context.Context, ownerID, alertID string) error {
	if m.deleteAlertFn != nil {
		return m.deleteAlertFn(ctx, ownerID, alertID)
	}
	return nil
}

// testAlert はテスト用のアラートを生成する。
func testAlert(id, productID string, targetPrice float64) *model.Alert {
	return &model.Alert{
		ID:          id,
		ProductID:   productID,
		OwnerID:     "user-123",
		TargetPrice: targetPrice,
		NotifyEmail: "user@example.com",
		CreatedAt:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

// --- POST /api/alerts テスト ---

func TestAlertHandler_RegisterAlert_Created(t *testing.T) {
	svc := &mockAlertService{
		registerAlertFn: func(ctx context.Context, ownerID, productID string, targetPrice float64, email string) (*tracking.AlertOutcome, error) {
			if ownerID != "user-123" {
				t.Errorf("ownerID = %q, want %q", ownerID, "user-123")
			}
			if productID != "prod-1" {
				t.Errorf("productID = %q, want %q", productID, "prod-1")
			}
			if targetPrice != 2000 {
				t.Errorf("targetPrice = %v, want 2000", targetPrice)
			}
			return &tracking.AlertOutcome{
				Alert: testAlert("alert-1", productID, targetPrice),
				Fired: false,
			}, nil
		},
	}

	h := NewAlertHandler(svc)

	body := `{"product_id": "prod-1", "target_price": 2000, "email": "user@example.com"}`
	req := httptest.NewRequest(http.MethodPost, "/api/alerts", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.RegisterAlert(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	var got registerAlertResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.Status != "created" {
		t.Errorf("status = %q, want %q", got.Status, "created")
	}
	if got.Alert.ID != "alert-1" {
		t.Errorf("alert.id = %q, want %q", got.Alert.ID, "alert-1")
	}
	if got.Alert.TargetPrice != 2000 {
		t.Errorf("alert.target_price = %v, want 2000", got.Alert.TargetPrice)
	}
}

// TestAlertHandler_RegisterAlert_CreatedAndFired は現在価格が既に目標以下の場合に
// status=created_and_firedが返ることを検証する。
func TestAlertHandler_RegisterAlert_CreatedAndFired(t *testing.T) {
	svc := &mockAlertService{
		registerAlertFn: func(ctx context.Context, ownerID, productID string, targetPrice float64, email string) (*tracking.AlertOutcome, error) {
			return &tracking.AlertOutcome{
				Alert: testAlert("alert-1", productID, targetPrice),
				Fired: true,
			}, nil
		},
	}

	h := NewAlertHandler(svc)

	body := `{"product_id": "prod-1", "target_price": 3000, "email": "user@example.com"}`
	req := httptest.NewRequest(http.MethodPost, "/api/alerts", bytes.NewBufferString(body))
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.RegisterAlert(w, req)

	if w.Result().StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusCreated)
	}

	var got registerAlertResponse
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.Status != "created_and_fired" {
		t.Errorf("status = %q, want %q", got.Status, "created_and_fired")
	}
}

func TestAlertHandler_RegisterAlert_EmptyProductID(t *testing.T) {
	registerCalled := false
	svc := &mockAlertService{
		registerAlertFn: func(ctx context.Context, ownerID, productID string, targetPrice float64, email string) (*tracking.AlertOutcome, error) {
			registerCalled = true
			return nil, nil
		},
	}

	h := NewAlertHandler(svc)

	body := `{"product_id": "", "target_price": 2000, "email": "user@example.com"}`
	req := httptest.NewRequest(http.MethodPost, "/api/alerts", bytes.NewBufferString(body))
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.RegisterAlert(w, req)

	if w.Result().StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNotFound)
	}
	if registerCalled {
		t.Error("商品IDが空の場合はサービスを呼び出すべきではない")
	}
}

// TestAlertHandler_RegisterAlert_ValidationErrors は検証エラーのステータスマッピングを検証する。
func TestAlertHandler_RegisterAlert_ValidationErrors(t *testing.T) {
	tests := []struct {
		name       string
		serviceErr *model.APIError
		wantStatus int
		wantCode   string
	}{
		{"InvalidTargetPrice", model.NewInvalidTargetPriceError(0), http.StatusBadRequest, "INVALID_TARGET_PRICE"},
		{"InvalidEmail", model.NewInvalidEmailError("not-an-email"), http.StatusBadRequest, "INVALID_EMAIL"},
		{"ProductNotFound", model.NewProductNotFoundError("prod-x"), http.StatusNotFound, "PRODUCT_NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockAlertService{
				registerAlertFn: func(ctx context.Context, ownerID, productID string, targetPrice float64, email string) (*tracking.AlertOutcome, error) {
					return nil, tt.serviceErr
				},
			}

			h := NewAlertHandler(svc)

			body := `{"product_id": "prod-x", "target_price": 1, "email": "x"}`
			req := httptest.NewRequest(http.MethodPost, "/api/alerts", bytes.NewBufferString(body))
			req = withUserID(req, "user-123")
			w := httptest.NewRecorder()

			h.RegisterAlert(w, req)

			if w.Result().StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Result().StatusCode, tt.wantStatus)
			}

			respBody := parseAPIErrorResponse(t, w)
			if respBody["code"] != tt.wantCode {
				t.Errorf("code = %q, want %q", respBody["code"], tt.wantCode)
			}
		})
	}
}

func TestAlertHandler_RegisterAlert_Unauthorized(t *testing.T) {
	h := NewAlertHandler(&mockAlertService{})

	body := `{"product_id": "prod-1", "target_price": 2000, "email": "user@example.com"}`
	req := httptest.NewRequest(http.MethodPost, "/api/alerts", bytes.NewBufferString(body))
	w := httptest.NewRecorder()

	h.RegisterAlert(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

// --- GET /api/alerts テスト ---

func TestAlertHandler_ListAlerts_Success(t *testing.T) {
	svc := &mockAlertService{
		listAlertsFn: func(ctx context.Context, ownerID string) ([]*model.Alert, error) {
			return []*model.Alert{
				testAlert("alert-1", "prod-1", 2000),
				testAlert("alert-2", "prod-2", 1500),
			}, nil
		},
	}

	h := NewAlertHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/alerts", nil)
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.ListAlerts(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}

	var got []alertResponse
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(alerts) = %d, want 2", len(got))
	}
	if got[0].ID != "alert-1" || got[1].ID != "alert-2" {
		t.Errorf("alert IDs = [%q, %q], want [alert-1, alert-2]", got[0].ID, got[1].ID)
	}
}

func TestAlertHandler_ListAlerts_Empty(t *testing.T) {
	svc := &mockAlertService{
		listAlertsFn: func(ctx context.Context, ownerID string) ([]*model.Alert, error) {
			return nil, nil
		},
	}

	h := NewAlertHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/alerts", nil)
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.ListAlerts(w, req)

	if body := w.Body.String(); body != "[]\n" {
		t.Errorf("body = %q, want %q", body, "[]\n")
	}
}

// --- DELETE /api/alerts/:id テスト ---

func TestAlertHandler_DeleteAlert_Success(t *testing.T) {
	deletedID := ""
	svc := &mockAlertService{
		deleteAlertFn: func(ctx context.Context, ownerID, alertID string) error {
			deletedID = alertID
			return nil
		},
	}

	h := NewAlertHandler(svc)

	req := httptest.NewRequest(http.MethodDelete, "/api/alerts/alert-1", nil)
	req = withUserID(req, "user-123")
	req = withChiURLParam(req, "id", "alert-1")
	w := httptest.NewRecorder()

	h.DeleteAlert(w, req)

	if w.Result().StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNoContent)
	}
	if deletedID != "alert-1" {
		t.Errorf("deleted alertID = %q, want %q", deletedID, "alert-1")
	}
}

func TestAlertHandler_DeleteAlert_NotFound(t *testing.T) {
	svc := &mockAlertService{
		deleteAlertFn: func(ctx context.Context, ownerID, alertID string) error {
			return model.NewAlertNotFoundError(alertID)
		},
	}

	h := NewAlertHandler(svc)

	req := httptest.NewRequest(http.MethodDelete, "/api/alerts/no-such", nil)
	req = withUserID(req, "user-123")
	req = withChiURLParam(req, "id", "no-such")
	w := httptest.NewRecorder()

	h.DeleteAlert(w, req)

	if w.Result().StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNotFound)
	}

	body := parseAPIErrorResponse(t, w)
	if body["code"] != "ALERT_NOT_FOUND" {
		t.Errorf("code = %q, want %q", body["code"], "ALERT_NOT_FOUND")
	}
}

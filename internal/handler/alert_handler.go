package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pricepulse/pricepulse/internal/middleware"
	"github.com/pricepulse/pricepulse/internal/model"
	"github.com/pricepulse/pricepulse/internal/tracking"
)

// AlertServiceInterface はアラートハンドラーが必要とするサービスインターフェース。
type AlertServiceInterface interface {
	// RegisterAlert はアラートを登録し、現在価格に対して即時評価する。
	RegisterAlert(ctx context.Context, ownerID, productID string, targetPrice float64, email string) (*tracking.AlertOutcome, error)
	// ListAlerts は所有者のアラート一覧を取得する。
	ListAlerts(ctx context.Context, ownerID string) ([]*model.Alert, error)
	// DeleteAlert はアラートを削除する。
	DeleteAlert(ctx context.Context, ownerID, alertID string) error
}

// AlertHandler は価格アラートのHTTPハンドラー。
type AlertHandler struct {
	service AlertServiceInterface
}

// NewAlertHandler はAlertHandlerを生成する。
func NewAlertHandler(service AlertServiceInterface) *AlertHandler {
	return &AlertHandler{service: service}
}

// registerAlertRequest はアラート登録リクエストのボディ。
type registerAlertRequest struct {
	ProductID   string  `json:"product_id"`
	TargetPrice float64 `json:"target_price"`
	Email       string  `json:"email"`
}

// alertResponse はアラート情報のAPIレスポンス。
type alertResponse struct {
	ID          string  `json:"id"`
	ProductID   string  `json:"product_id"`
	TargetPrice float64 `json:"target_price"`
	Email       string  `json:"email"`
	CreatedAt   string  `json:"created_at"`
}

// registerAlertResponse はアラート登録のAPIレスポンス。
// Statusは登録のみなら"created"、即時発火したなら"created_and_fired"。
type registerAlertResponse struct {
	Status string        `json:"status"`
	Alert  alertResponse `json:"alert"`
}

// RegisterAlert はアラート登録を処理する。
// POST /api/alerts
func (h *AlertHandler) RegisterAlert(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req registerAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	if req.ProductID == "" {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewProductNotFoundError(""))
		return
	}

	outcome, err := h.service.RegisterAlert(r.Context(), userID, req.ProductID, req.TargetPrice, req.Email)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	status := "created"
	if outcome.Fired {
		status = "created_and_fired"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(registerAlertResponse{
		Status: status,
		Alert:  toAlertResponse(outcome.Alert),
	})
}

// ListAlerts はアラート一覧を取得する。
// GET /api/alerts
func (h *AlertHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	alerts, err := h.service.ListAlerts(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]alertResponse, 0, len(alerts))
	for _, a := range alerts {
		responses = append(responses, toAlertResponse(a))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(responses)
}

// DeleteAlert はアラートを削除する。
// DELETE /api/alerts/:id
func (h *AlertHandler) DeleteAlert(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	alertID := chi.URLParam(r, "id")

	if err := h.service.DeleteAlert(r.Context(), userID, alertID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// toAlertResponse はmodel.AlertからAPIレスポンスに変換する。
func toAlertResponse(a *model.Alert) alertResponse {
	return alertResponse{
		ID:          a.ID,
		ProductID:   a.ProductID,
		TargetPrice: a.TargetPrice,
		Email:       a.NotifyEmail,
		CreatedAt:   a.CreatedAt.UTC().Format(time.RFC3339),
	}
}

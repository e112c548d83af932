// Package handler はHTTP APIハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pricepulse/pricepulse/internal/middleware"
	"github.com/pricepulse/pricepulse/internal/model"
	"github.com/pricepulse/pricepulse/internal/tracking"
)

// ProductServiceInterface は商品ハンドラーが必要とするサービスインターフェース。
type ProductServiceInterface interface {
	// Track はURLの商品をスクレイピングしてトラッキングを開始する。
	Track(ctx context.Context, ownerID, rawURL string) (*model.Product, error)
	// GetProduct は商品詳細を価格履歴付きで取得する。
	GetProduct(ctx context.Context, ownerID, productID string) (*tracking.ProductDetail, error)
	// ListProducts は所有者の商品一覧を最新の価格観測点付きで取得する。
	ListProducts(ctx context.Context, ownerID string) ([]*tracking.ProductSummary, error)
	// DeleteProduct は商品を削除する。
	DeleteProduct(ctx context.Context, ownerID, productID string) error
}

// ProductHandler は商品トラッキングのHTTPハンドラー。
type ProductHandler struct {
	service ProductServiceInterface
}

// NewProductHandler はProductHandlerを生成する。
func NewProductHandler(service ProductServiceInterface) *ProductHandler {
	return &ProductHandler{service: service}
}

// trackRequest は商品トラッキング開始リクエストのボディ。
type trackRequest struct {
	URL string `json:"url"`
}

// productResponse は商品情報のAPIレスポンス。
type productResponse struct {
	ID           string  `json:"id"`
	SourceURL    string  `json:"source_url"`
	Name         string  `json:"name"`
	ImageURL     string  `json:"image_url,omitempty"`
	CurrentPrice float64 `json:"current_price"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

// productListItemResponse は商品一覧のAPIレスポンス。
// last_checked_atは最新の価格観測時刻で、観測点が無い場合は省略される。
type productListItemResponse struct {
	productResponse
	LastCheckedAt string `json:"last_checked_at,omitempty"`
}

// priceSampleResponse は価格サンプルのAPIレスポンス。
type priceSampleResponse struct {
	Price      float64 `json:"price"`
	ObservedAt string  `json:"observed_at"`
}

// productDetailResponse は商品詳細のAPIレスポンス。価格履歴は観測時刻の昇順。
type productDetailResponse struct {
	productResponse
	History []priceSampleResponse `json:"history"`
	Alerts  []alertResponse       `json:"alerts"`
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// Track は商品トラッキングの開始を処理する。
// POST /api/products
func (h *ProductHandler) Track(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req trackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	if req.URL == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidURLError("URLが空です"))
		return
	}

	product, err := h.service.Track(r.Context(), userID, req.URL)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toProductResponse(product))
}

// ListProducts はトラッキング中の商品一覧を取得する。
// GET /api/products
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	summaries, err := h.service.ListProducts(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]productListItemResponse, 0, len(summaries))
	for _, sm := range summaries {
		item := productListItemResponse{productResponse: toProductResponse(sm.Product)}
		if sm.LatestSample != nil {
			item.LastCheckedAt = sm.LatestSample.ObservedAt.UTC().Format(time.RFC3339)
		}
		responses = append(responses, item)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(responses)
}

// GetProduct は商品詳細を価格履歴付きで取得する。
// GET /api/products/:id
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	productID := chi.URLParam(r, "id")

	detail, err := h.service.GetProduct(r.Context(), userID, productID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := productDetailResponse{
		productResponse: toProductResponse(detail.Product),
		History:         make([]priceSampleResponse, 0, len(detail.History)),
		Alerts:          make([]alertResponse, 0, len(detail.Alerts)),
	}
	for _, s := range detail.History {
		resp.History = append(resp.History, priceSampleResponse{
			Price:      s.Price,
			ObservedAt: s.ObservedAt.UTC().Format(time.RFC3339),
		})
	}
	for _, a := range detail.Alerts {
		resp.Alerts = append(resp.Alerts, toAlertResponse(a))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// DeleteProduct は商品のトラッキングを停止する。
// DELETE /api/products/:id
func (h *ProductHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	productID := chi.URLParam(r, "id")

	if err := h.service.DeleteProduct(r.Context(), userID, productID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- ヘルパー関数 ---

// toProductResponse はmodel.ProductからAPIレスポンスに変換する。
func toProductResponse(p *model.Product) productResponse {
	return productResponse{
		ID:           p.ID,
		SourceURL:    p.SourceURL,
		Name:         p.Name,
		ImageURL:     p.ImageURL,
		CurrentPrice: p.CurrentPrice,
		CreatedAt:    p.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    p.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// writeUnauthorized は未認証エラーレスポンスを書き込む。
func writeUnauthorized(w http.ResponseWriter) {
	writeAPIErrorResponse(w, http.StatusUnauthorized, &model.APIError{
		Code:     "UNAUTHORIZED",
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	})
}

// writeInvalidRequestBody はリクエストボディ解析エラーレスポンスを書き込む。
func writeInvalidRequestBody(w http.ResponseWriter) {
	writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	})
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidURL, model.ErrCodeInvalidTargetPrice, model.ErrCodeInvalidEmail:
		return http.StatusBadRequest
	case model.ErrCodeSSRFBlocked:
		return http.StatusForbidden
	case model.ErrCodeScrapeFailed:
		return http.StatusBadGateway
	case model.ErrCodePriceNotFound, model.ErrCodeInvalidPrice:
		return http.StatusUnprocessableEntity
	case model.ErrCodeProductNotFound, model.ErrCodeAlertNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

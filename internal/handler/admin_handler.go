package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pricepulse/pricepulse/internal/model"
	"github.com/pricepulse/pricepulse/internal/worker/sweep"
)

// SweepRunner は管理用スイープ実行のインターフェース。
type SweepRunner interface {
	// RunOnce は全商品のスイープを1回同期実行し、結果の集計を返す。
	RunOnce(ctx context.Context) (*sweep.Summary, error)
}

// AdminHandler は管理用APIのHTTPハンドラー。
type AdminHandler struct {
	runner SweepRunner
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(runner SweepRunner) *AdminHandler {
	return &AdminHandler{runner: runner}
}

// TriggerSweep は全商品のスイープを同期実行し、結果の集計を返す。
// バックグラウンドのスイープが実行中の場合は409を返す。
// POST /api/admin/sweep
func (h *AdminHandler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	summary, err := h.runner.RunOnce(r.Context())
	if err != nil {
		if errors.Is(err, sweep.ErrSweepInProgress) {
			writeAPIErrorResponse(w, http.StatusConflict, &model.APIError{
				Code:     "SWEEP_IN_PROGRESS",
				Message:  "スイープは既に実行中です。",
				Category: "system",
				Action:   "実行中のスイープの完了を待ってから再度お試しください。",
			})
			return
		}
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}

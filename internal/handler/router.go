package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pricepulse/pricepulse/internal/middleware"
)

// HealthChecker はヘルスチェック時にデータベース疎通を確認するインターフェース。
// *sql.DB が実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// SchedulerStatus はスイープスケジューラの稼働状態を報告するインターフェース。
// スケジューラを起動するのはworkerプロセスのみなので、
// serveモードのルーターではなくworkerのヘルスチェックで使う。
type SchedulerStatus interface {
	Running() bool
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// ヘルスチェック
	HealthChecker HealthChecker

	// 商品トラッキング
	ProductService ProductServiceInterface

	// アラート
	AlertService AlertServiceInterface

	// 管理用スイープ
	Sweeper SweepRunner
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Identity → RateLimit(General)
//
// リクエストログミドルウェアはapp側でルータ全体を包む形で適用される。
// /health はミドルウェアチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	productHandler := NewProductHandler(deps.ProductService)
	alertHandler := NewAlertHandler(deps.AlertService)
	adminHandler := NewAdminHandler(deps.Sweeper)

	// --- 認証不要のルート ---

	// ヘルスチェック（serveプロセスはスケジューラを持たないため状態は報告しない）
	r.Get("/health", HealthHandler(deps.HealthChecker, nil))

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Identity → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewIdentityMiddleware())
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 商品トラッキング
		r.Route("/api/products", func(r chi.Router) {
			// POST /api/products - トラッキング登録（登録専用レート制限を追加）
			r.With(deps.RateLimiter.TrackRegistrationMiddleware()).Post("/", productHandler.Track)

			r.Get("/", productHandler.ListProducts)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", productHandler.GetProduct)
				r.Delete("/", productHandler.DeleteProduct)
			})
		})

		// アラート管理
		r.Route("/api/alerts", func(r chi.Router) {
			r.Post("/", alertHandler.RegisterAlert)
			r.Get("/", alertHandler.ListAlerts)
			r.Delete("/{id}", alertHandler.DeleteAlert)
		})

		// 管理用スイープトリガー
		r.Post("/api/admin/sweep", adminHandler.TriggerSweep)
	})

	return r
}

// HealthHandler はヘルスチェックハンドラーを返す。
// GET /health
//
// データベース疎通を確認し、到達できない場合は503を返す。
// schedulerがnilでない場合（workerプロセス）はスイープスケジューラの
// 稼働状態も報告する。nilの場合schedulerフィールドは出力しない。
func HealthHandler(db HealthChecker, scheduler SchedulerStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{
				"status":   "unhealthy",
				"database": "disconnected",
			})
			return
		}

		body := map[string]string{
			"status":    "healthy",
			"database":  "connected",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}
		if scheduler != nil {
			if scheduler.Running() {
				body["scheduler"] = "running"
			} else {
				body["scheduler"] = "stopped"
			}
		}

		json.NewEncoder(w).Encode(body)
	}
}

// Package tracking は商品トラッキングとアラート登録のユースケースを提供する。
package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"time"

	"github.com/google/uuid"

	"github.com/pricepulse/pricepulse/internal/alert"
	"github.com/pricepulse/pricepulse/internal/metrics"
	"github.com/pricepulse/pricepulse/internal/model"
	"github.com/pricepulse/pricepulse/internal/notifier"
	"github.com/pricepulse/pricepulse/internal/repository"
	"github.com/pricepulse/pricepulse/internal/scraper"
)

// PriceExtractor は商品ページからの情報抽出のインターフェース。
type PriceExtractor interface {
	Extract(ctx context.Context, pageURL string) (*model.ScrapedProduct, error)
}

// URLValidator はトラッキング対象URLの検証インターフェース。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// Service は商品トラッキングとアラートのユースケースを実装する。
type Service struct {
	productRepo repository.ProductRepository
	sampleRepo  repository.PriceSampleRepository
	alertRepo   repository.AlertRepository
	extractor   PriceExtractor
	urlGuard    URLValidator
	sender      notifier.Sender
	collector   metrics.MetricsCollector
	logger      *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	productRepo repository.ProductRepository,
	sampleRepo repository.PriceSampleRepository,
	alertRepo repository.AlertRepository,
	extractor PriceExtractor,
	urlGuard URLValidator,
	sender notifier.Sender,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Service {
	return &Service{
		productRepo: productRepo,
		sampleRepo:  sampleRepo,
		alertRepo:   alertRepo,
		extractor:   extractor,
		urlGuard:    urlGuard,
		sender:      sender,
		collector:   collector,
		logger:      logger,
	}
}

// Track はURLを検証し、商品ページから情報を抽出して商品を登録する。
// 抽出に失敗した場合は商品も履歴も一切作成しない。
// 成功時は現在価格と最初の価格サンプルを同じ値で記録する。
func (s *Service) Track(ctx context.Context, ownerID, rawURL string) (*model.Product, error) {
	if err := s.urlGuard.ValidateURL(rawURL); err != nil {
		s.logger.Warn("トラッキングURLの検証に失敗しました",
			slog.String("owner_id", ownerID),
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		return nil, model.NewInvalidURLError(err.Error())
	}

	scraped, err := s.extractor.Extract(ctx, rawURL)
	if err != nil {
		s.collector.RecordScrapeFailure(extractFailureKind(err))
		s.logger.Error("商品情報の抽出に失敗しました",
			slog.String("owner_id", ownerID),
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		return nil, mapExtractError(err)
	}
	s.collector.RecordScrapeSuccess()

	now := time.Now().UTC()
	product := &model.Product{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		SourceURL:    rawURL,
		Name:         scraped.Name,
		ImageURL:     scraped.ImageURL,
		CurrentPrice: scraped.Price,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.productRepo.Create(ctx, product); err != nil {
		return nil, err
	}

	sample := &model.PriceSample{
		ID:         uuid.NewString(),
		ProductID:  product.ID,
		Price:      scraped.Price,
		ObservedAt: now,
	}
	if err := s.sampleRepo.Append(ctx, sample); err != nil {
		// 履歴の先頭サンプルを残せない場合は商品ごと取り消す。
		// 商品は常に1件以上のサンプルを持つという不変条件を守るため。
		if delErr := s.productRepo.Delete(ctx, product.ID); delErr != nil {
			s.logger.Error("商品作成の取り消しに失敗しました",
				slog.String("product_id", product.ID),
				slog.String("error", delErr.Error()),
			)
		}
		return nil, err
	}
	s.collector.RecordSampleAppended()

	s.logger.Info("商品のトラッキングを開始しました",
		slog.String("product_id", product.ID),
		slog.String("owner_id", ownerID),
		slog.String("name", product.Name),
		slog.Float64("price", product.CurrentPrice),
	)

	return product, nil
}

// ProductDetail は商品と価格履歴をまとめた詳細情報。
type ProductDetail struct {
	Product *model.Product
	History []*model.PriceSample
	Alerts  []*model.Alert
}

// GetProduct は商品詳細を価格履歴（観測時刻の昇順）付きで返す。
func (s *Service) GetProduct(ctx context.Context, ownerID, productID string) (*ProductDetail, error) {
	product, err := s.productRepo.FindByIDAndOwner(ctx, productID, ownerID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, model.NewProductNotFoundError(productID)
	}

	history, err := s.sampleRepo.ListByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	alerts, err := s.alertRepo.ListByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	return &ProductDetail{Product: product, History: history, Alerts: alerts}, nil
}

// ProductSummary は一覧表示用の商品と最新の価格観測点。
// LatestSampleのObservedAtが最後に価格を確認した時刻を表す。
type ProductSummary struct {
	Product      *model.Product
	LatestSample *model.PriceSample
}

// ListProducts は所有者のトラッキング中の商品一覧を最新の価格観測点付きで返す。
func (s *Service) ListProducts(ctx context.Context, ownerID string) ([]*ProductSummary, error) {
	products, err := s.productRepo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	summaries := make([]*ProductSummary, 0, len(products))
	for _, p := range products {
		latest, err := s.sampleRepo.LatestByProduct(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, &ProductSummary{Product: p, LatestSample: latest})
	}
	return summaries, nil
}

// DeleteProduct は商品を削除する。価格履歴とアラートも連動して削除される。
func (s *Service) DeleteProduct(ctx context.Context, ownerID, productID string) error {
	product, err := s.productRepo.FindByIDAndOwner(ctx, productID, ownerID)
	if err != nil {
		return err
	}
	if product == nil {
		return model.NewProductNotFoundError(productID)
	}

	if err := s.productRepo.Delete(ctx, productID); err != nil {
		return err
	}

	s.logger.Info("商品を削除しました",
		slog.String("product_id", productID),
		slog.String("owner_id", ownerID),
	)
	return nil
}

// AlertOutcome はアラート登録の結果。
// Firedがtrueの場合、アラートは登録直後に発火し既に削除されている。
type AlertOutcome struct {
	Alert *model.Alert
	Fired bool
}

// RegisterAlert はアラートを登録し、保存済みの現在価格に対して即時評価する。
// 現在価格が既に目標価格以下なら直ちに発火し、通知を試みた上で削除する。
// 即時評価では再スクレイピングは行わない。
func (s *Service) RegisterAlert(ctx context.Context, ownerID, productID string, targetPrice float64, email string) (*AlertOutcome, error) {
	if targetPrice <= 0 {
		return nil, model.NewInvalidTargetPriceError(targetPrice)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, model.NewInvalidEmailError(email)
	}

	product, err := s.productRepo.FindByIDAndOwner(ctx, productID, ownerID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, model.NewProductNotFoundError(productID)
	}

	a := &model.Alert{
		ID:          uuid.NewString(),
		ProductID:   productID,
		OwnerID:     ownerID,
		TargetPrice: targetPrice,
		NotifyEmail: email,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.alertRepo.Create(ctx, a); err != nil {
		return nil, err
	}

	evaluation := alert.Evaluate(product.CurrentPrice, []*model.Alert{a})
	if len(evaluation.Fired) == 0 {
		s.logger.Info("アラートを登録しました",
			slog.String("alert_id", a.ID),
			slog.String("product_id", productID),
			slog.Float64("target_price", targetPrice),
		)
		return &AlertOutcome{Alert: a, Fired: false}, nil
	}

	// 即時発火: 通知を試みてから、送信の成否に関わらず削除する。
	s.collector.RecordAlertFired()
	if s.sender.SendPriceAlert(ctx, a.NotifyEmail, product.Name, product.CurrentPrice, product.SourceURL) {
		s.collector.RecordNotificationSent()
	} else {
		s.collector.RecordNotificationFailed()
	}
	if err := s.alertRepo.Delete(ctx, a.ID); err != nil {
		return nil, err
	}

	s.logger.Info("アラートが登録直後に発火しました",
		slog.String("alert_id", a.ID),
		slog.String("product_id", productID),
		slog.Float64("target_price", targetPrice),
		slog.Float64("current_price", product.CurrentPrice),
	)

	return &AlertOutcome{Alert: a, Fired: true}, nil
}

// ListAlerts は所有者のアラート一覧を返す。
func (s *Service) ListAlerts(ctx context.Context, ownerID string) ([]*model.Alert, error) {
	return s.alertRepo.ListByOwner(ctx, ownerID)
}

// DeleteAlert はアラートを削除する。
func (s *Service) DeleteAlert(ctx context.Context, ownerID, alertID string) error {
	a, err := s.alertRepo.FindByIDAndOwner(ctx, alertID, ownerID)
	if err != nil {
		return err
	}
	if a == nil {
		return model.NewAlertNotFoundError(alertID)
	}

	if err := s.alertRepo.Delete(ctx, alertID); err != nil {
		return err
	}

	s.logger.Info("アラートを削除しました",
		slog.String("alert_id", alertID),
		slog.String("owner_id", ownerID),
	)
	return nil
}

// mapExtractError は抽出エラーをAPIエラーに変換する。
func mapExtractError(err error) *model.APIError {
	var extractErr *scraper.ExtractError
	if errors.As(err, &extractErr) {
		switch extractErr.Kind {
		case scraper.FailureNotFound:
			return model.NewPriceNotFoundError()
		case scraper.FailureInvalidPrice:
			return model.NewInvalidPriceError()
		case scraper.FailureUnreachable:
			return model.NewScrapeFailedError(fmt.Sprintf("ページを取得できませんでした: %s", extractErr.URL))
		}
	}
	return model.NewScrapeFailedError(err.Error())
}

// extractFailureKind はメトリクス用に抽出エラーの分類文字列を返す。
func extractFailureKind(err error) string {
	var extractErr *scraper.ExtractError
	if errors.As(err, &extractErr) {
		return string(extractErr.Kind)
	}
	return "unknown"
}

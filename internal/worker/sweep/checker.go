package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
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

// CheckResult は1商品分のチェック結果。
type CheckResult struct {
	// PriceUpdated は現在価格の更新とサンプル追記が行われたことを示す。
	PriceUpdated bool
	// AlertsFired は発火して削除されたアラートの数。
	AlertsFired int
}

// Checker は個別商品の価格チェックとアラート評価を行う。
// 抽出した新価格で現在価格を更新し、サンプルを追記した後に
// アラートを評価する。発火したアラートは通知の成否に関わらず削除する。
type Checker struct {
	productRepo repository.ProductRepository
	sampleRepo  repository.PriceSampleRepository
	alertRepo   repository.AlertRepository
	extractor   PriceExtractor
	sender      notifier.Sender
	collector   metrics.MetricsCollector
	logger      *slog.Logger
}

// NewChecker はCheckerの新しいインスタンスを生成する。
func NewChecker(
	productRepo repository.ProductRepository,
	sampleRepo repository.PriceSampleRepository,
	alertRepo repository.AlertRepository,
	extractor PriceExtractor,
	sender notifier.Sender,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Checker {
	return &Checker{
		productRepo: productRepo,
		sampleRepo:  sampleRepo,
		alertRepo:   alertRepo,
		extractor:   extractor,
		sender:      sender,
		collector:   collector,
		logger:      logger,
	}
}

// Check は1商品の価格チェックを実行する。
// 抽出に失敗した場合は商品の状態に一切触れずエラーを返す。
// 前回と同じ価格でも更新とサンプル追記は行う。
// 列挙からチェックまでの間に削除された商品は失敗とせずスキップする。
func (c *Checker) Check(ctx context.Context, product *model.Product) (CheckResult, error) {
	var result CheckResult

	// スイープ中に所有者が削除した商品への書き込みを避けるため取り直す
	current, err := c.productRepo.FindByID(ctx, product.ID)
	if err != nil {
		return result, err
	}
	if current == nil {
		c.logger.Info("商品が削除されていたためスキップします",
			slog.String("product_id", product.ID),
		)
		return result, nil
	}
	product = current

	scraped, err := c.extractor.Extract(ctx, product.SourceURL)
	if err != nil {
		c.collector.RecordScrapeFailure(failureKind(err))
		return result, fmt.Errorf("商品の価格チェックに失敗しました (product_id=%s): %w", product.ID, err)
	}
	c.collector.RecordScrapeSuccess()

	now := time.Now().UTC()

	// 書き込み順序: 現在価格の更新 → サンプル追記 → アラート処理
	if err := c.productRepo.UpdateCurrentPrice(ctx, product.ID, scraped.Price); err != nil {
		return result, err
	}

	sample := &model.PriceSample{
		ID:         uuid.NewString(),
		ProductID:  product.ID,
		Price:      scraped.Price,
		ObservedAt: now,
	}
	if err := c.sampleRepo.Append(ctx, sample); err != nil {
		return result, err
	}
	c.collector.RecordSampleAppended()
	result.PriceUpdated = true

	alerts, err := c.alertRepo.ListByProduct(ctx, product.ID)
	if err != nil {
		return result, err
	}

	evaluation := alert.Evaluate(scraped.Price, alerts)
	for _, a := range evaluation.Fired {
		c.collector.RecordAlertFired()

		// 通知を試みてから削除する。送信の失敗は発火を取り消さない。
		if c.sender.SendPriceAlert(ctx, a.NotifyEmail, product.Name, scraped.Price, product.SourceURL) {
			c.collector.RecordNotificationSent()
		} else {
			c.collector.RecordNotificationFailed()
		}

		if err := c.alertRepo.Delete(ctx, a.ID); err != nil {
			return result, err
		}
		result.AlertsFired++

		c.logger.Info("アラートが発火しました",
			slog.String("alert_id", a.ID),
			slog.String("product_id", product.ID),
			slog.Float64("target_price", a.TargetPrice),
			slog.Float64("new_price", scraped.Price),
		)
	}

	return result, nil
}

// failureKind はメトリクス用に抽出エラーの分類文字列を返す。
func failureKind(err error) string {
	var extractErr *scraper.ExtractError
	if errors.As(err, &extractErr) {
		return string(extractErr.Kind)
	}
	return "unknown"
}

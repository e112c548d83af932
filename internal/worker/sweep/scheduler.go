// Package sweep は全商品の定期価格スイープを提供する。
// スケジューラ、商品チェッカー、単一実行制御を含む。
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pricepulse/pricepulse/internal/metrics"
	"github.com/pricepulse/pricepulse/internal/model"
	"github.com/pricepulse/pricepulse/internal/repository"
)

// ErrSweepInProgress は別のスイープが実行中のため開始できなかったことを示す。
var ErrSweepInProgress = errors.New("スイープは既に実行中です")

// ProductChecker は個別商品チェックの実行インターフェース。
type ProductChecker interface {
	Check(ctx context.Context, product *model.Product) (CheckResult, error)
}

// Lock はスイープの単一実行をプロセスをまたいで保証するロックインターフェース。
// serveプロセスの管理用トリガーとworkerプロセスの定期スイープは
// 別プロセスで同じデータベースを対象とするため、プロセス内のmutexだけでは
// 同時スイープを防げない。取得できなかった場合はacquired=falseを返す。
type Lock interface {
	TryAcquire(ctx context.Context) (release func(), acquired bool, err error)
}

// Summary はスイープ1回分の結果集計。
type Summary struct {
	ProductsChecked int `json:"products_checked"`
	PricesUpdated   int `json:"prices_updated"`
	AlertsFired     int `json:"alerts_fired"`
	Failures        int `json:"failures"`
}

// Scheduler は価格スイープのスケジューリングと並列制御を行う。
// ティッカーで全商品スイープを起動し、semaphoreパターンで
// 最大並列数を制御しながら商品チェックを実行する。
// スイープの同時実行は常に1つに制限され、前回が終わらないうちに
// ティックが来た場合はそのスイープを省略する（遅延させない）。
type Scheduler struct {
	productRepo    repository.ProductRepository
	checker        ProductChecker
	collector      metrics.MetricsCollector
	lock           Lock
	logger         *slog.Logger
	maxConcurrency int

	// mu はプロセス内のスイープ単一実行を保証する。TryLockで取得できなければ省略。
	// プロセスをまたぐ単一実行はlockが保証する。
	mu sync.Mutex

	// running はStartによるティッカーループが稼働中かを示す。
	running atomic.Bool
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値5を使用する。
func NewScheduler(
	productRepo repository.ProductRepository,
	checker ProductChecker,
	collector metrics.MetricsCollector,
	lock Lock,
	logger *slog.Logger,
	maxConcurrency int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 5
	}
	return &Scheduler{
		productRepo:    productRepo,
		checker:        checker,
		collector:      collector,
		lock:           lock,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Running はStartによるティッカーループが稼働中かを返す。
// ヘルスチェックの状態報告に使用する。
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	s.running.Store(true)
	defer s.running.Store(false)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("スイープスケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	s.runScheduled(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("スイープスケジューラを停止しました")
			return
		case <-ticker.C:
			s.runScheduled(ctx)
		}
	}
}

// runScheduled はティック起点のスイープを実行する。省略と失敗はログに残す。
func (s *Scheduler) runScheduled(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil {
		if errors.Is(err, ErrSweepInProgress) {
			s.logger.Warn("前回のスイープが実行中のため今回は省略します")
			return
		}
		s.logger.Error("スイープの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// RunOnce は全商品のスイープを1回実行し、結果の集計を返す。
// 別のスイープが実行中の場合（他プロセスでの実行を含む）は
// ErrSweepInProgressを返して何もしない。
// 個別商品の失敗（panicを含む）は集計に記録し、他の商品のチェックは継続する。
func (s *Scheduler) RunOnce(ctx context.Context) (*Summary, error) {
	if !s.mu.TryLock() {
		s.collector.RecordSweepSkipped()
		return nil, ErrSweepInProgress
	}
	defer s.mu.Unlock()

	release, acquired, err := s.lock.TryAcquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("スイープロックの取得に失敗しました: %w", err)
	}
	if !acquired {
		s.collector.RecordSweepSkipped()
		return nil, ErrSweepInProgress
	}
	defer release()

	start := time.Now()
	s.collector.RecordSweep()

	products, err := s.productRepo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	summary := &Summary{ProductsChecked: len(products)}
	if len(products) == 0 {
		s.logger.Info("スイープ対象の商品はありません")
		s.collector.RecordSweepDuration(time.Since(start))
		return summary, nil
	}

	s.logger.Info("スイープを開始します",
		slog.Int("product_count", len(products)),
	)

	var pricesUpdated, alertsFired, failures atomic.Int64

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, product := range products {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(p *model.Product) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			// 1商品のpanicがスイープ全体を巻き込まないよう回復する
			defer func() {
				if r := recover(); r != nil {
					failures.Add(1)
					s.logger.Error("商品チェック中にpanicが発生しました",
						slog.String("product_id", p.ID),
						slog.Any("panic", r),
					)
				}
			}()

			result, err := s.checker.Check(ctx, p)
			if err != nil {
				failures.Add(1)
				s.logger.Error("商品チェックに失敗しました",
					slog.String("product_id", p.ID),
					slog.String("source_url", p.SourceURL),
					slog.String("error", err.Error()),
				)
				return
			}

			if result.PriceUpdated {
				pricesUpdated.Add(1)
			}
			alertsFired.Add(int64(result.AlertsFired))
		}(product)
	}

	wg.Wait()

	summary.PricesUpdated = int(pricesUpdated.Load())
	summary.AlertsFired = int(alertsFired.Load())
	summary.Failures = int(failures.Load())

	duration := time.Since(start)
	s.collector.RecordSweepDuration(duration)

	s.logger.Info("スイープが完了しました",
		slog.Int("products_checked", summary.ProductsChecked),
		slog.Int("prices_updated", summary.PricesUpdated),
		slog.Int("alerts_fired", summary.AlertsFired),
		slog.Int("failures", summary.Failures),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return summary, nil
}

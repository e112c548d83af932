package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/pricepulse/pricepulse/internal/model"
)

// SSRFValidator はSSRF検証のインターフェース。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// Sanitizer はスクレイピングしたテキストの無害化インターフェース。
type Sanitizer interface {
	Sanitize(s string) string
}

// Config は価格抽出のリトライ挙動とHTTP制限の設定。
type Config struct {
	// MaxAttempts は抽出の最大試行回数。
	MaxAttempts int
	// RetryDelay は試行間の固定待機時間。
	RetryDelay time.Duration
	// Timeout は1試行あたりのHTTPタイムアウト。
	Timeout time.Duration
	// MaxBodySize はレスポンスボディの最大読み取りサイズ（バイト）。
	MaxBodySize int64
}

// priceSelectors は商品ページから価格を探すCSSセレクタ。優先順に試す。
var priceSelectors = []string{
	".a-price .a-offscreen",
	"#priceblock_dealprice",
	"#priceblock_ourprice",
	"span.a-price-whole",
}

// imageSelectors は商品画像を探すCSSセレクタ。優先順に試す。
var imageSelectors = []string{
	"#imgTagWrapperId img",
	"#landingImage",
}

// Extractor は商品ページをフェッチして商品名・価格・画像URLを抽出する。
// 商品ページのレンダリングは不安定なため、固定間隔のリトライで
// 最大MaxAttempts回まで試行し、最後の試行の失敗分類を報告する。
type Extractor struct {
	ssrfGuard SSRFValidator
	sanitizer Sanitizer
	logger    *slog.Logger
	config    Config
}

// NewExtractor はExtractorの新しいインスタンスを生成する。
// MaxAttemptsが0以下の場合は1回試行する。
func NewExtractor(ssrfGuard SSRFValidator, sanitizer Sanitizer, logger *slog.Logger, config Config) *Extractor {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	return &Extractor{
		ssrfGuard: ssrfGuard,
		sanitizer: sanitizer,
		logger:    logger,
		config:    config,
	}
}

// Extract は商品ページから商品情報を抽出する。
// 試行が失敗した場合はRetryDelayだけ待って再試行する。コンテキストの
// キャンセルは待機中も即座に反映される。全試行が失敗した場合は
// 最後の試行のExtractErrorを返す。
func (e *Extractor) Extract(ctx context.Context, pageURL string) (*model.ScrapedProduct, error) {
	var lastErr *ExtractError

	for attempt := 1; attempt <= e.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(e.config.RetryDelay):
			}
		}

		result, err := e.attempt(ctx, pageURL)
		if err == nil {
			e.logger.Info("商品情報の抽出に成功しました",
				slog.String("url", pageURL),
				slog.Int("attempt", attempt),
				slog.Float64("price", result.Price),
			)
			return result, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		e.logger.Warn("商品情報の抽出試行に失敗しました",
			slog.String("url", pageURL),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", e.config.MaxAttempts),
			slog.String("kind", string(err.Kind)),
			slog.String("error", err.Error()),
		)
	}

	return nil, lastErr
}

// attempt は1回分の抽出試行を行う。
func (e *Extractor) attempt(ctx context.Context, pageURL string) (*model.ScrapedProduct, *ExtractError) {
	attemptCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	client := e.ssrfGuard.NewSafeClient(e.config.Timeout, e.config.MaxBodySize)
	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &ExtractError{Kind: FailureUnreachable, URL: pageURL, Err: err}
	}

	// ブラウザ相当のヘッダーを付けないと商品ページがボット向けの
	// 縮退レスポンスを返すことがある。
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := client.Do(req)
	if err != nil {
		return nil, &ExtractError{Kind: FailureUnreachable, URL: pageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ExtractError{
			Kind: FailureUnreachable,
			URL:  pageURL,
			Err:  fmt.Errorf("HTTPステータス %d", resp.StatusCode),
		}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, &ExtractError{Kind: FailureNotFound, URL: pageURL, Err: err}
	}

	name := e.sanitizer.Sanitize(doc.Find("#productTitle").First().Text())
	if name == "" {
		return nil, &ExtractError{
			Kind: FailureNotFound,
			URL:  pageURL,
			Err:  fmt.Errorf("商品名が見つかりません"),
		}
	}

	rawPrice := findFirstText(doc, priceSelectors)
	if rawPrice == "" {
		return nil, &ExtractError{
			Kind: FailureNotFound,
			URL:  pageURL,
			Err:  fmt.Errorf("価格要素が見つかりません"),
		}
	}

	price, err := ParsePrice(rawPrice)
	if err != nil {
		return nil, &ExtractError{Kind: FailureInvalidPrice, URL: pageURL, Err: err}
	}

	return &model.ScrapedProduct{
		Name:     name,
		ImageURL: findFirstImageSrc(doc, imageSelectors),
		Price:    price,
	}, nil
}

// findFirstText はセレクタを優先順に試し、最初に見つかった非空テキストを返す。
func findFirstText(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		if text := strings.TrimSpace(doc.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

// findFirstImageSrc はセレクタを優先順に試し、最初に見つかったsrc属性を返す。
// 画像は任意項目のため見つからなくてもエラーとしない。
func findFirstImageSrc(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		if src, ok := doc.Find(sel).First().Attr("src"); ok && strings.TrimSpace(src) != "" {
			return strings.TrimSpace(src)
		}
	}
	return ""
}

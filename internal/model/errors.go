// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, product, alert, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidURL         = "INVALID_URL"
	ErrCodeSSRFBlocked        = "SSRF_BLOCKED"
	ErrCodeScrapeFailed       = "SCRAPE_FAILED"
	ErrCodePriceNotFound      = "PRICE_NOT_FOUND"
	ErrCodeInvalidPrice       = "INVALID_PRICE"
	ErrCodeProductNotFound    = "PRODUCT_NOT_FOUND"
	ErrCodeAlertNotFound      = "ALERT_NOT_FOUND"
	ErrCodeInvalidTargetPrice = "INVALID_TARGET_PRICE"
	ErrCodeInvalidEmail       = "INVALID_EMAIL"
)

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "正しいURL形式（http:// または https:// で始まる商品ページのURL）を入力してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているマーケットプレイスの商品URLを入力してください。ローカルネットワークやプライベートIPへのアクセスは許可されていません。",
	}
}

// NewScrapeFailedError はスクレイピング失敗エラーを生成する。
// 商品ページへの到達失敗（ネットワークエラー、非2xx応答）を表す。
func NewScrapeFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeScrapeFailed,
		Message:  fmt.Sprintf("商品ページの取得に失敗しました: %s", reason),
		Category: "product",
		Action:   "URLが正しいか確認し、しばらく待ってから再度お試しください。",
	}
}

// NewPriceNotFoundError は価格未検出エラーを生成する。
// ページは取得できたが価格要素が見つからなかったことを表す。
func NewPriceNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodePriceNotFound,
		Message:  "商品ページから価格を検出できませんでした。",
		Category: "product",
		Action:   "対応しているマーケットプレイスの商品詳細ページのURLかどうか確認してください。",
	}
}

// NewInvalidPriceError は価格解析失敗エラーを生成する。
// 価格テキストは存在したが数値として解析できなかったことを表す。
func NewInvalidPriceError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPrice,
		Message:  "商品ページの価格表記を解析できませんでした。",
		Category: "product",
		Action:   "しばらく待ってから再度お試しください。問題が続く場合はURLを確認してください。",
	}
}

// NewProductNotFoundError は商品未検出エラーを生成する。
// 所有者が異なる場合もこのエラーを返す（存在の秘匿）。
func NewProductNotFoundError(productID string) *APIError {
	return &APIError{
		Code:     ErrCodeProductNotFound,
		Message:  fmt.Sprintf("指定された商品が見つかりません: %s", productID),
		Category: "product",
		Action:   "商品IDを確認してください。",
	}
}

// NewAlertNotFoundError はアラート未検出エラーを生成する。
// 所有者が異なる場合もこのエラーを返す（存在の秘匿）。
func NewAlertNotFoundError(alertID string) *APIError {
	return &APIError{
		Code:     ErrCodeAlertNotFound,
		Message:  fmt.Sprintf("指定されたアラートが見つかりません: %s", alertID),
		Category: "alert",
		Action:   "アラートIDを確認してください。",
	}
}

// NewInvalidTargetPriceError は無効な目標価格エラーを生成する。
func NewInvalidTargetPriceError(price float64) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTargetPrice,
		Message:  fmt.Sprintf("無効な目標価格です: %g", price),
		Category: "validation",
		Action:   "目標価格には0より大きい数値を指定してください。",
	}
}

// NewInvalidEmailError は無効なメールアドレスエラーを生成する。
func NewInvalidEmailError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEmail,
		Message:  fmt.Sprintf("無効なメールアドレスです: %s", email),
		Category: "validation",
		Action:   "正しい形式のメールアドレスを入力してください。",
	}
}

package scraper

import "fmt"

// FailureKind は価格抽出が失敗した理由の分類。
type FailureKind string

const (
	// FailureNotFound はページは取得できたが価格を特定できなかったことを示す。
	FailureNotFound FailureKind = "not_found"
	// FailureUnreachable はページ自体を取得できなかったことを示す。
	FailureUnreachable FailureKind = "unreachable"
	// FailureInvalidPrice は価格らしき文字列はあったが数値として不正だったことを示す。
	FailureInvalidPrice FailureKind = "invalid_price"
)

// ExtractError は価格抽出の失敗を分類付きで表す。
// 全試行が尽きた場合、最後の試行の分類が報告される。
type ExtractError struct {
	Kind FailureKind
	URL  string
	Err  error
}

func (e *ExtractError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("価格抽出に失敗しました (%s): %s: %v", e.Kind, e.URL, e.Err)
	}
	return fmt.Sprintf("価格抽出に失敗しました (%s): %s", e.Kind, e.URL)
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

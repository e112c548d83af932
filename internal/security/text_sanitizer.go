// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizerService はスクレイピングで取得した商品名などのテキストを
// サニタイズし、マークアップ混入によるXSSリスクからユーザーを保護する。
// マーケットプレイスの商品タイトル要素には装飾用のタグが混入することがあり、
// 保存前にすべてのHTMLタグを除去する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService はスクレイピング結果テキストのサニタイズ機能のインターフェースを定義する。
// 商品名の保存前に使用される。
type TextSanitizerService interface {
	// Sanitize はテキストからすべてのHTMLタグを除去し、
	// HTMLエンティティをデコードした上で前後の空白を取り除いて返す。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフにサニタイズ処理を行う。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyはすべてのタグと属性を除去し、テキストノードのみを通過させる。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はテキストからすべてのHTMLタグを除去して返す。
// bluemondayはタグ除去後にエンティティをエスケープした状態で返すため、
// 表示用プレーンテキストとしてUnescapeStringでデコードする。
func (s *textSanitizer) Sanitize(raw string) string {
	stripped := s.policy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(stripped))
}

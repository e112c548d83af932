package scraper

import (
	"fmt"
	"strconv"
	"strings"
)

// priceCleaner は価格文字列から通貨記号・桁区切り・空白を取り除く。
var priceCleaner = strings.NewReplacer(
	"₹", "",
	"$", "",
	"€", "",
	"£", "",
	",", "",
	" ", "",
	" ", "",
)

// ParsePrice は商品ページから抽出した価格文字列を数値に変換する。
// 通貨記号と桁区切りを取り除いた上でパースし、0以下の値はエラーとする。
func ParsePrice(raw string) (float64, error) {
	cleaned := priceCleaner.Replace(strings.TrimSpace(raw))
	cleaned = strings.TrimSuffix(cleaned, ".")
	if cleaned == "" {
		return 0, fmt.Errorf("価格文字列が空です: %q", raw)
	}

	price, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("価格のパースに失敗しました: %q: %w", raw, err)
	}
	if price <= 0 {
		return 0, fmt.Errorf("価格が正の値ではありません: %g", price)
	}

	return price, nil
}

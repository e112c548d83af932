// Package model はドメインモデルを定義する。
package model

import "time"

// Product は1ユーザーが追跡している1商品を表す。
// 商品の作成は初回スクレイピングの成功が前提であるため、
// CurrentPriceは常に最新の成功したPriceSampleの価格と一致する。
type Product struct {
	ID           string
	OwnerID      string
	SourceURL    string
	Name         string
	ImageURL     string
	CurrentPrice float64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PriceSample はある時点で観測された商品価格を表す。
// 追記専用であり、作成後に変更されることはない。
// 削除されるのはProductのCASCADE削除時のみ。
type PriceSample struct {
	ID         string
	ProductID  string
	Price      float64
	ObservedAt time.Time
}

// ScrapedProduct は商品ページから抽出された結果を表す。
type ScrapedProduct struct {
	Name     string
	ImageURL string
	Price    float64
}

// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/pricepulse/pricepulse/internal/model"
)

// ProductRepository は追跡商品データの永続化インターフェース。
type ProductRepository interface {
	// Create は商品を作成する。
	Create(ctx context.Context, product *model.Product) error

	// FindByID は指定IDの商品を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Product, error)

	// FindByIDAndOwner は指定IDかつ指定所有者の商品を取得する。
	// 見つからない場合（所有者が異なる場合を含む）はnilを返す。
	FindByIDAndOwner(ctx context.Context, id, ownerID string) (*model.Product, error)

	// ListByOwner は所有者の商品一覧をcreated_at降順で返す。
	ListByOwner(ctx context.Context, ownerID string) ([]*model.Product, error)

	// ListAll は全ユーザーの全商品を返す。スイープ専用（所有者を問わない）。
	ListAll(ctx context.Context) ([]*model.Product, error)

	// UpdateCurrentPrice は商品の現在価格を更新する。
	UpdateCurrentPrice(ctx context.Context, productID string, price float64) error

	// Delete は指定IDの商品を削除する。
	// 関連するprice_samples、alertsはCASCADE削除される。
	Delete(ctx context.Context, id string) error
}

// PriceSampleRepository は価格履歴データの永続化インターフェース。
// 履歴は追記専用であり、更新操作は提供しない。
type PriceSampleRepository interface {
	// Append は価格観測点を追加する。
	Append(ctx context.Context, sample *model.PriceSample) error

	// ListByProduct は商品の価格履歴をobserved_at昇順で返す。
	ListByProduct(ctx context.Context, productID string) ([]*model.PriceSample, error)

	// LatestByProduct は商品の最新の価格観測点を返す。
	// 観測点が存在しない場合はnilを返す。
	LatestByProduct(ctx context.Context, productID string) (*model.PriceSample, error)
}

// AlertRepository は価格アラートデータの永続化インターフェース。
// アラートは更新されない（作成と削除のみ）。
type AlertRepository interface {
	// Create はアラートを作成する。
	Create(ctx context.Context, alert *model.Alert) error

	// FindByIDAndOwner は指定IDかつ指定所有者のアラートを取得する。
	// 見つからない場合（所有者が異なる場合を含む）はnilを返す。
	FindByIDAndOwner(ctx context.Context, id, ownerID string) (*model.Alert, error)

	// ListByProduct は商品の全アラートをcreated_at昇順で返す。スイープで使用する。
	ListByProduct(ctx context.Context, productID string) ([]*model.Alert, error)

	// ListByOwner は所有者の全アラートをcreated_at降順で返す。
	ListByOwner(ctx context.Context, ownerID string) ([]*model.Alert, error)

	// Delete は指定IDのアラートを削除する。
	// 対象が存在しない場合もエラーにならない（冪等）。
	Delete(ctx context.Context, id string) error
}

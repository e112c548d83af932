package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pricepulse/pricepulse/internal/model"
)

// PostgresSampleRepo はPostgreSQLを使用した価格履歴リポジトリ。
type PostgresSampleRepo struct {
	db *sql.DB
}

// NewPostgresSampleRepo はPostgresSampleRepoを生成する。
func NewPostgresSampleRepo(db *sql.DB) *PostgresSampleRepo {
	return &PostgresSampleRepo{db: db}
}

// Append は価格サンプルを追記する。履歴は追記のみで更新・削除はしない。
func (r *PostgresSampleRepo) Append(ctx context.Context, sample *model.PriceSample) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO price_samples (id, product_id, price, observed_at)
		 VALUES ($1, $2, $3, $4)`,
		sample.ID, sample.ProductID, sample.Price, sample.ObservedAt,
	)
	if err != nil {
		return fmt.Errorf("価格サンプルの追記に失敗しました: %w", err)
	}
	return nil
}

// ListByProduct は指定商品の価格履歴をobserved_at昇順で返す。
func (r *PostgresSampleRepo) ListByProduct(ctx context.Context, productID string) ([]*model.PriceSample, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, product_id, price, observed_at
		 FROM price_samples WHERE product_id = $1 ORDER BY observed_at ASC, id ASC`,
		productID,
	)
	if err != nil {
		return nil, fmt.Errorf("価格履歴の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var samples []*model.PriceSample
	for rows.Next() {
		sample := &model.PriceSample{}
		if err := rows.Scan(&sample.ID, &sample.ProductID, &sample.Price, &sample.ObservedAt); err != nil {
			return nil, fmt.Errorf("価格サンプルの読み取りに失敗しました: %w", err)
		}
		samples = append(samples, sample)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("価格履歴の走査に失敗しました: %w", err)
	}

	return samples, nil
}

// LatestByProduct は指定商品の最新の価格サンプルを返す。見つからない場合はnilを返す。
func (r *PostgresSampleRepo) LatestByProduct(ctx context.Context, productID string) (*model.PriceSample, error) {
	sample := &model.PriceSample{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, product_id, price, observed_at
		 FROM price_samples WHERE product_id = $1 ORDER BY observed_at DESC, id DESC LIMIT 1`,
		productID,
	).Scan(&sample.ID, &sample.ProductID, &sample.Price, &sample.ObservedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("最新価格サンプルの取得に失敗しました: %w", err)
	}
	return sample, nil
}

// compile-time interface check
var _ PriceSampleRepository = (*PostgresSampleRepo)(nil)

package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pricepulse/pricepulse/internal/model"
)

// PostgresProductRepo はPostgreSQLを使用した商品リポジトリ。
type PostgresProductRepo struct {
	db *sql.DB
}

// NewPostgresProductRepo はPostgresProductRepoを生成する。
func NewPostgresProductRepo(db *sql.DB) *PostgresProductRepo {
	return &PostgresProductRepo{db: db}
}

const productColumns = `id, owner_id, source_url, name, image_url, current_price, created_at, updated_at`

// scanProduct は1行分の商品カラムをmodel.Productに読み取る。
func scanProduct(row interface{ Scan(...any) error }) (*model.Product, error) {
	product := &model.Product{}
	var imageURL sql.NullString

	err := row.Scan(
		&product.ID, &product.OwnerID, &product.SourceURL, &product.Name,
		&imageURL, &product.CurrentPrice, &product.CreatedAt, &product.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	product.ImageURL = nullStringValue(imageURL)
	return product, nil
}

// Create は商品を作成する。
func (r *PostgresProductRepo) Create(ctx context.Context, product *model.Product) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO products (id, owner_id, source_url, name, image_url, current_price, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		product.ID, product.OwnerID, product.SourceURL, product.Name,
		nullString(product.ImageURL), product.CurrentPrice,
		product.CreatedAt, product.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("商品の作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDの商品を取得する。見つからない場合はnilを返す。
func (r *PostgresProductRepo) FindByID(ctx context.Context, id string) (*model.Product, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id)

	product, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("商品の取得に失敗しました: %w", err)
	}
	return product, nil
}

// FindByIDAndOwner は指定IDかつ指定所有者の商品を取得する。見つからない場合はnilを返す。
func (r *PostgresProductRepo) FindByIDAndOwner(ctx context.Context, id, ownerID string) (*model.Product, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1 AND owner_id = $2`, id, ownerID)

	product, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("商品の取得に失敗しました: %w", err)
	}
	return product, nil
}

// ListByOwner は所有者の商品一覧をcreated_at降順で返す。
func (r *PostgresProductRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.Product, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE owner_id = $1 ORDER BY created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("商品一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectProducts(rows)
}

// ListAll は全ユーザーの全商品をcreated_at昇順で返す。スイープ専用。
func (r *PostgresProductRepo) ListAll(ctx context.Context) ([]*model.Product, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("全商品の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectProducts(rows)
}

// collectProducts はクエリ結果の全行を読み取る。
func collectProducts(rows *sql.Rows) ([]*model.Product, error) {
	var products []*model.Product
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("商品の読み取りに失敗しました: %w", err)
		}
		products = append(products, product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("商品の走査に失敗しました: %w", err)
	}

	return products, nil
}

// UpdateCurrentPrice は商品の現在価格を更新する。
func (r *PostgresProductRepo) UpdateCurrentPrice(ctx context.Context, productID string, price float64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE products SET current_price = $2, updated_at = now() WHERE id = $1`,
		productID, price,
	)
	if err != nil {
		return fmt.Errorf("現在価格の更新に失敗しました: %w", err)
	}
	return nil
}

// Delete は指定IDの商品を削除する。
// price_samples、alertsは外部キーのCASCADEで自動的に削除される。
func (r *PostgresProductRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("商品の削除に失敗しました: %w", err)
	}
	return nil
}

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// compile-time interface check
var _ ProductRepository = (*PostgresProductRepo)(nil)

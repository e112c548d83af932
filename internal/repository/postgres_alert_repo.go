package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pricepulse/pricepulse/internal/model"
)

// PostgresAlertRepo はPostgreSQLを使用したアラートリポジトリ。
type PostgresAlertRepo struct {
	db *sql.DB
}

// NewPostgresAlertRepo はPostgresAlertRepoを生成する。
func NewPostgresAlertRepo(db *sql.DB) *PostgresAlertRepo {
	return &PostgresAlertRepo{db: db}
}

const alertColumns = `id, product_id, owner_id, target_price, notify_email, created_at`

// Create はアラートを作成する。
func (r *PostgresAlertRepo) Create(ctx context.Context, alert *model.Alert) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO alerts (id, product_id, owner_id, target_price, notify_email, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		alert.ID, alert.ProductID, alert.OwnerID, alert.TargetPrice,
		alert.NotifyEmail, alert.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("アラートの作成に失敗しました: %w", err)
	}
	return nil
}

// FindByIDAndOwner は指定IDかつ指定所有者のアラートを取得する。見つからない場合はnilを返す。
func (r *PostgresAlertRepo) FindByIDAndOwner(ctx context.Context, id, ownerID string) (*model.Alert, error) {
	alert := &model.Alert{}
	err := r.db.QueryRowContext(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE id = $1 AND owner_id = $2`, id, ownerID,
	).Scan(&alert.ID, &alert.ProductID, &alert.OwnerID, &alert.TargetPrice,
		&alert.NotifyEmail, &alert.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("アラートの取得に失敗しました: %w", err)
	}
	return alert, nil
}

// ListByProduct は指定商品のアラート一覧をcreated_at昇順で返す。
// スイープ時の評価順を登録順に揃えるため昇順とする。
func (r *PostgresAlertRepo) ListByProduct(ctx context.Context, productID string) ([]*model.Alert, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE product_id = $1 ORDER BY created_at ASC, id ASC`,
		productID,
	)
	if err != nil {
		return nil, fmt.Errorf("アラート一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectAlerts(rows)
}

// ListByOwner は所有者のアラート一覧をcreated_at降順で返す。
func (r *PostgresAlertRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.Alert, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE owner_id = $1 ORDER BY created_at DESC, id DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("アラート一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectAlerts(rows)
}

// collectAlerts はクエリ結果の全行を読み取る。
func collectAlerts(rows *sql.Rows) ([]*model.Alert, error) {
	var alerts []*model.Alert
	for rows.Next() {
		alert := &model.Alert{}
		err := rows.Scan(&alert.ID, &alert.ProductID, &alert.OwnerID,
			&alert.TargetPrice, &alert.NotifyEmail, &alert.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("アラートの読み取りに失敗しました: %w", err)
		}
		alerts = append(alerts, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("アラートの走査に失敗しました: %w", err)
	}

	return alerts, nil
}

// Delete は指定IDのアラートを削除する。既に存在しない場合もエラーとしない。
func (r *PostgresAlertRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM alerts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("アラートの削除に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ AlertRepository = (*PostgresAlertRepo)(nil)

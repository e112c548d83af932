package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// sweepAdvisoryLockID はスイープ用advisory lockのキー。
// 全プロセスで同じ値を使うことでデータベース単位の排他になる。
const sweepAdvisoryLockID int64 = 727542

// PostgresSweepLock はPostgreSQLのadvisory lockによるスイープ排他ロック。
// advisory lockはセッション単位のため、取得から解放まで同じ接続を保持する。
type PostgresSweepLock struct {
	db *sql.DB
}

// NewPostgresSweepLock はPostgresSweepLockを生成する。
func NewPostgresSweepLock(db *sql.DB) *PostgresSweepLock {
	return &PostgresSweepLock{db: db}
}

// TryAcquire はスイープロックの取得を試みる。待機はしない。
// 取得できた場合はロックを解放するrelease関数を返す。
// 他のセッションが保持している場合はacquired=falseを返す。
func (l *PostgresSweepLock) TryAcquire(ctx context.Context) (func(), bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("スイープロック用の接続取得に失敗しました: %w", err)
	}

	var acquired bool
	err = conn.QueryRowContext(ctx,
		`SELECT pg_try_advisory_lock($1)`, sweepAdvisoryLockID,
	).Scan(&acquired)
	if err != nil {
		conn.Close()
		return nil, false, fmt.Errorf("スイープロックの取得に失敗しました: %w", err)
	}
	if !acquired {
		conn.Close()
		return nil, false, nil
	}

	release := func() {
		// 呼び出し元のコンテキストがキャンセル済みでも解放できるよう、
		// 独立したタイムアウト付きコンテキストで解放する
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_, _ = conn.ExecContext(releaseCtx,
			`SELECT pg_advisory_unlock($1)`, sweepAdvisoryLockID,
		)
		conn.Close()
	}
	return release, true, nil
}

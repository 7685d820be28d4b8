package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/wikirc/internal/model"
)

// PostgresHistoryRepo はPostgreSQLを使用したhistoryリポジトリ。
// 呼び出しごとにプールから一時的に接続を取得し、ステートメント実行後
// ただちに解放する（database/sqlのプール挙動に委譲する）。
type PostgresHistoryRepo struct {
	db *sql.DB
}

// NewPostgresHistoryRepo はPostgresHistoryRepoを生成する。
func NewPostgresHistoryRepo(db *sql.DB) *PostgresHistoryRepo {
	return &PostgresHistoryRepo{db: db}
}

// Insert は適格イベント1件をhistoryテーブルに1行挿入する。
// 常にパラメータ化ステートメントを使用する（文字列連結SQLは使わない）。
func (r *PostgresHistoryRepo) Insert(ctx context.Context, record *model.Record) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO history (lang, artnum, event, creation, type, title)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		record.Lang,
		record.ArticleCount,
		record.EventTime.UTC(),
		record.CreationTime.UTC(),
		string(record.Type),
		record.Title,
	)
	if err != nil {
		return fmt.Errorf("historyレコードの挿入に失敗しました: %w", err)
	}

	return nil
}

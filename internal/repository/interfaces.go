// Package repository はデータ永続化層のインターフェースと実装を提供する。
package repository

import (
	"context"

	"github.com/hitoshi/wikirc/internal/model"
)

// HistoryRepository は記録済みイベントのリポジトリ。
// historyテーブルは追記専用で、更新・削除の経路は提供しない。
// 重複排除も行わない（同じ行を2回処理すれば2行記録される）。
type HistoryRepository interface {
	// Insert は適格イベント1件をhistoryテーブルに1行挿入する。
	Insert(ctx context.Context, record *model.Record) error
}

// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"strings"
	"time"
)

// NamespaceMain は標準（記事）名前空間の番号。
const NamespaceMain = 0

// EventType は記録対象イベントの種別を表す1文字コード。
type EventType string

const (
	// EventTypeArticle は新規記事の作成イベントを示す。
	EventTypeArticle EventType = "A"
	// EventTypeMove は標準名前空間への移動イベントを示す。
	EventTypeMove EventType = "M"
)

// EditCandidate は編集形式の行から抽出した候補イベント。
// FlagsとSummaryはマッチした時点で常に存在する（空文字列はあり得るがnilはない）。
type EditCandidate struct {
	Page      string
	Flags     string // 1文字コードの並び。'N'は新規ページ、'm'はマイナー編集
	URL       string
	User      string
	ByteDelta int
	Summary   string
}

// IsNewPage はフラグに新規ページマーカー'N'が含まれるかを返す。
func (e *EditCandidate) IsNewPage() bool {
	return strings.ContainsRune(e.Flags, 'N')
}

// MoveCandidate は移動形式の行から抽出した候補イベント。
type MoveCandidate struct {
	Page     string
	FromPage string
	ToPage   string
	Action   string
	User     string
	// Summary は行末の要約セグメント。元の行に要約が無い場合はnilとし、
	// 空文字列の要約と区別する。
	Summary *string
}

// Classification は1行の分類結果を表すタグ付きユニオン。
// EditとMoveのどちらか一方のみが非nilになる。両方nilの場合は
// イベントではない行（チャンネルの無関係なトラフィック）を意味する。
type Classification struct {
	Edit *EditCandidate
	Move *MoveCandidate
}

// IsEvent は行がどちらかのパターンにマッチしたかを返す。
func (c Classification) IsEvent() bool {
	return c.Edit != nil || c.Move != nil
}

// TimeLayout はログシンクとトレース出力で使うタイムスタンプ表現。
// 秒精度・UTC固定。
const TimeLayout = "2006-01-02 15:04:05"

// Record は永続化する唯一のエンティティ。
// 適格イベント1件につきログ1行とhistoryテーブル1行の両方がこの値から
// 生成される。永続化後は不変の追記専用データで、更新・削除経路は持たない。
type Record struct {
	Lang         string
	ArticleCount int
	EventTime    time.Time // 分類時点で1回だけ捕捉するUTC時刻
	CreationTime time.Time // ページの最古リビジョンのUTC時刻
	Type         EventType
	Title        string
}

// LogLine はログシンク1行分（改行なし）の表現を返す。
// フィールド順は artnum;event;creation;type;title で固定。
func (r *Record) LogLine() string {
	return fmt.Sprintf("%d;%s;%s;%s;%s",
		r.ArticleCount,
		r.EventTime.UTC().Format(TimeLayout),
		r.CreationTime.UTC().Format(TimeLayout),
		r.Type,
		r.Title,
	)
}

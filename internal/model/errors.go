// Package model はドメインモデルを定義する。
package model

import "fmt"

// PipelineError はパイプライン内の失敗を統一フォーマットで表す。
// どの段階で落ちたかを保持し、オペレーター通知とログの両方で使う。
// すべての失敗はプロセスに対して非致命的で、次の行の処理は継続する。
type PipelineError struct {
	Code    string // エラーコード
	Message string // エラーメッセージ
	Stage   string // 段階: lookup, enrich, persist
}

// Error はerrorインターフェースを実装する。
func (e *PipelineError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodePageMissing     = "PAGE_MISSING"
	ErrCodeLookupFailed    = "LOOKUP_FAILED"
	ErrCodeStatsFetch      = "STATS_FETCH_FAILED"
	ErrCodeStatsParse      = "STATS_PARSE_FAILED"
	ErrCodeRevisionMissing = "REVISION_MISSING"
	ErrCodeLogWriteFailed  = "LOG_WRITE_FAILED"
	ErrCodeInsertFailed    = "INSERT_FAILED"
)

// NewPageMissingError は参照されたタイトルがwiki上に存在しない場合のエラーを生成する。
// 名前空間0のセンチネルを返すのではなく、明示的に失敗させる。
func NewPageMissingError(title string) *PipelineError {
	return &PipelineError{
		Code:    ErrCodePageMissing,
		Message: fmt.Sprintf("ページが見つかりません: %s", title),
		Stage:   "lookup",
	}
}

// NewLookupFailedError はページメタデータの取得失敗エラーを生成する。
func NewLookupFailedError(title string, err error) *PipelineError {
	return &PipelineError{
		Code:    ErrCodeLookupFailed,
		Message: fmt.Sprintf("ページメタデータの取得に失敗しました: %s: %v", title, err),
		Stage:   "lookup",
	}
}

// NewStatsFetchError はサイト統計エンドポイントの呼び出し失敗エラーを生成する。
func NewStatsFetchError(err error) *PipelineError {
	return &PipelineError{
		Code:    ErrCodeStatsFetch,
		Message: fmt.Sprintf("サイト統計の取得に失敗しました: %v", err),
		Stage:   "enrich",
	}
}

// NewStatsParseError はサイト統計レスポンスから記事数を抽出できない場合のエラーを生成する。
func NewStatsParseError(reason string) *PipelineError {
	return &PipelineError{
		Code:    ErrCodeStatsParse,
		Message: fmt.Sprintf("サイト統計レスポンスの解析に失敗しました: %s", reason),
		Stage:   "enrich",
	}
}

// NewRevisionMissingError は最古リビジョンが取得できない場合のエラーを生成する。
func NewRevisionMissingError(title string) *PipelineError {
	return &PipelineError{
		Code:    ErrCodeRevisionMissing,
		Message: fmt.Sprintf("最古リビジョンが取得できません: %s", title),
		Stage:   "enrich",
	}
}

// NewLogWriteError はログシンクへの追記失敗エラーを生成する。
func NewLogWriteError(path string, err error) *PipelineError {
	return &PipelineError{
		Code:    ErrCodeLogWriteFailed,
		Message: fmt.Sprintf("ログファイルへの追記に失敗しました: %s: %v", path, err),
		Stage:   "persist",
	}
}

// NewInsertError はhistoryテーブルへのINSERT失敗エラーを生成する。
func NewInsertError(err error) *PipelineError {
	return &PipelineError{
		Code:    ErrCodeInsertFailed,
		Message: fmt.Sprintf("historyテーブルへのINSERTに失敗しました: %v", err),
		Stage:   "persist",
	}
}

// Package recorder は適格イベントの二重永続化を提供する。
// 1イベントにつきログファイルへの追記1行とhistoryテーブルへの挿入1行を行う。
package recorder

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hitoshi/wikirc/internal/model"
	"github.com/hitoshi/wikirc/internal/repository"
)

// LogPath は言語コードから導出されるログシンクのパスを返す。
func LogPath(dir, lang string) string {
	return filepath.Join(dir, "artnos"+lang+".log")
}

// Recorder はログシンクとリレーショナルシンクへの書き込みを行う。
type Recorder struct {
	logPath string
	repo    repository.HistoryRepository
	logger  *slog.Logger
}

// New はRecorderの新しいインスタンスを生成する。
func New(logPath string, repo repository.HistoryRepository, logger *slog.Logger) *Recorder {
	return &Recorder{
		logPath: logPath,
		repo:    repo,
		logger:  logger,
	}
}

// Record は1件の適格イベントを両方のシンクへ書き込む。
// ログ追記をDB挿入より先に実行する。2つの効果はトランザクションで
// 束ねず、片方だけ成功する部分完了はあり得る（既知の整合性ギャップと
// して受け入れ、自動リトライはしない）。失敗はまとめて返し、呼び出し元
// がオペレーター通知を行う。
func (r *Recorder) Record(ctx context.Context, record *model.Record) error {
	var logErr, dbErr error

	if err := r.appendLogLine(record); err != nil {
		logErr = model.NewLogWriteError(r.logPath, err)
		r.logger.Error("ログシンクへの追記に失敗しました",
			slog.String("path", r.logPath),
			slog.String("title", record.Title),
			slog.String("error", err.Error()),
		)
	}

	// ログ追記の成否に関わらずDB挿入は試みる（2つの効果は独立）。
	if err := r.repo.Insert(ctx, record); err != nil {
		dbErr = model.NewInsertError(err)
		r.logger.Error("リレーショナルシンクへの挿入に失敗しました",
			slog.String("title", record.Title),
			slog.String("error", err.Error()),
		)
	}

	return errors.Join(logErr, dbErr)
}

// appendLogLine はログファイルを開き、1行追記して閉じる。
// ファイルハンドルはイベント間で保持しない（イベント頻度が低いため
// 呼び出しごとのopen/closeコストは許容する）。
func (r *Recorder) appendLogLine(record *model.Record) error {
	f, err := os.OpenFile(r.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	_, writeErr := f.WriteString(record.LogLine() + "\n")
	closeErr := f.Close()
	if writeErr != nil {
		return writeErr
	}
	return closeErr
}

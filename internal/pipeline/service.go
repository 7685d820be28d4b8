// Package pipeline は最近の更新フィード1行分の処理フローを提供する。
// 分類、適格性判定、エンリッチ、記録をこの順で同期的に実行する。
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/wikirc/internal/model"
	"github.com/hitoshi/wikirc/internal/rcparse"
)

// PageMetadataService はページメタデータを解決する外部コラボレーター。
// タイトルが解決できない場合はセンチネルではなく明示的にエラーを返す。
type PageMetadataService interface {
	Namespace(ctx context.Context, title string) (int, error)
	EarliestRevisionTime(ctx context.Context, title string) (time.Time, error)
}

// StatsService はサイト統計を取得する外部コラボレーター。
type StatsService interface {
	ArticleCount(ctx context.Context) (int, error)
}

// EventRecorder は適格イベントの永続化インターフェース。
type EventRecorder interface {
	Record(ctx context.Context, record *model.Record) error
}

// OperatorNotifier はオペレーターチャンネルへの通知インターフェース。
// 通知はベストエフォートで、失敗してもパイプラインには影響しない。
type OperatorNotifier interface {
	NotifyOperator(text string)
}

// MetricsCollector はパイプラインのメトリクス収集インターフェース。
type MetricsCollector interface {
	RecordLine()
	RecordMatch(kind string)
	RecordSkip(reason string)
	RecordFailure(stage string)
	RecordPersisted(eventType model.EventType)
}

// Deps はNewServiceに必要な依存関係をまとめた構造体。
type Deps struct {
	Lang     string
	Pages    PageMetadataService
	Stats    StatsService
	Recorder EventRecorder
	Notifier OperatorNotifier
	Metrics  MetricsCollector
	Logger   *slog.Logger
}

// Service はclassify→filter→enrich→recordパイプラインの実装。
// トランスポート層のコールバックから1行ごとに同期的に呼び出される。
// 内部に並列性は持たず、キューも持たない（1行の処理が完了するまで
// 次の行は処理されない）。
type Service struct {
	lang     string
	pages    PageMetadataService
	stats    StatsService
	recorder EventRecorder
	notifier OperatorNotifier
	metrics  MetricsCollector
	logger   *slog.Logger
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(deps Deps) *Service {
	return &Service{
		lang:     deps.Lang,
		pages:    deps.Pages,
		stats:    deps.Stats,
		recorder: deps.Recorder,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		now:      time.Now,
	}
}

// HandleLine は受信した1行をパイプラインに通す。
// どのパターンにもマッチしない行（大半のチャンネルトラフィック）は
// 外部コラボレーターを一切呼ばずに無言で捨てる。すべての失敗は
// プロセスに対して非致命的で、次の行の処理は継続する。
func (s *Service) HandleLine(ctx context.Context, line string) {
	s.metrics.RecordLine()

	c := rcparse.Classify(line)
	if !c.IsEvent() {
		return
	}

	// イベント時刻は分類時点で1回だけ捕捉する。エンリッチが遅くても
	// ログ行とDB行は常に同一のイベント時刻を持つ。
	eventTime := s.now().UTC()
	eventID := uuid.New().String()

	switch {
	case c.Move != nil:
		s.metrics.RecordMatch("move")
		s.handleMove(ctx, eventID, eventTime, c.Move)
	case c.Edit != nil:
		s.metrics.RecordMatch("edit")
		s.handleEdit(ctx, eventID, eventTime, c.Edit)
	}
}

// handleEdit は編集候補の適格性を判定し、適格なら記録まで進める。
// 新規ページフラグの判定はネットワーク照会を伴わないため、名前空間
// ルックアップより先に行う。
func (s *Service) handleEdit(ctx context.Context, eventID string, eventTime time.Time, cand *model.EditCandidate) {
	s.logger.Debug("編集行にマッチしました",
		slog.String("event_id", eventID),
		slog.String("page", cand.Page),
		slog.String("flags", cand.Flags),
		slog.String("user", cand.User),
		slog.Int("byte_delta", cand.ByteDelta),
	)

	if !cand.IsNewPage() {
		s.skip(eventID, cand.Page, "new_flag_absent")
		return
	}

	ns, err := s.pages.Namespace(ctx, cand.Page)
	if err != nil {
		s.failLookup(eventID, cand.Page, err)
		return
	}
	if ns != model.NamespaceMain {
		s.skip(eventID, cand.Page, "namespace_not_main")
		return
	}

	s.enrichAndRecord(ctx, eventID, eventTime, model.EventTypeArticle, cand.Page)
}

// handleMove は移動候補の適格性を判定し、適格なら記録まで進める。
// 記録するのは本文空間へ入ってくる移動（例: 下書きの昇格）のみで、
// 本文空間内や本文空間から出ていく移動は対象外。移動先の判定を先に
// 行い、不適格ならルックアップを1回で打ち切る。
func (s *Service) handleMove(ctx context.Context, eventID string, eventTime time.Time, cand *model.MoveCandidate) {
	s.logger.Debug("移動行にマッチしました",
		slog.String("event_id", eventID),
		slog.String("from_page", cand.FromPage),
		slog.String("to_page", cand.ToPage),
		slog.String("user", cand.User),
		slog.String("action", cand.Action),
	)

	toNS, err := s.pages.Namespace(ctx, cand.ToPage)
	if err != nil {
		s.failLookup(eventID, cand.ToPage, err)
		return
	}
	if toNS != model.NamespaceMain {
		s.skip(eventID, cand.ToPage, "destination_not_main")
		return
	}

	fromNS, err := s.pages.Namespace(ctx, cand.FromPage)
	if err != nil {
		s.failLookup(eventID, cand.FromPage, err)
		return
	}
	if fromNS == model.NamespaceMain {
		s.skip(eventID, cand.FromPage, "source_already_main")
		return
	}

	s.enrichAndRecord(ctx, eventID, eventTime, model.EventTypeMove, cand.ToPage)
}

// enrichAndRecord は適格イベントをエンリッチし、両シンクへ記録する。
// エンリッチのどちらかが失敗した場合はイベント全体を破棄する
// （欠損値や捏造値での部分的な記録は作らない）。
func (s *Service) enrichAndRecord(ctx context.Context, eventID string, eventTime time.Time, eventType model.EventType, title string) {
	count, err := s.stats.ArticleCount(ctx)
	if err != nil {
		s.fail(eventID, title, "enrich", err)
		return
	}

	creationTime, err := s.pages.EarliestRevisionTime(ctx, title)
	if err != nil {
		s.fail(eventID, title, "enrich", err)
		return
	}

	record := &model.Record{
		Lang:         s.lang,
		ArticleCount: count,
		EventTime:    eventTime,
		CreationTime: creationTime,
		Type:         eventType,
		Title:        title,
	}

	if err := s.recorder.Record(ctx, record); err != nil {
		s.fail(eventID, title, "persist", err)
		return
	}

	s.metrics.RecordPersisted(eventType)
	s.logger.Info("イベントを記録しました",
		slog.String("event_id", eventID),
		slog.String("type", string(eventType)),
		slog.String("title", title),
		slog.Int("article_count", count),
		slog.String("event_time", eventTime.Format(model.TimeLayout)),
		slog.String("creation_time", creationTime.Format(model.TimeLayout)),
	)
}

// skip は不適格イベントをトレースログのみで処理する。
// 永続化もエンリッチ照会も行わない。エラーではない。
func (s *Service) skip(eventID, title, reason string) {
	s.metrics.RecordSkip(reason)
	s.logger.Debug("イベントをスキップします",
		slog.String("event_id", eventID),
		slog.String("title", title),
		slog.String("reason", reason),
	)
}

// failLookup はルックアップ失敗を「エラー付き不適格」として処理する。
// イベントは破棄するが、状態は観測可能にする（オペレーター通知）。
func (s *Service) failLookup(eventID, title string, err error) {
	s.fail(eventID, title, "lookup", err)
}

// fail は失敗を記録し、オペレーターチャンネルへ通知する。
// パイプラインはクラッシュせず、後続の行の処理を継続する。
func (s *Service) fail(eventID, title, stage string, err error) {
	s.metrics.RecordFailure(stage)
	s.logger.Error("イベントの処理に失敗しました",
		slog.String("event_id", eventID),
		slog.String("title", title),
		slog.String("stage", stage),
		slog.String("error", err.Error()),
	)
	if s.notifier != nil {
		s.notifier.NotifyOperator(fmt.Sprintf("wikirc %s failure (%s): %v", stage, title, err))
	}
}

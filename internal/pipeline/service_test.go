package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/wikirc/internal/model"
)

// editLine は編集形式の彩色済み行を組み立てる。
func editLine(page, flags string) string {
	return "\x0314[[\x0307" + page + "\x0314]]\x034 " + flags +
		"\x0310 \x0302https://example.org/diff\x03 \x035*\x03 \x0303Alice" +
		"\x03 \x035*\x03 (\x02+100\x02) \x0310summary\x03"
}

// moveLine は移動形式の彩色済み行を組み立てる。
func moveLine(from, to string) string {
	return "\x0314[[\x0307" + from + "\x0314]]\x034 move\x0310 \x0302\x03 " +
		"\x035*\x03 \x0303Alice\x03 \x035*\x03  \x0310przeniósł" +
		" [[\x0302" + from + "\x0310]] to [[" + to + "]]\x03"
}

// fakePages はPageMetadataServiceのテスト用実装。呼び出し回数を記録する。
type fakePages struct {
	namespaces map[string]int
	creation   time.Time
	err        error
	nsCalls    int
	revCalls   int
}

func (f *fakePages) Namespace(ctx context.Context, title string) (int, error) {
	f.nsCalls++
	if f.err != nil {
		return 0, f.err
	}
	ns, ok := f.namespaces[title]
	if !ok {
		return 0, model.NewPageMissingError(title)
	}
	return ns, nil
}

func (f *fakePages) EarliestRevisionTime(ctx context.Context, title string) (time.Time, error) {
	f.revCalls++
	if f.err != nil {
		return time.Time{}, f.err
	}
	return f.creation, nil
}

// fakeStats はStatsServiceのテスト用実装。
type fakeStats struct {
	count int
	err   error
	calls int
}

func (f *fakeStats) ArticleCount(ctx context.Context) (int, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.count, nil
}

// fakeRecorder はEventRecorderのテスト用実装。
type fakeRecorder struct {
	records []*model.Record
	err     error
}

func (f *fakeRecorder) Record(ctx context.Context, record *model.Record) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, record)
	return nil
}

// fakeNotifier はOperatorNotifierのテスト用実装。
type fakeNotifier struct {
	messages []string
}

func (f *fakeNotifier) NotifyOperator(text string) {
	f.messages = append(f.messages, text)
}

// fakeMetrics はMetricsCollectorのテスト用実装。
type fakeMetrics struct {
	lines     int
	matches   map[string]int
	skips     map[string]int
	failures  map[string]int
	persisted map[model.EventType]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{
		matches:   map[string]int{},
		skips:     map[string]int{},
		failures:  map[string]int{},
		persisted: map[model.EventType]int{},
	}
}

func (f *fakeMetrics) RecordLine()                       { f.lines++ }
func (f *fakeMetrics) RecordMatch(kind string)           { f.matches[kind]++ }
func (f *fakeMetrics) RecordSkip(reason string)          { f.skips[reason]++ }
func (f *fakeMetrics) RecordFailure(stage string)        { f.failures[stage]++ }
func (f *fakeMetrics) RecordPersisted(t model.EventType) { f.persisted[t]++ }

type testDeps struct {
	pages    *fakePages
	stats    *fakeStats
	recorder *fakeRecorder
	notifier *fakeNotifier
	metrics  *fakeMetrics
	service  *Service
}

func newTestService(t *testing.T) *testDeps {
	t.Helper()
	d := &testDeps{
		pages: &fakePages{
			namespaces: map[string]int{},
			creation:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		stats:    &fakeStats{count: 12345},
		recorder: &fakeRecorder{},
		notifier: &fakeNotifier{},
		metrics:  newFakeMetrics(),
	}
	d.service = NewService(Deps{
		Lang:     "pl",
		Pages:    d.pages,
		Stats:    d.stats,
		Recorder: d.recorder,
		Notifier: d.notifier,
		Metrics:  d.metrics,
		Logger:   slog.New(slog.NewJSONHandler(io.Discard, nil)),
	})
	return d
}

// パターンにマッチしない行では外部コラボレーターが一切呼ばれないことを検証
func TestHandleLine_UnrelatedLine_NoCollaboratorCalls(t *testing.T) {
	d := newTestService(t)

	d.service.HandleLine(context.Background(), "hello, just chatting")

	if d.pages.nsCalls != 0 || d.pages.revCalls != 0 {
		t.Errorf("page lookups = %d/%d, want 0/0", d.pages.nsCalls, d.pages.revCalls)
	}
	if d.stats.calls != 0 {
		t.Errorf("stats calls = %d, want 0", d.stats.calls)
	}
	if len(d.recorder.records) != 0 {
		t.Errorf("records = %d, want 0", len(d.recorder.records))
	}
}

// シナリオA: 新規フラグ付きの標準名前空間ページの編集が記録されることを検証
func TestHandleLine_QualifyingEdit_RecordsArticleEvent(t *testing.T) {
	d := newTestService(t)
	d.pages.namespaces["Foo"] = 0

	d.service.HandleLine(context.Background(), editLine("Foo", "N"))

	if len(d.recorder.records) != 1 {
		t.Fatalf("records = %d, want 1", len(d.recorder.records))
	}
	r := d.recorder.records[0]
	if r.Type != model.EventTypeArticle {
		t.Errorf("Type = %q, want %q", r.Type, model.EventTypeArticle)
	}
	if r.Title != "Foo" {
		t.Errorf("Title = %q, want %q", r.Title, "Foo")
	}
	if r.ArticleCount != 12345 {
		t.Errorf("ArticleCount = %d, want %d", r.ArticleCount, 12345)
	}
	if r.Lang != "pl" {
		t.Errorf("Lang = %q, want %q", r.Lang, "pl")
	}
	if !r.CreationTime.Equal(d.pages.creation) {
		t.Errorf("CreationTime = %v, want %v", r.CreationTime, d.pages.creation)
	}
	if r.EventTime.IsZero() {
		t.Error("EventTime should be captured")
	}
	if d.metrics.persisted[model.EventTypeArticle] != 1 {
		t.Errorf("persisted[A] = %d, want 1", d.metrics.persisted[model.EventTypeArticle])
	}
}

// シナリオB: 新規フラグの無い編集では照会もHTTP呼び出しも発生しないことを検証
func TestHandleLine_EditWithoutNewFlag_NoEnrichmentCalls(t *testing.T) {
	d := newTestService(t)
	d.pages.namespaces["Foo"] = 0

	d.service.HandleLine(context.Background(), editLine("Foo", "m"))

	if len(d.recorder.records) != 0 {
		t.Errorf("records = %d, want 0", len(d.recorder.records))
	}
	if d.stats.calls != 0 {
		t.Errorf("stats calls = %d, want 0", d.stats.calls)
	}
	// フラグ判定はネットワーク照会より先なので名前空間ルックアップも発生しない
	if d.pages.nsCalls != 0 {
		t.Errorf("namespace lookups = %d, want 0", d.pages.nsCalls)
	}
}

// 標準以外の名前空間の新規ページはエンリッチなしでスキップされることを検証
func TestHandleLine_EditOutsideMainNamespace_Skipped(t *testing.T) {
	d := newTestService(t)
	d.pages.namespaces["Wikipedia:Foo"] = 4

	d.service.HandleLine(context.Background(), editLine("Wikipedia:Foo", "N"))

	if len(d.recorder.records) != 0 {
		t.Errorf("records = %d, want 0", len(d.recorder.records))
	}
	if d.stats.calls != 0 {
		t.Errorf("stats calls = %d, want 0", d.stats.calls)
	}
}

// シナリオC: 下書きから標準名前空間への移動がtype=Mで記録されることを検証
func TestHandleLine_MoveIntoMainNamespace_RecordsMoveEvent(t *testing.T) {
	d := newTestService(t)
	d.pages.namespaces["Brudnopis:Foo"] = 118
	d.pages.namespaces["Foo"] = 0

	d.service.HandleLine(context.Background(), moveLine("Brudnopis:Foo", "Foo"))

	if len(d.recorder.records) != 1 {
		t.Fatalf("records = %d, want 1", len(d.recorder.records))
	}
	r := d.recorder.records[0]
	if r.Type != model.EventTypeMove {
		t.Errorf("Type = %q, want %q", r.Type, model.EventTypeMove)
	}
	if r.Title != "Foo" {
		t.Errorf("Title = %q, want %q", r.Title, "Foo")
	}
}

// シナリオD: 移動先が標準名前空間でない移動は1回のルックアップで打ち切られることを検証
func TestHandleLine_MoveToTalkNamespace_Skipped(t *testing.T) {
	d := newTestService(t)
	d.pages.namespaces["Dyskusja:Foo"] = 1
	d.pages.namespaces["Foo"] = 0

	d.service.HandleLine(context.Background(), moveLine("Foo", "Dyskusja:Foo"))

	if len(d.recorder.records) != 0 {
		t.Errorf("records = %d, want 0", len(d.recorder.records))
	}
	if d.pages.nsCalls != 1 {
		t.Errorf("namespace lookups = %d, want 1", d.pages.nsCalls)
	}
	if d.stats.calls != 0 {
		t.Errorf("stats calls = %d, want 0", d.stats.calls)
	}
}

// 標準名前空間内の移動は対象外であることを検証
func TestHandleLine_MoveWithinMainNamespace_Skipped(t *testing.T) {
	d := newTestService(t)
	d.pages.namespaces["Foo"] = 0
	d.pages.namespaces["Bar"] = 0

	d.service.HandleLine(context.Background(), moveLine("Foo", "Bar"))

	if len(d.recorder.records) != 0 {
		t.Errorf("records = %d, want 0", len(d.recorder.records))
	}
	if d.stats.calls != 0 {
		t.Errorf("stats calls = %d, want 0", d.stats.calls)
	}
}

// シナリオE: サイト統計の取得失敗でイベント全体が破棄され、失敗が通知されることを検証
func TestHandleLine_EnrichmentFailure_DropsEventAndNotifies(t *testing.T) {
	d := newTestService(t)
	d.pages.namespaces["Foo"] = 0
	d.stats.err = model.NewStatsParseError("articles属性が見つかりません")

	d.service.HandleLine(context.Background(), editLine("Foo", "N"))

	if len(d.recorder.records) != 0 {
		t.Errorf("records = %d, want 0（部分的な記録は作らない）", len(d.recorder.records))
	}
	if len(d.notifier.messages) != 1 {
		t.Fatalf("notifications = %d, want 1", len(d.notifier.messages))
	}
	if d.metrics.failures["enrich"] != 1 {
		t.Errorf("failures[enrich] = %d, want 1", d.metrics.failures["enrich"])
	}
}

// ルックアップ失敗は「エラー付き不適格」として通知され、クラッシュしないことを検証
func TestHandleLine_LookupFailure_SurfacedAndNonFatal(t *testing.T) {
	d := newTestService(t)
	d.pages.err = errors.New("api unreachable")

	d.service.HandleLine(context.Background(), editLine("Foo", "N"))

	if len(d.recorder.records) != 0 {
		t.Errorf("records = %d, want 0", len(d.recorder.records))
	}
	if d.stats.calls != 0 {
		t.Errorf("stats calls = %d, want 0", d.stats.calls)
	}
	if len(d.notifier.messages) != 1 {
		t.Errorf("notifications = %d, want 1", len(d.notifier.messages))
	}

	// 後続の行は通常通り処理される
	d.pages.err = nil
	d.pages.namespaces["Bar"] = 0
	d.service.HandleLine(context.Background(), editLine("Bar", "N"))
	if len(d.recorder.records) != 1 {
		t.Errorf("records after recovery = %d, want 1", len(d.recorder.records))
	}
}

// 永続化失敗が通知され、後続の行の処理が継続することを検証
func TestHandleLine_PersistFailure_NotifiesAndContinues(t *testing.T) {
	d := newTestService(t)
	d.pages.namespaces["Foo"] = 0
	d.recorder.err = model.NewInsertError(errors.New("connection refused"))

	d.service.HandleLine(context.Background(), editLine("Foo", "N"))

	if len(d.notifier.messages) != 1 {
		t.Errorf("notifications = %d, want 1", len(d.notifier.messages))
	}
	if d.metrics.failures["persist"] != 1 {
		t.Errorf("failures[persist] = %d, want 1", d.metrics.failures["persist"])
	}

	d.recorder.err = nil
	d.service.HandleLine(context.Background(), editLine("Foo", "N"))
	if len(d.recorder.records) != 1 {
		t.Errorf("records after recovery = %d, want 1", len(d.recorder.records))
	}
}

// 同じ行を2回流すと2件記録されることを検証
// （重複排除キーは存在しない。これは現行仕様であり修正対象ではない）
func TestHandleLine_SameLineTwice_ProducesTwoRecords(t *testing.T) {
	d := newTestService(t)
	d.pages.namespaces["Foo"] = 0
	line := editLine("Foo", "N")

	d.service.HandleLine(context.Background(), line)
	d.service.HandleLine(context.Background(), line)

	if len(d.recorder.records) != 2 {
		t.Errorf("records = %d, want 2", len(d.recorder.records))
	}
}

// イベント時刻がエンリッチ時ではなく分類時に捕捉されることを検証
func TestHandleLine_EventTimeCapturedAtClassification(t *testing.T) {
	d := newTestService(t)
	d.pages.namespaces["Foo"] = 0

	t0 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := t0
	d.service.now = func() time.Time { return clock }

	// エンリッチ中に時計を進める
	d.stats.err = nil
	base := d.stats
	d.service.stats = statsFuncService(func(ctx context.Context) (int, error) {
		clock = clock.Add(30 * time.Second)
		return base.ArticleCount(ctx)
	})

	d.service.HandleLine(context.Background(), editLine("Foo", "N"))

	if len(d.recorder.records) != 1 {
		t.Fatalf("records = %d, want 1", len(d.recorder.records))
	}
	if !d.recorder.records[0].EventTime.Equal(t0) {
		t.Errorf("EventTime = %v, want %v（分類時点の時刻）", d.recorder.records[0].EventTime, t0)
	}
}

// statsFuncService は関数をStatsServiceとして使うアダプタ。
type statsFuncService func(ctx context.Context) (int, error)

func (f statsFuncService) ArticleCount(ctx context.Context) (int, error) {
	return f(ctx)
}

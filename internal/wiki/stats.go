package wiki

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"

	"golang.org/x/time/rate"

	"github.com/hitoshi/wikirc/internal/model"
)

// StatsURL はサイト統計エンドポイントの固定URLを組み立てる。
// レスポンスはXML形式で、articles属性を文字列走査で取り出す。
func StatsURL(lang, project string) string {
	return "https://" + lang + "." + project +
		".org/w/api.php?action=query&meta=siteinfo&siprop=statistics&format=xml"
}

// articlesPattern はsiteinfo統計XMLから記事数を取り出すパターン。
var articlesPattern = regexp.MustCompile(`articles="(\d+)"`)

// StatsFetcher はサイト統計エンドポイントから現在の総記事数を取得する。
// 適格イベントごとに毎回取得し直し、イベント間でキャッシュしない。
type StatsFetcher struct {
	httpClient *http.Client
	logger     *slog.Logger
	limiter    *rate.Limiter
	statsURL   string // テスト用にエンドポイントを差し替え可能
}

// NewStatsFetcher はStatsFetcherの新しいインスタンスを生成する。
func NewStatsFetcher(httpClient *http.Client, logger *slog.Logger, limiter *rate.Limiter, statsURL string) *StatsFetcher {
	return &StatsFetcher{
		httpClient: httpClient,
		logger:     logger,
		limiter:    limiter,
		statsURL:   statsURL,
	}
}

// ArticleCount は現在の総記事数を返す。
// ネットワークエラー、不正なレスポンス、属性の欠落はすべてエラーとして
// 返し、呼び出し元がイベント全体を破棄する（欠損値での記録は作らない）。
func (f *StatsFetcher) ArticleCount(ctx context.Context) (int, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return 0, model.NewStatsFetchError(err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.statsURL, nil)
	if err != nil {
		return 0, model.NewStatsFetchError(err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		f.logger.Error("サイト統計エンドポイントの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return 0, model.NewStatsFetchError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.logger.Error("サイト統計エンドポイントがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return 0, model.NewStatsParseError("HTTPステータス " + strconv.Itoa(resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return 0, model.NewStatsFetchError(err)
	}

	match := articlesPattern.FindSubmatch(body)
	if match == nil {
		return 0, model.NewStatsParseError("articles属性が見つかりません")
	}

	count, err := strconv.Atoi(string(match[1]))
	if err != nil {
		return 0, model.NewStatsParseError("articles属性が数値ではありません: " + string(match[1]))
	}

	return count, nil
}

// Package wiki はMediaWiki APIとの連携機能を提供する。
// ページメタデータ（名前空間・最古リビジョン）の取得とサイト統計の取得を含む。
package wiki

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/wikirc/internal/model"
)

// userAgent は全API呼び出しで名乗るUser-Agent。
const userAgent = "Wikirc/1.0 recent changes recorder"

// MaxResponseSize はAPIレスポンスボディの読み取り上限。
// siteinfo統計もprop=infoも数KB程度のため、4MiBあれば十分すぎる余裕がある。
const MaxResponseSize int64 = 4 << 20

// APIURL は対象サイトのapi.phpエンドポイントURLを組み立てる。
// 例: APIURL("pl", "wikipedia") -> "https://pl.wikipedia.org/w/api.php"
func APIURL(lang, project string) string {
	return "https://" + lang + "." + project + ".org/w/api.php"
}

// Client はページメタデータを取得するMediaWiki APIクライアント。
// 全呼び出しで共有のレートリミッターを待ってからリクエストを送る
// （APIへの礼儀上の制限。1イベントの処理が複数回APIを叩くため）。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	limiter    *rate.Limiter
	apiURL     string // テスト用にエンドポイントを差し替え可能
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, limiter *rate.Limiter, apiURL string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		limiter:    limiter,
		apiURL:     apiURL,
	}
}

// pageInfoResponse はaction=query&prop=info（formatversion=2）のレスポンス。
type pageInfoResponse struct {
	Query struct {
		Pages []struct {
			NS      int    `json:"ns"`
			Title   string `json:"title"`
			Missing bool   `json:"missing"`
		} `json:"pages"`
	} `json:"query"`
}

// Namespace は指定タイトルの名前空間番号を返す。
// タイトルが解決できない場合はセンチネルを返さず明示的に失敗する。
func (c *Client) Namespace(ctx context.Context, title string) (int, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("prop", "info")
	params.Set("titles", title)
	params.Set("format", "json")
	params.Set("formatversion", "2")

	body, err := c.get(ctx, params)
	if err != nil {
		return 0, model.NewLookupFailedError(title, err)
	}

	var resp pageInfoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, model.NewLookupFailedError(title, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err))
	}
	if len(resp.Query.Pages) == 0 {
		return 0, model.NewLookupFailedError(title, fmt.Errorf("レスポンスにページ情報が含まれていません"))
	}
	page := resp.Query.Pages[0]
	if page.Missing {
		return 0, model.NewPageMissingError(title)
	}

	return page.NS, nil
}

// revisionsResponse はaction=query&prop=revisions（formatversion=2）のレスポンス。
type revisionsResponse struct {
	Query struct {
		Pages []struct {
			Title     string `json:"title"`
			Missing   bool   `json:"missing"`
			Revisions []struct {
				Timestamp string `json:"timestamp"`
			} `json:"revisions"`
		} `json:"pages"`
	} `json:"query"`
}

// EarliestRevisionTime は指定タイトルの最古リビジョンのUTC時刻を返す。
// rvdir=newerで古い順の先頭1件のみを取得する。
func (c *Client) EarliestRevisionTime(ctx context.Context, title string) (time.Time, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("prop", "revisions")
	params.Set("rvprop", "timestamp")
	params.Set("rvlimit", "1")
	params.Set("rvdir", "newer")
	params.Set("titles", title)
	params.Set("format", "json")
	params.Set("formatversion", "2")

	body, err := c.get(ctx, params)
	if err != nil {
		return time.Time{}, model.NewLookupFailedError(title, err)
	}

	var resp revisionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return time.Time{}, model.NewLookupFailedError(title, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err))
	}
	if len(resp.Query.Pages) == 0 {
		return time.Time{}, model.NewLookupFailedError(title, fmt.Errorf("レスポンスにページ情報が含まれていません"))
	}
	page := resp.Query.Pages[0]
	if page.Missing || len(page.Revisions) == 0 {
		return time.Time{}, model.NewRevisionMissingError(title)
	}

	ts, err := time.Parse(time.RFC3339, page.Revisions[0].Timestamp)
	if err != nil {
		return time.Time{}, model.NewLookupFailedError(title, fmt.Errorf("リビジョン時刻のパースに失敗しました: %w", err))
	}

	return ts.UTC(), nil
}

// get はレートリミッターを待ってからAPIへGETリクエストを送り、ボディを返す。
func (c *Client) get(ctx context.Context, params url.Values) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("レートリミッター待機が中断されました: %w", err)
		}
	}

	reqURL := c.apiURL + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("MediaWiki APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("MediaWiki APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, fmt.Errorf("MediaWiki APIがステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	return body, nil
}

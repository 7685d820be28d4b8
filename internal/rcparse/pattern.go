// Package rcparse は最近の更新IRCフィードの行文法を提供する。
// 編集形式と移動形式の2つの行パターンを宣言的に保持し、I/Oを持たない
// 純粋な分類関数を公開する。行文法の変更はこのパッケージに閉じる。
package rcparse

import (
	"regexp"
	"strings"
)

// フィードの行はmIRCの装飾制御文字で彩色されている。
// パターン定義は元の行と同じく ^B（太字 \x02）、^C（色 \x03）、
// ^U（下線 \x1f）のプレースホルダで記述し、コンパイル時に実際の
// 制御文字へ置換する。制御文字はフィールド値には含めず、構造上の
// 区切りとしてのみマッチさせる。
var controlCodes = strings.NewReplacer(
	"^B", "\x02",
	"^C", "\x03",
	"^U", "\x1f",
)

// mustCompile はプレースホルダを制御文字へ置換し、行頭アンカー付きで
// コンパイルする。
func mustCompile(template string) *regexp.Regexp {
	return regexp.MustCompile("^" + controlCodes.Replace(template))
}

var (
	// editPattern は編集形式:
	// [[<page>]] <flags> <url> * <user> * (<byteDelta>) <summary>
	// flagsは1文字コードの並び、byteDeltaは符号付き整数で太字マーカーに
	// 包まれることがある。summaryは行末までの自由テキスト。
	editPattern = mustCompile(`^C14\[\[^C07(?P<page>.+?)^C14\]\]^C4 (?P<flags>.*?)^C10 ^C02(?P<url>.+?)^C ^C5\*^C ^C03(?P<user>.+?)^C ^C5\*^C \(?^B?(?P<bytes>[+-]?\d+?)^B?\) ^C10(?P<summary>.*)^C`)

	// movePattern は移動形式:
	// [[<page>]] move <user> * <action> [[<fromPage>]] to [[<toPage>]]<summary>
	// summaryは省略可能で、省略時はキャプチャグループ自体が不参加となる
	// （空文字列の要約と区別するため）。
	movePattern = mustCompile(`^C14\[\[^C07(?P<page>.+?)^C14]]^C4 move^C10 ^C02^C ^C5\*^C ^C03(?P<user>.+?)^C ^C5\*^C  ^C10(?P<action>.+?) \[\[^C02(?P<frompage>.+?)^C10]] to \[\[(?P<topage>.+?)]](?:(?P<summary>.+))?^C`)
)

// group は名前付きキャプチャグループの値を返す。
func group(re *regexp.Regexp, match []string, name string) string {
	return match[re.SubexpIndex(name)]
}

// groupOpt は名前付きキャプチャグループの値と参加有無を返す。
// グループがマッチに参加しなかった場合はok=falseを返す。
func groupOpt(re *regexp.Regexp, line string, idx []int, name string) (string, bool) {
	i := re.SubexpIndex(name)
	if i < 0 || idx[2*i] < 0 {
		return "", false
	}
	return line[idx[2*i]:idx[2*i+1]], true
}

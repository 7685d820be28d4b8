package rcparse

import (
	"regexp"
	"strconv"

	"github.com/hitoshi/wikirc/internal/model"
)

// Classify は生の1行をどちらかのパターンで分類し、候補イベントを返す。
// 純粋関数で副作用を持たない。2つのパターンは構造的に排他（ページ括弧の
// 直後に"move"リテラルがあるか否か）なので、1行につき高々1つの候補しか
// 生成されない。どちらにもマッチしない行は空のClassificationを返し、
// これはエラーではなく通常のケース（チャンネルの無関係なトラフィック）。
func Classify(line string) model.Classification {
	if idx := movePattern.FindStringSubmatchIndex(line); idx != nil {
		mv := &model.MoveCandidate{
			Page:     mustGroupAt(movePattern, line, idx, "page"),
			User:     mustGroupAt(movePattern, line, idx, "user"),
			Action:   mustGroupAt(movePattern, line, idx, "action"),
			FromPage: mustGroupAt(movePattern, line, idx, "frompage"),
			ToPage:   mustGroupAt(movePattern, line, idx, "topage"),
		}
		if summary, ok := groupOpt(movePattern, line, idx, "summary"); ok {
			mv.Summary = &summary
		}
		return model.Classification{Move: mv}
	}

	if match := editPattern.FindStringSubmatch(line); match != nil {
		delta, err := strconv.Atoi(group(editPattern, match, "bytes"))
		if err != nil {
			// bytesグループは符号付き数字列にのみマッチするため、
			// ここに来るのはintに収まらない桁数の場合だけ。
			// 壊れた行として扱い、イベントにはしない。
			return model.Classification{}
		}
		return model.Classification{Edit: &model.EditCandidate{
			Page:      group(editPattern, match, "page"),
			Flags:     group(editPattern, match, "flags"),
			URL:       group(editPattern, match, "url"),
			User:      group(editPattern, match, "user"),
			ByteDelta: delta,
			Summary:   group(editPattern, match, "summary"),
		}}
	}

	return model.Classification{}
}

// mustGroupAt は必須の名前付きグループの値を返す。
func mustGroupAt(re *regexp.Regexp, line string, idx []int, name string) string {
	v, _ := groupOpt(re, line, idx, name)
	return v
}

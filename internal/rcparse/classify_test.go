package rcparse

import (
	"testing"
)

// editLine は編集形式の彩色済み行を組み立てる。
func editLine(page, flags, url, user, delta, summary string) string {
	return "\x0314[[\x0307" + page + "\x0314]]\x034 " + flags +
		"\x0310 \x0302" + url + "\x03 \x035*\x03 \x0303" + user +
		"\x03 \x035*\x03 (\x02" + delta + "\x02) \x0310" + summary + "\x03"
}

// moveLine は移動形式の彩色済み行を組み立てる。summaryは空文字列で省略を表す。
func moveLine(page, user, action, from, to, summary string) string {
	return "\x0314[[\x0307" + page + "\x0314]]\x034 move\x0310 \x0302\x03 " +
		"\x035*\x03 \x0303" + user + "\x03 \x035*\x03  \x0310" + action +
		" [[\x0302" + from + "\x0310]] to [[" + to + "]]" + summary + "\x03"
}

// 編集行から全フィールドが抽出されることを検証
func TestClassify_EditLine_ExtractsFields(t *testing.T) {
	line := editLine("Foo", "N", "https://pl.wikipedia.org/w/index.php?oldid=123", "Alice", "+1234", "nowy artykuł")

	c := Classify(line)
	if c.Edit == nil {
		t.Fatal("expected edit candidate, got none")
	}
	if c.Move != nil {
		t.Fatal("expected at most one candidate per line")
	}

	e := c.Edit
	if e.Page != "Foo" {
		t.Errorf("Page = %q, want %q", e.Page, "Foo")
	}
	if e.Flags != "N" {
		t.Errorf("Flags = %q, want %q", e.Flags, "N")
	}
	if e.URL != "https://pl.wikipedia.org/w/index.php?oldid=123" {
		t.Errorf("URL = %q, want %q", e.URL, "https://pl.wikipedia.org/w/index.php?oldid=123")
	}
	if e.User != "Alice" {
		t.Errorf("User = %q, want %q", e.User, "Alice")
	}
	if e.ByteDelta != 1234 {
		t.Errorf("ByteDelta = %d, want %d", e.ByteDelta, 1234)
	}
	if e.Summary != "nowy artykuł" {
		t.Errorf("Summary = %q, want %q", e.Summary, "nowy artykuł")
	}
}

// 太字マーカーなしの負のバイト差分がパースされることを検証
func TestClassify_EditLine_NegativeDeltaWithoutBold(t *testing.T) {
	line := "\x0314[[\x0307Bar\x0314]]\x034 m\x0310 \x0302https://example.org/diff\x03 " +
		"\x035*\x03 \x0303Bob\x03 \x035*\x03 (-42) \x0310drobna poprawka\x03"

	c := Classify(line)
	if c.Edit == nil {
		t.Fatal("expected edit candidate, got none")
	}
	if c.Edit.ByteDelta != -42 {
		t.Errorf("ByteDelta = %d, want %d", c.Edit.ByteDelta, -42)
	}
	if c.Edit.IsNewPage() {
		t.Error("flags without 'N' should not mark a new page")
	}
}

// 空のフラグと空の要約が欠損ではなく空文字列として存在することを検証
func TestClassify_EditLine_EmptyFlagsAndSummary(t *testing.T) {
	line := editLine("Baz", "", "https://example.org/diff", "Carol", "+7", "")

	c := Classify(line)
	if c.Edit == nil {
		t.Fatal("expected edit candidate, got none")
	}
	if c.Edit.Flags != "" {
		t.Errorf("Flags = %q, want empty string", c.Edit.Flags)
	}
	if c.Edit.Summary != "" {
		t.Errorf("Summary = %q, want empty string", c.Edit.Summary)
	}
}

// 移動行から全フィールドが抽出されることを検証
func TestClassify_MoveLine_ExtractsFields(t *testing.T) {
	line := moveLine("Draft:Foo", "Alice", "przeniósł", "Brudnopis:Foo", "Foo", "promocja brudnopisu")

	c := Classify(line)
	if c.Move == nil {
		t.Fatal("expected move candidate, got none")
	}
	if c.Edit != nil {
		t.Fatal("expected at most one candidate per line")
	}

	m := c.Move
	if m.Page != "Draft:Foo" {
		t.Errorf("Page = %q, want %q", m.Page, "Draft:Foo")
	}
	if m.User != "Alice" {
		t.Errorf("User = %q, want %q", m.User, "Alice")
	}
	if m.Action != "przeniósł" {
		t.Errorf("Action = %q, want %q", m.Action, "przeniósł")
	}
	if m.FromPage != "Brudnopis:Foo" {
		t.Errorf("FromPage = %q, want %q", m.FromPage, "Brudnopis:Foo")
	}
	if m.ToPage != "Foo" {
		t.Errorf("ToPage = %q, want %q", m.ToPage, "Foo")
	}
	if m.Summary == nil {
		t.Fatal("expected non-nil summary")
	}
	if *m.Summary != "promocja brudnopisu" {
		t.Errorf("Summary = %q, want %q", *m.Summary, "promocja brudnopisu")
	}
}

// 要約セグメントの無い移動行ではSummaryがnilになることを検証
// （空文字列の要約と区別できること）
func TestClassify_MoveLine_WithoutSummary_SummaryIsNil(t *testing.T) {
	line := moveLine("Draft:Foo", "Alice", "przeniósł", "Brudnopis:Foo", "Foo", "")

	c := Classify(line)
	if c.Move == nil {
		t.Fatal("expected move candidate, got none")
	}
	if c.Move.Summary != nil {
		t.Errorf("Summary = %q, want nil", *c.Move.Summary)
	}
}

// どちらのパターンにもマッチしない行がイベントにならないことを検証
func TestClassify_UnrelatedLines_NotAnEvent(t *testing.T) {
	lines := []string{
		"",
		"hello channel",
		"[[Foo]] N https://example.org * Alice * (+1) summary",
		"\x0314[[\x0307Foo\x0314]] some chatter without the rest",
		editLine("Foo", "N", "https://example.org", "Alice", "abc", "x"), // 数値でない差分
	}

	for _, line := range lines {
		c := Classify(line)
		if c.IsEvent() {
			t.Errorf("Classify(%q) produced a candidate, want none", line)
		}
	}
}

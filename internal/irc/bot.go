// Package irc はウィキの最近の更新チャンネルに接続するIRCボットを提供する。
package irc

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ergochat/irc-go/ircevent"
	"github.com/ergochat/irc-go/ircmsg"
)

// LineHandler はチャンネルから受信した生の行を処理するインターフェース。
type LineHandler interface {
	HandleLine(ctx context.Context, line string)
}

// Options はボットの接続設定。
type Options struct {
	// Server は "host:port" 形式の接続先。
	Server   string
	Nick     string
	RealName string
	Channel  string
	// OperatorTarget は障害通知の宛先ニック。空の場合は通知しない。
	OperatorTarget string
}

// Bot はIRC接続を管理し、チャンネルの行をLineHandlerへ流す。
// プライベートメッセージは運用コマンド（stats/disconnect/die）として解釈する。
type Bot struct {
	conn    *ircevent.Connection
	opts    Options
	handler LineHandler
	logger  *slog.Logger

	// done はdieコマンドまたはRunのコンテキスト取消で閉じられる。
	// dieは何度でも送れるため、closeはstopOnce経由でのみ行う。
	done     chan struct{}
	stopOnce sync.Once
}

// NewBot はBotを生成し、コールバックを配線する。接続はRunで行う。
func NewBot(opts Options, handler LineHandler, logger *slog.Logger) *Bot {
	b := &Bot{
		opts:    opts,
		handler: handler,
		logger:  logger,
		done:    make(chan struct{}),
	}

	b.conn = &ircevent.Connection{
		Server:        opts.Server,
		Nick:          opts.Nick,
		RealName:      opts.RealName,
		QuitMessage:   "shutting down",
		ReconnectFreq: 30 * time.Second,
		KeepAlive:     4 * time.Minute,
		Timeout:       1 * time.Minute,
	}

	b.conn.AddConnectCallback(func(e ircmsg.Message) {
		b.logger.Info("IRCサーバーに接続しました",
			slog.String("server", opts.Server),
			slog.String("channel", opts.Channel),
		)
		if err := b.conn.Join(opts.Channel); err != nil {
			b.logger.Error("チャンネル参加に失敗しました",
				slog.String("channel", opts.Channel),
				slog.String("error", err.Error()),
			)
		}
	})

	b.conn.AddCallback("PRIVMSG", b.onPrivmsg)

	return b
}

// Run は接続してメッセージループを開始する。
// コンテキストが取り消されるか、dieコマンドを受信するまでブロックする。
func (b *Bot) Run(ctx context.Context) error {
	if err := b.conn.Connect(); err != nil {
		return fmt.Errorf("IRC接続に失敗しました: %w", err)
	}

	go func() {
		select {
		case <-ctx.Done():
			b.conn.Quit()
		case <-b.done:
		}
	}()

	b.conn.Loop()
	return nil
}

// NotifyOperator は運用者ニックへNoticeで通知を送る。
// 宛先が未設定、または未接続の場合は何もしない。
func (b *Bot) NotifyOperator(text string) {
	if b.opts.OperatorTarget == "" || !b.conn.Connected() {
		return
	}
	if err := b.conn.Notice(b.opts.OperatorTarget, text); err != nil {
		b.logger.Warn("運用者通知の送信に失敗しました", slog.String("error", err.Error()))
	}
}

// onPrivmsg はPRIVMSGを振り分ける。チャンネル宛の行はLineHandlerへ、
// ボット宛のプライベートメッセージは運用コマンドとして処理する。
func (b *Bot) onPrivmsg(e ircmsg.Message) {
	if len(e.Params) < 2 {
		return
	}
	target, text := e.Params[0], e.Params[1]

	if strings.EqualFold(target, b.opts.Channel) {
		b.handler.HandleLine(context.Background(), text)
		return
	}

	b.doCommand(nickFromSource(e.Source), strings.TrimSpace(text))
}

// doCommand はプライベートメッセージで受けた運用コマンドを実行する。
func (b *Bot) doCommand(nick, cmd string) {
	b.logger.Info("運用コマンドを受信しました",
		slog.String("nick", nick),
		slog.String("command", cmd),
	)

	switch cmd {
	case "disconnect":
		// 切断のみ行う。ReconnectFreq経過後に自動で再接続する。
		b.conn.Reconnect()
	case "die":
		b.conn.Quit()
		b.stopOnce.Do(func() { close(b.done) })
	case "stats":
		b.conn.Notice(nick, "--- Channel statistics ---")
		b.conn.Notice(nick, "Channel: "+b.opts.Channel)
		b.conn.Notice(nick, "Server: "+b.opts.Server)
		b.conn.Notice(nick, "Nick: "+b.conn.CurrentNick())
	default:
		b.conn.Notice(nick, "Not understood: "+cmd)
	}
}

// nickFromSource は "nick!user@host" 形式のプレフィックスからニックを取り出す。
func nickFromSource(source string) string {
	if i := strings.IndexByte(source, '!'); i >= 0 {
		return source[:i]
	}
	return source
}

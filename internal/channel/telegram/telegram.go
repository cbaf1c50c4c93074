// Package telegram delivers reminders to Telegram chats through a bot.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mindwatch/internal/channel"
	"mindwatch/internal/mind"
	logx "mindwatch/pkg/logx"

	tele "gopkg.in/telebot.v4"
)

const DefaultTimeout = 10 * time.Second

type Config struct {
	Token   string
	Timeout time.Duration
	// URL overrides the Bot API endpoint (tests, local bot API servers).
	URL string
}

// poster is the subset of *tele.Bot the sender uses.
type poster interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

type Sender struct {
	bot     poster
	timeout time.Duration
	log     logx.Logger
}

func New(cfg Config, log logx.Logger) (*Sender, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram: token required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	// Offline skips the getMe call so startup never depends on Telegram.
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     cfg.URL,
		Offline: true,
		Client:  newHTTPClient(cfg.Timeout),
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: bot: %w", err)
	}
	return newWithBot(b, cfg.Timeout, log), nil
}

func newWithBot(b poster, timeout time.Duration, log logx.Logger) *Sender {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sender{bot: b, timeout: timeout, log: log}
}

func (s *Sender) Kind() mind.Kind { return mind.KindTelegram }

func (s *Sender) Send(ctx context.Context, msg channel.Message) error {
	chatID, err := strconv.ParseInt(strings.TrimSpace(msg.Target), 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat id %q", msg.Target)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	opts := &tele.SendOptions{ParseMode: tele.ModeHTML, DisableWebPagePreview: true}
	if msg.CancelURL != "" {
		markup := &tele.ReplyMarkup{}
		markup.Inline(markup.Row(markup.URL("取消提醒", msg.CancelURL)))
		opts.ReplyMarkup = markup
	}

	// telebot has no per-call context; run the call so ctx cancellation still
	// returns promptly.
	done := make(chan error, 1)
	go func() {
		_, err := s.bot.Send(tele.ChatID(chatID), FormatText(msg), opts)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("telegram: send: %w", err)
		}
	case <-ctx.Done():
		return ctx.Err()
	}
	s.log.Debug("telegram sent", logx.String("mind", msg.MindID), logx.Int64("chat_id", chatID))
	return nil
}

// FormatText renders the reminder as Telegram HTML.
func FormatText(msg channel.Message) string {
	desc := msg.Description
	if strings.TrimSpace(desc) == "" {
		desc = "No description provided"
	}
	var b strings.Builder
	b.WriteString("<b>Reminder: ")
	b.WriteString(html.EscapeString(msg.Title))
	b.WriteString("</b>\n\n")
	b.WriteString(html.EscapeString(desc))
	b.WriteString("\n\n<i>Scheduled time:</i> ")
	b.WriteString(html.EscapeString(msg.Time))
	return b.String()
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

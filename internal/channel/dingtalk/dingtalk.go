// Package dingtalk posts reminders to DingTalk custom-robot webhooks as
// action cards.
package dingtalk

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"mindwatch/internal/channel"
	"mindwatch/internal/mind"
	logx "mindwatch/pkg/logx"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout = 10 * time.Second
	// DefaultPerMinute is DingTalk's documented per-robot limit.
	DefaultPerMinute = 20
)

type Config struct {
	Timeout   time.Duration
	PerMinute int
}

type Sender struct {
	client *resty.Client
	log    logx.Logger
	limit  rate.Limit
	burst  int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func New(cfg Config, log logx.Logger) *Sender {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PerMinute <= 0 {
		cfg.PerMinute = DefaultPerMinute
	}
	client := resty.New().
		SetHeader("Content-Type", "application/json").
		SetTimeout(cfg.Timeout)
	return &Sender{
		client:   client,
		log:      log,
		limit:    rate.Every(time.Minute / time.Duration(cfg.PerMinute)),
		burst:    cfg.PerMinute,
		limiters: map[string]*rate.Limiter{},
	}
}

func (s *Sender) Kind() mind.Kind { return mind.KindDingTalk }

type actionCard struct {
	Title          string `json:"title"`
	Text           string `json:"text"`
	BtnOrientation string `json:"btnOrientation"`
	SingleTitle    string `json:"singleTitle,omitempty"`
	SingleURL      string `json:"singleURL,omitempty"`
}

type payload struct {
	MsgType    string     `json:"msgtype"`
	ActionCard actionCard `json:"actionCard"`
}

// Ack is the robot API's JSON reply.
type Ack struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

func (s *Sender) Send(ctx context.Context, msg channel.Message) error {
	webhook := strings.TrimSpace(msg.Target)
	if webhook == "" {
		return fmt.Errorf("dingtalk: empty webhook")
	}
	if err := s.limiter(webhook).Wait(ctx); err != nil {
		return fmt.Errorf("dingtalk: rate limit: %w", err)
	}

	var ack Ack
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(BuildPayload(msg)).
		SetResult(&ack).
		Post(webhook)
	if err != nil {
		return fmt.Errorf("dingtalk: post: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("dingtalk: http %d", resp.StatusCode())
	}
	if ack.ErrCode != 0 {
		return fmt.Errorf("dingtalk: errcode %d: %s", ack.ErrCode, ack.ErrMsg)
	}
	s.log.Debug("dingtalk sent", logx.String("mind", msg.MindID))
	return nil
}

func (s *Sender) limiter(webhook string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[webhook]
	if !ok {
		l = rate.NewLimiter(s.limit, s.burst)
		s.limiters[webhook] = l
	}
	return l
}

// BuildPayload renders the action card for msg.
func BuildPayload(msg channel.Message) any {
	var b strings.Builder
	b.WriteString("## Reminder Details\n")
	fmt.Fprintf(&b, "- **Title**: %s\n", msg.Title)
	fmt.Fprintf(&b, "- **Description**: %s\n", msg.Description)
	fmt.Fprintf(&b, "- **Scheduled Time**: %s\n", msg.Time)
	b.WriteString("\n---\n\n> This is an automated reminder sent by the subscription reminder system.")

	card := actionCard{
		Title:          "Reminder: " + msg.Title,
		Text:           b.String(),
		BtnOrientation: "0",
	}
	if msg.CancelURL != "" {
		card.SingleTitle = "取消提醒"
		card.SingleURL = msg.CancelURL
	}
	return payload{MsgType: "actionCard", ActionCard: card}
}

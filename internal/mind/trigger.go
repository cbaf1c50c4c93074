package mind

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind names a notification channel.
type Kind string

const (
	KindEmail    Kind = "email"
	KindDingTalk Kind = "dingtalk"
	KindTelegram Kind = "telegram"
)

// Known reports whether k is a channel kind this build understands.
func (k Kind) Known() bool {
	switch k {
	case KindEmail, KindDingTalk, KindTelegram:
		return true
	default:
		return false
	}
}

// TriggerConfig is the channel configuration a trigger key resolves to.
// Entries of an unknown kind keep their original JSON so a write-back
// leaves them untouched.
//
// On the wire it keeps the kind-specific field names:
//
//	{"type":"email","to":"a@example.com"}
//	{"type":"dingtalk","webhook":"https://oapi.dingtalk.com/robot/send?access_token=..."}
//	{"type":"telegram","chat_id":"-1001234"}
type TriggerConfig struct {
	Kind   Kind
	Target string

	raw json.RawMessage
}

type triggerWire struct {
	Type    string          `json:"type,omitempty"`
	Kind    string          `json:"kind,omitempty"`
	To      string          `json:"to,omitempty"`
	Webhook string          `json:"webhook,omitempty"`
	ChatID  json.RawMessage `json:"chat_id,omitempty"`
	Target  string          `json:"target,omitempty"`
}

func (t *TriggerConfig) UnmarshalJSON(b []byte) error {
	var w triggerWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	kind := strings.ToLower(strings.TrimSpace(w.Type))
	if kind == "" {
		kind = strings.ToLower(strings.TrimSpace(w.Kind))
	}
	if kind == "" {
		return fmt.Errorf("trigger config: type required")
	}
	t.Kind = Kind(kind)
	t.Target = ""
	t.raw = nil

	switch t.Kind {
	case KindEmail:
		t.Target = firstNonEmpty(w.To, w.Target)
	case KindDingTalk:
		t.Target = firstNonEmpty(w.Webhook, w.Target)
	case KindTelegram:
		id, err := chatIDString(w.ChatID)
		if err != nil {
			return fmt.Errorf("trigger config: chat_id: %w", err)
		}
		t.Target = firstNonEmpty(id, w.Target)
	default:
		t.raw = append(json.RawMessage(nil), b...)
	}
	return nil
}

func (t TriggerConfig) MarshalJSON() ([]byte, error) {
	if !t.Kind.Known() && len(t.raw) > 0 {
		return t.raw, nil
	}
	w := triggerWire{Type: string(t.Kind)}
	switch t.Kind {
	case KindEmail:
		w.To = t.Target
	case KindDingTalk:
		w.Webhook = t.Target
	case KindTelegram:
		w.ChatID = json.RawMessage(strconv.Quote(t.Target))
	default:
		w.Target = t.Target
	}
	return json.Marshal(w)
}

// Validate checks that a config is usable for sending.
func (t TriggerConfig) Validate() error {
	if t.Kind == "" {
		return fmt.Errorf("trigger type required")
	}
	if !t.Kind.Known() {
		return fmt.Errorf("unknown trigger type %q", t.Kind)
	}
	if strings.TrimSpace(t.Target) == "" {
		switch t.Kind {
		case KindEmail:
			return fmt.Errorf("email trigger requires \"to\"")
		case KindDingTalk:
			return fmt.Errorf("dingtalk trigger requires \"webhook\"")
		default:
			return fmt.Errorf("telegram trigger requires \"chat_id\"")
		}
	}
	return nil
}

// Triggers is the trigger collection keyed by trigger key.
type Triggers map[string]TriggerConfig

// UnmarshalJSON decodes entry by entry. An entry that cannot be read as a
// trigger config (no type, not an object) becomes an unknown-kind config so
// only that key is skipped at dispatch time.
func (t *Triggers) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(Triggers, len(raw))
	for key, body := range raw {
		var c TriggerConfig
		if err := json.Unmarshal(body, &c); err != nil {
			c = TriggerConfig{raw: append(json.RawMessage(nil), body...)}
		}
		out[key] = c
	}
	*t = out
	return nil
}

// Lookup resolves key with explicit present/absent handling.
func (t Triggers) Lookup(key string) (TriggerConfig, bool) {
	if t == nil {
		return TriggerConfig{}, false
	}
	c, ok := t[key]
	return c, ok
}

func chatIDString(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

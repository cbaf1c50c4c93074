package channel

import (
	"context"
	"testing"

	"mindwatch/internal/mind"

	"github.com/stretchr/testify/assert"
)

type nopSender struct{ kind mind.Kind }

func (n nopSender) Kind() mind.Kind                     { return n.kind }
func (n nopSender) Send(context.Context, Message) error { return nil }

func TestCancelLink(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name, base, id, token, want string
	}{
		{name: "plain", base: "https://mind.example.com", id: "abc", token: "s3cret",
			want: "https://mind.example.com/api/close/abc?token=s3cret"},
		{name: "trailing slash", base: "https://mind.example.com/", id: "abc", token: "t",
			want: "https://mind.example.com/api/close/abc?token=t"},
		{name: "escaping", base: "http://h", id: "a b/c", token: "x&y",
			want: "http://h/api/close/a%20b%2Fc?token=x%26y"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CancelLink(tt.base, tt.id, tt.token))
		})
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()
	r := NewRegistry(nopSender{kind: mind.KindEmail}, nil)

	_, ok := r.Lookup(mind.KindEmail)
	assert.True(t, ok)
	_, ok = r.Lookup(mind.KindDingTalk)
	assert.False(t, ok)

	r.Set(nopSender{kind: mind.KindDingTalk})
	assert.ElementsMatch(t, []mind.Kind{mind.KindEmail, mind.KindDingTalk}, r.Kinds())

	r.Remove(mind.KindEmail)
	_, ok = r.Lookup(mind.KindEmail)
	assert.False(t, ok)
}

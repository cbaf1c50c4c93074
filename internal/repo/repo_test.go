package repo

import (
	"context"
	"testing"

	"mindwatch/internal/mind"
	"mindwatch/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAbsentDocuments(t *testing.T) {
	t.Parallel()
	r := New(storage.NewMemory())
	ctx := context.Background()

	set, ok, err := r.LoadMinds(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, set.Len())

	trig, ok, err := r.LoadTriggers(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NotNil(t, trig)

	h, ok, err := r.LoadHistory(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, h.List)
}

func TestMindsKeepMalformedEntries(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	ctx := context.Background()
	require.NoError(t, st.Put(ctx, mind.KeyMinds, []byte(`{
		"a": {"id":"a","title":"ok","time":"2025-09-09 12:00","trigger":["k"],"enabled":true},
		"b": {"id":"b","title":"bad","time":"2025-09-09 12:00","trigger":"k","enabled":true},
		"c": "garbage"
	}`)))

	r := New(st)
	set, ok, err := r.LoadMinds(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"a"}, set.IDs())
	assert.Len(t, set.Malformed(), 2)

	m, _ := set.Get("a")
	m.Enabled = false
	require.NoError(t, r.SaveMinds(ctx, set))

	raw, _, err := st.Get(ctx, mind.KeyMinds)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"c":"garbage"`)
	assert.Contains(t, string(raw), `"trigger":"k"`)
}

func TestTriggerWireFormat(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	ctx := context.Background()
	require.NoError(t, st.Put(ctx, mind.KeyTriggers, []byte(`{
		"mail": {"type":"email","to":"ops@example.com"},
		"ding": {"type":"dingtalk","webhook":"https://oapi.dingtalk.com/robot/send?access_token=x"},
		"tg":   {"type":"telegram","chat_id":-1001234},
		"sms":  {"type":"sms","phone":"123"}
	}`)))

	r := New(st)
	trig, ok, err := r.LoadTriggers(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, mind.TriggerConfig{Kind: mind.KindEmail, Target: "ops@example.com"}, trig["mail"])
	assert.Equal(t, mind.KindDingTalk, trig["ding"].Kind)
	assert.Equal(t, "-1001234", trig["tg"].Target)
	assert.False(t, trig["sms"].Kind.Known())

	require.NoError(t, r.SaveTriggers(ctx, trig))
	raw, _, err := st.Get(ctx, mind.KeyTriggers)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"to":"ops@example.com"`)
	assert.Contains(t, string(raw), `"webhook":"https://oapi.dingtalk.com/robot/send?access_token=x"`)
}

func TestUndecodableDocument(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	ctx := context.Background()
	require.NoError(t, st.Put(ctx, mind.KeyHistory, []byte(`[1,2,3]`)))

	_, ok, err := New(st).LoadHistory(ctx)
	assert.True(t, ok)
	assert.ErrorIs(t, err, ErrDecode)
}

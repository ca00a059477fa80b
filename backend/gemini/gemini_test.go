package gemini

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haegyung/xsfire-camp/backend"
	"github.com/haegyung/xsfire-camp/backend/cliexec"
	"github.com/haegyung/xsfire-camp/event"
)

func TestNew_Defaults(t *testing.T) {
	b := New()
	assert.Equal(t, "gemini", b.Binary())
}

func TestWithApprovalMode(t *testing.T) {
	b := New(WithApprovalMode("yolo"))
	args := b.StreamArgs("/tmp")
	assert.Contains(t, args, "--approval-mode")
	assert.Contains(t, args, "yolo")
}

func TestStreamArgs_DefaultOmitsApprovalFlag(t *testing.T) {
	b := New()
	args := b.StreamArgs("/tmp")
	assert.NotContains(t, args, "--approval-mode")
}

func TestFormatOperation_Compact(t *testing.T) {
	b := New()
	line, ok, err := b.FormatOperation(backend.Operation{Kind: backend.OpCompact})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, string(line), "/compress")
}

func TestFormatOperation_UnsupportedKind(t *testing.T) {
	b := New()
	_, ok, err := b.FormatOperation(backend.Operation{Kind: backend.OpUndo})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseLine_BlankLine(t *testing.T) {
	b := New()
	_, err := b.ParseLine([]byte(""))
	assert.ErrorIs(t, err, cliexec.ErrSkipLine)
}

func TestParseLine_AssistantToolUse(t *testing.T) {
	b := New()
	ev, err := b.ParseLine([]byte(`{"type":"assistant","message":{"content":[{"type":"tool_use","id":"c1","name":"read_file","input":{"path":"a.go"}}]}}`))
	require.NoError(t, err)
	assert.Equal(t, event.KindExecBegin, ev.Kind)
	assert.Equal(t, "read_file", ev.Title)
}

func TestParseLine_Result(t *testing.T) {
	b := New()
	ev, err := b.ParseLine([]byte(`{"type":"result","subtype":"success"}`))
	require.NoError(t, err)
	assert.Equal(t, event.KindTurnComplete, ev.Kind)
}

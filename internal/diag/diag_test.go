package diag

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecordsAndLogs(t *testing.T) {
	var buf bytes.Buffer
	c := NewCollector(zerolog.New(&buf))

	c.Warnf(CodeDuplicateHash, "[%s] duplicate hash", "ShaderOverrideA")
	c.Warnf(CodeMissingHash, "[%s] missing hash", "TextureOverrideB")
	c.Warnf(CodeDuplicateHash, "[%s] duplicate hash", "ShaderOverrideC")
	c.Noticef(CodeDeprecated, "option %s is deprecated", "iteration")

	require.Equal(t, 3, c.Count())
	require.Equal(t, 2, c.CountCode(CodeDuplicateHash))
	warnings := c.Warnings()
	require.Equal(t, "[ShaderOverrideA] duplicate hash", warnings[0].Message)
	require.Equal(t, CodeMissingHash, warnings[1].Code)
	require.False(t, warnings[0].Timestamp.IsZero())

	out := buf.String()
	require.Contains(t, out, `"level":"warn"`)
	require.Contains(t, out, `"code":"override.duplicate_hash"`)
	require.Contains(t, out, `"level":"info"`)
	require.Contains(t, out, "option iteration is deprecated")
}

func TestCollectorNilSafe(t *testing.T) {
	var c *Collector
	c.Warnf(CodeUnknownSection, "ignored")
	c.Noticef(CodeDeprecated, "ignored")
	require.Zero(t, c.Count())
	require.Nil(t, c.Warnings())
	require.Zero(t, c.CountCode(CodeUnknownSection))
	c.Flush(NotifierFunc(func(int) { t.Fatal("nil collector must not notify") }))
	logger := c.Logger()
	logger.Info().Msg("discarded")
}

func TestFlushNotifiesOnlyWithWarnings(t *testing.T) {
	var calls []int
	notifier := NotifierFunc(func(n int) { calls = append(calls, n) })

	clean := NewCollector(zerolog.Nop())
	clean.Flush(notifier)
	require.Empty(t, calls)

	dirty := NewCollector(zerolog.Nop())
	dirty.Warnf(CodeMalformedCommand, "a")
	dirty.Warnf(CodeMalformedCommand, "b")
	dirty.Flush(notifier)
	dirty.Flush(nil)
	require.Equal(t, []int{2}, calls)

	NoopNotifier().Notify(3)
}

func TestBellNotifier(t *testing.T) {
	var buf bytes.Buffer
	bell := &BellNotifier{Out: &buf}
	bell.Notify(0)
	require.Empty(t, buf.String())
	bell.Notify(2)
	require.Equal(t, "\a", buf.String())

	var nilBell *BellNotifier
	nilBell.Notify(1)
}

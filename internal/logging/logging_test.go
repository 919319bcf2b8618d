package logging

import (
	"bytes"
	"testing"

	"github.com/prometheus/common/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/timzifer/d3dxini/config"
)

func TestSetupLevels(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.LoggingSettings
		want zerolog.Level
	}{
		{"default", config.LoggingSettings{}, zerolog.InfoLevel},
		{"explicit", config.LoggingSettings{Level: "WARN"}, zerolog.WarnLevel},
		{"debug flag", config.LoggingSettings{Debug: true}, zerolog.DebugLevel},
		{"level wins over debug", config.LoggingSettings{Debug: true, Level: "error"}, zerolog.ErrorLevel},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger, cleanup, err := setup(tc.cfg, &buf)
			require.NoError(t, err)
			defer cleanup()
			require.Equal(t, tc.want, logger.GetLevel())
		})
	}
}

func TestSetupRejectsUnknownLevel(t *testing.T) {
	_, _, err := Setup(config.LoggingSettings{Level: "chatty"})
	require.Error(t, err)
}

func TestSetupJSONAndText(t *testing.T) {
	var buf bytes.Buffer
	logger, cleanup, err := setup(config.LoggingSettings{}, &buf)
	require.NoError(t, err)
	defer cleanup()
	logger.Info().Str("code", "ini.duplicate_key").Msg("hello")
	require.Contains(t, buf.String(), `"code":"ini.duplicate_key"`)

	buf.Reset()
	logger, cleanup, err = setup(config.LoggingSettings{Format: "text"}, &buf)
	require.NoError(t, err)
	defer cleanup()
	logger.Info().Msg("hello")
	require.Contains(t, buf.String(), "hello")
	require.NotContains(t, buf.String(), `"message"`)
}

func TestLokiLabels(t *testing.T) {
	require.Equal(t, model.LabelSet{"app": "d3dxini"}, lokiLabels(nil))
	require.Equal(t, model.LabelSet{"game": "witcher"}, lokiLabels(map[string]string{"game": "witcher", "bad-name": "x"}))
}

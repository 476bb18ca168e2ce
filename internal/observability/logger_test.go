package observability

import (
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"INFO", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"", zerolog.InfoLevel},
		{"nonsense", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}

func TestNewLogger(t *testing.T) {
	log := NewLogger(LoggingConfig{Level: "debug", Format: "json", Output: "stdout"})
	assert.Equal(t, zerolog.DebugLevel, log.GetLevel())

	log = NewLogger(DefaultLoggingConfig())
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())
}

func TestContextHelpers(t *testing.T) {
	base := zerolog.Nop()

	// The helpers must return usable loggers without panicking on zero inputs.
	mergeLogger := WithMergeContext(base, uuid.New(), 3)
	mergeLogger.Info().Msg("merge")
	groupLogger := WithGroupContext(base, uuid.New(), 2)
	groupLogger.Info().Msg("group")
	pubLogger := WithPublicationContext(base, uuid.NewString(), "10.1000/x")
	pubLogger.Info().Msg("pub")
	reqLogger := WithRequestContext(base, "req-1", "POST", "/admin/v1/x")
	reqLogger.Info().Msg("req")
}

package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestConsoleWriterTimestamps(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(consoleWriter(&buf, true)).With().Timestamp().Logger()
	l.Info().Msg("ready")
	assert.True(t, strings.HasPrefix(strings.TrimSpace(stripANSI(buf.String())), "INF ready"), buf.String())

	buf.Reset()
	l = zerolog.New(consoleWriter(&buf, false)).With().Timestamp().Logger()
	l.Info().Msg("ready")
	out := stripANSI(buf.String())
	assert.False(t, strings.HasPrefix(out, "INF"), out)
	assert.Contains(t, out, "INF ready")
}

func stripANSI(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == 0x1b {
			for i < len(s) && s[i] != 'm' {
				i++
			}
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

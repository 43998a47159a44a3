package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologAdapterWritesComponentAndFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewZerolog(&buf, DebugLevel)

	log.Info("Segmenter", "segmentation completed", map[string]interface{}{"labels": 3})

	var event map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))
	assert.Equal(t, "info", event["level"])
	assert.Equal(t, "Segmenter", event["component"])
	assert.Equal(t, "segmentation completed", event["message"])
	assert.EqualValues(t, 3, event["labels"])
}

func TestZerologAdapterRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewZerolog(&buf, WarnLevel)

	log.Debug("Loader", "hidden", nil)
	log.Info("Loader", "hidden", nil)
	assert.Zero(t, buf.Len())

	log.Error("Loader", errors.New("decode failed"), map[string]interface{}{"path": "a.png"})
	out := buf.String()
	assert.True(t, strings.Contains(out, "decode failed"))
	assert.True(t, strings.Contains(out, "a.png"))
}

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"":        InfoLevel,
		"debug":   DebugLevel,
		"INFO":    InfoLevel,
		"warning": WarnLevel,
		"warn":    WarnLevel,
		" error ": ErrorLevel,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextFieldsPropagate(t *testing.T) {
	var buf bytes.Buffer
	base := New(&Config{Level: "debug", Format: "json", Output: &buf, ServiceName: "test"})

	ctx := base.WithContext(context.Background())
	ctx = SetRunID(ctx, "run-1")
	ctx = SetPhase(ctx, "evidence")

	With(Fields{FieldCount: 3}).Info(ctx, "collected %d sources", 3)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "run-1", line[FieldRunID])
	assert.Equal(t, "evidence", line[FieldPhase])
	assert.Equal(t, float64(3), line[FieldCount])
	assert.Equal(t, "collected 3 sources", line["message"])
	assert.Equal(t, "test", line["service"])
	assert.Equal(t, "run-1", GetRunID(ctx))
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	assert.Same(t, GetDefault(), FromContext(context.Background()))
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(&Config{Level: "warn", Format: "text", Output: &buf})
	l.Info("dropped")
	l.Warn("kept")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithFieldsAddsAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, false)

	logger.WithFields(map[string]any{"account_id": "abc"}).Info("hello")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "hello", record["msg"])
	assert.Equal(t, "abc", record["account_id"])
}

func TestGetLoggerFromContext(t *testing.T) {
	logger := NewDiscardLogger()
	ctx := WithLogger(context.Background(), logger)

	assert.Same(t, logger, GetLoggerFromContext(ctx))
	assert.NotNil(t, GetLoggerFromContext(context.Background()))
}

func TestRequestLoggerRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, false)

	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotNil(t, r.Context().Value(LoggerContextKey))
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Contains(t, buf.String(), `"status":418`)
	assert.Contains(t, buf.String(), `"level":"WARN"`)
}

func TestRequestLoggerCarriesAddedFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, false)

	r := chi.NewRouter()
	r.Use(RequestLogger(logger))
	r.Get("/auth/me", func(w http.ResponseWriter, r *http.Request) {
		AddFields(r.Context(), map[string]any{"account_id": "acc-1"})
		GetLoggerFromContext(r.Context()).Info("loaded profile")
		_, _ = w.Write([]byte("ok"))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/me", nil))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var handlerLine, completed map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &handlerLine))
	require.NoError(t, json.Unmarshal(lines[1], &completed))

	assert.Equal(t, "acc-1", handlerLine["account_id"])
	assert.Equal(t, "request completed", completed["msg"])
	assert.Equal(t, "acc-1", completed["account_id"])
	assert.Equal(t, "/auth/me", completed["route"])
	assert.Equal(t, float64(http.StatusOK), completed["status"])
	assert.Equal(t, float64(2), completed["bytes"])
}

func TestAddFieldsWithoutScope(t *testing.T) {
	assert.NotPanics(t, func() {
		AddFields(context.Background(), map[string]any{"account_id": "x"})
	})
}

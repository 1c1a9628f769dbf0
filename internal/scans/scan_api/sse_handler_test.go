package scan_api

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-scanning/internal/scans/scantest"
)

func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var event, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "" && event != "":
			return event, data
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestCounterStream(t *testing.T) {
	env := newTestEnv(t)
	slot := scantest.SeedSlot(t, env.store, "abc123", true)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/counters/stream", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	body := bufio.NewReader(resp.Body)
	event, _ := readEvent(t, body)
	require.Equal(t, "connected", event)

	scan, err := http.Get(srv.URL + "/s/abc123")
	require.NoError(t, err)
	scan.Body.Close()

	event, data := readEvent(t, body)
	assert.Equal(t, "scan", event)
	assert.Contains(t, data, `"total":1`)
	assert.Contains(t, data, fmt.Sprintf(`"qr_slot_id":%d`, slot.ID))
}

func TestCounterStream_EndsWhenEmitterCloses(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/counters/stream?slot=1", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body := bufio.NewReader(resp.Body)
	event, _ := readEvent(t, body)
	require.Equal(t, "connected", event)

	env.handler.Events.Close()
	rest, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Empty(t, strings.TrimSpace(string(rest)))
}

func TestCounterStream_BadSlot(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/counters/stream?slot=x", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL)
}

func TestClientInvokeSendsNamedArgs(t *testing.T) {
	var gotPath string
	var gotArgs map[string]any
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotArgs)
		_ = json.NewEncoder(w).Encode(Settings{Schema: 1, Channel: ChannelBeta, Profile: "default"})
	})

	s, err := c.SetChannel(context.Background(), ChannelBeta)
	require.NoError(t, err)
	assert.Equal(t, "/api/invoke/settings_set_channel", gotPath)
	assert.Equal(t, map[string]any{"channel": "beta"}, gotArgs)
	assert.Equal(t, ChannelBeta, s.Channel)
}

func TestClientPinnedTagNullMeansLatest(t *testing.T) {
	var gotArgs map[string]any
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotArgs)
		_ = json.NewEncoder(w).Encode(Settings{})
	})

	_, err := c.SetPinnedTag(context.Background(), "")
	require.NoError(t, err)
	v, ok := gotArgs["pinnedTag"]
	assert.True(t, ok)
	assert.Nil(t, v)

	_, err = c.SetPinnedTag(context.Background(), "v1.2.0")
	require.NoError(t, err)
	assert.Equal(t, "v1.2.0", gotArgs["pinnedTag"])
}

func TestClientNormalizesBackendErrors(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = fmt.Fprint(w, `{"code":"flash_failed","message":"firmware flash failed","details":{"exit_code":3}}`)
	})

	_, err := c.FlashFirmware(context.Background(), "default")
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "flash_failed", apiErr.Code)
	assert.Equal(t, map[string]any{"exit_code": 3.0}, apiErr.Details)
}

func TestClientEmptyErrorBody(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.Status(context.Background())
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, CodeTransport, apiErr.Code)
}

func TestClientTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url).DeviceStatus(context.Background())
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, CodeTransport, apiErr.Code)
}

func TestClientCanceledContext(t *testing.T) {
	done := make(chan struct{})
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-done:
		}
	})
	t.Cleanup(func() { close(done) })
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.BridgeStatus(ctx)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, CodeTimeout, apiErr.Code)
}

func TestSubscribeDeliversInOrder(t *testing.T) {
	release := make(chan struct{})
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/events/flash" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-release
		bw := bufio.NewWriter(w)
		enc := json.NewEncoder(bw)
		_ = enc.Encode(FlashEvent{Type: FlashBegin, Profile: "default"})
		_, _ = bw.WriteString("not json\n")
		for i := 0; i < 5; i++ {
			_ = enc.Encode(FlashEvent{Type: FlashOutput, Line: fmt.Sprintf(`{"event":"block","i":%d,"n":5}`, i)})
		}
		_ = enc.Encode(FlashEvent{Type: FlashDone, OK: true})
		_ = bw.Flush()
	})

	var mu sync.Mutex
	var got []FlashEvent
	done := make(chan struct{})
	sub, err := c.SubscribeFlash(context.Background(), func(e FlashEvent) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
		if e.Type == FlashDone {
			close(done)
		}
	})
	require.NoError(t, err)
	close(release)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for events")
	}
	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, sub.Unsubscribe())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 7)
	assert.Equal(t, FlashBegin, got[0].Type)
	for i := 1; i <= 5; i++ {
		assert.Equal(t, fmt.Sprintf(`{"event":"block","i":%d,"n":5}`, i-1), got[i].Line)
	}
	assert.True(t, got[6].OK)
}

func TestSubscribeUnknownStream(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = fmt.Fprint(w, `{"code":"unknown_stream","message":"no such stream"}`)
	})

	_, err := c.SubscribeInstall(context.Background(), func(InstallEvent) {})
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "unknown_stream", apiErr.Code)
}

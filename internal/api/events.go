package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
)

const maxEventLine = 1 << 20

// stream is one NDJSON event subscription.
type stream struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Unsubscribe stops the stream and waits for its reader to exit.
func (s *stream) Unsubscribe() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}

func (c *Client) SubscribeInstall(ctx context.Context, fn func(InstallEvent)) (Subscription, error) {
	return subscribe(ctx, c, StreamInstall, fn)
}

func (c *Client) SubscribeFlash(ctx context.Context, fn func(FlashEvent)) (Subscription, error) {
	return subscribe(ctx, c, StreamFlash, fn)
}

// subscribe returns once the server has accepted the stream, so events
// published after it returns are not missed.
func subscribe[T any](ctx context.Context, c *Client, name string, fn func(T)) (Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/events/"+name, nil)
	if err != nil {
		cancel()
		return nil, NewError(CodeTransport, err.Error(), nil)
	}
	req.Header.Set("Accept", "application/x-ndjson")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		cancel()
		return nil, NewError(CodeTransport, fmt.Sprintf("subscribe %s: %v", name, err), nil)
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		cancel()
		return nil, Normalize(raw)
	}

	s := &stream{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(s.done)
		defer resp.Body.Close()

		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 0, 64*1024), maxEventLine)
		for sc.Scan() {
			line := sc.Bytes()
			if len(line) == 0 {
				continue
			}
			var ev T
			if err := json.Unmarshal(line, &ev); err != nil {
				c.logger.Warn("dropping malformed event", "stream", name, "err", err)
				continue
			}
			fn(ev)
		}
		if err := sc.Err(); err != nil && !errors.Is(err, context.Canceled) && ctx.Err() == nil {
			c.logger.Warn("event stream ended", "stream", name, "err", err)
		}
	}()
	return s, nil
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"

	"msmanager/internal/logging"
)

const maxErrorBody = 1 << 20

// Client talks to a backend over HTTP: commands are POSTed to
// /api/invoke/{command} and events are read as NDJSON from /api/events/{stream}.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	logger     *log.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client. Long-running commands
// (flash, install) rely on context deadlines, so the client should not set
// a global Timeout.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.HTTPClient = hc
		}
	}
}

func WithLogger(l *log.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{},
		logger:     logging.Logger(logging.SourceAPI),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

var (
	_ Backend     = (*Client)(nil)
	_ EventSource = (*Client)(nil)
)

// Invoke runs one command. Every failure comes back as an *Error.
func (c *Client) Invoke(ctx context.Context, command string, args map[string]any, out any) error {
	if args == nil {
		args = map[string]any{}
	}
	body, err := json.Marshal(args)
	if err != nil {
		return NewError(CodeDecode, fmt.Sprintf("marshal %s args: %v", command, err), nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/invoke/"+command, bytes.NewReader(body))
	if err != nil {
		return NewError(CodeTransport, err.Error(), nil)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Normalize(ctx.Err())
		}
		return NewError(CodeTransport, err.Error(), map[string]any{"command": command})
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := Normalize(raw)
		if len(bytes.TrimSpace(raw)) == 0 {
			apiErr = NewError(CodeTransport, resp.Status, nil)
		}
		c.logger.Debug("command failed", "command", command, "status", resp.StatusCode, "code", apiErr.Code)
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return NewError(CodeDecode, fmt.Sprintf("decode %s result: %v", command, err), nil)
	}
	return nil
}

func (c *Client) Status(ctx context.Context) (Status, error) {
	var st Status
	err := c.Invoke(ctx, CmdStatusGet, nil, &st)
	return st, err
}

func (c *Client) DeviceStatus(ctx context.Context) (DeviceStatus, error) {
	var ds DeviceStatus
	err := c.Invoke(ctx, CmdDeviceStatusGet, nil, &ds)
	return ds, err
}

func (c *Client) BridgeStatus(ctx context.Context) (BridgeStatus, error) {
	var bs BridgeStatus
	err := c.Invoke(ctx, CmdBridgeStatusGet, nil, &bs)
	return bs, err
}

func (c *Client) SetChannel(ctx context.Context, channel Channel) (Settings, error) {
	var s Settings
	err := c.Invoke(ctx, CmdSettingsSetChannel, map[string]any{"channel": channel}, &s)
	return s, err
}

func (c *Client) SetProfile(ctx context.Context, profile string) (Settings, error) {
	var s Settings
	err := c.Invoke(ctx, CmdSettingsSetProfile, map[string]any{"profile": profile}, &s)
	return s, err
}

func (c *Client) SetPinnedTag(ctx context.Context, tag string) (Settings, error) {
	var pinned any
	if tag != "" {
		pinned = tag
	}
	var s Settings
	err := c.Invoke(ctx, CmdSettingsSetPinnedTag, map[string]any{"pinnedTag": pinned}, &s)
	return s, err
}

func (c *Client) ResolveLatestManifest(ctx context.Context, channel Channel) (LatestManifestResponse, error) {
	var r LatestManifestResponse
	err := c.Invoke(ctx, CmdResolveLatestManifest, map[string]any{"channel": channel}, &r)
	return r, err
}

func (c *Client) ResolveManifestForTag(ctx context.Context, channel Channel, tag string) (LatestManifestResponse, error) {
	var r LatestManifestResponse
	err := c.Invoke(ctx, CmdResolveManifestForTag, map[string]any{"channel": channel, "tag": tag}, &r)
	return r, err
}

func (c *Client) ListChannelTags(ctx context.Context, channel Channel) ([]string, error) {
	var tags []string
	err := c.Invoke(ctx, CmdListChannelTags, map[string]any{"channel": channel}, &tags)
	return tags, err
}

func (c *Client) InstallSelected(ctx context.Context) (InstallState, error) {
	var st InstallState
	err := c.Invoke(ctx, CmdInstallSelected, nil, &st)
	return st, err
}

func (c *Client) FlashFirmware(ctx context.Context, profile string) (LastFlashed, error) {
	var lf LastFlashed
	err := c.Invoke(ctx, CmdFlashFirmware, map[string]any{"profile": profile}, &lf)
	return lf, err
}

func (c *Client) RelocatePayloadRoot(ctx context.Context, newRoot string) (Status, error) {
	var st Status
	err := c.Invoke(ctx, CmdPayloadRootRelocate, map[string]any{"newRoot": newRoot}, &st)
	return st, err
}

func (c *Client) CheckAppUpdate(ctx context.Context) (AppUpdateStatus, error) {
	var st AppUpdateStatus
	err := c.Invoke(ctx, CmdAppUpdateCheck, nil, &st)
	return st, err
}

func (c *Client) OpenLatestAppUpdate(ctx context.Context) error {
	return c.Invoke(ctx, CmdAppUpdateOpenLatest, nil, nil)
}

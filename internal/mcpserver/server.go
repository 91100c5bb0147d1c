package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"msmanager/internal/activity"
	"msmanager/internal/logging"
	"msmanager/internal/output"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 500
)

// ErrNoJournal is returned when archived activity is requested but no
// journal is attached.
var ErrNoJournal = errors.New("activity archive not available")

// History reads archived activity.
type History interface {
	Recent(ctx context.Context, limit int, scope activity.Scope) ([]activity.Entry, error)
}

// Server exposes read-only dashboard tools over MCP.
type Server struct {
	mcpServer *mcp.Server
	loader    output.Loader
	activity  *activity.Log
	history   History
	logger    *log.Logger

	refreshMu sync.Mutex

	// Background refresh worker
	bgMu     sync.Mutex
	bgCancel context.CancelFunc
	bgWg     sync.WaitGroup
}

// Config holds configuration for the MCP server.
type Config struct {
	ServerName      string
	ServerVersion   string
	RefreshInterval time.Duration // 0 disables background refresh
}

func DefaultConfig() Config {
	return Config{
		ServerName:      "msmanager",
		ServerVersion:   "0.1.0",
		RefreshInterval: 30 * time.Second,
	}
}

// NewServer creates the MCP server. history may be nil.
func NewServer(cfg Config, loader output.Loader, activityLog *activity.Log, history History) (*Server, error) {
	if loader == nil || activityLog == nil {
		return nil, errors.New("loader and activity log are required")
	}
	impl := &mcp.Implementation{
		Name:    cfg.ServerName,
		Version: cfg.ServerVersion,
	}
	s := &Server{
		mcpServer: mcp.NewServer(impl, nil),
		loader:    loader,
		activity:  activityLog,
		history:   history,
		logger:    logging.Logger(logging.SourceMCP),
	}
	s.registerTools()

	if err := s.refresh(context.Background()); err != nil {
		s.logger.Warn("initial refresh failed", "err", err)
	}
	if cfg.RefreshInterval > 0 {
		s.startBackgroundRefresh(cfg.RefreshInterval)
	}
	return s, nil
}

// StateArgs defines the input for get_dashboard_state and get_health.
type StateArgs struct {
	Refresh bool `json:"refresh,omitempty" jsonschema:"reload everything from the backend before answering"`
}

// DashboardStateResult is the JSON view of the dashboard.
type DashboardStateResult struct {
	Channel        string   `json:"channel"`
	Profile        string   `json:"profile"`
	PinnedTag      string   `json:"pinned_tag,omitempty"`
	Tags           []string `json:"tags"`
	ProfileOptions []string `json:"profile_options"`
	ReleaseTag     string   `json:"release_tag,omitempty"`
	ReleaseMessage string   `json:"release_message,omitempty"`
	InstalledTag   string   `json:"installed_tag,omitempty"`
	HostInstalled  bool     `json:"host_installed"`
	PayloadRoot    string   `json:"payload_root"`
	Controllers    int      `json:"controllers"`
	BridgeRunning  bool     `json:"bridge_running"`
	BridgePaused   bool     `json:"bridge_paused"`
	LastFlashedTag string   `json:"last_flashed_tag,omitempty"`
	Now            string   `json:"now,omitempty"`
	FlashPercent   int      `json:"flash_percent,omitempty"`
	Busy           bool     `json:"busy"`
	LastError      string   `json:"last_error,omitempty"`
	AppUpdate      string   `json:"app_update,omitempty"`
}

// ActivityArgs defines the input for get_activity.
type ActivityArgs struct {
	Limit    int    `json:"limit,omitempty" jsonschema:"number of entries to return"`
	Scope    string `json:"scope,omitempty" jsonschema:"only entries of this scope: ui, net, install, flash, device, fs"`
	Archived bool   `json:"archived,omitempty" jsonschema:"read the persistent archive instead of this session"`
}

type ActivityEntry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Scope   string    `json:"scope"`
	Message string    `json:"message"`
}

type ActivityResult struct {
	Entries []ActivityEntry `json:"entries"`
}

type HealthCheck struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Note   string `json:"note,omitempty"`
}

type HealthResult struct {
	Overall string        `json:"overall"`
	Checks  []HealthCheck `json:"checks"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_dashboard_state",
		Description: "Get the firmware manager dashboard: selected channel, profile and release, installed bundle, controller and bridge status, and what is happening right now.",
	}, s.handleGetDashboardState)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_activity",
		Description: "Get recent activity log entries, newest first. Filter by scope; set archived to read entries from earlier sessions.",
	}, s.handleGetActivity)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_health",
		Description: "Evaluate the dashboard: host bundle, controller, bridge, release, install drift, firmware and backend errors graded OK, WARN or CRIT.",
	}, s.handleGetHealth)
}

func (s *Server) handleGetDashboardState(ctx context.Context, _ *mcp.CallToolRequest, args StateArgs) (*mcp.CallToolResult, DashboardStateResult, error) {
	if args.Refresh {
		if err := s.refresh(ctx); err != nil {
			return nil, DashboardStateResult{}, err
		}
	}
	snap := output.Evaluate(s.loader.State())
	st := snap.State

	out := DashboardStateResult{
		Channel:        string(st.Channel),
		Profile:        st.Profile,
		PinnedTag:      st.PinnedTag,
		Tags:           append([]string{}, st.Tags...),
		ProfileOptions: append([]string{}, st.ProfileOptions...),
		HostInstalled:  st.HostInstalled,
		PayloadRoot:    st.PayloadRoot,
		Controllers:    st.Device.Count,
		BridgeRunning:  st.Bridge.Running,
		BridgePaused:   st.Bridge.Paused,
		Now:            st.Now,
		FlashPercent:   st.FlashPercent,
		Busy:           st.Busy(),
		LastError:      snap.Report.Error,
		AppUpdate:      snap.Report.AppUpdate,
	}
	if st.Release != nil {
		out.ReleaseTag = st.Release.Tag
		out.ReleaseMessage = st.Release.Message
	}
	if st.Installed != nil {
		out.InstalledTag = st.Installed.Tag
	}
	if st.LastFlashed != nil {
		out.LastFlashedTag = st.LastFlashed.Tag
	}
	return nil, out, nil
}

func (s *Server) handleGetActivity(ctx context.Context, _ *mcp.CallToolRequest, args ActivityArgs) (*mcp.CallToolResult, ActivityResult, error) {
	limit := args.Limit
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	if limit > maxActivityLimit {
		limit = maxActivityLimit
	}

	var scope activity.Scope
	if args.Scope != "" && args.Scope != "all" {
		sc, ok := activity.ParseScope(args.Scope)
		if !ok {
			return nil, ActivityResult{}, fmt.Errorf("invalid scope: %s", args.Scope)
		}
		scope = sc
	}

	var entries []activity.Entry
	if args.Archived {
		if s.history == nil {
			return nil, ActivityResult{}, ErrNoJournal
		}
		var err error
		entries, err = s.history.Recent(ctx, limit, scope)
		if err != nil {
			return nil, ActivityResult{}, fmt.Errorf("failed to query archive: %w", err)
		}
	} else {
		all := activity.Filter(s.activity.Entries(), scope)
		for i := len(all) - 1; i >= 0 && len(entries) < limit; i-- {
			entries = append(entries, all[i])
		}
	}

	out := ActivityResult{Entries: make([]ActivityEntry, 0, len(entries))}
	for _, e := range entries {
		out.Entries = append(out.Entries, ActivityEntry{
			Time:    e.Time,
			Level:   string(e.Level),
			Scope:   string(e.Scope),
			Message: e.Message,
		})
	}
	return nil, out, nil
}

func (s *Server) handleGetHealth(ctx context.Context, _ *mcp.CallToolRequest, args StateArgs) (*mcp.CallToolResult, HealthResult, error) {
	if args.Refresh {
		if err := s.refresh(ctx); err != nil {
			return nil, HealthResult{}, err
		}
	}
	snap := output.Evaluate(s.loader.State())
	out := HealthResult{Overall: snap.Report.Overall, Checks: make([]HealthCheck, 0, len(snap.Checks))}
	for _, c := range snap.Checks {
		out.Checks = append(out.Checks, HealthCheck{Name: c.Name, Status: c.Status, Note: c.Note})
	}
	return nil, out, nil
}

// Start serves MCP on stdio.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("serving MCP on stdio")
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}

// Close stops the background refresh.
func (s *Server) Close(ctx context.Context) error {
	s.stopBackgroundRefresh()
	return nil
}

// refresh reloads the dashboard once; calls never overlap.
func (s *Server) refresh(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	if _, err := output.RunSnapshot(ctx, s.loader); err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}
	return nil
}

func (s *Server) startBackgroundRefresh(interval time.Duration) {
	s.bgMu.Lock()
	defer s.bgMu.Unlock()

	if s.bgCancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel
	s.bgWg.Add(1)

	go func() {
		defer s.bgWg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.refresh(ctx); err != nil {
					s.logger.Warn("background refresh failed", "err", err)
				}
			}
		}
	}()

	s.logger.Debug("background refresh started", "interval", interval)
}

func (s *Server) stopBackgroundRefresh() {
	s.bgMu.Lock()
	cancel := s.bgCancel
	s.bgCancel = nil
	s.bgMu.Unlock()

	if cancel != nil {
		cancel()
		s.bgWg.Wait()
	}
}

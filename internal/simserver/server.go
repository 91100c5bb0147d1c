// Package simserver exposes a simulated backend over HTTP: commands as
// POST /api/invoke/{command} and event streams as NDJSON.
package simserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"msmanager/internal/api"
	"msmanager/internal/logging"
	"msmanager/internal/sim"
)

const codeBadRequest = "bad_request"

// invokeArgs carries every named argument a command may take.
type invokeArgs struct {
	Channel   api.Channel `json:"channel"`
	Profile   string      `json:"profile"`
	PinnedTag *string     `json:"pinnedTag"`
	Tag       string      `json:"tag"`
	NewRoot   string      `json:"newRoot"`
}

type handler func(ctx context.Context, a invokeArgs) (any, error)

type Server struct {
	backend  *sim.Backend
	router   *gin.Engine
	commands map[string]handler
	logger   *log.Logger
}

func New(backend *sim.Backend) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		backend: backend,
		router:  gin.New(),
		logger:  logging.Logger(logging.SourceSimServer),
	}
	s.commands = s.commandTable()

	s.router.Use(gin.Recovery())
	s.router.GET("/healthz", s.handleHealth)
	group := s.router.Group("/api")
	group.POST("/invoke/:command", s.handleInvoke)
	group.GET("/events/:stream", s.handleEvents)
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) commandTable() map[string]handler {
	b := s.backend
	return map[string]handler{
		api.CmdStatusGet: func(ctx context.Context, _ invokeArgs) (any, error) {
			return b.Status(ctx)
		},
		api.CmdDeviceStatusGet: func(ctx context.Context, _ invokeArgs) (any, error) {
			return b.DeviceStatus(ctx)
		},
		api.CmdBridgeStatusGet: func(ctx context.Context, _ invokeArgs) (any, error) {
			return b.BridgeStatus(ctx)
		},
		api.CmdSettingsSetChannel: func(ctx context.Context, a invokeArgs) (any, error) {
			return b.SetChannel(ctx, a.Channel)
		},
		api.CmdSettingsSetProfile: func(ctx context.Context, a invokeArgs) (any, error) {
			return b.SetProfile(ctx, a.Profile)
		},
		api.CmdSettingsSetPinnedTag: func(ctx context.Context, a invokeArgs) (any, error) {
			tag := ""
			if a.PinnedTag != nil {
				tag = *a.PinnedTag
			}
			return b.SetPinnedTag(ctx, tag)
		},
		api.CmdResolveLatestManifest: func(ctx context.Context, a invokeArgs) (any, error) {
			return b.ResolveLatestManifest(ctx, a.Channel)
		},
		api.CmdResolveManifestForTag: func(ctx context.Context, a invokeArgs) (any, error) {
			return b.ResolveManifestForTag(ctx, a.Channel, a.Tag)
		},
		api.CmdListChannelTags: func(ctx context.Context, a invokeArgs) (any, error) {
			return b.ListChannelTags(ctx, a.Channel)
		},
		api.CmdInstallSelected: func(ctx context.Context, _ invokeArgs) (any, error) {
			return b.InstallSelected(ctx)
		},
		api.CmdFlashFirmware: func(ctx context.Context, a invokeArgs) (any, error) {
			return b.FlashFirmware(ctx, a.Profile)
		},
		api.CmdPayloadRootRelocate: func(ctx context.Context, a invokeArgs) (any, error) {
			return b.RelocatePayloadRoot(ctx, a.NewRoot)
		},
		api.CmdAppUpdateCheck: func(ctx context.Context, _ invokeArgs) (any, error) {
			return b.CheckAppUpdate(ctx)
		},
		api.CmdAppUpdateOpenLatest: func(ctx context.Context, _ invokeArgs) (any, error) {
			return nil, b.OpenLatestAppUpdate(ctx)
		},
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleInvoke(c *gin.Context) {
	name := c.Param("command")
	h, ok := s.commands[name]
	if !ok {
		c.JSON(http.StatusNotFound, api.NewError("unknown_command", fmt.Sprintf("%v: %s", api.ErrUnknownCommand, name), nil))
		return
	}

	var args invokeArgs
	if err := c.ShouldBindJSON(&args); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, api.NewError(codeBadRequest, "invalid request body", err.Error()))
		return
	}

	start := time.Now()
	out, err := h(c.Request.Context(), args)
	if err != nil {
		e := api.Normalize(err)
		s.logger.Warn("command failed", "command", name, "code", e.Code, "err", e.Message)
		c.JSON(statusFor(e), e)
		return
	}
	s.logger.Debug("command", "command", name, "took", time.Since(start))
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleEvents(c *gin.Context) {
	switch name := c.Param("stream"); name {
	case api.StreamInstall:
		stream(c, s.backend.InstallEvents())
	case api.StreamFlash:
		stream(c, s.backend.FlashEvents())
	default:
		c.JSON(http.StatusNotFound, api.NewError("unknown_stream", fmt.Sprintf("%v: %s", api.ErrUnknownStream, name), nil))
	}
}

// stream writes hub events as NDJSON until the client goes away. The
// subscription exists before the headers are flushed.
func stream[T any](c *gin.Context, hub *sim.Hub[T]) {
	events, cancel := hub.Subscribe()
	defer cancel()

	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	enc := json.NewEncoder(c.Writer)
	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := enc.Encode(ev); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}

func statusFor(e *api.Error) int {
	switch {
	case e.Code == api.CodeCanceled || e.Code == api.CodeTimeout:
		return http.StatusGatewayTimeout
	case strings.HasPrefix(e.Code, "invalid_"), e.Code == sim.CodePayloadRootInvalid, e.Code == sim.CodeInvalidPath:
		return http.StatusBadRequest
	case e.Code == sim.CodeNotInstalled, e.Code == sim.CodeNoDevice, e.Code == sim.CodeNoReleases,
		e.Code == sim.CodeNoMatchingSet, e.Code == sim.CodeAppUpdateMissing:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

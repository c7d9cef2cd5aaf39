package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/smazurov/simstream/internal/api/models"
	"github.com/smazurov/simstream/internal/capture"
	"github.com/smazurov/simstream/internal/events"
	"github.com/smazurov/simstream/internal/logging"
	"github.com/smazurov/simstream/internal/session"
	"github.com/smazurov/simstream/internal/simctl"
	"github.com/smazurov/simstream/internal/version"
)

// SimulatorService lists simulators and launches apps on them.
type SimulatorService interface {
	List(ctx context.Context) ([]simctl.Simulator, error)
	InstallAndLaunch(ctx context.Context, udid, appPath, bundleID string) (string, error)
}

// Options configures the API server.
type Options struct {
	AuthUsername string
	AuthPassword string

	Registry   *session.Registry
	Simulators SimulatorService // Optional, simulator routes are skipped when nil
	EventBus   *events.Bus      // Optional, SSE routes are skipped when nil

	// Defaults fill in fps and quality a stream request leaves out.
	Defaults     capture.Params
	StartTimeout time.Duration

	PrometheusHandler http.Handler // Optional, served at /metrics without auth
}

// Server serves the stream, session and simulator API.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	options    *Options
	registry   *session.Registry
	eventBus   *events.Bus
	logger     *slog.Logger
}

// NewServer builds the mux and registers every route. Routes are served
// by Go's pattern-matching ServeMux through the humago adapter.
func NewServer(opts *Options) *Server {
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = 20 * time.Second
	}
	if opts.Defaults.FPS == 0 {
		opts.Defaults = capture.ClampParams(0, 0)
	}

	mux := http.NewServeMux()
	cors := DefaultCORSConfig()
	AddCORSHandler(mux, cors)

	config := huma.DefaultConfig("simstream API", version.String())
	config.Info.Description = "Live MJPEG streaming of iOS simulator screens"
	// no servers entry, so the docs use relative URLs on any host
	config.Servers = []*huma.Server{}
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {Type: "http", Scheme: "basic"},
	}

	s := &Server{
		api:      humago.New(mux, config),
		mux:      mux,
		options:  opts,
		registry: opts.Registry,
		eventBus: opts.EventBus,
		logger:   logging.GetLogger("api"),
	}

	s.api.UseMiddleware(NewCORSMiddleware(cors))
	s.api.UseMiddleware(HTTPLoggingMiddleware)
	if s.authEnabled() {
		s.api.UseMiddleware(s.basicAuthMiddleware(opts.AuthUsername, opts.AuthPassword))
	}
	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	s.registerSystemRoutes()
	s.registerStreamRoutes()
	s.registerWebSocketRoutes()
	s.registerSessionRoutes()
	if opts.Simulators != nil {
		s.registerSimulatorRoutes()
	}
	if s.eventBus != nil {
		s.registerSSERoutes()
		s.registerLogRoutes()
		s.registerMetricsRoutes()
	}
	return s
}

// GetMux returns the underlying ServeMux.
func (s *Server) GetMux() *http.ServeMux {
	return s.mux
}

// GetAPI returns the huma API, for tests and OpenAPI export.
func (s *Server) GetAPI() huma.API {
	return s.api
}

// Start serves on addr until Stop is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting simstream API server", "addr", addr, "docs", "http://"+addr+"/docs")

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Stop closes the listener and every open connection. Streams are
// long-lived, so there is no graceful drain.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Close()
}

func (s *Server) registerSystemRoutes() {
	public := []map[string][]string{}

	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Liveness probe with the number of running capture sessions",
		Tags:        []string{"system"},
		Security:    public,
	}, func(_ context.Context, _ *struct{}) (*models.HealthResponse, error) {
		resp := &models.HealthResponse{}
		resp.Body = models.HealthData{Status: "ok", Message: "API is healthy", Sessions: s.registry.Len()}
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Build metadata of the running binary",
		Tags:        []string{"system"},
		Security:    public,
	}, func(_ context.Context, _ *struct{}) (*models.VersionResponse, error) {
		info := version.Get()
		resp := &models.VersionResponse{}
		resp.Body = models.VersionData{
			Version:   info.Version,
			GitCommit: info.GitCommit,
			BuildDate: info.BuildDate,
			BuildID:   info.BuildID,
			GoVersion: info.GoVersion,
			Compiler:  info.Compiler,
			Platform:  info.Platform,
		}
		return resp, nil
	})
}

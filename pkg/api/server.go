// Package api provides the HTTP external interface to the behavioral
// learning service (spec.md §6): one route per operation in the table,
// authenticated by x-api-key and answering in the success/failure envelope.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/beaconlabs/pulse/pkg/aggregator"
	"github.com/beaconlabs/pulse/pkg/config"
	"github.com/beaconlabs/pulse/pkg/coordinator"
	"github.com/beaconlabs/pulse/pkg/database"
	"github.com/beaconlabs/pulse/pkg/llmadapter"
	"github.com/beaconlabs/pulse/pkg/store"
)

// Server is the HTTP API server.
type Server struct {
	echo         *echo.Echo
	httpServer   *http.Server
	systemCfg    *config.SystemConfig
	dbClient     *database.Client
	store        *store.Store
	coord        *coordinator.Coordinator
	pipeline     *coordinator.Pipeline
	adapter      llmadapter.Adapter
	aggregate    *aggregator.Aggregator
	awaitTimeout time.Duration
}

// NewServer wires every external operation of spec.md §6 behind x-api-key
// authentication and returns an unstarted Server.
func NewServer(
	systemCfg *config.SystemConfig,
	dbClient *database.Client,
	s *store.Store,
	coord *coordinator.Coordinator,
	pipeline *coordinator.Pipeline,
	adapter llmadapter.Adapter,
) *Server {
	e := echo.New()

	// wait-for-response blocks at most this long before returning
	// BACKEND_TIMEOUT (spec.md §5 "... or 60s elapses, whichever first").
	const awaitTimeout = 60 * time.Second

	srv := &Server{
		echo:         e,
		systemCfg:    systemCfg,
		dbClient:     dbClient,
		store:        s,
		coord:        coord,
		pipeline:     pipeline,
		adapter:      adapter,
		aggregate:    aggregator.New(s, adapter),
		awaitTimeout: awaitTimeout,
	}

	srv.setupRoutes()
	return srv
}

// setupRoutes registers every operation from spec.md §6's external interface
// table under /api/v1, each gated by apiKeyAuth.
func (s *Server) setupRoutes() {
	s.echo.Use(middleware.BodyLimit(2 * 1024 * 1024))
	s.echo.Use(securityHeaders())

	s.echo.GET("/health", s.healthHandler)
	s.echo.GET("/metrics", s.metricsHandler)

	v1 := s.echo.Group("/api/v1", apiKeyAuth(s.store))

	v1.POST("/publish_interaction", s.publishInteractionHandler)
	v1.POST("/search_interactions", s.searchInteractionsHandler)
	v1.POST("/get_interactions", s.getInteractionsHandler)
	v1.POST("/get_requests", s.getRequestsHandler)
	v1.POST("/delete_interaction", s.deleteInteractionHandler)
	v1.POST("/delete_request", s.deleteRequestHandler)
	v1.POST("/delete_request_group", s.deleteRequestGroupHandler)

	v1.POST("/search_profiles", s.searchProfilesHandler)
	v1.POST("/get_profiles", s.getProfilesHandler)
	v1.POST("/get_all_profiles", s.getAllProfilesHandler)
	v1.POST("/delete_profile", s.deleteProfileHandler)
	v1.POST("/get_profile_change_log", s.getProfileChangeLogHandler)

	v1.POST("/search_feedbacks", s.searchFeedbacksHandler)
	v1.POST("/search_raw_feedbacks", s.searchRawFeedbacksHandler)
	v1.POST("/get_feedbacks", s.getFeedbacksHandler)
	v1.POST("/get_raw_feedbacks", s.getRawFeedbacksHandler)
	v1.POST("/add_feedbacks", s.addFeedbackHandler)
	v1.POST("/add_raw_feedback", s.addRawFeedbackHandler)
	v1.POST("/delete_feedback", s.deleteFeedbackHandler)
	v1.POST("/delete_raw_feedback", s.deleteRawFeedbackHandler)

	v1.POST("/rerun_profile_generation", s.rerunProfileGenerationHandler)
	v1.POST("/manual_profile_generation", s.manualProfileGenerationHandler)
	v1.POST("/rerun_feedback_generation", s.rerunFeedbackGenerationHandler)
	v1.POST("/manual_feedback_generation", s.manualFeedbackGenerationHandler)
	v1.POST("/run_feedback_aggregation", s.runFeedbackAggregationHandler)
	v1.POST("/synthesize_skill", s.synthesizeSkillHandler)

	v1.POST("/get_config", s.getConfigHandler)
	v1.POST("/set_config", s.setConfigHandler)

	v1.POST("/get_agent_success_evaluation_results", s.getAgentSuccessEvaluationResultsHandler)
}

// Start starts the HTTP server on the given address and blocks until it stops.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener. Used
// by test infrastructure to serve on a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// healthResponse is the GET /health body.
type healthResponse struct {
	Status   string                 `json:"status"`
	Database *database.HealthStatus `json:"database"`
}

// metricsHandler handles GET /metrics: the Telemetry component's Prometheus
// exposition endpoint (spec.md §6 component K), outside the x-api-key
// boundary since it carries aggregate process metrics, not tenant data.
func (s *Server) metricsHandler(c *echo.Context) error {
	promhttp.Handler().ServeHTTP(c.Response(), c.Request())
	return nil
}

// healthHandler handles GET /health, outside the x-api-key boundary since it
// carries no tenant data.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := database.Health(reqCtx, s.dbClient.DB())
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, &healthResponse{Status: "unhealthy", Database: dbHealth})
	}
	return c.JSON(http.StatusOK, &healthResponse{Status: "healthy", Database: dbHealth})
}

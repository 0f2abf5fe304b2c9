package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.uber.org/zap"

	"github.com/danghamo/deskd/internal/api/handlers"
	"github.com/danghamo/deskd/internal/api/middleware"
	"github.com/danghamo/deskd/internal/desk"
	eventhandlers "github.com/danghamo/deskd/internal/events/handlers"
	"github.com/danghamo/deskd/pkg/logger"
	"github.com/danghamo/deskd/pkg/sse"
)

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	logger      *logger.Logger
	mux         *http.ServeMux
	controller  *desk.PositionController
	source      desk.ConfigSource
	deskHandler *handlers.DeskHandler
	broadcaster *sse.Broadcaster
	// Watermill components: the daemon is single-process, so events travel an
	// in-memory gochannel pub/sub instead of an external broker
	eventBus         *cqrs.EventBus
	eventProcessor   *cqrs.EventProcessor
	router           *message.Router
	deskEventHandler *eventhandlers.DeskEventHandler
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port         int           `json:"port"`
	Host         string        `json:"host"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// NewServer creates a new HTTP server wired to the desk controller
func NewServer(
	config ServerConfig,
	controllerConfig desk.ControllerConfig,
	log *logger.Logger,
	source desk.ConfigSource,
	mover desk.Mover,
) *Server {
	mux := http.NewServeMux()
	apiLogger := log.WithComponent("api")

	watermillLogger := watermill.NewStdLogger(false, false)

	// In-process pub/sub carrying desk events to the SSE bridge
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 256},
		watermillLogger,
	)

	router, err := message.NewRouter(message.RouterConfig{
		CloseTimeout: 5 * time.Second,
	}, watermillLogger)
	if err != nil {
		panic(fmt.Sprintf("Failed to create router: %v", err))
	}

	eventBus, err := cqrs.NewEventBusWithConfig(
		pubSub,
		cqrs.EventBusConfig{
			GeneratePublishTopic: func(params cqrs.GenerateEventPublishTopicParams) (string, error) {
				return fmt.Sprintf("desk-events.%s", params.EventName), nil
			},
			Marshaler: cqrs.JSONMarshaler{},
			Logger:    watermillLogger,
		},
	)
	if err != nil {
		panic(fmt.Sprintf("Failed to create event bus: %v", err))
	}

	eventProcessor, err := cqrs.NewEventProcessorWithConfig(
		router,
		cqrs.EventProcessorConfig{
			GenerateSubscribeTopic: func(params cqrs.EventProcessorGenerateSubscribeTopicParams) (string, error) {
				return fmt.Sprintf("desk-events.%s", params.EventName), nil
			},
			SubscriberConstructor: func(params cqrs.EventProcessorSubscriberConstructorParams) (message.Subscriber, error) {
				return pubSub, nil
			},
			Marshaler: cqrs.JSONMarshaler{},
			Logger:    watermillLogger,
		},
	)
	if err != nil {
		panic(fmt.Sprintf("Failed to create event processor: %v", err))
	}

	controller, err := desk.NewPositionController(controllerConfig, source, mover, eventBus, log)
	if err != nil {
		panic(fmt.Sprintf("Failed to create position controller: %v", err))
	}

	broadcaster := sse.NewBroadcaster(log)
	deskEventHandler := eventhandlers.NewDeskEventHandler(broadcaster, log)

	server := &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
			Handler:      mux,
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
		logger:           apiLogger,
		mux:              mux,
		controller:       controller,
		source:           source,
		deskHandler:      handlers.NewDeskHandler(log, controller, source),
		broadcaster:      broadcaster,
		eventBus:         eventBus,
		eventProcessor:   eventProcessor,
		router:           router,
		deskEventHandler: deskEventHandler,
	}

	err = eventProcessor.AddHandlers(
		cqrs.NewEventHandler("PositionChangedEvent", deskEventHandler.HandlePositionChangedEvent),
		cqrs.NewEventHandler("NagFiredEvent", deskEventHandler.HandleNagFiredEvent),
	)
	if err != nil {
		panic(fmt.Sprintf("Failed to register event handlers: %v", err))
	}

	server.setupRoutes()
	server.setupMiddleware()

	return server
}

// Controller exposes the position controller for the process entry point
func (s *Server) Controller() *desk.PositionController {
	return s.controller
}

// setupRoutes configures the server routes
func (s *Server) setupRoutes() {
	// Health check endpoint (pure REST)
	s.mux.HandleFunc("/health", s.healthCheckHandler)

	// Desk endpoints
	s.mux.HandleFunc("/api/v1/desk.Move", s.deskHandler.HandleMove)
	s.mux.HandleFunc("/api/v1/desk.Position", s.deskHandler.HandlePosition)
	s.mux.HandleFunc("/api/v1/desk.Positions", s.deskHandler.HandlePositions)

	// SSE endpoint for real-time desk updates
	s.mux.HandleFunc("/api/v1/stream/desk", s.broadcaster.HandleSSE)
}

// setupMiddleware applies middleware to all routes
func (s *Server) setupMiddleware() {
	middlewareChain := middleware.Chain(
		middleware.Recovery(s.logger),
		middleware.ErrorAdapter(s.logger),
		middleware.CORS(),
		middleware.Logging(s.logger),
		middleware.RateLimit(s.logger),
	)

	s.httpServer.Handler = middlewareChain(s.mux)
}

// Start starts the HTTP server and the event router, then blocks until the
// context is cancelled
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server",
		zap.String("address", s.httpServer.Addr))

	go func() {
		if err := s.router.Run(ctx); err != nil {
			s.logger.Error("Event router error", zap.Error(err))
		}
	}()

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	<-ctx.Done()

	return s.Shutdown()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	s.logger.Info("Shutting down HTTP server")

	// Quiesce the dwell timer first so no nag fires mid-shutdown
	s.controller.Shutdown()

	if s.broadcaster != nil {
		s.logger.Debug("Closing SSE broadcaster")
		s.broadcaster.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Server shutdown error", zap.Error(err))
		return err
	}

	if s.router != nil {
		s.logger.Info("Closing event router")
		if err := s.router.Close(); err != nil {
			s.logger.Error("Router shutdown error", zap.Error(err))
			return err
		}
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// GetAddr returns the server address
func (s *Server) GetAddr() string {
	return s.httpServer.Addr
}

// healthCheckHandler handles health check requests. The only external
// dependency worth probing is the idasen config file.
func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := s.source.Positions(); err != nil {
		s.logger.Error("Config health check failed", zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"unhealthy","checks":{"config":{"status":"down"}}}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy","checks":{"config":{"status":"up"}}}`))
}

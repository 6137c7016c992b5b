package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/pesio-ai/be-erp-approvals/internal/approvalsv1"
	"github.com/pesio-ai/be-erp-approvals/internal/auth"
	"github.com/pesio-ai/be-erp-approvals/internal/client"
	"github.com/pesio-ai/be-erp-approvals/internal/config"
	"github.com/pesio-ai/be-erp-approvals/internal/database"
	"github.com/pesio-ai/be-erp-approvals/internal/handler"
	"github.com/pesio-ai/be-erp-approvals/internal/logger"
	"github.com/pesio-ai/be-erp-approvals/internal/repository"
	"github.com/pesio-ai/be-erp-approvals/internal/repository/memory"
	"github.com/pesio-ai/be-erp-approvals/internal/service"
)

// storage bundles the stores the services are built from.
type storage struct {
	tx        service.Transactor
	templates service.ChainTemplateStore
	requests  service.ApprovalRequestStore
	history   service.ApprovalHistoryStore
	comments  service.ApprovalCommentStore
	users     service.UserDirectory
	callbacks *service.CallbackRegistry
	health    handler.HealthCheck
	close     func()
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Str("storage", cfg.Storage.Driver).
		Msg("Starting Approvals Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize storage")
	}
	defer store.close()

	// Notifications are optional; without NATS_URL events are dropped.
	natsConn, err := client.ConnectNATS(cfg.NATS.URL, cfg.Service.Name, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Str("url", cfg.NATS.URL).Msg("Failed to connect to NATS")
	}
	if natsConn != nil {
		log.Info().Str("url", natsConn.ConnectedUrl()).Msg("NATS connection established")
	} else {
		log.Warn().Msg("NATS_URL not set, approval notifications disabled")
	}
	publisher := client.NewNotificationPublisher(natsConn, cfg.NATS.SubjectPrefix, log.Logger)

	// Initialize services
	approvalService := service.NewApprovalService(store.tx, store.templates, store.requests,
		store.history, store.comments, store.callbacks, publisher, log)
	chainService := service.NewChainTemplateService(store.tx, store.templates, store.users, log)

	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)

	// HTTP server
	router := handler.NewRouter(handler.NewHTTPHandler(approvalService, chainService, log), handler.RouterConfig{
		Verifier:       verifier,
		Log:            log,
		RequestTimeout: cfg.Server.RequestTimeout,
		CORSOrigins:    cfg.Server.CORSOrigins,
		Health:         store.health,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// gRPC server
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		handler.RecoveryInterceptor(log.Logger),
		handler.AuthInterceptor(verifier),
	))
	approvalsv1.RegisterApprovalServiceServer(grpcServer, handler.NewGRPCHandler(approvalService, log.Logger))

	healthServer := health.NewServer()
	healthServer.SetServingStatus(approvalsv1.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPC.Port))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create gRPC listener")
	}

	go func() {
		log.Info().Int("port", cfg.GRPC.Port).Msg("Starting gRPC server")
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Error().Err(err).Msg("gRPC server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	healthServer.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	grpcServer.GracefulStop()
	drainNATS(natsConn, log)

	log.Info().Msg("Server stopped")
}

// openStorage builds the configured backend and registers the entity
// callbacks that go with it.
func openStorage(ctx context.Context, cfg *config.Config, log *logger.Logger) (*storage, error) {
	callbacks := service.NewCallbackRegistry()

	switch cfg.Storage.Driver {
	case "memory":
		store := memory.NewStore()
		for _, id := range cfg.Storage.SeedUsers {
			store.AddUser(repository.User{ID: id, Username: id, Active: true})
		}
		callbacks.Register(repository.EntityTypeQuotation, client.NewLogCallback(repository.EntityTypeQuotation, log.Logger))
		callbacks.Register(repository.EntityTypePurchaseOrder, client.NewLogCallback(repository.EntityTypePurchaseOrder, log.Logger))
		log.Warn().Int("users", len(cfg.Storage.SeedUsers)).Msg("Using in-memory storage, data is lost on restart")

		return &storage{
			tx:        store,
			templates: store.Templates(),
			requests:  store.Requests(),
			history:   store.History(),
			comments:  store.Comments(),
			users:     store.Users(),
			callbacks: callbacks,
			health:    func(context.Context) error { return nil },
			close:     func() {},
		}, nil

	default:
		db, err := database.New(ctx, database.Config{
			Host:        cfg.Database.Host,
			Port:        cfg.Database.Port,
			User:        cfg.Database.User,
			Password:    cfg.Database.Password,
			Database:    cfg.Database.Database,
			SSLMode:     cfg.Database.SSLMode,
			MaxConns:    cfg.Database.MaxConns,
			MinConns:    cfg.Database.MinConns,
			MaxConnTime: cfg.Database.MaxConnTime,
			MaxIdleTime: cfg.Database.MaxIdleTime,
			HealthCheck: cfg.Database.HealthCheck,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		log.Info().Msg("Database connection established")

		if cfg.Database.Migrate {
			if err := db.Migrate(ctx, log.Logger); err != nil {
				db.Close()
				return nil, err
			}
		}

		callbacks.Register(repository.EntityTypeQuotation, client.NewQuotationCallback(db))
		callbacks.Register(repository.EntityTypePurchaseOrder, client.NewPurchaseOrderCallback(db))

		return &storage{
			tx:        db,
			templates: repository.NewChainTemplateRepository(db),
			requests:  repository.NewApprovalRequestRepository(db),
			history:   repository.NewApprovalHistoryRepository(db),
			comments:  repository.NewApprovalCommentRepository(db),
			users:     repository.NewUserRepository(db),
			callbacks: callbacks,
			health:    db.Ping,
			close:     db.Close,
		}, nil
	}
}

func drainNATS(conn *nats.Conn, log *logger.Logger) {
	if conn == nil {
		return
	}
	if err := conn.Drain(); err != nil {
		log.Error().Err(err).Msg("NATS drain failed")
		conn.Close()
	}
}

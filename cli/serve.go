package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"l3v3l_server/logger"
	"l3v3l_server/middleware"
	"l3v3l_server/routes"
	"l3v3l_server/services"
	"l3v3l_server/socket"

	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the realtime queue feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, rootOpts)
		},
	}
}

func serve(ctx context.Context, opts *RootOptions) error {
	cfg := opts.Config
	if cfg.JWTSecret == "" {
		return errNoJWTSecret
	}

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	auth := middleware.NewAuthenticator(cfg.JWTSecret)

	var publisher services.JobPublisher
	if cfg.AMQPURL != "" {
		broker, err := services.DialAMQP(cfg.AMQPURL, cfg.AMQPQueue)
		if err != nil {
			return err
		}
		defer broker.Close()
		publisher = broker
	} else {
		logger.Warn("⚠️ amqp.url not set, queued notifications will not be dispatched")
	}

	queue := services.NewQueueService(b.Queue, publisher, nil)
	prefs := services.NewPreferencesService(b.Preferences, b.Queue)
	queue.Preferences = prefs
	hub := socket.NewHub(auth, queue.Stats, cfg.QueueStatsInterval)
	queue.Events = hub
	pii := services.NewPIIService(b.PII, queue)

	var limiter *middleware.RateLimiter
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		limiter = middleware.NewRateLimiter(middleware.RedisCounter{Client: rdb}, cfg.RateLimitPerMinute, "ratelimit:pii")
	} else {
		logger.Warn("⚠️ redis.addr not set, PII request creation is not rate limited")
	}

	r := routes.NewRouter(routes.Services{
		PII:         pii,
		Queue:       queue,
		Preferences: prefs,
		Lists:       services.NewListService(b.Lists),
		Profile:     services.NewProfileService(b.Profiles, pii, b.Signer),
		Photos:      services.NewPhotoService(b.Signer, pii),
	}, auth, limiter)
	r.Handle("/socket.io/", hub)

	// Add CORS middleware
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(r)

	go hub.Run(ctx)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: corsHandler, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("🚀 Starting server", zap.String("port", cfg.Port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("🛑 shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

package cli

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"civicsync-admin/accounts"
	"civicsync-admin/assignment"
	"civicsync-admin/config"
	"civicsync-admin/controllers"
	"civicsync-admin/directory"
	"civicsync-admin/logging"
	"civicsync-admin/middlewares"
	"civicsync-admin/routes"
	"civicsync-admin/store"
)

const shutdownTimeout = 10 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the admin HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)

			cfg, logger, s, closeFn, err := rootOpts.env(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := cfg.ValidateServer(); err != nil {
				return err
			}

			var counter middlewares.Counter
			if cfg.RedisAddress != "" {
				client, err := config.ConnectRedis(ctx, cfg.RedisAddress, cfg.RedisPassword)
				if err != nil {
					return err
				}
				defer client.Close()
				counter = middlewares.NewRedisCounter(client)
			} else {
				logger.Warn("REDIS_ADDRESS not set, assignment rate limiting disabled")
			}

			app, err := newServer(ctx, cfg, s, logger, counter)
			if err != nil {
				return err
			}
			defer app.issues.Unsubscribe()

			return app.run(ctx, cfg)
		},
	}
}

// server is the wired HTTP application.
type server struct {
	engine     *gin.Engine
	issues     *directory.IssueDirectory
	reconciler *assignment.Reconciler
	logger     logging.Logger
}

// newServer wires the directories, coordinator and controllers and subscribes the issue
// directory to the complaints collection.
func newServer(ctx context.Context, cfg config.Config, s store.Store, logger logging.Logger, counter middlewares.Counter) (*server, error) {
	policy, err := assignment.ParsePolicy(cfg.ReconcilePolicy)
	if err != nil {
		return nil, err
	}

	issues := directory.NewIssueDirectory(s, logger)
	if err := issues.Subscribe(ctx); err != nil {
		return nil, err
	}

	workers := directory.NewWorkerDirectory(s, logger)
	coordinator := assignment.NewCoordinator(s,
		assignment.WithIssueDirectory(issues),
		assignment.WithLogger(logger),
	)
	reconciler := assignment.NewReconciler(s, policy, logger)
	svc := accounts.NewService(s, accounts.AdminCredentials{Email: cfg.AdminEmail, Password: cfg.AdminPassword}, logger)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	r.Use(cors.New(corsConfig(cfg)))

	routes.Register(r, routes.Handlers{
		Auth:            controllers.NewAuthController(svc, cfg.JWTSecret, cfg.TokenTTL, cfg.IsProduction()),
		Issues:          controllers.NewIssueController(issues),
		Workers:         controllers.NewWorkerController(workers),
		Assignments:     controllers.NewAssignmentController(coordinator, reconciler, s, logger),
		DepartmentHeads: controllers.NewDepartmentHeadController(svc),
		Authenticate:    middlewares.AuthMiddleware(cfg.JWTSecret),
		AdminOnly:       middlewares.RequireRole(string(accounts.RoleAdmin)),
		AssignLimit:     middlewares.AssignRateLimiter(counter, cfg.AssignQueuePrefix, cfg.AssignLimitPerDay),
	})

	return &server{engine: r, issues: issues, reconciler: reconciler, logger: logger}, nil
}

func corsConfig(cfg config.Config) cors.Config {
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}

	return cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
}

// run serves HTTP and, when configured, the periodic reconciler until ctx is cancelled.
func (s *server) run(ctx context.Context, cfg config.Config) error {
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("Server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.ReconcileInterval > 0 {
		g.Go(func() error {
			s.logger.Info("reconciler started", "policy", s.reconciler.Policy(), "interval", cfg.ReconcileInterval)
			s.reconciler.Loop(gctx, cfg.ReconcileInterval)
			return nil
		})
	}

	return g.Wait()
}

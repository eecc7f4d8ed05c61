package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/datachat/internal/cache"
	"github.com/xxxsen/datachat/internal/config"
	"github.com/xxxsen/datachat/internal/db"
	"github.com/xxxsen/datachat/internal/filestore"
	"github.com/xxxsen/datachat/internal/handler"
	"github.com/xxxsen/datachat/internal/job"
	"github.com/xxxsen/datachat/internal/middleware"
	"github.com/xxxsen/datachat/internal/repo"
	"github.com/xxxsen/datachat/internal/schedule"
	"github.com/xxxsen/datachat/internal/service"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "datachat",
		Short: "citation normalizer for chat answers",
	}
	rootCmd.AddCommand(newRunCommand(), newNormalizeCommand())

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func newRunCommand() *cobra.Command {
	var configPath string
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run datachat server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			initLogger(cfg)
			logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

			var conn *sql.DB
			if cfg.Database.Enabled() {
				conn, err = db.Open(cfg.Database)
				if err != nil {
					return fmt.Errorf("open db: %w", err)
				}
				defer conn.Close()
				if err := db.ApplyMigrations(conn); err != nil {
					return fmt.Errorf("migrations: %w", err)
				}
			}
			return runServer(cfg, conn)
		},
	}
	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	return runCmd
}

func initLogger(cfg *config.Config) {
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
}

func serviceOptions(cfg config.CitationConfig) service.CitationServiceOptions {
	return service.CitationServiceOptions{
		BlobHostSuffixes: cfg.BlobHostSuffixes,
		FilePathPrefix:   cfg.FilePathPrefix,
		TruncateLabels:   cfg.TruncateLabels == nil || *cfg.TruncateLabels,
		PartNumberByFile: cfg.PartNumbering == config.PartNumberingFile,
		CardBatchSize:    cfg.CardBatchSize,
		MaxAnswerChars:   cfg.MaxAnswerChars,
		CacheSize:        cfg.CacheSize,
		CacheTTL:         time.Duration(cfg.CacheTTLSeconds) * time.Second,
	}
}

func runServer(cfg *config.Config, conn *sql.DB) error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.Bool("history", conn != nil),
		zap.Bool("shared_cache", cfg.Redis.Enabled()),
		zap.String("file_store", cfg.FileStore.Type),
	)

	var turns service.TurnStore
	var turnRepo *repo.TurnRepo
	if conn != nil {
		turnRepo = repo.NewTurnRepo(conn)
		turns = turnRepo
	}
	opts := serviceOptions(cfg.Citation)
	if cfg.Redis.Enabled() {
		client, err := cache.Open(context.Background(), cfg.Redis)
		if err != nil {
			return fmt.Errorf("open redis: %w", err)
		}
		defer client.Close()
		opts.Shared = cache.NewRedisCache(client, cfg.Redis.KeyPrefix)
	}
	citationService := service.NewCitationService(opts, turns)

	store, err := filestore.New(cfg.FileStore)
	if err != nil {
		return fmt.Errorf("init file store: %w", err)
	}

	deps := handler.RouterDeps{
		Citations:    handler.NewCitationHandler(citationService),
		Conversation: handler.NewConversationHandler(citationService, cfg.Citation.MaxStreamBytes),
		Files:        handler.NewFileHandler(store),
	}

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSAllowlist),
			middleware.RateLimit(time.Duration(cfg.RateLimitMs)*time.Millisecond),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	if turnRepo != nil {
		retention := time.Duration(cfg.History.RetentionDays) * 24 * time.Hour
		if err := scheduler.AddJob(job.NewTurnRetentionJob(turnRepo, retention), cfg.History.CleanupCron); err != nil {
			return fmt.Errorf("schedule retention job: %w", err)
		}
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", addr))
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}

package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"github.com/KedarPoul/Anemia-Classification-System/db"
	qhttp "github.com/KedarPoul/Anemia-Classification-System/http"
	"github.com/KedarPoul/Anemia-Classification-System/ml"
	"github.com/KedarPoul/Anemia-Classification-System/monitoring"
)

type Config struct {
	Server struct {
		Port           int      `yaml:"port"`
		TimeoutSeconds int      `yaml:"timeout_seconds"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
	Model struct {
		Path string `yaml:"path"`
	} `yaml:"model"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Cache struct {
		Size int `yaml:"size"`
	} `yaml:"cache"`
	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`
}

func main() {
	// 1. Load config
	config, err := loadConfig("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Initialize logger
	logger, err := monitoring.NewLogger(config.Log.Level, config.Log.File)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// 3. Load the model bundle. Load failure is not fatal: the service
	// starts degraded and health/info endpoints keep answering.
	bundle, err := ml.LoadBundle(config.Model.Path)
	if err != nil {
		logger.Error("model bundle load failed, running degraded",
			zap.String("path", config.Model.Path),
			zap.Error(err))
		bundle = nil
	} else {
		meta := bundle.Metadata()
		logger.Info("model bundle loaded",
			zap.String("path", config.Model.Path),
			zap.String("version", meta.Version),
			zap.Strings("features", meta.Features),
			zap.Strings("class_names", meta.ClassNames),
			zap.Bool("confidence", bundle.HasConfidence()))
	}

	// 4. Open the prediction audit log. Also non-fatal.
	var store qhttp.PredictionStore
	if config.Database.Path != "" {
		sqlStore, err := db.Open(config.Database.Path)
		if err != nil {
			logger.Warn("prediction log unavailable",
				zap.String("path", config.Database.Path),
				zap.Error(err))
		} else {
			defer sqlStore.Close()
			store = sqlStore
			logger.Info("prediction log opened", zap.String("path", config.Database.Path))
		}
	}

	// 5. Start the prediction feed hub
	hub := monitoring.NewHub(logger)
	go hub.Run()

	service, err := qhttp.NewService(qhttp.ServiceConfig{
		Bundle:    bundle,
		Fallback:  ml.FallbackMetadata(),
		Store:     store,
		Hub:       hub,
		Logger:    logger,
		CacheSize: config.Cache.Size,
	})
	if err != nil {
		logger.Fatal("failed to build service", zap.Error(err))
	}

	// 6. Start HTTP server
	serverConfig := qhttp.DefaultServerConfig()
	if config.Server.Port > 0 {
		serverConfig.Port = config.Server.Port
	}
	if port := os.Getenv("PORT"); port != "" {
		if parsed, err := strconv.Atoi(port); err == nil {
			serverConfig.Port = parsed
		}
	}
	if config.Server.TimeoutSeconds > 0 {
		serverConfig.Timeout = time.Duration(config.Server.TimeoutSeconds) * time.Second
	}
	if len(config.Server.AllowedOrigins) > 0 {
		serverConfig.AllowedOrigins = config.Server.AllowedOrigins
	}

	server := qhttp.NewServer(serverConfig, service, logger)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// 7. Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	if err := server.Stop(); err != nil {
		logger.Warn("server forced to shutdown", zap.Error(err))
	}
	hub.Stop()
}

func loadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

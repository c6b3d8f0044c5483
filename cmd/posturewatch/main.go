package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rewired-gh/posturewatch/internal/config"
	"github.com/rewired-gh/posturewatch/internal/ingest"
	"github.com/rewired-gh/posturewatch/internal/logger"
	"github.com/rewired-gh/posturewatch/internal/monitor"
	"github.com/rewired-gh/posturewatch/internal/posedetect"
	"github.com/rewired-gh/posturewatch/internal/posture"
	"github.com/rewired-gh/posturewatch/internal/storage"
	"github.com/rewired-gh/posturewatch/internal/stream"
	"github.com/rewired-gh/posturewatch/internal/telegram"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

const (
	housekeepingInterval = 15 * time.Second
	shutdownTimeout      = 10 * time.Second
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	defer logger.Sync()
	logger.Info("Configuration loaded from %s", *configPath)

	store, err := storage.New(cfg.Storage.MaxSessions, cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	detector := posedetect.NewClient(cfg.Detector.URL, posedetect.ClientConfig{
		Timeout:        cfg.Detector.Timeout,
		MaxRetries:     cfg.Detector.MaxRetries,
		RetryDelayBase: cfg.Detector.RetryDelayBase,
	})
	evaluator := posture.NewEvaluator(detector, posture.Thresholds{
		NeckMaxAngle:    cfg.Posture.NeckMaxAngle,
		BackMinAngle:    cfg.Posture.BackMinAngle,
		ShoulderDiffMax: cfg.Posture.ShoulderDiffMax,
		MinVisibility:   cfg.Posture.MinVisibility,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var notifiers []monitor.Notifier

	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		notifiers = append(notifiers, telegramClient)
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	if cfg.Redis.Enabled {
		redisClient, err := stream.Dial(ctx, cfg.Redis)
		if err != nil {
			logger.Fatal("Failed to initialize Redis: %v", err)
		}
		defer redisClient.Close()
		notifiers = append(notifiers, stream.NewPublisher(redisClient, cfg.Redis.AlertStream, cfg.Redis.SummaryStream, cfg.Redis.MaxLen))
		logger.Info("Publishing events to Redis streams %s and %s", cfg.Redis.AlertStream, cfg.Redis.SummaryStream)
	}

	mon := monitor.New(store, evaluator, monitor.Config{
		AlertLatency: cfg.Posture.AlertLatency,
		HistorySize:  cfg.Session.HistorySize,
		QueueSize:    cfg.Session.QueueSize,
	}, notifiers...)

	if telegramClient != nil {
		telegramClient.SetSources(mon, store)
		telegramClient.ListenForCommands(ctx)
	}

	router := ingest.NewRouter(mon, cfg.MQTT.TopicPrefix, cfg.Session.IdleTimeout)
	var mqttClient *ingest.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = ingest.NewClient(cfg.MQTT)
		if err != nil {
			logger.Fatal("Failed to initialize MQTT client: %v", err)
		}
		if err := router.Subscribe(mqttClient); err != nil {
			logger.Fatal("Failed to subscribe to frame topics: %v", err)
		}
		logger.Info("Listening for frames on %v", router.Topics())
	} else {
		logger.Warn("MQTT ingress disabled, no frames will be received")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	limits := evaluator.Thresholds()
	logger.Info("Starting posture monitoring (neck < %.0f°, back >= %.0f°, shoulders <= %.0f, alert after %v)",
		limits.NeckMaxAngle,
		limits.BackMinAngle,
		limits.ShoulderDiffMax,
		cfg.Posture.AlertLatency,
	)

	ticker := time.NewTicker(housekeepingInterval)
	defer ticker.Stop()

	consecutiveFailures := 0

	handleHealthResult := func(err error) {
		if err != nil {
			consecutiveFailures++
			logger.Error("Pose detector health check failed: %v", err)
			if consecutiveFailures == 1 && telegramClient != nil {
				if sendErr := telegramClient.SendError(ctx, err); sendErr != nil {
					logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
				}
			}
		} else {
			if consecutiveFailures > 0 && telegramClient != nil {
				if sendErr := telegramClient.SendRecovery(ctx, consecutiveFailures); sendErr != nil {
					logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
				}
			}
			consecutiveFailures = 0
		}
	}

	for {
		select {
		case <-ctx.Done():
			if mqttClient != nil {
				mqttClient.Disconnect()
			}
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
			mon.Shutdown(shutdownCtx)
			cancelShutdown()
			logger.Info("Service stopped")
			return

		case now := <-ticker.C:
			if n := router.SweepIdle(ctx, now); n > 0 {
				logger.Info("Ended %d idle sessions", n)
			}
			handleHealthResult(detector.Health(ctx))
			if mqttClient != nil && !mqttClient.IsConnected() {
				logger.Warn("MQTT broker connection lost, waiting for reconnect")
			}
		}
	}
}

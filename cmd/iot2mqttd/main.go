// Command iot2mqttd is the bridge's composition root: it loads
// configuration, dials MQTT, wires the three-stage pipeline and its
// consumer fan-out, starts the admin API and the staleness sweep, and
// shuts everything down in order on SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/slassabe/iot2mqtt/internal/access"
	"github.com/slassabe/iot2mqtt/internal/api"
	"github.com/slassabe/iot2mqtt/internal/config"
	"github.com/slassabe/iot2mqtt/internal/dev"
	"github.com/slassabe/iot2mqtt/internal/directory"
	"github.com/slassabe/iot2mqtt/internal/encode"
	"github.com/slassabe/iot2mqtt/internal/health"
	"github.com/slassabe/iot2mqtt/internal/logger"
	"github.com/slassabe/iot2mqtt/internal/message"
	"github.com/slassabe/iot2mqtt/internal/metrics"
	"github.com/slassabe/iot2mqtt/internal/mqttx"
	"github.com/slassabe/iot2mqtt/internal/pipeline"
	"github.com/slassabe/iot2mqtt/internal/scheduler"
	"github.com/slassabe/iot2mqtt/internal/scrutinizer"
	"github.com/slassabe/iot2mqtt/internal/telemetry"
	"github.com/slassabe/iot2mqtt/internal/timer"
	"github.com/slassabe/iot2mqtt/internal/topic"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (searched in ./configs, ., ~/.iot2mqtt if empty)")
	flag.Parse()

	cfg, v, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "iot2mqttd: %v\n", err)
		os.Exit(1)
	}

	logCfg := logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		LogDir:     cfg.Logger.LogDir,
		MaxSizeMB:  cfg.Logger.MaxSizeMB,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAgeDays: cfg.Logger.MaxAgeDays,
		Compress:   cfg.Logger.Compress,
	}
	if err := logger.Init(logCfg); err != nil {
		fmt.Fprintf(os.Stderr, "iot2mqttd: logger init: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Get()

	log.Info("starting iot2mqtt bridge")

	dirMirrors := buildDirectoryMirrors(cfg.Directory, log)
	dir := directory.New(dirMirrors...)
	if err := dir.LoadFromMirrors(); err != nil {
		log.Warn("directory: failed to preload from mirrors", zap.Error(err))
	}

	models := dev.NewModelRegistry(log)
	topics, err := topic.NewDefaultRegistry()
	if err != nil {
		log.Fatal("building topic registry", zap.Error(err))
	}
	commands, err := topic.NewDefaultCommandRegistry()
	if err != nil {
		log.Fatal("building command registry", zap.Error(err))
	}

	mqttCtx := mqttx.MQTTContext{
		Broker:   cfg.MQTT.Broker,
		ClientID: cfg.MQTT.ClientID,
		Security: mqttx.SecurityContext{
			Username:   cfg.MQTT.Username,
			Password:   cfg.MQTT.Password,
			CACertPath: cfg.MQTT.CACertPath,
			TLSEnabled: cfg.MQTT.TLSEnabled,
			SkipVerify: cfg.MQTT.TLSSkipVerify,
		},
		KeepAlive:      cfg.MQTT.KeepAlive,
		ConnectTimeout: cfg.MQTT.ConnectTimeout,
		CleanSession:   cfg.MQTT.CleanSession,
		AutoReconnect:  cfg.MQTT.AutoReconnect,
	}
	client := mqttx.NewPahoClient(mqttCtx, log)

	encoders := encode.NewDefaultRegistry(log)
	timers := timer.NewManager(log)
	accessor := access.New(client, commands, encoders, timers, dir, log)

	mreg := metrics.NewRegistry(prometheus.DefaultRegisterer)

	pipe := pipeline.New(pipeline.Config{
		QueueCapacity:   cfg.Pipeline.QueueCapacity,
		DiscoverySettle: cfg.Pipeline.DiscoverySettle,
	}, dir, models, accessor, mreg, log)

	tracker := scheduler.NewTracker()
	pipe.AddConsumer(func(m message.Message) {
		if message.IsTypeState(m) || message.IsTypeAvailability(m) {
			tracker.Touch(m.DeviceName)
		}
	})

	hub := api.NewHub()
	pipe.AddConsumer(hub.ConsumeMessage)
	logger.SetBroadcaster(hub.BroadcastLog)

	var sink *telemetry.Sink
	if cfg.Telemetry.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		sink, err = telemetry.NewSink(ctx, telemetry.Config{
			URL: cfg.Telemetry.URL, Token: cfg.Telemetry.Token,
			Org: cfg.Telemetry.Org, Bucket: cfg.Telemetry.Bucket,
		}, log)
		cancel()
		if err != nil {
			log.Warn("telemetry: sink disabled, failed to connect", zap.Error(err))
		} else {
			pipe.AddConsumer(sink.Consume)
			defer sink.Close()
		}
	}

	checker := health.NewChecker()
	checker.Register("mqtt", health.MQTTCheck(func() error { return client.Publish("iot2mqtt/ping", 0, false, []byte("1")) }), 30*time.Second)
	checker.Register("directory", health.DirectoryCheck(func() int { return len(dir.GetDeviceNames()) }), 30*time.Second)

	healthCtx, stopHealthChecks := context.WithCancel(context.Background())
	checker.StartPeriodicChecks(healthCtx)
	defer stopHealthChecks()

	var sweep *scheduler.Sweep
	if cfg.Scheduler.Enabled {
		sweep, err = scheduler.New(cfg.Scheduler.CronSpec, cfg.Scheduler.StalenessWindow, dir, tracker, accessor, log)
		if err != nil {
			log.Fatal("building staleness sweep", zap.Error(err))
		}
	}

	config.WatchForChanges(v, func(level string) {
		if err := logger.SetLevel(level); err != nil {
			log.Warn("config: rejected log level change", zap.String("level", level), zap.Error(err))
		}
	}, func(window time.Duration) {
		if sweep != nil {
			sweep.SetStalenessWindow(window)
		}
	})

	scrut := scrutinizer.New(client, topics, pipe.Entry(), log)
	client.OnConnect(func() {
		if err := scrut.Start(); err != nil {
			log.Error("scrutinizer: failed to (re)subscribe", zap.Error(err))
		}
	})

	if err := client.Connect(); err != nil {
		log.Fatal("mqtt: initial connect failed", zap.Error(err))
	}
	defer client.Disconnect()

	pipe.Start()

	var apiService *api.Service
	if cfg.API.Enabled {
		apiService = api.NewService(dir, accessor, checker, hub, api.JWTConfig{
			SecretKey:  cfg.API.JWTSecret,
			Expiration: 24 * time.Hour,
			Issuer:     "iot2mqtt",
		}, log)
		go func() {
			if err := apiService.Listen(cfg.API.Address); err != nil {
				log.Error("admin api: stopped", zap.Error(err))
			}
		}()
	}

	if sweep != nil {
		sweep.Start()
		defer sweep.Stop()
	}

	log.Info("iot2mqtt bridge is running")
	waitForShutdownSignal()
	log.Info("shutting down")

	pipe.Stop()
	if apiService != nil {
		_ = apiService.App().Shutdown()
	}
}

func waitForShutdownSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}

func buildDirectoryMirrors(cfg config.DirectoryConfig, log *zap.Logger) []directory.Mirror {
	var mirrors []directory.Mirror

	if cfg.SQLitePath != "" {
		mirror, err := directory.OpenSQLiteMirror(cfg.SQLitePath)
		if err != nil {
			log.Warn("directory: sqlite mirror disabled", zap.Error(err))
		} else {
			mirrors = append(mirrors, mirror)
		}
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		mirrors = append(mirrors, directory.NewRedisMirror(rdb, cfg.RedisKey))
	}

	return mirrors
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/itohio/plantcare/pkg/api"
	"github.com/itohio/plantcare/pkg/config"
	"github.com/itohio/plantcare/pkg/i2c"
	"github.com/itohio/plantcare/pkg/metrics"
	"github.com/itohio/plantcare/pkg/plant"
	"github.com/itohio/plantcare/pkg/telemetry"
	"github.com/itohio/plantcare/pkg/water"
)

const shutdownTimeout = 5 * time.Second

func main() {
	var (
		configFlag    = flag.String("config", "config.yaml", "Configuration file path")
		portFlag      = flag.String("p", "", "Serial port of the I2C bridge (e.g., COM3 or /dev/ttyACM0)")
		mockFlag      = flag.Bool("mock", false, "Keep both buses simulated even if a serial port is configured")
		listenFlag    = flag.String("listen", "", "HTTP listen address override (e.g., :8080)")
		mqttFlag      = flag.String("mqtt", "", "MQTT broker override (e.g., tcp://localhost:1883)")
		verboseFlag   = flag.Bool("v", false, "Verbose logging")
		listPortsFlag = flag.Bool("list-ports", false, "List serial ports and exit")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verboseFlag {
		level = slog.LevelDebug
	}
	log := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level, TimeFormat: time.TimeOnly}))
	slog.SetDefault(log)

	if *listPortsFlag {
		ports, err := i2c.Ports()
		if err != nil {
			log.Error("Failed to list ports", "err", err)
			os.Exit(1)
		}
		for _, p := range ports {
			fmt.Println(p.Name)
		}
		return
	}

	// Load configuration
	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Error("Failed to load configuration", "err", err)
		os.Exit(1)
	}

	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	if *mockFlag {
		cfg.Serial.Port = ""
	}
	if *listenFlag != "" {
		cfg.HTTP.Listen = *listenFlag
	}
	if *mqttFlag != "" {
		cfg.MQTT.Broker = *mqttFlag
	}

	if err := cfg.Validate(); err != nil {
		log.Error("Invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("Controller failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	b, err := newBoard(cfg)
	if err != nil {
		return err
	}
	if err := b.Connect(); err != nil {
		return fmt.Errorf("failed to connect board: %w", err)
	}
	defer b.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	observers := plant.Observers{metrics.New(reg)}

	if cfg.MQTT.Broker != "" {
		mirror, err := telemetry.DialMirror(cfg.MQTT.Broker, cfg.MQTT.Topic, cfg.MQTT.ClientID, log)
		if err != nil {
			return fmt.Errorf("failed to start MQTT mirror: %w", err)
		}
		defer mirror.Close()
		observers = append(observers, mirrorObserver{mirror: mirror})
		log.Info("Mirroring telemetry", "broker", cfg.MQTT.Broker, "topic", cfg.MQTT.Topic)
	}

	hw := b.Hardware()
	w := water.NewController(hw.Clock, b.Servo(), waterOptions(cfg, log)...)

	opts := []plant.Option{
		plant.WithLogger(log),
		plant.WithObserver(observers),
	}
	if boot, ok := bootTime(cfg); ok {
		opts = append(opts, plant.WithBootTime(boot))
	}

	ctrl, err := plant.New(settingsFrom(cfg), hw, w, opts...)
	if err != nil {
		return fmt.Errorf("failed to create controller: %w", err)
	}

	if cfg.HTTP.Listen != "" {
		srv := &http.Server{
			Addr:              cfg.HTTP.Listen,
			Handler:           api.NewRouter(ctrl, hw.Clock, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), log),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("HTTP API listening", "addr", cfg.HTTP.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("HTTP server failed", "err", err)
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			srv.Shutdown(sctx)
		}()
	}

	return ctrl.Run(ctx)
}

package main

import (
	"fmt"
	"log/slog"

	"github.com/itohio/plantcare/pkg/board"
	"github.com/itohio/plantcare/pkg/config"
	"github.com/itohio/plantcare/pkg/i2c"
	"github.com/itohio/plantcare/pkg/plant"
	"github.com/itohio/plantcare/pkg/rtc"
	"github.com/itohio/plantcare/pkg/telemetry"
	"github.com/itohio/plantcare/pkg/water"
)

// newBoard creates the bench board, bridged to real devices when a serial
// port is configured.
func newBoard(cfg *config.Config) (board.Board, error) {
	opts := []board.MockOption{
		board.WithAddresses(cfg.Clock.Address, cfg.Display.Address),
		board.WithPoller(i2c.Poller{Retries: cfg.Clock.PollRetries, Interval: cfg.Clock.PollInterval}),
	}

	if cfg.Serial.Port != "" {
		bridge, err := i2c.OpenBridge(cfg.Serial.Port, cfg.Serial.BaudRate, cfg.Serial.Timeout)
		if err != nil {
			return nil, fmt.Errorf("failed to open bridge: %w", err)
		}
		opts = append(opts, board.WithBridge(bridge))
	}

	return board.NewMock(&cfg.Mock, opts...), nil
}

func settingsFrom(cfg *config.Config) plant.Settings {
	return plant.Settings{
		WindowSize:      cfg.Sampling.WindowSize,
		TickPeriod:      cfg.Sampling.TickPeriod,
		HeartbeatPeriod: cfg.Sampling.HeartbeatPeriod,
		BusRetries:      cfg.Clock.PollRetries,
		VRef:            cfg.ADC.VRef,
		FullScale:       cfg.ADC.FullScale,
		DisplayAddress:  cfg.Display.Address,
	}
}

func waterOptions(cfg *config.Config, log *slog.Logger) []water.Option {
	return []water.Option{
		water.WithMaxDelta(cfg.Watering.MaxDelta),
		water.WithCooldown(cfg.Watering.Cooldown),
		water.WithTiming(water.Timing{
			Open:  cfg.Watering.OpenDuration,
			Pause: cfg.Watering.PauseDuration,
			Close: cfg.Watering.CloseDuration,
		}),
		water.WithLogger(log),
	}
}

// bootTime returns the configured start-up time, if any. The configuration
// is validated beforehand.
func bootTime(cfg *config.Config) (rtc.Time, bool) {
	if cfg.Clock.BootTime == "" {
		return rtc.Time{}, false
	}
	h, m, err := config.ParseClock(cfg.Clock.BootTime)
	if err != nil {
		return rtc.Time{}, false
	}
	return rtc.Time{Hours: h, Minutes: m}, true
}

// mirrorObserver forwards sent packets to MQTT.
type mirrorObserver struct {
	plant.NopObserver
	mirror *telemetry.Mirror
}

func (o mirrorObserver) PacketSent(p telemetry.Packet) {
	o.mirror.Publish(p)
}

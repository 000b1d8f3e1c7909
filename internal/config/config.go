package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/aquasense/water-telemetry/internal/telemetry"
)

// Transport selects how the device is reached.
type Transport string

const (
	TransportTCP    Transport = "tcp"
	TransportSerial Transport = "serial"
)

type AppConfig struct {
	// Device connection.
	Transport   Transport
	DeviceAddr  string        // tcp transport: host:port
	SerialPort  string        // serial transport: device file
	SerialBaud  int
	PollTimeout time.Duration // bound on one request/response exchange

	// PollInterval controls how often a tick runs.
	PollInterval time.Duration

	// Channel the pipeline polls and forecasts.
	Channel telemetry.Channel

	// Store.
	LogPath   string
	Retention time.Duration

	// Default forecast horizon.
	ForecastHorizon time.Duration

	Port string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	transport := Transport(getenvDefault("DEVICE_TRANSPORT", string(TransportTCP)))
	if transport != TransportTCP && transport != TransportSerial {
		return nil, fmt.Errorf("invalid DEVICE_TRANSPORT %q: want tcp or serial", transport)
	}
	cfg.Transport = transport
	cfg.DeviceAddr = getenvDefault("DEVICE_ADDR", "127.0.0.1:9000")
	cfg.SerialPort = getenvDefault("SERIAL_PORT", "/dev/ttyUSB0")
	cfg.SerialBaud = getenvInt("SERIAL_BAUD", 9600)

	pollTimeout, err := getenvDuration("POLL_TIMEOUT", "1s")
	if err != nil {
		return nil, err
	}
	cfg.PollTimeout = pollTimeout

	// Tick interval: default 2 seconds.
	interval, err := getenvDuration("POLL_INTERVAL", "2s")
	if err != nil {
		return nil, err
	}
	cfg.PollInterval = interval

	channel := telemetry.Channel(getenvDefault("TELEMETRY_CHANNEL", string(telemetry.ChannelPH)))
	if !channel.Valid() {
		return nil, fmt.Errorf("invalid TELEMETRY_CHANNEL %q", channel)
	}
	cfg.Channel = channel

	cfg.LogPath = getenvDefault("LOG_PATH", "sensor_data.csv")

	// Retention window: default 7 days.
	retention, err := getenvDuration("RETENTION_WINDOW", "168h")
	if err != nil {
		return nil, err
	}
	cfg.Retention = retention

	// Forecast horizon: default 30 days.
	horizon, err := getenvDuration("FORECAST_HORIZON", "720h")
	if err != nil {
		return nil, err
	}
	cfg.ForecastHorizon = horizon

	cfg.Port = getenvDefault("PORT", "8080")

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

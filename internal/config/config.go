// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Frame sources.
const (
	SourceSerial = "serial"
	SourceTCP    = "tcp"
	SourceMQTT   = "mqtt"
	SourceIMU    = "imu"
	SourceReplay = "replay"
	SourceMock   = "mock"
)

// Config holds all application configuration values.
type Config struct {
	// Frame source: serial, tcp, mqtt, imu, replay or mock
	FrameSource string

	// Serial
	SerialPort     string
	SerialBaudRate int

	// TCP
	TCPAddr        string
	TCPDialTimeout int // milliseconds

	// MQTT
	MQTTBroker          string
	MQTTClientIDTracker string
	MQTTClientIDBridge  string

	// Topics
	TopicFrames string
	TopicState  string
	TopicReset  string

	// Local IMU (frame bridge or FRAME_SOURCE=imu)
	IMUSPIDevice      string
	IMUCSPin          string
	IMUSampleInterval int // milliseconds

	// Replay / recording
	ReplayFile     string
	ReplayRealtime bool
	RecordFile     string

	// Consumers
	RenderInterval        int // milliseconds
	ConsoleLogInterval    int // milliseconds, 0 disables
	ConsoleKeys           bool
	WebServerPort         int // 0 disables
	MQTTPublishState      bool
	MQTTPublishInterval   int // milliseconds
	DisplayEnable         bool
	DisplayUpdateInterval int // milliseconds
	PositionScale         float64

	// Diagnostics
	LogRejectedFrames bool
}

// Package-level unexported variables for the singleton:
//   - globalConfig is only reachable through Get.
//   - configOnce makes InitGlobal run once.
//   - configMu guards globalConfig.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns a Config with every optional value filled in.
func Default() *Config {
	return &Config{
		SerialBaudRate:        115200,
		TCPDialTimeout:        2000,
		MQTTClientIDTracker:   "ring-tracker",
		MQTTClientIDBridge:    "ring-frame-bridge",
		TopicFrames:           "ring/frames",
		TopicState:            "ring/state",
		TopicReset:            "ring/reset",
		IMUSampleInterval:     10,
		RenderInterval:        16,
		ConsoleLogInterval:    500,
		MQTTPublishInterval:   100,
		DisplayUpdateInterval: 200,
		PositionScale:         0.1,
	}
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseInterval(key, value string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %d", key, v)
	}
	return v, nil
}

func parseBool(key, value string) (bool, error) {
	v, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	case "FRAME_SOURCE":
		switch value {
		case SourceSerial, SourceTCP, SourceMQTT, SourceIMU, SourceReplay, SourceMock:
			c.FrameSource = value
		default:
			return fmt.Errorf("FRAME_SOURCE must be one of serial, tcp, mqtt, imu, replay, mock; got %q", value)
		}

	// Serial
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD_RATE":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SERIAL_BAUD_RATE %q: %w", value, err)
		}
		if rate <= 0 {
			return fmt.Errorf("SERIAL_BAUD_RATE must be positive, got %d", rate)
		}
		c.SerialBaudRate = rate

	// TCP
	case "TCP_ADDR":
		c.TCPAddr = value
	case "TCP_DIAL_TIMEOUT":
		c.TCPDialTimeout, err = parseInterval(key, value)

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_TRACKER":
		c.MQTTClientIDTracker = value
	case "MQTT_CLIENT_ID_BRIDGE":
		c.MQTTClientIDBridge = value

	// Topics
	case "TOPIC_FRAMES":
		c.TopicFrames = value
	case "TOPIC_STATE":
		c.TopicState = value
	case "TOPIC_RESET":
		c.TopicReset = value

	// Local IMU
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value
	case "IMU_SAMPLE_INTERVAL":
		c.IMUSampleInterval, err = parseInterval(key, value)

	// Replay / recording
	case "REPLAY_FILE":
		c.ReplayFile = value
	case "REPLAY_REALTIME":
		c.ReplayRealtime, err = parseBool(key, value)
	case "RECORD_FILE":
		c.RecordFile = value

	// Consumers
	case "RENDER_INTERVAL":
		c.RenderInterval, err = parseInterval(key, value)
	case "CONSOLE_LOG_INTERVAL":
		c.ConsoleLogInterval, err = parseInterval(key, value)
	case "CONSOLE_KEYS":
		c.ConsoleKeys, err = parseBool(key, value)
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		if port < 0 || port > 65535 {
			return fmt.Errorf("WEB_SERVER_PORT must be 0-65535, got %d", port)
		}
		c.WebServerPort = port
	case "MQTT_PUBLISH_STATE":
		c.MQTTPublishState, err = parseBool(key, value)
	case "MQTT_PUBLISH_INTERVAL":
		c.MQTTPublishInterval, err = parseInterval(key, value)
	case "DISPLAY_ENABLE":
		c.DisplayEnable, err = parseBool(key, value)
	case "DISPLAY_UPDATE_INTERVAL":
		c.DisplayUpdateInterval, err = parseInterval(key, value)
	case "POSITION_SCALE":
		scale, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid POSITION_SCALE %q: %w", value, err)
		}
		if scale <= 0 {
			return fmt.Errorf("POSITION_SCALE must be positive, got %g", scale)
		}
		c.PositionScale = scale

	// Diagnostics
	case "LOG_REJECTED_FRAMES":
		c.LogRejectedFrames, err = parseBool(key, value)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

// Validate checks that the fields required by the chosen frame source and
// the enabled consumers are set.
func (c *Config) Validate() error {
	switch c.FrameSource {
	case "":
		return fmt.Errorf("FRAME_SOURCE is required")
	case SourceSerial:
		if c.SerialPort == "" {
			return fmt.Errorf("SERIAL_PORT is required for FRAME_SOURCE=serial")
		}
	case SourceTCP:
		if c.TCPAddr == "" {
			return fmt.Errorf("TCP_ADDR is required for FRAME_SOURCE=tcp")
		}
	case SourceMQTT:
		if c.MQTTBroker == "" {
			return fmt.Errorf("MQTT_BROKER is required for FRAME_SOURCE=mqtt")
		}
	case SourceIMU:
		if c.IMUSPIDevice == "" || c.IMUCSPin == "" {
			return fmt.Errorf("IMU_SPI_DEVICE and IMU_CS_PIN are required for FRAME_SOURCE=imu")
		}
	case SourceReplay:
		if c.ReplayFile == "" {
			return fmt.Errorf("REPLAY_FILE is required for FRAME_SOURCE=replay")
		}
	}
	if c.MQTTPublishState && c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required when MQTT_PUBLISH_STATE is set")
	}
	if c.WebServerPort > 0 && c.RenderInterval == 0 {
		return fmt.Errorf("RENDER_INTERVAL must be positive")
	}
	if c.MQTTPublishState && c.MQTTPublishInterval == 0 {
		return fmt.Errorf("MQTT_PUBLISH_INTERVAL must be positive")
	}
	if c.DisplayEnable && c.DisplayUpdateInterval == 0 {
		return fmt.Errorf("DISPLAY_UPDATE_INTERVAL must be positive")
	}
	if c.FrameSource == SourceIMU || c.FrameSource == SourceMock {
		if c.IMUSampleInterval == 0 {
			return fmt.Errorf("IMU_SAMPLE_INTERVAL must be positive")
		}
	}
	return nil
}

// InitGlobal loads the configuration file into the process-wide config.
// Only the first call has any effect.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance, or nil before InitGlobal.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}

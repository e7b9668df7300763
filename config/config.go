// Package config loads the configuration shared by the tourrtc commands.
//
// Configuration comes from a single YAML file named by the --config flag or
// the TOURRTC_CONFIG environment variable. A few environment variables then
// override file values, so deployments can inject secrets and endpoints:
//
//	TOURRTC_SIGNALER    transport.endpoint
//	TOURRTC_TRANSPORT   transport.kind
//	TOURRTC_REDIS_ADDR  transport.redis.addr
//	TOURRTC_JWT_SECRET  relay.jwt_secret
//	TOURRTC_LOG_LEVEL   log.level
//
// Without a file the defaults apply.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/pion/webrtc/v3"
	"github.com/shynome/tourrtc/media"
	"gopkg.in/yaml.v3"
)

// Transport kinds.
const (
	TransportSSE       = "sse"
	TransportWebSocket = "ws"
	TransportRedis     = "redis"
)

type Config struct {
	Transport TransportConfig `yaml:"transport"`
	ICE       ICEConfig       `yaml:"ice"`
	Media     MediaConfig     `yaml:"media"`
	Relay     RelayConfig     `yaml:"relay"`
	Log       LogConfig       `yaml:"log"`
}

// TransportConfig selects the broadcast channel peers signal over.
type TransportConfig struct {
	// Kind is one of sse, ws, redis.
	Kind string `yaml:"kind"`

	// Endpoint is the relay URL for sse and ws. For sse it is the stream
	// URL itself and may carry basic-auth userinfo.
	Endpoint string `yaml:"endpoint"`

	// Token is a relay bearer token.
	Token string `yaml:"token"`

	Redis RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type ICEConfig struct {
	// Servers are STUN/TURN URLs.
	Servers []string `yaml:"servers"`
	// UDPPort, when set, carries all ICE traffic over one UDP port.
	UDPPort uint16 `yaml:"udp_port"`
}

type MediaConfig struct {
	// DeviceClass is desktop or handheld.
	DeviceClass string `yaml:"device_class"`
}

type RelayConfig struct {
	Listen         string   `yaml:"listen"`
	JWTSecret      string   `yaml:"jwt_secret"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	Production     bool     `yaml:"production"`
}

type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

func Default() *Config {
	return &Config{
		Transport: TransportConfig{
			Kind:     TransportSSE,
			Endpoint: "http://localhost:8080/sse",
			Redis:    RedisConfig{Addr: "localhost:6379"},
		},
		ICE: ICEConfig{
			Servers: []string{"stun:stun.l.google.com:19302", "stun:stun1.l.google.com:19302"},
		},
		Media: MediaConfig{DeviceClass: media.Desktop.String()},
		Relay: RelayConfig{Listen: ":8080"},
		Log:   LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path, or TOURRTC_CONFIG when path is empty, and applies the
// environment overrides. The result is validated.
func Load(path string) (*Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = getenv("TOURRTC_CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
	}
	cfg.applyEnv(getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.Transport.Endpoint, "TOURRTC_SIGNALER")
	set(&c.Transport.Kind, "TOURRTC_TRANSPORT")
	set(&c.Transport.Redis.Addr, "TOURRTC_REDIS_ADDR")
	set(&c.Relay.JWTSecret, "TOURRTC_JWT_SECRET")
	set(&c.Log.Level, "TOURRTC_LOG_LEVEL")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	switch c.Transport.Kind {
	case TransportSSE, TransportWebSocket:
		if c.Transport.Endpoint == "" {
			errs = append(errs, fmt.Errorf("transport.endpoint is required for %s", c.Transport.Kind))
		}
	case TransportRedis:
		if c.Transport.Redis.Addr == "" {
			errs = append(errs, errors.New("transport.redis.addr is required for redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid transport.kind: %q", c.Transport.Kind))
	}

	if _, err := media.ParseDeviceClass(c.Media.DeviceClass); err != nil {
		errs = append(errs, fmt.Errorf("media.device_class: %w", err))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("invalid log.format: %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// ICEServers converts the configured URLs. Empty means none.
func (c *Config) ICEServers() []webrtc.ICEServer {
	if len(c.ICE.Servers) == 0 {
		return nil
	}
	return []webrtc.ICEServer{{URLs: c.ICE.Servers}}
}

// DeviceClass is the parsed media.device_class. Call after Validate.
func (c *Config) DeviceClass() media.DeviceClass {
	class, _ := media.ParseDeviceClass(c.Media.DeviceClass)
	return class
}

func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(l.Level))
	return level, err
}

// Logger builds the process logger writing to w.
func (l LogConfig) Logger(w io.Writer) *slog.Logger {
	level, _ := l.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

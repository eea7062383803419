package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Member struct {
		ID           string `yaml:"id"`
		RemoteMember string `yaml:"remote_member"`
	} `yaml:"member"`

	Signal struct {
		URL          string        `yaml:"url"`
		PingInterval time.Duration `yaml:"ping_interval"`
		WriteTimeout time.Duration `yaml:"write_timeout"`

		Reconnect struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			InitialDelay time.Duration `yaml:"initial_delay"`
			MaxDelay     time.Duration `yaml:"max_delay"`
		} `yaml:"reconnect"`
	} `yaml:"signal"`

	WebRTC struct {
		ICEServers []struct {
			URLs       []string `yaml:"urls"`
			Username   string   `yaml:"username,omitempty"`
			Credential string   `yaml:"credential,omitempty"`
		} `yaml:"ice_servers"`
		ForceRelay bool `yaml:"force_relay"`
	} `yaml:"webrtc"`

	Media struct {
		Audio struct {
			Enabled  bool   `yaml:"enabled"`
			DeviceID string `yaml:"device_id"`
			Required bool   `yaml:"required"`
		} `yaml:"audio"`

		DeviceVideo struct {
			Enabled  bool   `yaml:"enabled"`
			DeviceID string `yaml:"device_id"`
			Width    int    `yaml:"width"`
			Height   int    `yaml:"height"`
			Required bool   `yaml:"required"`
		} `yaml:"device_video"`

		DisplayVideo struct {
			Enabled bool `yaml:"enabled"`
			Width   int  `yaml:"width"`
			Height  int  `yaml:"height"`
		} `yaml:"display_video"`

		RecvAudio bool `yaml:"recv_audio"`
		RecvVideo bool `yaml:"recv_video"`
	} `yaml:"media"`

	Stats struct {
		Enabled        bool          `yaml:"enabled"`
		Interval       time.Duration `yaml:"interval"`
		RatePerSecond  float64       `yaml:"rate_per_second"`
		Burst          int           `yaml:"burst"`
	} `yaml:"stats"`

	Monitoring struct {
		Enabled bool   `yaml:"enabled"`
		Address string `yaml:"address"`
	} `yaml:"monitoring"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	Auth struct {
		JWTSecret string        `yaml:"jwt_secret"`
		TokenTTL  time.Duration `yaml:"token_ttl"`
	} `yaml:"auth"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Member.ID == "" {
		return fmt.Errorf("member.id must not be empty")
	}

	if c.Signal.URL == "" {
		return fmt.Errorf("signal.url must not be empty")
	}
	if c.Signal.PingInterval <= 0 {
		return fmt.Errorf("signal.ping_interval must be > 0")
	}
	if c.Signal.WriteTimeout <= 0 {
		return fmt.Errorf("signal.write_timeout must be > 0")
	}
	if c.Signal.Reconnect.MaxAttempts < 0 {
		return fmt.Errorf("signal.reconnect.max_attempts must be >= 0")
	}

	for i, server := range c.WebRTC.ICEServers {
		if len(server.URLs) == 0 {
			return fmt.Errorf("webrtc.ice_servers[%d].urls must not be empty", i)
		}
	}

	if c.Media.DeviceVideo.Enabled {
		if c.Media.DeviceVideo.Width < 0 || c.Media.DeviceVideo.Height < 0 {
			return fmt.Errorf("media.device_video dimensions must be >= 0")
		}
	}

	if c.Stats.Enabled {
		if c.Stats.Interval <= 0 {
			return fmt.Errorf("stats.interval must be > 0 when stats.enabled=true")
		}
		if c.Stats.RatePerSecond <= 0 {
			return fmt.Errorf("stats.rate_per_second must be > 0 when stats.enabled=true")
		}
		if c.Stats.Burst <= 0 {
			return fmt.Errorf("stats.burst must be > 0 when stats.enabled=true")
		}
	}

	if c.Monitoring.Enabled && c.Monitoring.Address == "" {
		return fmt.Errorf("monitoring.address must not be empty when monitoring.enabled=true")
	}

	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be > 0")
	}

	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Member.ID = "peerlink-client"

	cfg.Signal.URL = "ws://localhost:8081/ws"
	cfg.Signal.PingInterval = 30 * time.Second
	cfg.Signal.WriteTimeout = 10 * time.Second
	cfg.Signal.Reconnect.MaxAttempts = 5
	cfg.Signal.Reconnect.InitialDelay = 500 * time.Millisecond
	cfg.Signal.Reconnect.MaxDelay = 10 * time.Second

	cfg.Media.Audio.Enabled = true
	cfg.Media.DeviceVideo.Enabled = true
	cfg.Media.DeviceVideo.Width = 1280
	cfg.Media.DeviceVideo.Height = 720
	cfg.Media.RecvAudio = true
	cfg.Media.RecvVideo = true

	cfg.Stats.Enabled = true
	cfg.Stats.Interval = 5 * time.Second
	cfg.Stats.RatePerSecond = 1
	cfg.Stats.Burst = 3

	cfg.Monitoring.Enabled = true
	cfg.Monitoring.Address = ":9091"

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10

	cfg.Auth.JWTSecret = "change-me-in-production"
	cfg.Auth.TokenTTL = 15 * time.Minute

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	return cfg
}

func (c *Config) applyEnvOverrides() {
	// Apply environment variable overrides
	if id := os.Getenv("PEERLINK_MEMBER_ID"); id != "" {
		c.Member.ID = id
	}
	if url := os.Getenv("PEERLINK_SIGNAL_URL"); url != "" {
		c.Signal.URL = url
	}
	if level := os.Getenv("PEERLINK_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("PEERLINK_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
}

// Package config loads the world-host configuration surface: chunk
// sizing, tick rate, transport limits, movement tunables and persistence.
// It uses a viper-backed loader unmarshalled into a mapstructure-tagged
// struct, merged with environment overrides.
package config

import (
	"encoding/json"
	"strings"

	"github.com/spf13/viper"

	"github.com/WorldsMadeReal/world-host/pkg/utils"
)

// World groups chunking and physics tunables: chunk_size, chunk_height,
// gravity, terminal_velocity, ground_friction, air_friction,
// collision_epsilon.
type World struct {
	ChunkSize         float64 `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkHeight       float64 `mapstructure:"chunk_height" json:"chunk_height"`
	Gravity           float64 `mapstructure:"gravity" json:"gravity"`
	TerminalVelocity  float64 `mapstructure:"terminal_velocity" json:"terminal_velocity"`
	GroundFriction    float64 `mapstructure:"ground_friction" json:"ground_friction"`
	AirFriction       float64 `mapstructure:"air_friction" json:"air_friction"`
	CollisionEpsilon  float64 `mapstructure:"collision_epsilon" json:"collision_epsilon"`
	DefaultMaxSpeed   float64 `mapstructure:"default_max_speed" json:"default_max_speed"`
	OccupancyGridSize int     `mapstructure:"occupancy_grid_size" json:"occupancy_grid_size"`
}

// Chunk groups Chunk Manager eviction tunables.
type Chunk struct {
	MaxLoadedChunks    int `mapstructure:"max_loaded_chunks" json:"max_loaded_chunks"`
	MaxRetainedChunks  int `mapstructure:"max_retained_chunks" json:"max_retained_chunks"`
	UnloadDelayMS      int `mapstructure:"chunk_unload_delay_ms" json:"chunk_unload_delay_ms"`
	EvictionIntervalMS int `mapstructure:"chunk_eviction_interval_ms" json:"chunk_eviction_interval_ms"`
}

// Tick groups Tick Scheduler tunables.
type Tick struct {
	TargetFPS        int  `mapstructure:"target_fps" json:"target_fps"`
	MaxDeltaTimeMS   int  `mapstructure:"max_delta_time_ms" json:"max_delta_time_ms"`
	TickRateDisabled bool `mapstructure:"tick_rate_disabled" json:"tick_rate_disabled"`
}

// Transport groups Session Manager and wire-level tunables.
type Transport struct {
	HeartbeatMS            int `mapstructure:"ws_heartbeat_ms" json:"ws_heartbeat_ms"`
	ConnectionTimeoutMS     int `mapstructure:"ws_connection_timeout_ms" json:"ws_connection_timeout_ms"`
	MaxSubsPerClient        int `mapstructure:"max_subs_per_client" json:"max_subs_per_client"`
	MaxMessageSizeBytes     int `mapstructure:"max_message_size" json:"max_message_size"`
	MaxMessagesPerSecond    int `mapstructure:"max_messages_per_second" json:"max_messages_per_second"`
	MaxConcurrentConnections int `mapstructure:"max_concurrent_connections" json:"max_concurrent_connections"`
	OutboundBufferSize      int `mapstructure:"outbound_buffer_size" json:"outbound_buffer_size"`
}

// Persistence groups snapshot/save tunables for the admin surface.
type Persistence struct {
	DataDirectory      string `mapstructure:"data_directory" json:"data_directory"`
	AutoSaveIntervalMS int    `mapstructure:"auto_save_interval_ms" json:"auto_save_interval_ms"`
}

// RateLimit groups the generic request rate limiter applied per session.
type RateLimit struct {
	WindowMS    int `mapstructure:"rate_limit_window_ms" json:"rate_limit_window_ms"`
	MaxRequests int `mapstructure:"rate_limit_max_requests" json:"rate_limit_max_requests"`
}

// Config is the immutable, process-wide configuration record, read once
// at startup.
type Config struct {
	World       World       `mapstructure:"world" json:"world"`
	Chunk       Chunk       `mapstructure:"chunk" json:"chunk"`
	Tick        Tick        `mapstructure:"tick" json:"tick"`
	Transport   Transport   `mapstructure:"transport" json:"transport"`
	Persistence Persistence `mapstructure:"persistence" json:"persistence"`
	RateLimit   RateLimit   `mapstructure:"rate_limit" json:"rate_limit"`

	AdminAddr string `mapstructure:"admin_addr" json:"admin_addr"`
	WSAddr    string `mapstructure:"ws_addr" json:"ws_addr"`
}

// Default returns the configuration with every documented default.
func Default() Config {
	return Config{
		World: World{
			ChunkSize:         32,
			ChunkHeight:       256,
			Gravity:           -9.81,
			TerminalVelocity:  -53,
			GroundFriction:    0.8,
			AirFriction:       0.98,
			CollisionEpsilon:  0.001,
			DefaultMaxSpeed:   5,
			OccupancyGridSize: 16,
		},
		Chunk: Chunk{
			MaxLoadedChunks:    1000,
			MaxRetainedChunks:  20000,
			UnloadDelayMS:      60000,
			EvictionIntervalMS: 30000,
		},
		Tick: Tick{
			TargetFPS:        60,
			MaxDeltaTimeMS:   100,
			TickRateDisabled: false,
		},
		Transport: Transport{
			HeartbeatMS:              30000,
			ConnectionTimeoutMS:      60000,
			MaxSubsPerClient:         100,
			MaxMessageSizeBytes:      65536,
			MaxMessagesPerSecond:     60,
			MaxConcurrentConnections: 10000,
			OutboundBufferSize:       256,
		},
		Persistence: Persistence{
			DataDirectory:      "./data",
			AutoSaveIntervalMS: 300000,
		},
		RateLimit: RateLimit{
			WindowMS:    1000,
			MaxRequests: 60,
		},
		AdminAddr: ":8090",
		WSAddr:    ":8091",
	}
}

// Load reads an optional config file (yaml/json/toml, resolved by viper) and
// merges WORLDHOST_-prefixed environment overrides on top of Default().
func Load(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix("WORLDHOST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// viper only consults the environment for keys it already knows, so
	// every default is registered before unmarshalling.
	raw, err := json.Marshal(cfg)
	if err != nil {
		return cfg, utils.Wrap(err, "encode defaults")
	}
	var defaults map[string]any
	if err := json.Unmarshal(raw, &defaults); err != nil {
		return cfg, utils.Wrap(err, "decode defaults")
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cfg, utils.Wrap(err, "read config file")
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, utils.Wrap(err, "unmarshal config")
	}
	return cfg, nil
}

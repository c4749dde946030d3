// Package config loads process configuration via viper, the way the rest
// of the corpus does it: environment variables first, an optional config
// file layered underneath, sane defaults for everything else.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full set of tunables the core reads at startup. Nothing in
// here is reloaded at runtime; a new process picks up changes.
type Config struct {
	LogLevel string `mapstructure:"log_level"`
	LogPath  string `mapstructure:"log_path"`

	DatabaseDSN    string `mapstructure:"database_dsn"`
	DatabaseDriver string `mapstructure:"database_driver"` // postgres | sqlite

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	BusNamespace string `mapstructure:"bus_namespace"`
	ListenAddr   string `mapstructure:"listen_addr"`

	SFUWorkerCount int `mapstructure:"sfu_worker_count"`

	// RTCPortMin/Max bound the ICE/DTLS ephemeral UDP ports of every SFU
	// worker's WebRTC transports. They do not bound the plain-RTP transports
	// handed to ingest processes, which bind an OS-assigned loopback port.
	RTCPortMin int `mapstructure:"rtc_port_min"`
	RTCPortMax int `mapstructure:"rtc_port_max"`

	SRTPortMin int `mapstructure:"srt_ingest_port_min"`
	SRTPortMax int `mapstructure:"srt_ingest_port_max"`

	RISTPortMin int `mapstructure:"rist_ingest_port_min"`
	RISTPortMax int `mapstructure:"rist_ingest_port_max"`

	// PlainTransportPortOffset is added to the mediasoup-chosen loopback
	// port to derive the external port the encoder child is told to bind.
	PlainTransportPortOffset int `mapstructure:"plain_transport_port_offset"`

	FailoverTimeout    time.Duration `mapstructure:"failover_timeout"`
	HeartbeatInterval  time.Duration `mapstructure:"heartbeat_interval"`
	EncoderDebounce    time.Duration `mapstructure:"encoder_debounce"`
	EncoderStopGrace   time.Duration `mapstructure:"encoder_stop_grace"`
	ConnectionTimeout  time.Duration `mapstructure:"connection_timeout"`
	ProgressTimeout    time.Duration `mapstructure:"progress_timeout"`
	BusProducerMaxWait time.Duration `mapstructure:"bus_producer_max_wait"`

	EncoderRetryDelays []time.Duration `mapstructure:"-"`
	EncoderMaxRetries  int             `mapstructure:"encoder_max_retries"`

	JWTSigningKey string `mapstructure:"jwt_signing_key"`

	// ICEServers is the STUN/TURN list handed to joining clients alongside
	// the router's RTP capabilities (§4.2 room:join).
	ICEServers []string `mapstructure:"ice_servers"`

	IFBPollMaxRetries int           `mapstructure:"ifb_poll_max_retries"`
	IFBPollInterval   time.Duration `mapstructure:"ifb_poll_interval"`

	ChatHistoryLimit int `mapstructure:"chat_history_limit"`
}

// Load reads STUDIO_-prefixed environment variables (and, if present, a
// config file named by STUDIO_CONFIG_FILE) into a Config, filling in
// defaults for anything unset. The SRT/RIST ingest port bounds are also read
// from their unprefixed names (e.g. RIST_INGEST_PORT_MIN); the prefixed name
// wins when both are set.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("STUDIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range []string{"srt_ingest_port_min", "srt_ingest_port_max", "rist_ingest_port_min", "rist_ingest_port_max"} {
		env := strings.ToUpper(key)
		if err := v.BindEnv(key, "STUDIO_"+env, env); err != nil {
			return nil, fmt.Errorf("config: bind env %s: %w", env, err)
		}
	}

	setDefaults(v)

	if cf := v.GetString("config_file"); cf != "" {
		v.SetConfigFile(cf)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading config file %q: %w", cf, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	cfg.EncoderRetryDelays = []time.Duration{5 * time.Second, 15 * time.Second, 30 * time.Second}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_path", "")

	v.SetDefault("database_driver", "postgres")
	v.SetDefault("database_dsn", "")

	v.SetDefault("redis_addr", "127.0.0.1:6379")
	v.SetDefault("redis_db", 0)

	v.SetDefault("bus_namespace", "/call-center")
	v.SetDefault("listen_addr", ":8089")

	v.SetDefault("sfu_worker_count", 4)

	v.SetDefault("rtc_port_min", 20000)
	v.SetDefault("rtc_port_max", 25000)

	v.SetDefault("srt_ingest_port_min", 31000)
	v.SetDefault("srt_ingest_port_max", 31999)

	v.SetDefault("rist_ingest_port_min", 32000)
	v.SetDefault("rist_ingest_port_max", 32999)

	v.SetDefault("plain_transport_port_offset", 10000)

	v.SetDefault("failover_timeout", 5*time.Second)
	v.SetDefault("heartbeat_interval", 2*time.Second)
	v.SetDefault("encoder_debounce", 500*time.Millisecond)
	v.SetDefault("encoder_stop_grace", 1*time.Second)
	v.SetDefault("connection_timeout", 15*time.Second)
	v.SetDefault("progress_timeout", 10*time.Second)
	v.SetDefault("bus_producer_max_wait", 3*time.Second)
	v.SetDefault("encoder_max_retries", 3)

	v.SetDefault("jwt_signing_key", "")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})

	v.SetDefault("ifb_poll_max_retries", 10)
	v.SetDefault("ifb_poll_interval", 300*time.Millisecond)

	v.SetDefault("chat_history_limit", 200)
}

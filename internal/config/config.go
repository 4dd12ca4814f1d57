package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env       string          `yaml:"env" env:"APP_ENV" env-default:"local"`
	HTTP      HTTPConfig      `yaml:"http"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Auth      AuthConfig      `yaml:"auth"`
	Database  DatabaseConfig  `yaml:"database"`
	Cache     CacheConfig     `yaml:"cache"`
	Limits    LimitsConfig    `yaml:"limits"`
	Auction   AuctionConfig   `yaml:"auction"`
	Presence  PresenceConfig  `yaml:"presence"`
	Store     StoreConfig     `yaml:"store"`
	WebRTC    WebRTCConfig    `yaml:"webrtc"`
}

type HTTPConfig struct {
	Address        string   `yaml:"address" env:"HTTP_ADDRESS"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type WebSocketConfig struct {
	ReadBuffer      int           `yaml:"read_buffer" env-default:"1024"`
	WriteBuffer     int           `yaml:"write_buffer" env-default:"1024"`
	SendBuffer      int           `yaml:"send_buffer" env-default:"64"`
	MaxMessageBytes int64         `yaml:"max_message_bytes" env-default:"65536"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env-default:"10s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env-default:"75s"`
	SweepInterval   string        `yaml:"sweep_interval" env-default:"@every 15s"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
	Issuer    string `yaml:"issuer" env:"JWT_ISSUER"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver" env:"DB_DRIVER" env-default:"memory"`
	DSN    string `yaml:"dsn" env:"DB_DSN"`
}

type CacheConfig struct {
	Driver string      `yaml:"driver" env:"CACHE_DRIVER" env-default:"memory"`
	Redis  RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr" env:"REDIS_ADDR"`
	Password  string `yaml:"password" env:"REDIS_PASSWORD"`
	DB        int    `yaml:"db" env:"REDIS_DB"`
	KeyPrefix string `yaml:"key_prefix" env-default:"auction:"`
}

// Limit is a fixed-window ceiling: at most Count actions per Window.
type Limit struct {
	Count  int           `yaml:"count"`
	Window time.Duration `yaml:"window"`
}

type LimitsConfig struct {
	Join                 Limit         `yaml:"join"`
	Bid                  Limit         `yaml:"bid"`
	ChatMessage          Limit         `yaml:"chat_message"`
	Call                 Limit         `yaml:"call"`
	CallSignal           Limit         `yaml:"call_signal"`
	ConnectionsPerSource Limit         `yaml:"connections_per_source"`
	BanDuration          time.Duration `yaml:"ban_duration"`
}

type AuctionConfig struct {
	MinIncrementFloor int64 `yaml:"min_increment_floor" env-default:"0"`
	CommitRetries     int   `yaml:"commit_retries" env-default:"3"`
}

type PresenceConfig struct {
	TTL time.Duration `yaml:"ttl" env-default:"5m"`
}

type StoreConfig struct {
	Timeout time.Duration `yaml:"timeout" env-default:"5s"`
}

type WebRTCConfig struct {
	STUNServers []string `yaml:"stun_servers"`
}

func MustLoad() *Config {
	configPath := fetchConfigPath()
	if configPath == "" {
		panic("config path is empty")
	}

	return MustLoadPath(configPath)
}

func MustLoadPath(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file does not exist: " + configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("cannot read config: " + err.Error())
	}

	cfg.SetDefaults()

	return &cfg
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	if res == "" {
		res = "config/local.yaml"
	}

	return res
}

// SetDefaults fills every zero value the engine cannot run without.
func (c *Config) SetDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if len(c.HTTP.AllowedOrigins) == 0 {
		c.HTTP.AllowedOrigins = []string{"http://localhost:3000"}
	}
	if len(c.WebRTC.STUNServers) == 0 {
		c.WebRTC.STUNServers = []string{"stun:stun.l.google.com:19302"}
	}

	if c.WebSocket.ReadBuffer <= 0 {
		c.WebSocket.ReadBuffer = 1024
	}
	if c.WebSocket.WriteBuffer <= 0 {
		c.WebSocket.WriteBuffer = 1024
	}
	if c.WebSocket.SendBuffer <= 0 {
		c.WebSocket.SendBuffer = 64
	}
	if c.WebSocket.MaxMessageBytes <= 0 {
		c.WebSocket.MaxMessageBytes = 64 << 10
	}
	if c.WebSocket.WriteTimeout <= 0 {
		c.WebSocket.WriteTimeout = 10 * time.Second
	}
	if c.WebSocket.IdleTimeout <= 0 {
		c.WebSocket.IdleTimeout = 75 * time.Second
	}
	if c.WebSocket.SweepInterval == "" {
		c.WebSocket.SweepInterval = "@every 15s"
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "memory"
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = "memory"
	}

	c.Limits.Join = withDefault(c.Limits.Join, 3, time.Minute)
	c.Limits.Bid = withDefault(c.Limits.Bid, 10, time.Minute)
	c.Limits.ChatMessage = withDefault(c.Limits.ChatMessage, 30, time.Minute)
	c.Limits.Call = withDefault(c.Limits.Call, 8, time.Minute)
	c.Limits.CallSignal = withDefault(c.Limits.CallSignal, 300, time.Minute)
	c.Limits.ConnectionsPerSource = withDefault(c.Limits.ConnectionsPerSource, 20, time.Minute)
	if c.Limits.BanDuration <= 0 {
		c.Limits.BanDuration = 5 * time.Minute
	}

	if c.Auction.CommitRetries <= 0 {
		c.Auction.CommitRetries = 3
	}
	if c.Presence.TTL <= 0 {
		c.Presence.TTL = 5 * time.Minute
	}
	if c.Store.Timeout <= 0 {
		c.Store.Timeout = 5 * time.Second
	}
}

func withDefault(l Limit, count int, window time.Duration) Limit {
	if l.Count <= 0 {
		l.Count = count
	}
	if l.Window <= 0 {
		l.Window = window
	}
	return l
}

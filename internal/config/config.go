package config

import (
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env        string        `yaml:"env" env-default:"local"`
	VideosPath string        `yaml:"videos_path" env-default:"./recordings"`
	TokenTTL   time.Duration `yaml:"token_ttl" env-default:"12h"`
	Secret     string        `yaml:"secret" env:"APP_SECRET" env-required:"true"`
	HTTPServer `yaml:"http_server"`
	DB         DB        `yaml:"db"`
	Cameras    []Camera  `yaml:"cameras"`
	Capture    Capture   `yaml:"capture"`
	Broadcast  Broadcast `yaml:"broadcast"`
	Monitor    Monitor   `yaml:"monitor"`
}

type HTTPServer struct {
	Address     string        `yaml:"address" env-default:"localhost:8080"`
	Timeout     time.Duration `yaml:"timeout" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

type DB struct {
	Host     string `yaml:"host" env-default:"localhost"`
	Port     string `yaml:"port" env-default:"5432"`
	Username string `yaml:"username" env-default:"postgres"`
	DBName   string `yaml:"dbname" env-default:"packing"`
	SSLMode  string `yaml:"sslmode" env-default:"disable"`
	Password string `yaml:"-"`
}

// Camera is a statically configured video source. Discovery of new sources
// happens outside the service; this list is what the shift works with.
type Camera struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled" env-default:"true"`
}

type Capture struct {
	FailureThreshold int           `yaml:"failure_threshold" env-default:"5"`
	RetryInterval    time.Duration `yaml:"retry_interval" env-default:"2s"`
	MaxRetryInterval time.Duration `yaml:"max_retry_interval" env-default:"30s"`
	FrameBuffer      int           `yaml:"frame_buffer" env-default:"30"`
	FPS              float64       `yaml:"fps" env-default:"20"`
}

type Broadcast struct {
	SnapshotInterval time.Duration `yaml:"snapshot_interval" env-default:"1s"`
	ClientBuffer     int           `yaml:"client_buffer" env-default:"16"`
}

type Monitor struct {
	Interval  time.Duration `yaml:"interval" env-default:"5s"`
	RAMLimit  float64       `yaml:"ram_limit" env-default:"90"`
	CPULimit  float64       `yaml:"cpu_limit" env-default:"95"`
	DiskLimit float64       `yaml:"disk_limit" env-default:"90"`
}

func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		panic("CONFIG_PATH is not set")
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file does not exist: " + configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("cannot read config: " + err.Error())
	}

	return &cfg
}

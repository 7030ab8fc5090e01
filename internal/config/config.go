package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/cornea/internal/constants"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Model      ModelConfig
	Detector   DetectorConfig
	Recognizer RecognizerConfig
	Training   TrainingConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	S3         S3Config
	Web        WebConfig
	Log        LogConfig
}

type ModelConfig struct {
	Dir string // directory holding model artifacts
}

type DetectorConfig struct {
	Kind         string // pigo, frame or haar (haar needs the gocv build tag)
	CascadePath  string // cascade file for pigo and haar detectors
	ScaleFactor  float64
	MinNeighbors int
	MinSize      int
}

type RecognizerConfig struct {
	Radius         int
	Neighbors      int
	GridX          int
	GridY          int
	PatchSize      int
	Threshold      float64 // max distance for a known identity, 0 disables
	IndexThreshold int     // sample count that switches prediction to the HNSW index
}

type TrainingConfig struct {
	MultiFace   string        // skip, reject or keep
	Concurrency int           // parallel decode/detect during preparation
	Workers     int           // worker pool size for CPU-bound calls
	Timeout     time.Duration // zero means unbounded
}

type DatabaseConfig struct {
	URL          string // postgres:// or mysql:// connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type RedisConfig struct {
	Address  string // empty disables the distributed retrain lock
	Password string
	DB       int
	LockTTL  time.Duration
}

type S3Config struct {
	Bucket    string // empty disables artifact mirroring
	Region    string
	Endpoint  string
	Prefix    string
	AccessKey string
	SecretKey string
}

type WebConfig struct {
	Host      string
	Port      int
	RateLimit float64 // recognition requests per second, 0 disables
	RateBurst int
	// AllowedOrigins receive CORS headers and may open streams.
	// Localhost is always allowed.
	AllowedOrigins []string
}

type LogConfig struct {
	Level string
	File  string // empty logs to stderr only
}

// fileConfig mirrors the YAML config file. The flat model_default_path key and
// the database.postgres block keep older config files readable.
type fileConfig struct {
	ModelDefaultPath string `yaml:"model_default_path"`
	Database         struct {
		URL      string        `yaml:"url"`
		Postgres *postgresFile `yaml:"postgres"`
	} `yaml:"database"`
	Detector struct {
		Kind         string  `yaml:"kind"`
		CascadePath  string  `yaml:"cascade_path"`
		ScaleFactor  float64 `yaml:"scale_factor"`
		MinNeighbors int     `yaml:"min_neighbors"`
	} `yaml:"detector"`
	Recognizer struct {
		Threshold float64 `yaml:"threshold"`
		PatchSize int     `yaml:"patch_size"`
	} `yaml:"recognizer"`
	Training struct {
		MultiFace string `yaml:"multi_face"`
		Timeout   string `yaml:"timeout"`
	} `yaml:"training"`
	Redis struct {
		Address string `yaml:"address"`
	} `yaml:"redis"`
	S3 struct {
		Bucket   string `yaml:"bucket"`
		Region   string `yaml:"region"`
		Endpoint string `yaml:"endpoint"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"s3"`
	Web struct {
		Host           string   `yaml:"host"`
		Port           int      `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"web"`
}

type postgresFile struct {
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
}

// DSN builds a lib/pq connection URL from the discrete postgres settings.
func (p *postgresFile) DSN() string {
	host := p.Host
	if host == "" {
		host = "localhost"
	}
	port := p.Port
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     net.JoinHostPort(host, strconv.Itoa(port)),
		Path:     "/" + p.Database,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a non-negative float, falling back to defaultVal.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// Default returns the configuration used when neither a file nor the
// environment override anything.
func Default() *Config {
	return &Config{
		Model: ModelConfig{Dir: "models"},
		Detector: DetectorConfig{
			Kind:         "pigo",
			CascadePath:  "cascade/facefinder",
			ScaleFactor:  constants.DefaultScaleFactor,
			MinNeighbors: constants.DefaultMinNeighbors,
			MinSize:      constants.DefaultMinFaceSize,
		},
		Recognizer: RecognizerConfig{
			Radius:         1,
			Neighbors:      8,
			GridX:          8,
			GridY:          8,
			PatchSize:      constants.DefaultPatchSize,
			IndexThreshold: constants.DefaultIndexThreshold,
		},
		Training: TrainingConfig{
			MultiFace:   "skip",
			Concurrency: constants.PrepareConcurrency,
			Workers:     constants.WorkerPoolSize,
		},
		Database: DatabaseConfig{
			MaxOpenConns: 25,
			MaxIdleConns: 5,
		},
		Redis: RedisConfig{LockTTL: 30 * time.Minute},
		Web: WebConfig{
			Host:      "0.0.0.0",
			Port:      8000,
			RateLimit: 20,
			RateBurst: 40,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load builds the configuration from defaults, the optional YAML file at path
// and finally the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if f.ModelDefaultPath != "" {
		c.Model.Dir = f.ModelDefaultPath
	}
	switch {
	case f.Database.URL != "":
		c.Database.URL = f.Database.URL
	case f.Database.Postgres != nil:
		c.Database.URL = f.Database.Postgres.DSN()
	}
	if f.Detector.Kind != "" {
		c.Detector.Kind = f.Detector.Kind
	}
	if f.Detector.CascadePath != "" {
		c.Detector.CascadePath = f.Detector.CascadePath
	}
	if f.Detector.ScaleFactor > 1 {
		c.Detector.ScaleFactor = f.Detector.ScaleFactor
	}
	if f.Detector.MinNeighbors > 0 {
		c.Detector.MinNeighbors = f.Detector.MinNeighbors
	}
	if f.Recognizer.Threshold > 0 {
		c.Recognizer.Threshold = f.Recognizer.Threshold
	}
	if f.Recognizer.PatchSize > 0 {
		c.Recognizer.PatchSize = f.Recognizer.PatchSize
	}
	if f.Training.MultiFace != "" {
		c.Training.MultiFace = f.Training.MultiFace
	}
	if f.Training.Timeout != "" {
		d, err := time.ParseDuration(f.Training.Timeout)
		if err != nil {
			return fmt.Errorf("parsing training.timeout: %w", err)
		}
		c.Training.Timeout = d
	}
	if f.Redis.Address != "" {
		c.Redis.Address = f.Redis.Address
	}
	if f.S3.Bucket != "" {
		c.S3.Bucket = f.S3.Bucket
		c.S3.Region = f.S3.Region
		c.S3.Endpoint = f.S3.Endpoint
		c.S3.Prefix = f.S3.Prefix
	}
	if f.Web.Host != "" {
		c.Web.Host = f.Web.Host
	}
	if len(f.Web.AllowedOrigins) > 0 {
		c.Web.AllowedOrigins = f.Web.AllowedOrigins
	}
	if f.Web.Port > 0 {
		c.Web.Port = f.Web.Port
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Model.Dir = envString("MODEL_DIR", c.Model.Dir)

	c.Detector.Kind = envString("DETECTOR", c.Detector.Kind)
	c.Detector.CascadePath = envString("DETECTOR_CASCADE", c.Detector.CascadePath)
	c.Detector.ScaleFactor = envFloat("DETECTOR_SCALE_FACTOR", c.Detector.ScaleFactor)
	c.Detector.MinNeighbors = envInt("DETECTOR_MIN_NEIGHBORS", c.Detector.MinNeighbors)
	c.Detector.MinSize = envInt("DETECTOR_MIN_SIZE", c.Detector.MinSize)

	c.Recognizer.Threshold = envFloat("RECOGNIZER_THRESHOLD", c.Recognizer.Threshold)
	c.Recognizer.PatchSize = envInt("RECOGNIZER_PATCH_SIZE", c.Recognizer.PatchSize)
	c.Recognizer.IndexThreshold = envInt("RECOGNIZER_INDEX_THRESHOLD", c.Recognizer.IndexThreshold)

	c.Training.MultiFace = envString("TRAINING_MULTI_FACE", c.Training.MultiFace)
	c.Training.Concurrency = envInt("TRAINING_CONCURRENCY", c.Training.Concurrency)
	c.Training.Workers = envInt("WORKER_POOL_SIZE", c.Training.Workers)
	c.Training.Timeout = envDuration("TRAINING_TIMEOUT", c.Training.Timeout)

	c.Database.URL = envString("DATABASE_URL", c.Database.URL)
	c.Database.MaxOpenConns = envInt("DATABASE_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = envInt("DATABASE_MAX_IDLE_CONNS", c.Database.MaxIdleConns)

	c.Redis.Address = envString("REDIS_ADDRESS", c.Redis.Address)
	c.Redis.Password = envString("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = envInt("REDIS_DB", c.Redis.DB)
	c.Redis.LockTTL = envDuration("REDIS_LOCK_TTL", c.Redis.LockTTL)

	c.S3.Bucket = envString("S3_BUCKET", c.S3.Bucket)
	c.S3.Region = envString("S3_REGION", c.S3.Region)
	c.S3.Endpoint = envString("S3_ENDPOINT", c.S3.Endpoint)
	c.S3.Prefix = envString("S3_PREFIX", c.S3.Prefix)
	c.S3.AccessKey = envString("S3_ACCESS_KEY", c.S3.AccessKey)
	c.S3.SecretKey = envString("S3_SECRET_KEY", c.S3.SecretKey)

	c.Web.Host = envString("WEB_HOST", c.Web.Host)
	c.Web.Port = envInt("WEB_PORT", c.Web.Port)
	c.Web.RateLimit = envFloat("WEB_RATE_LIMIT", c.Web.RateLimit)
	c.Web.RateBurst = envInt("WEB_RATE_BURST", c.Web.RateBurst)
	if env := os.Getenv("WEB_ALLOWED_ORIGINS"); env != "" {
		c.Web.AllowedOrigins = nil
		for o := range strings.SplitSeq(env, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.Web.AllowedOrigins = append(c.Web.AllowedOrigins, o)
			}
		}
	}

	c.Log.Level = envString("LOG_LEVEL", c.Log.Level)
	c.Log.File = envString("LOG_FILE", c.Log.File)
}

const defaultFile = `# cornea configuration
model_default_path: models

database:
  postgres:
    database: cornea
    user: cornea
    password: cornea
    host: localhost
    port: 5432

detector:
  kind: pigo
  # Not shipped with cornea. Download it from
  # https://raw.githubusercontent.com/esimov/pigo/master/cascade/facefinder
  cascade_path: cascade/facefinder
  scale_factor: 1.2
  min_neighbors: 5

training:
  multi_face: skip
`

// ErrConfigExists is returned by WriteDefault when the target already exists.
var ErrConfigExists = errors.New("config file already exists")

// WriteDefault writes a starter config file to path. Existing files are left alone.
func WriteDefault(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", ErrConfigExists, path)
		}
		return fmt.Errorf("creating config file: %w", err)
	}
	if _, err := f.WriteString(defaultFile); err != nil {
		f.Close()
		return fmt.Errorf("writing config file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing config file: %w", err)
	}
	return nil
}

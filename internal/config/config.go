package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port     int    `env:"PORT"      envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	SessionStore  string        `env:"SESSION_STORE"  envDefault:"sqlite"`
	DBPath        string        `env:"DB_PATH"        envDefault:"./routelens.db"`
	RedisAddr     string        `env:"REDIS_ADDR"     envDefault:""`
	RedisPassword string        `env:"REDIS_PASSWORD" envDefault:""`
	SessionTTL    time.Duration `env:"SESSION_TTL"    envDefault:"24h"`

	PGHost     string `env:"PG_HOST"     envDefault:"localhost"`
	PGPort     int    `env:"PG_PORT"     envDefault:"5432"`
	PGUser     string `env:"PG_USER"     envDefault:"routelens"`
	PGPassword string `env:"PG_PASSWORD" envDefault:""`
	PGName     string `env:"PG_NAME"     envDefault:"routelens"`

	OpenAIAPIKey string `env:"OPENAI_API_KEY"`
	VisionModel  string `env:"VISION_MODEL" envDefault:"gpt-4o"`

	MinIOEndpoint  string `env:"MINIO_ENDPOINT"   envDefault:""`
	MinIOAccessKey string `env:"MINIO_ACCESS_KEY" envDefault:""`
	MinIOSecretKey string `env:"MINIO_SECRET_KEY" envDefault:""`
	MinIOUseSSL    bool   `env:"MINIO_USE_SSL"    envDefault:"false"`

	TempDir string `env:"TEMP_DIR" envDefault:""`

	MaxFrames int `env:"MAX_FRAMES_PER_VIDEO" envDefault:"5"`
	FrameSize int `env:"FRAME_SIZE"           envDefault:"640"`

	WorkerCount       int           `env:"WORKER_COUNT"        envDefault:"3"`
	QueueSize         int           `env:"QUEUE_SIZE"          envDefault:"64"`
	SessionDeadline   time.Duration `env:"SESSION_DEADLINE"    envDefault:"4m"`
	RetrievalAttempts int           `env:"RETRIEVAL_ATTEMPTS"  envDefault:"3"`
	VisionAttempts    int           `env:"VISION_ATTEMPTS"     envDefault:"3"`
	RetryBaseDelay    time.Duration `env:"RETRY_BASE_DELAY"    envDefault:"500ms"`

	// Score banding thresholds for overlay performance markers.
	ScoreGood       float64 `env:"SCORE_GOOD"       envDefault:"0.80"`
	ScoreBorderline float64 `env:"SCORE_BORDERLINE" envDefault:"0.65"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

package domain

import "time"

// Config holds the complete Merlin configuration.
type Config struct {
	// Server settings (merlind only)
	Server ServerConfig `json:"server"`

	// Ensemble runtime settings
	Models ModelsConfig `json:"models"`

	// Where serialized artifacts are fetched from
	Artifacts ArtifactConfig `json:"artifacts"`

	// Event bus frontend (merlind only)
	EventBus EventBusConfig `json:"eventBus"`

	// Observability
	Logging LoggingConfig `json:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string  `json:"host"`
	Port         int     `json:"port"`
	ReadTimeout  int     `json:"readTimeout"`  // seconds
	WriteTimeout int     `json:"writeTimeout"` // seconds
	RateLimit    float64 `json:"rateLimit"`    // requests per second, 0 disables
	RateBurst    int     `json:"rateBurst"`
}

// ModelsConfig controls how the ensemble runs.
type ModelsConfig struct {
	// NeuralEnabled turns the neural-network runtime on. When false the
	// cnn model is never loaded, as if the runtime were not installed.
	NeuralEnabled bool `json:"neuralEnabled"`

	// NeuralTimeout bounds the neural-network step of a single request.
	NeuralTimeout time.Duration `json:"neuralTimeout"`
}

// ArtifactConfig holds configuration for artifact source initialization.
type ArtifactConfig struct {
	// Source is one of "dir", "redis", "sqlite", "postgres"
	Source string `json:"source"`

	// Directory source
	Dir string `json:"dir"`

	// Redis source
	RedisAddr     string `json:"redisAddr"`
	RedisPassword string `json:"-"`
	RedisDB       int    `json:"redisDb"`

	// SQLite source
	SQLitePath string `json:"sqlitePath"`

	// PostgreSQL source
	PostgresHost     string `json:"postgresHost"`
	PostgresPort     int    `json:"postgresPort"`
	PostgresUser     string `json:"postgresUser"`
	PostgresPassword string `json:"-"`
	PostgresDB       string `json:"postgresDb"`
	PostgresSSLMode  string `json:"postgresSslMode"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// DefaultConfig returns the configuration used when no environment is set:
// artifacts from ./models, neural runtime on with a 2 second budget.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
			RateLimit:    200,
			RateBurst:    50,
		},
		Models: ModelsConfig{
			NeuralEnabled: true,
			NeuralTimeout: 2 * time.Second,
		},
		Artifacts: ArtifactConfig{
			Source: "dir",
			Dir:    "./models",
		},
		EventBus: EventBusConfig{
			Type:              "none",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

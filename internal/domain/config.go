package domain

import "time"

// Config holds the complete Osprey Risk configuration.
type Config struct {
	// Server settings
	Server ServerConfig `mapstructure:"server"`

	// Tier determines which backing stores are used
	Tier Tier `mapstructure:"tier"`

	// Component configurations
	Repository RepositoryConfig `mapstructure:"repository"`
	Cache      CacheConfig      `mapstructure:"cache"`
	EventBus   EventBusConfig   `mapstructure:"eventbus"`
	Worker     WorkerConfig     `mapstructure:"worker"`

	// Scoring core
	Features FeatureConfig  `mapstructure:"features"`
	Ensemble EnsembleConfig `mapstructure:"ensemble"`
	Decision DecisionConfig `mapstructure:"decision"`
	Explain  ExplainConfig  `mapstructure:"explain"`
	GeoIP    GeoIPConfig    `mapstructure:"geoip"`

	// Observability
	Logging LoggingConfig `mapstructure:"logging"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // seconds
	WriteTimeout int    `mapstructure:"write_timeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	Endpoint    string `mapstructure:"endpoint"` // OTLP gRPC collector
}

// WorkerConfig controls asynchronous ingestion.
type WorkerConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	TenantIDs []string `mapstructure:"tenant_ids"`
}

// FeatureConfig tunes feature computation.
type FeatureConfig struct {
	// Windows
	MaxWindow       time.Duration `mapstructure:"max_window"`
	LatenessBound   time.Duration `mapstructure:"lateness_bound"`
	FrequencyWindow time.Duration `mapstructure:"frequency_window"`

	// Baselines
	BaselineMaxAge     time.Duration  `mapstructure:"baseline_max_age"`
	BaselineMinSamples int            `mapstructure:"baseline_min_samples"`
	BaselineWindow     time.Duration  `mapstructure:"baseline_window"`
	GlobalBaseline     GlobalBaseline `mapstructure:"global_baseline"`
	Epsilon            float64        `mapstructure:"epsilon"`

	// Geo-time
	MaxPlausibleSpeedKmh  float64 `mapstructure:"max_plausible_speed_kmh"`
	TypicalTravelSpeedKmh float64 `mapstructure:"typical_travel_speed_kmh"`

	// Timeouts on collaborator calls
	HistoryTimeout  time.Duration `mapstructure:"history_timeout"`
	BaselineTimeout time.Duration `mapstructure:"baseline_timeout"`
}

// GlobalBaseline is the population-level amount distribution.
type GlobalBaseline struct {
	Mean   float64 `mapstructure:"mean"`
	Median float64 `mapstructure:"median"`
	Std    float64 `mapstructure:"std"`
}

// EnsembleConfig configures model fusion.
type EnsembleConfig struct {
	Weights          EnsembleWeights `mapstructure:"weights"`
	InferenceTimeout time.Duration   `mapstructure:"inference_timeout"`
	// Optional artifact files loaded at startup; heuristics are used when empty.
	UnsupervisedArtifact string `mapstructure:"unsupervised_artifact"`
	SupervisedArtifact   string `mapstructure:"supervised_artifact"`
}

// DecisionConfig configures classification and calibration.
type DecisionConfig struct {
	ApproveThreshold    float64    `mapstructure:"approve_threshold"`
	BlockThreshold      float64    `mapstructure:"block_threshold"`
	Costs               CostMatrix `mapstructure:"costs"`
	HighValueAmount     float64    `mapstructure:"high_value_amount"`
	MediumPriorityScore float64    `mapstructure:"medium_priority_score"`
}

// ExplainConfig configures explanation generation.
type ExplainConfig struct {
	TopK         int           `mapstructure:"top_k"`
	Permutations int           `mapstructure:"permutations"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// GeoIPConfig points at a MaxMind city database.
type GeoIPConfig struct {
	CityDBPath string `mapstructure:"city_db_path"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultFeatureConfig returns the stock feature settings.
func DefaultFeatureConfig() FeatureConfig {
	return FeatureConfig{
		MaxWindow:          24 * time.Hour,
		LatenessBound:      5 * time.Minute,
		FrequencyWindow:    24 * time.Hour,
		BaselineMaxAge:     30 * 24 * time.Hour,
		BaselineMinSamples: 5,
		BaselineWindow:     30 * 24 * time.Hour,
		GlobalBaseline: GlobalBaseline{
			Mean:   100,
			Median: 50,
			Std:    150,
		},
		Epsilon:               1e-6,
		MaxPlausibleSpeedKmh:  900,
		TypicalTravelSpeedKmh: 100,
		HistoryTimeout:        50 * time.Millisecond,
		BaselineTimeout:       50 * time.Millisecond,
	}
}

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./osprey-risk.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
			BaselineTTL:  time.Hour,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Features: DefaultFeatureConfig(),
		Ensemble: EnsembleConfig{
			Weights:          DefaultEnsembleWeights(),
			InferenceTimeout: 100 * time.Millisecond,
		},
		Decision: DecisionConfig{
			ApproveThreshold:    0.50,
			BlockThreshold:      0.85,
			Costs:               DefaultCostMatrix(),
			HighValueAmount:     10000,
			MediumPriorityScore: 0.70,
		},
		Explain: ExplainConfig{
			TopK:         5,
			Permutations: 16,
			Timeout:      25 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "osprey-risk",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "osprey_risk",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
		BaselineTTL:    time.Hour,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Worker.Enabled = true
	cfg.Tracing.Enabled = true
	cfg.Tracing.Endpoint = "localhost:4317"
	return cfg
}

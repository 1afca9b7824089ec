package configs

import (
	"time"

	"github.com/spf13/viper"

	"github.com/chessanalytics/core/internal/models"
)

type Config struct {
	App       AppConfig
	Server    ServerConfig
	Database  DatabaseConfig
	Engine    EngineConfig
	Importer  ImporterConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
}

type AppConfig struct {
	Mode  string
	Debug bool
	Tier  models.TierPreset
}

type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	URL             string
	MaxConns        int
	QueryTimeout    time.Duration
	MigrationsPath  string
}

type EngineConfig struct {
	BinaryPath           string
	MaxConcurrentEngines int
	DefaultDepth         int
	DefaultTimeSeconds   float64
	MaxDepth             int
	MaxTimeMs            int
	Threads              int
	HashSizeMB           int
	Contempt             int
	AnalysisContempt     string
	SkillLevel           int
}

// ImporterConfig bundles the session-shaping constants of spec §4.2.
type ImporterConfig struct {
	MaxConcurrentImports int
	SessionImportCap     int
	LichessBaseURL       string
	LichessToken         string
	ChessComBaseURL      string
	ChessComUserAgent    string
	StuckAfter           time.Duration
	ExternalAPITimeout   time.Duration
}

type RateLimitConfig struct {
	AnonymousDailyCap   int
	FreeTierMonthlyCap  int
	AnonymousWindow     time.Duration
	MonthlyWindow       time.Duration
}

type CacheConfig struct {
	EvaluationCacheSize int
	AnalyticsTTL        time.Duration
	CacheVersion        string
}

// Load resolves every field in spec §6's "Environment configuration" table,
// applying the tier preset first so explicit env overrides still win.
func Load() *Config {
	viper.SetDefault("APP_MODE", "debug")
	viper.SetDefault("DEBUG_FLAG", false)
	viper.SetDefault("TIER_PRESET", "hobby")
	viper.SetDefault("SERVER_PORT", 8080)
	viper.SetDefault("SERVER_READ_TIMEOUT", "30s")
	viper.SetDefault("SERVER_WRITE_TIMEOUT", "30s")
	viper.SetDefault("SERVER_SHUTDOWN_TIMEOUT", "30s")

	viper.SetDefault("DATABASE_URL", "postgres://localhost:5432/chessanalytics?sslmode=disable")
	viper.SetDefault("DATABASE_MAX_CONNS", 10)
	viper.SetDefault("DATABASE_QUERY_TIMEOUT", "5s")
	viper.SetDefault("DATABASE_MIGRATIONS_PATH", "internal/persistence/migrations")

	viper.SetDefault("ENGINE_EXECUTABLE_PATH", "stockfish")
	viper.SetDefault("ENGINE_DEFAULT_DEPTH", 15)
	viper.SetDefault("ENGINE_DEFAULT_TIME_SECONDS", 1.0)
	viper.SetDefault("ENGINE_MAX_DEPTH", 24)
	viper.SetDefault("ENGINE_MAX_TIME_MS", 30000)

	viper.SetDefault("LICHESS_BASE_URL", "https://lichess.org")
	viper.SetDefault("LICHESS_TOKEN", "")
	viper.SetDefault("CHESSCOM_BASE_URL", "https://api.chess.com/pub")
	viper.SetDefault("CHESSCOM_USER_AGENT", "chessanalytics-core/1.0 (contact: ops@chessanalytics.example)")
	viper.SetDefault("IMPORT_STUCK_AFTER", "30s")
	viper.SetDefault("EXTERNAL_API_TIMEOUT", "30s")

	viper.SetDefault("ANONYMOUS_DAILY_CAP", 3)
	viper.SetDefault("FREE_TIER_MONTHLY_CAP", 100)

	viper.SetDefault("CACHE_TTL_SECONDS", 1200)
	viper.SetDefault("CACHE_VERSION", "v1")
	viper.SetDefault("CACHE_EVALUATION_SIZE", 50000)

	viper.AutomaticEnv()

	readTimeout, _ := time.ParseDuration(viper.GetString("SERVER_READ_TIMEOUT"))
	writeTimeout, _ := time.ParseDuration(viper.GetString("SERVER_WRITE_TIMEOUT"))
	shutdownTimeout, _ := time.ParseDuration(viper.GetString("SERVER_SHUTDOWN_TIMEOUT"))
	queryTimeout, _ := time.ParseDuration(viper.GetString("DATABASE_QUERY_TIMEOUT"))
	stuckAfter, _ := time.ParseDuration(viper.GetString("IMPORT_STUCK_AFTER"))
	apiTimeout, _ := time.ParseDuration(viper.GetString("EXTERNAL_API_TIMEOUT"))

	tier := models.TierPreset(viper.GetString("TIER_PRESET"))
	maxConcurrentEngines, maxImports, sessionCap, hashMB, threads := tierDefaults(tier)

	// Explicit overrides win over the tier preset.
	if viper.IsSet("ENGINE_CONCURRENCY") {
		maxConcurrentEngines = viper.GetInt("ENGINE_CONCURRENCY")
	}
	if viper.IsSet("MAX_CONCURRENT_IMPORTS") {
		maxImports = viper.GetInt("MAX_CONCURRENT_IMPORTS")
	}
	if viper.IsSet("SESSION_IMPORT_CAP") {
		sessionCap = viper.GetInt("SESSION_IMPORT_CAP")
	}
	if viper.IsSet("ENGINE_HASH_MB") {
		hashMB = viper.GetInt("ENGINE_HASH_MB")
	}
	if viper.IsSet("ENGINE_THREADS") {
		threads = viper.GetInt("ENGINE_THREADS")
	}

	return &Config{
		App: AppConfig{
			Mode:  viper.GetString("APP_MODE"),
			Debug: viper.GetBool("DEBUG_FLAG"),
			Tier:  tier,
		},
		Server: ServerConfig{
			Port:            viper.GetInt("SERVER_PORT"),
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
		},
		Database: DatabaseConfig{
			URL:            viper.GetString("DATABASE_URL"),
			MaxConns:       viper.GetInt("DATABASE_MAX_CONNS"),
			QueryTimeout:   queryTimeout,
			MigrationsPath: viper.GetString("DATABASE_MIGRATIONS_PATH"),
		},
		Engine: EngineConfig{
			BinaryPath:           viper.GetString("ENGINE_EXECUTABLE_PATH"),
			MaxConcurrentEngines: maxConcurrentEngines,
			DefaultDepth:         viper.GetInt("ENGINE_DEFAULT_DEPTH"),
			DefaultTimeSeconds:   viper.GetFloat64("ENGINE_DEFAULT_TIME_SECONDS"),
			MaxDepth:             viper.GetInt("ENGINE_MAX_DEPTH"),
			MaxTimeMs:            viper.GetInt("ENGINE_MAX_TIME_MS"),
			Threads:              threads,
			HashSizeMB:           hashMB,
			Contempt:             0,
			AnalysisContempt:     "off",
			SkillLevel:           20,
		},
		Importer: ImporterConfig{
			MaxConcurrentImports: maxImports,
			SessionImportCap:     sessionCap,
			LichessBaseURL:       viper.GetString("LICHESS_BASE_URL"),
			LichessToken:         viper.GetString("LICHESS_TOKEN"),
			ChessComBaseURL:      viper.GetString("CHESSCOM_BASE_URL"),
			ChessComUserAgent:    viper.GetString("CHESSCOM_USER_AGENT"),
			StuckAfter:           stuckAfter,
			ExternalAPITimeout:   apiTimeout,
		},
		RateLimit: RateLimitConfig{
			AnonymousDailyCap:  viper.GetInt("ANONYMOUS_DAILY_CAP"),
			FreeTierMonthlyCap: viper.GetInt("FREE_TIER_MONTHLY_CAP"),
			AnonymousWindow:    24 * time.Hour,
			MonthlyWindow:      30 * 24 * time.Hour,
		},
		Cache: CacheConfig{
			EvaluationCacheSize: viper.GetInt("CACHE_EVALUATION_SIZE"),
			AnalyticsTTL:        time.Duration(viper.GetInt("CACHE_TTL_SECONDS")) * time.Second,
			CacheVersion:        viper.GetString("CACHE_VERSION"),
		},
	}
}

// tierDefaults returns (maxConcurrentEngines, maxConcurrentImports,
// sessionImportCap, hashMB, threads) for a named tier preset, per spec §4.1
// ("small/medium/large") and §4.2 ("Hobby" caps at 2 imports / 1000 games,
// "Pro" raises to 5 / higher caps).
func tierDefaults(tier models.TierPreset) (maxEngines, maxImports, sessionCap, hashMB, threads int) {
	switch tier {
	case models.TierPro:
		return 4, 5, 5000, 256, 4
	default: // models.TierHobby and unrecognized values fail safe to hobby.
		return 1, 2, 1000, 8, 1
	}
}

package params

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Transport holds the API listener's network settings.
type Transport struct {
	ListenAddr  string
	CORSOrigins []string
}

// Storage holds the event-sink and Pebble tuning knobs.
type Storage struct {
	DataDir         string
	FileSinkPath    string
	BusQueueCap     int
	DBQueueCap      int
	DBBatchSize     int
	DBFlushInterval time.Duration
}

// OperationLog holds C8's append-and-slice knobs.
type OperationLog struct {
	QueueCap       int
	BatchSize      int
	FlushInterval  time.Duration
	SliceInterval  time.Duration
	SliceRetention int
}

// Idempotency holds C4's duplicate-suppression cache knobs.
type Idempotency struct {
	CacheCapacity int
	CacheTTL      time.Duration
}

// Matching holds the engine-wide matching flags.
type Matching struct {
	SelfTradePrevention bool
	DisableMarketOrder  bool
	StrictFeePrecision  bool
	OrderQueryMaxLimit  int
}

type Config struct {
	Transport    Transport
	Storage      Storage
	OperationLog OperationLog
	Idempotency  Idempotency
	Matching     Matching
}

func Default() Config {
	return Config{
		Transport: Transport{
			ListenAddr:  ":8765",
			CORSOrigins: []string{"*"},
		},
		Storage: Storage{
			DataDir:         "./data",
			FileSinkPath:    "./data/events.jsonl",
			BusQueueCap:     4096,
			DBQueueCap:      4096,
			DBBatchSize:     500,
			DBFlushInterval: 200 * time.Millisecond,
		},
		OperationLog: OperationLog{
			QueueCap:       10000,
			BatchSize:      5000,
			FlushInterval:  100 * time.Millisecond,
			SliceInterval:  5 * time.Minute,
			SliceRetention: 12,
		},
		Idempotency: Idempotency{
			CacheCapacity: 1_000_000,
			CacheTTL:      time.Hour,
		},
		Matching: Matching{
			SelfTradePrevention: true,
			DisableMarketOrder:  false,
			StrictFeePrecision:  false,
			OrderQueryMaxLimit:  100,
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	cfg.Transport.ListenAddr = getEnv("MATCHENGINE_LISTEN_ADDR", cfg.Transport.ListenAddr)
	cfg.Storage.DataDir = getEnv("MATCHENGINE_DATA_DIR", cfg.Storage.DataDir)
	cfg.Storage.FileSinkPath = getEnv("MATCHENGINE_FILE_SINK_PATH", cfg.Storage.FileSinkPath)

	if v := os.Getenv("MATCHENGINE_BUS_QUEUE_CAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Storage.BusQueueCap = n
		}
	}
	if v := os.Getenv("MATCHENGINE_DB_QUEUE_CAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Storage.DBQueueCap = n
		}
	}
	if v := os.Getenv("MATCHENGINE_DB_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Storage.DBBatchSize = n
		}
	}
	if v := os.Getenv("MATCHENGINE_DB_FLUSH_INTERVAL_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Storage.DBFlushInterval = time.Duration(ms) * time.Millisecond
		}
	}

	if v := os.Getenv("MATCHENGINE_OPLOG_QUEUE_CAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.OperationLog.QueueCap = n
		}
	}
	if v := os.Getenv("MATCHENGINE_OPLOG_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.OperationLog.BatchSize = n
		}
	}
	if v := os.Getenv("MATCHENGINE_OPLOG_FLUSH_INTERVAL_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.OperationLog.FlushInterval = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("MATCHENGINE_SLICE_INTERVAL_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.OperationLog.SliceInterval = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("MATCHENGINE_SLICE_RETENTION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.OperationLog.SliceRetention = n
		}
	}

	if v := os.Getenv("MATCHENGINE_IDEMPOTENCY_CACHE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Idempotency.CacheCapacity = n
		}
	}
	if v := os.Getenv("MATCHENGINE_IDEMPOTENCY_CACHE_TTL_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Idempotency.CacheTTL = time.Duration(ms) * time.Millisecond
		}
	}

	if v := os.Getenv("MATCHENGINE_SELF_TRADE_PREVENTION"); v != "" {
		cfg.Matching.SelfTradePrevention = v == "true"
	}
	if v := os.Getenv("MATCHENGINE_DISABLE_MARKET_ORDER"); v != "" {
		cfg.Matching.DisableMarketOrder = v == "true"
	}
	if v := os.Getenv("MATCHENGINE_STRICT_FEE_PRECISION"); v != "" {
		cfg.Matching.StrictFeePrecision = v == "true"
	}
	if v := os.Getenv("MATCHENGINE_ORDER_QUERY_MAX_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Matching.OrderQueryMaxLimit = n
		}
	}

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

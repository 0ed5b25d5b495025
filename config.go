package sentriq

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

// ConfigFromEnv builds a Config from the environment. A .env file in the
// working directory is loaded first when present, matching how the example
// deployments ship configuration. Unset or malformed variables fall back to
// the component defaults.
//
// Recognized variables:
//
//	SENTRIQ_WORKERS           executor worker slots
//	SENTRIQ_QUEUE_SIZE        executor admission queue capacity
//	SENTRIQ_RETENTION         terminal task retention (duration)
//	SENTRIQ_SWEEP_EVERY       retention sweep period (duration)
//	SENTRIQ_STOP_TIMEOUT      graceful stop bound (duration)
//	SENTRIQ_CLEANUP_EVERY     limiter janitor period (duration)
//	SENTRIQ_BLOCK_THRESHOLD   detector reputation threshold
//	SENTRIQ_BLOCK_TTL         detector block duration
//	SENTRIQ_COUNTER_TTL       detector reputation window (duration)
//	SENTRIQ_TRUSTED_CIDRS     comma-separated trusted networks
//	SENTRIQ_FAIL_CLOSED       detector IsBlocked behavior on store failure
//	SENTRIQ_TRUST_XFF         take client IPs from X-Forwarded-For
//	SENTRIQ_REDIS_ADDR        reputation store address; empty disables it
//	SENTRIQ_REDIS_PASSWORD    reputation store password
//	SENTRIQ_REDIS_DB          reputation store database number
func ConfigFromEnv() Config {
	_ = godotenv.Load()

	cfg := Config{
		Executor: ExecutorConfig{
			Workers:     envInt("SENTRIQ_WORKERS", 0),
			QueueSize:   envInt("SENTRIQ_QUEUE_SIZE", 0),
			Retention:   envDuration("SENTRIQ_RETENTION", 0),
			SweepEvery:  envDuration("SENTRIQ_SWEEP_EVERY", 0),
			StopTimeout: envDuration("SENTRIQ_STOP_TIMEOUT", 0),
		},
		Limiter: LimiterConfig{
			CleanupEvery: envDuration("SENTRIQ_CLEANUP_EVERY", 0),
		},
		Detector: DetectorConfig{
			BlockThreshold: envInt("SENTRIQ_BLOCK_THRESHOLD", 0),
			BlockTTL:       envDuration("SENTRIQ_BLOCK_TTL", 0),
			CounterTTL:     envDuration("SENTRIQ_COUNTER_TTL", 0),
			TrustedCIDRs:   envList("SENTRIQ_TRUSTED_CIDRS"),
			FailClosed:     envBool("SENTRIQ_FAIL_CLOSED", false),
		},
		TrustXFF: envBool("SENTRIQ_TRUST_XFF", false),
	}

	if addr := os.Getenv("SENTRIQ_REDIS_ADDR"); addr != "" {
		cfg.Redis = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: os.Getenv("SENTRIQ_REDIS_PASSWORD"),
			DB:       envInt("SENTRIQ_REDIS_DB", 0),
		})
	}
	return cfg
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Package bootstrap wires infrastructure collaborators from configuration.
// Everything here degrades to in-process implementations so an edge
// deployment runs with no external services at all.
package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/proofframe/proofframe/internal/analysis"
	"github.com/proofframe/proofframe/internal/audit"
	appconfig "github.com/proofframe/proofframe/internal/config"
	"github.com/proofframe/proofframe/internal/liveness"
	"github.com/proofframe/proofframe/internal/verdict"
	"github.com/proofframe/proofframe/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available, falling back to in-memory sessions", "error", err)
		return nil
	}
	return client
}

// BuildSessionStore returns the Redis-backed liveness store when Redis is
// available, in-memory otherwise.
func BuildSessionStore(redisClient *redis.Client, cfg *appconfig.Config) liveness.Store {
	if redisClient == nil {
		return liveness.NewMemoryStore()
	}
	retention := cfg.LivenessRetention
	tracer := otel.Tracer("proofframe.internal.liveness.store")
	return liveness.NewRedisStore(redisClient, retention, tracer)
}

// AuditLog combines the append path used by the pipeline with the query
// path used by the review dashboard.
type AuditLog interface {
	audit.Store
	Query(ctx context.Context, filter audit.Filter) ([]audit.Report, error)
}

// BuildAuditStore returns the SQL-backed audit log when a database is
// configured, in-memory otherwise.
func BuildAuditStore(sqlDB *sql.DB) AuditLog {
	if sqlDB == nil {
		return audit.NewMemoryStore()
	}
	return audit.NewSQLStore(sqlDB)
}

// BuildAnalyzedMediaStore returns the resubmission ledger, or nil when no
// database is configured; the flag is advisory and the pipeline runs
// without it.
func BuildAnalyzedMediaStore(pool *pgxpool.Pool) *analysis.AnalyzedMediaStore {
	if pool == nil {
		return nil
	}
	return analysis.NewAnalyzedMediaStore(pool)
}

// BuildThresholds assembles the per-media-type policy thresholds, applying
// any configured overrides, and validates the result.
func BuildThresholds(cfg *appconfig.Config) (map[analysis.MediaType]verdict.PolicyThresholds, error) {
	video := verdict.DefaultVideoThresholds()
	audio := verdict.DefaultAudioThresholds()
	if cfg != nil {
		if cfg.VideoDeepfakeThreshold > 0 {
			video.DeepfakeScoreThreshold = cfg.VideoDeepfakeThreshold
		}
		if cfg.AudioDeepfakeThreshold > 0 {
			audio.DeepfakeScoreThreshold = cfg.AudioDeepfakeThreshold
		}
	}
	if err := video.Validate(); err != nil {
		return nil, err
	}
	if err := audio.Validate(); err != nil {
		return nil, err
	}
	return map[analysis.MediaType]verdict.PolicyThresholds{
		analysis.MediaVideo: video,
		analysis.MediaAudio: audio,
	}, nil
}

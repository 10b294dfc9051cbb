package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/ragdesk-backend/internal/domain"
	"github.com/yungbote/ragdesk-backend/internal/platform/logger"
)

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// RedisSessions stores each history as a list of JSON turns. The key expires
// ttl after the last append.
type RedisSessions struct {
	log          *logger.Logger
	rdb          goredis.Cmdable
	closer       func() error
	systemPrompt string
	prefix       string
	ttl          time.Duration
}

var _ SessionStore = (*RedisSessions)(nil)

func NewRedisSessions(ctx context.Context, log *logger.Logger, cfg RedisConfig, systemPrompt string) (*RedisSessions, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, &domain.ConfigError{Field: "sessions.redis_addr", Message: "is required for the redis backend"}
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	s := NewRedisSessionsWithClient(log, rdb, cfg, systemPrompt)
	s.closer = rdb.Close
	return s, nil
}

// NewRedisSessionsWithClient wraps an existing client; Close leaves it open.
func NewRedisSessionsWithClient(log *logger.Logger, rdb goredis.Cmdable, cfg RedisConfig, systemPrompt string) *RedisSessions {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "ragdesk:session:"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &RedisSessions{
		log:          log.With("service", "RedisSessions"),
		rdb:          rdb,
		systemPrompt: systemPrompt,
		prefix:       prefix,
		ttl:          ttl,
	}
}

func (r *RedisSessions) key(id string) string { return r.prefix + id }

func (r *RedisSessions) Get(ctx context.Context, id string) (domain.History, error) {
	raw, err := r.rdb.LRange(ctx, r.key(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if len(raw) == 0 {
		return domain.NewHistory(r.systemPrompt), nil
	}
	return decodeTurns(raw)
}

func (r *RedisSessions) Append(ctx context.Context, id string, turns ...domain.Turn) error {
	key := r.key(id)
	n, err := r.rdb.LLen(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if n == 0 {
		turns = append(domain.NewHistory(r.systemPrompt), turns...)
	}
	vals, err := encodeTurns(turns)
	if err != nil {
		return err
	}
	_, err = r.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.RPush(ctx, key, vals...)
		p.Expire(ctx, key, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("append session: %w", err)
	}
	return nil
}

func (r *RedisSessions) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer()
}

func encodeTurns(turns []domain.Turn) ([]interface{}, error) {
	out := make([]interface{}, 0, len(turns))
	for _, t := range turns {
		b, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		out = append(out, string(b))
	}
	return out, nil
}

func decodeTurns(raw []string) (domain.History, error) {
	h := make(domain.History, 0, len(raw))
	for _, s := range raw {
		var t domain.Turn
		if err := json.Unmarshal([]byte(s), &t); err != nil {
			return nil, fmt.Errorf("decode session turn: %w", err)
		}
		h = append(h, t)
	}
	return h, nil
}

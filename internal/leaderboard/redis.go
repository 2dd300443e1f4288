// Package leaderboard publishes wallet confidence scores to a Redis sorted set
// so read-side services can rank wallets without touching PostgreSQL.
package leaderboard

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"alpha-finder/internal/domain"
	"alpha-finder/internal/observability"
	"alpha-finder/internal/scoring"
)

// Key layout.
const (
	DefaultPrefix = "alphafinder"
	scoresKey     = "leaderboard"
	walletKey     = "wallet"
)

// Entry is one ranked wallet.
type Entry struct {
	Wallet     string
	Confidence float64
}

// Details is the per-wallet hash stored next to the ranking.
type Details struct {
	Confidence     decimal.Decimal
	PnL            decimal.Decimal
	Badges         []domain.Badge
	Participations int
}

// NewRedisClient creates a Redis client and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:       addr,
		Password:   password,
		DB:         db,
		MaxRetries: 3,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", addr, err)
	}
	return rdb, nil
}

// Publisher writes scored wallets to Redis.
type Publisher struct {
	rdb    redis.Cmdable
	prefix string
	logger zerolog.Logger
}

// NewPublisher creates a Publisher. An empty prefix uses DefaultPrefix.
func NewPublisher(rdb redis.Cmdable, prefix string, logger zerolog.Logger) *Publisher {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Publisher{
		rdb:    rdb,
		prefix: prefix,
		logger: logger.With().Str("component", "leaderboard").Logger(),
	}
}

// ScoresKey is the sorted set holding confidence scores.
func (p *Publisher) ScoresKey() string {
	return p.prefix + ":" + scoresKey
}

// WalletKey is the hash holding one wallet's details.
func (p *Publisher) WalletKey(address string) string {
	return p.prefix + ":" + walletKey + ":" + address
}

// Publish ranks wallets by confidence score in one pipeline. Likely bots are
// removed from the ranking instead. Returns the number of ranked wallets.
func (p *Publisher) Publish(ctx context.Context, wallets []*domain.Wallet) (int, error) {
	if len(wallets) == 0 {
		return 0, nil
	}

	pipe := p.rdb.Pipeline()
	ranked := 0
	for _, w := range wallets {
		if scoring.IsLikelyBot(w) {
			pipe.ZRem(ctx, p.ScoresKey(), w.Address)
			pipe.Del(ctx, p.WalletKey(w.Address))
			continue
		}
		pipe.ZAdd(ctx, p.ScoresKey(), redis.Z{Score: w.ConfidenceScore.InexactFloat64(), Member: w.Address})
		pipe.HSet(ctx, p.WalletKey(w.Address),
			"confidence", w.ConfidenceScore.String(),
			"pnl", w.PnL.String(),
			"badges", joinBadges(w.Badges),
			"participations", len(w.Runners),
		)
		ranked++
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("publish leaderboard: %w", err)
	}

	observability.RecordLeaderboardWrites(ranked)
	p.logger.Debug().Int("ranked", ranked).Int("excluded", len(wallets)-ranked).Msg("leaderboard published")
	return ranked, nil
}

// Top returns the n highest-ranked wallets, best first.
func (p *Publisher) Top(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	zs, err := p.rdb.ZRevRangeWithScores(ctx, p.ScoresKey(), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read leaderboard: %w", err)
	}

	out := make([]Entry, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		out = append(out, Entry{Wallet: member, Confidence: z.Score})
	}
	return out, nil
}

// Details reads one wallet's hash. Returns redis.Nil when the wallet is not ranked.
func (p *Publisher) Details(ctx context.Context, address string) (*Details, error) {
	fields, err := p.rdb.HGetAll(ctx, p.WalletKey(address)).Result()
	if err != nil {
		return nil, fmt.Errorf("read wallet %s: %w", address, err)
	}
	if len(fields) == 0 {
		return nil, redis.Nil
	}

	d := &Details{Badges: splitBadges(fields["badges"])}
	if d.Confidence, err = decimal.NewFromString(fields["confidence"]); err != nil {
		return nil, fmt.Errorf("parse confidence for %s: %w", address, err)
	}
	if d.PnL, err = decimal.NewFromString(fields["pnl"]); err != nil {
		return nil, fmt.Errorf("parse pnl for %s: %w", address, err)
	}
	if d.Participations, err = strconv.Atoi(fields["participations"]); err != nil {
		return nil, fmt.Errorf("parse participations for %s: %w", address, err)
	}
	return d, nil
}

func joinBadges(badges []domain.Badge) string {
	parts := make([]string, len(badges))
	for i, b := range badges {
		parts[i] = string(b)
	}
	return strings.Join(parts, ",")
}

func splitBadges(s string) []domain.Badge {
	if s == "" {
		return []domain.Badge{}
	}
	parts := strings.Split(s, ",")
	out := make([]domain.Badge, len(parts))
	for i, p := range parts {
		out[i] = domain.Badge(p)
	}
	return out
}

package walletstate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alpha-finder/internal/solana"
	"alpha-finder/internal/solana/stub"
)

const wallet = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"

var now = time.Unix(1_700_000_000, 0)

func daysAgo(d int) *int64 {
	ts := now.Add(-time.Duration(d) * 24 * time.Hour).Unix()
	return &ts
}

func newChecker(rpc solana.RPCClient) *Checker {
	return NewChecker(Options{
		Provider:   NewRPCActivityProvider(rpc),
		RatePerSec: 1000,
		Burst:      100,
		Logger:     zerolog.Nop(),
		Clock:      func() time.Time { return now },
	})
}

func sigs(ages ...int) []solana.SignatureInfo {
	out := make([]solana.SignatureInfo, len(ages))
	for i, a := range ages {
		out[i] = solana.SignatureInfo{Signature: "sig", BlockTime: daysAgo(a)}
	}
	return out
}

func TestIsDeadWallet(t *testing.T) {
	tests := []struct {
		name string
		ages []int
		want bool
	}{
		{"recent activity", []int{2, 40}, false},
		{"stale activity", []int{31, 60}, true},
		{"exactly at cutoff", []int{30}, false},
		{"no activity", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rpc := stub.NewRPCClient()
			if tt.ages != nil {
				rpc.AddSignatures(wallet, sigs(tt.ages...))
			}
			assert.Equal(t, tt.want, newChecker(rpc).IsDeadWallet(context.Background(), wallet))
		})
	}
}

func TestIsComebackTrader(t *testing.T) {
	build := func(stale, fresh int) []int {
		ages := make([]int, 0, stale+fresh)
		for i := 0; i < fresh; i++ {
			ages = append(ages, 1)
		}
		for i := 0; i < stale; i++ {
			ages = append(ages, 45)
		}
		return ages
	}

	t.Run("half stale", func(t *testing.T) {
		rpc := stub.NewRPCClient()
		rpc.AddSignatures(wallet, sigs(build(50, 50)...))
		assert.True(t, newChecker(rpc).IsComebackTrader(context.Background(), wallet))
	})

	t.Run("mostly fresh", func(t *testing.T) {
		rpc := stub.NewRPCClient()
		rpc.AddSignatures(wallet, sigs(build(49, 51)...))
		assert.False(t, newChecker(rpc).IsComebackTrader(context.Background(), wallet))
	})

	t.Run("only first hundred inspected", func(t *testing.T) {
		rpc := stub.NewRPCClient()
		rpc.AddSignatures(wallet, sigs(build(60, 90)...))
		assert.False(t, newChecker(rpc).IsComebackTrader(context.Background(), wallet))
	})
}

func TestChecker_ErrorsEvaluateFalse(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.Errors[wallet] = errors.New("node unavailable")
	c := newChecker(rpc)

	assert.False(t, c.IsDeadWallet(context.Background(), wallet))
	assert.False(t, c.IsComebackTrader(context.Background(), wallet))
}

func TestChecker_BreakerOpensAfterFailures(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.Errors[wallet] = errors.New("node unavailable")
	c := NewChecker(Options{
		Provider:   NewRPCActivityProvider(rpc),
		RatePerSec: 1000,
		Burst:      100,
		TripAfter:  2,
		Logger:     zerolog.Nop(),
		Clock:      func() time.Time { return now },
	})

	for i := 0; i < 5; i++ {
		c.IsDeadWallet(context.Background(), wallet)
	}
	assert.Equal(t, 2, rpc.Calls, "breaker should short-circuit after two failures")
}

func TestChecker_NilProvider(t *testing.T) {
	c := NewChecker(Options{Logger: zerolog.Nop()})
	assert.False(t, c.IsDeadWallet(context.Background(), wallet))
}

func TestRPCActivityProvider_SkipsMissingBlockTime(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddSignatures(wallet, []solana.SignatureInfo{
		{Signature: "a", BlockTime: daysAgo(1)},
		{Signature: "b"},
		{Signature: "c", BlockTime: daysAgo(3)},
	})

	acts, err := NewRPCActivityProvider(rpc).Activity(context.Background(), wallet, 10)
	require.NoError(t, err)
	require.Len(t, acts, 2)
	assert.Equal(t, "a", acts[0].Signature)
	assert.Equal(t, "c", acts[1].Signature)
}

func TestChecker_CancelledContext(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddSignatures(wallet, sigs(60))
	c := NewChecker(Options{
		Provider:   NewRPCActivityProvider(rpc),
		RatePerSec: 0.001,
		Burst:      1,
		Logger:     zerolog.Nop(),
		Clock:      func() time.Time { return now },
	})
	// Drain the single burst token.
	require.True(t, c.IsDeadWallet(context.Background(), wallet))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, c.IsDeadWallet(ctx, wallet))
}

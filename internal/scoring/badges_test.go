package scoring

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"alpha-finder/internal/domain"
)

type fakeChecker struct {
	dead, comeback bool
	calls          atomic.Int32
}

func (f *fakeChecker) IsDeadWallet(context.Context, string) bool {
	f.calls.Add(1)
	return f.dead
}

func (f *fakeChecker) IsComebackTrader(context.Context, string) bool {
	f.calls.Add(1)
	return f.comeback
}

// walletWith builds a wallet with n participations bought well below the
// milestone and never sold.
func walletWith(n int) *domain.Wallet {
	w := domain.NewWallet("w")
	for i := 0; i < n; i++ {
		w.Runners = append(w.Runners, participation("1", 1000, []domain.Transaction{buy("1", "0.1", 10)}, nil))
	}
	return w
}

func TestBadgeEngine_Cascade(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name   string
		wallet func() *domain.Wallet
		global int
		want   domain.Badge
	}{
		{"legendary", func() *domain.Wallet { return walletWith(10) }, 1000, domain.BadgeLegendaryBuyer},
		{"potential alpha", func() *domain.Wallet { return walletWith(2) }, 10, domain.BadgePotentialAlpha},
		{"high conviction", func() *domain.Wallet {
			w := walletWith(1)
			w.Runners[0].Transactions.Sells = []domain.Transaction{sell("1", "1", 2000)}
			return w
		}, 100, domain.BadgeHighConviction},
		{"mid trader lower bound", func() *domain.Wallet { return walletWith(1) }, 10, domain.BadgeMidTrader},
		{"mid trader", func() *domain.Wallet { return walletWith(3) }, 20, domain.BadgeMidTrader},
		{"degen sprayer", func() *domain.Wallet { return walletWith(1) }, 100, domain.BadgeDegenSprayer},
		{"one-hit wonder without runner count", func() *domain.Wallet { return walletWith(1) }, 0, domain.BadgeOneHitWonder},
		{"diamond hands without runner count", func() *domain.Wallet { return walletWith(2) }, 0, domain.BadgeDiamondHands},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			engine := NewBadgeEngine(nil)
			w := c.wallet()
			got, ok := engine.Assign(ctx, w, c.global)
			assert.True(t, ok)
			assert.Equal(t, c.want, got)
			assert.True(t, w.HasBadge(c.want))
		})
	}
}

func TestBadgeEngine_LaterBranches(t *testing.T) {
	ctx := context.Background()

	// Two participations, both sold at the milestone: not held past it, no ratio
	base := func() *domain.Wallet {
		w := walletWith(2)
		for i := range w.Runners {
			w.Runners[i].Transactions.Sells = []domain.Transaction{sell("1", "1", 1000)}
		}
		return w
	}

	w := base()
	w.Runners[0].Transactions.Buys = []domain.Transaction{buy("10000", "0.5", 10)}
	got, _ := NewBadgeEngine(nil).Assign(ctx, w, 0)
	assert.Equal(t, domain.BadgeWhaleBuyer, got)

	checker := &fakeChecker{dead: true}
	got, _ = NewBadgeEngine(checker).Assign(ctx, base(), 0)
	assert.Equal(t, domain.BadgeDeadWallet, got)

	checker = &fakeChecker{comeback: true}
	w = base()
	w.Badges = []domain.Badge{domain.BadgeDeadWallet}
	got, _ = NewBadgeEngine(checker).Assign(ctx, w, 0)
	assert.Equal(t, domain.BadgeComebackTrader, got)
	assert.False(t, w.HasBadge(domain.BadgeDeadWallet), "comeback removes dead wallet")

	_, ok := NewBadgeEngine(&fakeChecker{}).Assign(ctx, base(), 0)
	assert.False(t, ok)
}

func TestBadgeEngine_RemovesOneHitWonder(t *testing.T) {
	w := walletWith(3)
	w.Badges = []domain.Badge{domain.BadgeOneHitWonder, domain.BadgeWhaleBuyer}

	got, _ := NewBadgeEngine(nil).Assign(context.Background(), w, 100)
	assert.Equal(t, domain.BadgeDegenSprayer, got)
	assert.Equal(t, []domain.Badge{domain.BadgeDegenSprayer, domain.BadgeWhaleBuyer}, w.Badges)
}

func TestBadgeEngine_KeepsOneHitForWhale(t *testing.T) {
	w := walletWith(2)
	for i := range w.Runners {
		w.Runners[i].Transactions.Sells = []domain.Transaction{sell("1", "1", 1000)}
	}
	w.Runners[0].Transactions.Buys = []domain.Transaction{buy("10000", "0.5", 10)}
	w.Badges = []domain.Badge{domain.BadgeOneHitWonder}

	got, _ := NewBadgeEngine(nil).Assign(context.Background(), w, 0)
	assert.Equal(t, domain.BadgeWhaleBuyer, got)
	assert.True(t, w.HasBadge(domain.BadgeOneHitWonder))
}

func TestBadgeEngine_ChecksOnlyOnFallThrough(t *testing.T) {
	checker := &fakeChecker{dead: true}
	_, _ = NewBadgeEngine(checker).Assign(context.Background(), walletWith(10), 100)
	assert.Equal(t, int32(0), checker.calls.Load())
}

func TestBadgeEngine_Deterministic(t *testing.T) {
	ctx := context.Background()
	engine := NewBadgeEngine(&fakeChecker{dead: true})

	var first []domain.Badge
	for i := 0; i < 5; i++ {
		w := walletWith(3)
		w.Badges = []domain.Badge{domain.BadgeWhaleBuyer, domain.BadgeOneHitWonder, domain.BadgeWhaleBuyer}
		engine.Assign(ctx, w, 25)
		if i == 0 {
			first = w.Badges
			continue
		}
		assert.Equal(t, first, w.Badges)
	}
	assert.Equal(t, []domain.Badge{domain.BadgeMidTrader, domain.BadgeWhaleBuyer}, first)
}

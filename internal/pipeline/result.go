package pipeline

// TokenStatus is the outcome of processing one runner token.
type TokenStatus string

// Token status constants
const (
	StatusChecked     TokenStatus = "checked"      // all wallets written, token marked checked
	StatusNoMilestone TokenStatus = "no_milestone" // no early/late milestone, marked checked with no cohort
	StatusFeedError   TokenStatus = "feed_error"   // feed or price history failed, retried next cycle
	StatusWriteError  TokenStatus = "write_error"  // at least one wallet write failed, retried next cycle
	StatusError       TokenStatus = "error"        // merge or bookkeeping failed, retried next cycle
)

// WalletError is a persistence failure for one wallet.
type WalletError struct {
	Wallet string
	Err    error
}

// TokenResult reports what happened to one runner token.
type TokenResult struct {
	Token               string
	Status              TokenStatus
	CohortSize          int // wallets after cleanup
	Deduplicated        int // wallets skipped because they already hold this token
	SuspectedSandwich   int // cohort wallets matching the sandwich pattern, still scored
	WalletsWritten      int
	ParticipationErrors int // participations left unscored
	WalletErrors        []WalletError
	Err                 error
}

// OK reports whether the token was fully processed and marked checked.
func (r TokenResult) OK() bool {
	return r.Status == StatusChecked || r.Status == StatusNoMilestone
}

// CycleResult contains results from one scoring cycle or rescore.
type CycleResult struct {
	RunID          string
	Kind           string // "run" or "rescore"
	StartedAt      int64
	FinishedAt     int64
	Tokens         []TokenResult
	WalletsWritten int
	WalletErrors   []WalletError // rescore only; per-token errors live in Tokens
	Ranked         int           // wallets published to the leaderboard
	Errors         []string      // snapshot and leaderboard failures
}

// Succeeded returns the number of tokens marked checked.
func (r *CycleResult) Succeeded() int {
	n := 0
	for _, t := range r.Tokens {
		if t.OK() {
			n++
		}
	}
	return n
}

// Failed returns the number of tokens left unchecked.
func (r *CycleResult) Failed() int {
	return len(r.Tokens) - r.Succeeded()
}

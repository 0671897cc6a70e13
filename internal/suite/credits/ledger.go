package credits

import (
	"sync"

	"github.com/bert-suite/server/internal/suite/model"
	logx "github.com/bert-suite/server/pkg/logger"
)

// DefaultInitialCredits is the allotment every shell session starts with.
const DefaultInitialCredits = 20

// Balance is a snapshot of the ledger.
type Balance struct {
	Credits        int  `json:"credits"`
	PaywallVisible bool `json:"paywall_visible"`
}

// Ledger is the credit store of one shell session. It is not persisted; a
// new session starts from the initial allotment.
type Ledger struct {
	mu      sync.Mutex
	balance Balance
	nextID  int
	subs    map[int]func(Balance)
}

func NewLedger(cfg model.CreditsConfig) *Ledger {
	initial := cfg.Initial
	if initial < 0 {
		initial = 0
	}
	return &Ledger{
		balance: Balance{Credits: initial},
		subs:    make(map[int]func(Balance)),
	}
}

func (l *Ledger) Balance() Balance {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

func (l *Ledger) Credits() int {
	return l.Balance().Credits
}

// Spend decreases the balance, clamping at zero. It never rejects; callers
// gate on Credits first. Non-positive amounts are ignored.
func (l *Ledger) Spend(amount int) {
	if amount <= 0 {
		return
	}
	l.mutate(func(b *Balance) {
		b.Credits -= amount
		if b.Credits < 0 {
			b.Credits = 0
		}
	})
	logx.Debug().Int("cost", amount).Msg("credits spent")
}

// TrySpend deducts amount only when the balance covers it, checking and
// spending under one lock. It reports whether the spend happened.
func (l *Ledger) TrySpend(amount int) bool {
	if amount <= 0 {
		return true
	}
	spent := false
	l.mutateIf(func(b *Balance) bool {
		if b.Credits < amount {
			return false
		}
		b.Credits -= amount
		spent = true
		return true
	})
	if spent {
		logx.Debug().Int("cost", amount).Msg("credits spent")
	}
	return spent
}

// AddCredits increases the balance without an upper bound.
func (l *Ledger) AddCredits(amount int) {
	if amount <= 0 {
		return
	}
	l.mutate(func(b *Balance) { b.Credits += amount })
	logx.Debug().Int("amount", amount).Msg("credits added")
}

func (l *Ledger) ShowPaywall() {
	l.mutate(func(b *Balance) { b.PaywallVisible = true })
}

func (l *Ledger) HidePaywall() {
	l.mutate(func(b *Balance) { b.PaywallVisible = false })
}

// Purchase credits a bundle and hides the paywall in one mutation.
func (l *Ledger) Purchase(bundleID string) (Bundle, error) {
	bundle, err := LookupBundle(bundleID)
	if err != nil {
		return Bundle{}, err
	}
	l.mutate(func(b *Balance) {
		b.Credits += bundle.Credits
		b.PaywallVisible = false
	})
	logx.Info().Str("bundle", bundle.ID).Int("amount", bundle.Credits).Msg("bundle purchased")
	return bundle, nil
}

// Subscribe registers fn for every mutation and returns its cancel func.
// fn runs outside the ledger lock, so it may read the ledger.
func (l *Ledger) Subscribe(fn func(Balance)) func() {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.subs[id] = fn
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs, id)
			l.mu.Unlock()
		})
	}
}

func (l *Ledger) mutate(apply func(*Balance)) {
	l.mutateIf(func(b *Balance) bool {
		apply(b)
		return true
	})
}

// mutateIf notifies subscribers only when apply reports a change.
func (l *Ledger) mutateIf(apply func(*Balance) bool) {
	l.mu.Lock()
	if !apply(&l.balance) {
		l.mu.Unlock()
		return
	}
	snapshot := l.balance
	subs := make([]func(Balance), 0, len(l.subs))
	for _, fn := range l.subs {
		subs = append(subs, fn)
	}
	l.mu.Unlock()

	for _, fn := range subs {
		fn(snapshot)
	}
}

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/adr1el-m/carmen-the-parasight-sub007/pkg/config"
	"github.com/adr1el-m/carmen-the-parasight-sub007/pkg/types"
)

// Tier names recognized by the bank.
const (
	TierGeneral      = "general"
	TierStrict       = "strict"
	TierMedium       = "medium"
	TierLight        = "light"
	TierAuth         = "auth"
	TierModification = "modification"
)

// Result is the outcome of one limiter check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	Reset      time.Time
	RetryAfter time.Duration
}

// Bank is the set of independently configured fixed-window limiters.
type Bank struct {
	store CounterStore
	tiers map[string]config.TierConfig
}

// NewBank creates the limiter bank. In development mode the general tier
// quota is relaxed to cfg.GeneralMaxDev.
func NewBank(store CounterStore, cfg config.RateLimitConfig, development bool) *Bank {
	tiers := make(map[string]config.TierConfig, len(cfg.Tiers))
	for name, tier := range cfg.Tiers {
		tiers[name] = tier
	}
	if development && cfg.GeneralMaxDev > 0 {
		if general, ok := tiers[TierGeneral]; ok {
			general.Max = cfg.GeneralMaxDev
			tiers[TierGeneral] = general
		}
	}
	return &Bank{store: store, tiers: tiers}
}

// Check records one hit for key against the tier's quota. The counter is
// created lazily and treated as fresh once its window has elapsed. A
// denial carries the remaining window duration.
func (b *Bank) Check(ctx context.Context, tier, key string) (Result, error) {
	tc, ok := b.tiers[tier]
	if !ok {
		return Result{}, fmt.Errorf("unknown rate limit tier %q", tier)
	}

	count, reset, err := b.store.Incr(ctx, counterKey(tier, key), tc.Window)
	if err != nil {
		return Result{}, err
	}

	remaining := tc.Max - int(count)
	if remaining < 0 {
		remaining = 0
	}

	res := Result{
		Allowed:   count <= int64(tc.Max),
		Limit:     tc.Max,
		Remaining: remaining,
		Reset:     reset,
	}
	if !res.Allowed {
		res.RetryAfter = time.Until(reset)
		if res.RetryAfter < 0 {
			res.RetryAfter = 0
		}
	}
	return res, nil
}

// Refund returns one hit to the key's counter. Used by the auth tier so
// requests that ultimately succeed do not consume quota.
func (b *Bank) Refund(ctx context.Context, tier, key string) error {
	if _, ok := b.tiers[tier]; !ok {
		return fmt.Errorf("unknown rate limit tier %q", tier)
	}
	return b.store.Decr(ctx, counterKey(tier, key))
}

// Deny builds the taxonomy error for an exhausted quota.
func Deny(res Result) *types.PipelineError {
	return types.NewRateLimitedError("too many requests, please retry later", res.RetryAfter)
}

func counterKey(tier, key string) string {
	return tier + ":" + key
}

package database

import (
	"fmt"

	"github.com/clipbot/clipbot/internal/config"
)

// Tier is a subscription level. The set is closed.
type Tier string

const (
	TierFree         Tier = "free"
	TierBasic        Tier = "basic"
	TierProfessional Tier = "professional"
	TierAdvanced     Tier = "advanced"
)

// AllTiers in ascending order
var AllTiers = []Tier{TierFree, TierBasic, TierProfessional, TierAdvanced}

// ParseTier maps a stored or user supplied name onto the enum
func ParseTier(name string) (Tier, error) {
	t := Tier(name)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidTier, name)
	}
	return t, nil
}

func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierBasic, TierProfessional, TierAdvanced:
		return true
	}
	return false
}

func (t Tier) IsPaid() bool {
	return t.Valid() && t != TierFree
}

// TierDefinition is one row of the static tier table. Features are
// localisation keys rendered by the bot.
type TierDefinition struct {
	Tier       Tier
	DailyLimit int
	PriceUSD   float64
	Features   []string
}

// PriceCents is the amount charged by the payment provider
func (d TierDefinition) PriceCents() int64 {
	return int64(d.PriceUSD*100 + 0.5)
}

// TierTable is a total mapping from Tier to TierDefinition
type TierTable struct {
	defs map[Tier]TierDefinition
}

// DefaultTierTable returns the standard limits and prices
func DefaultTierTable() *TierTable {
	return &TierTable{defs: map[Tier]TierDefinition{
		TierFree: {
			Tier:       TierFree,
			DailyLimit: 5,
			PriceUSD:   0,
			Features:   []string{"feature_daily_limit", "feature_quality_standard"},
		},
		TierBasic: {
			Tier:       TierBasic,
			DailyLimit: 20,
			PriceUSD:   5,
			Features:   []string{"feature_daily_limit", "feature_quality_high", "feature_all_platforms"},
		},
		TierProfessional: {
			Tier:       TierProfessional,
			DailyLimit: 50,
			PriceUSD:   10,
			Features:   []string{"feature_daily_limit", "feature_quality_very_high", "feature_all_platforms", "feature_priority"},
		},
		TierAdvanced: {
			Tier:       TierAdvanced,
			DailyLimit: 100,
			PriceUSD:   15,
			Features:   []string{"feature_daily_limit", "feature_quality_best", "feature_all_platforms", "feature_instant", "feature_support"},
		},
	}}
}

// NewTierTable applies configured overrides on top of the defaults. A
// negative value in a setting keeps the default for that field.
func NewTierTable(overrides map[string]config.TierSetting) (*TierTable, error) {
	table := DefaultTierTable()
	for name, setting := range overrides {
		tier, err := ParseTier(name)
		if err != nil {
			return nil, err
		}
		def := table.defs[tier]
		if setting.DailyLimit >= 0 {
			if setting.DailyLimit == 0 {
				return nil, fmt.Errorf("tier %s: daily limit must be positive", tier)
			}
			def.DailyLimit = setting.DailyLimit
		}
		if setting.PriceUSD >= 0 {
			def.PriceUSD = setting.PriceUSD
		}
		table.defs[tier] = def
	}
	return table, nil
}

// Get returns ErrInvalidTier for anything outside the enum
func (t *TierTable) Get(tier Tier) (TierDefinition, error) {
	def, ok := t.defs[tier]
	if !ok {
		return TierDefinition{}, fmt.Errorf("%w: %q", ErrInvalidTier, tier)
	}
	return def, nil
}

// MustGet panics on an unknown tier. Only for tiers taken from AllTiers
// or already validated.
func (t *TierTable) MustGet(tier Tier) TierDefinition {
	def, err := t.Get(tier)
	if err != nil {
		panic(err)
	}
	return def
}

// Paid lists the purchasable tiers in ascending order
func (t *TierTable) Paid() []TierDefinition {
	out := make([]TierDefinition, 0, len(AllTiers)-1)
	for _, tier := range AllTiers {
		if tier.IsPaid() {
			out = append(out, t.defs[tier])
		}
	}
	return out
}

package pricing

import (
	"fmt"
	"strings"
)

type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
	TierPlus Tier = "plus"
	TierMax  Tier = "max"
)

// ParseTier normalizes user/config input. Unknown values are an error, not a silent free tier.
func ParseTier(s string) (Tier, error) {
	switch t := Tier(strings.ToLower(strings.TrimSpace(s))); t {
	case TierFree, TierPro, TierPlus, TierMax:
		return t, nil
	default:
		return "", fmt.Errorf("unknown tier %q", s)
	}
}

type Mode string

const (
	ModeSnapshot Mode = "snapshot"
	ModeExpanded Mode = "expanded"
	ModeDeep     Mode = "deep"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeSnapshot, ModeExpanded, ModeDeep:
		return true
	}
	return false
}

// Toggles are the optional per-request switches a client may send.
type Toggles struct {
	Deep    bool `json:"deep"`
	Explain bool `json:"explain"`
}

// TierPolicy describes everything a tier is allowed to do and what it costs.
// SupportsToggle=false means toggles are accepted on the wire but never affect
// mode selection or price for that tier.
type TierPolicy struct {
	DailyAllowance    int64 `mapstructure:"daily_allowance"`
	WelcomeCredits    int64 `mapstructure:"welcome_credits"`
	FlatCharge        int64 `mapstructure:"flat_charge"` // nonzero => tier is flat-priced
	ShortCost         int64 `mapstructure:"short_cost"`
	LongCost          int64 `mapstructure:"long_cost"`
	ImageCost         int64 `mapstructure:"image_cost"`
	ExtraChunkSize    int   `mapstructure:"extra_chunk_size"`
	DeepFlatSurcharge int64 `mapstructure:"deep_flat_surcharge"`
	// DeepMultiplierPct is applied (rounded up) to the base total when the
	// resolved mode is deep. 0 disables it; 120 means x1.2.
	DeepMultiplierPct int64  `mapstructure:"deep_multiplier_pct"`
	ExplainSurcharge  int64  `mapstructure:"explain_surcharge"`
	SupportsToggle    bool   `mapstructure:"supports_toggle"`
	SupportsDeepMode  bool   `mapstructure:"supports_deep_mode"`
	HonorsModeRequest bool   `mapstructure:"honors_mode_request"`
	Model             string `mapstructure:"model"`
}

type Config struct {
	Tiers                 map[Tier]TierPolicy `mapstructure:"tiers"`
	ShortTextThreshold    int                 `mapstructure:"short_text_threshold"`
	MaxInputChars         int                 `mapstructure:"max_input_chars"`
	MaxImages             int                 `mapstructure:"max_images"`
	FreeMonthlyLimit      int                 `mapstructure:"free_monthly_limit"`
	ImagePlaceholderChars int                 `mapstructure:"image_placeholder_chars"`
	TokenBaseline         map[Mode]int        `mapstructure:"token_baseline"`
	MaxOutputTokens       map[Mode]int        `mapstructure:"max_output_tokens"`
}

const DefaultModel = "openai:gpt-4o-mini"

func DefaultConfig() Config {
	paid := TierPolicy{
		ShortCost:      5,
		LongCost:       12,
		ImageCost:      8,
		ExtraChunkSize: 500,
		Model:          DefaultModel,
	}

	pro := paid
	pro.DailyAllowance, pro.WelcomeCredits = 100, 100

	plus := paid
	plus.DailyAllowance, plus.WelcomeCredits = 300, 300
	plus.DeepFlatSurcharge = 12
	plus.ExplainSurcharge = 3
	plus.SupportsToggle = true
	plus.SupportsDeepMode = true

	top := paid
	top.DailyAllowance, top.WelcomeCredits = 1000, 1000
	top.DeepMultiplierPct = 120
	top.ExplainSurcharge = 3
	top.SupportsToggle = true
	top.SupportsDeepMode = true
	top.HonorsModeRequest = true
	top.Model = "openai:gpt-4o"

	return Config{
		Tiers: map[Tier]TierPolicy{
			TierFree: {FlatCharge: 1, Model: DefaultModel},
			TierPro:  pro,
			TierPlus: plus,
			TierMax:  top,
		},
		ShortTextThreshold:    200,
		MaxInputChars:         4000,
		MaxImages:             4,
		FreeMonthlyLimit:      1,
		ImagePlaceholderChars: 1000,
		TokenBaseline: map[Mode]int{
			ModeSnapshot: 600,
			ModeExpanded: 1200,
			ModeDeep:     2400,
		},
		MaxOutputTokens: map[Mode]int{
			ModeSnapshot: 700,
			ModeExpanded: 1400,
			ModeDeep:     2800,
		},
	}
}

// Policy panics on an unknown tier: every tier stored on an account was
// validated with ParseTier, so a miss is a programming error.
func (c Config) Policy(t Tier) TierPolicy {
	p, ok := c.Tiers[t]
	if !ok {
		panic(fmt.Sprintf("pricing: no policy configured for tier %q", t))
	}
	return p
}

func (c Config) Validate() error {
	for _, t := range []Tier{TierFree, TierPro, TierPlus, TierMax} {
		p, ok := c.Tiers[t]
		if !ok {
			return fmt.Errorf("pricing: tier %q missing", t)
		}
		if p.FlatCharge == 0 && p.ExtraChunkSize <= 0 {
			return fmt.Errorf("pricing: tier %q needs extra_chunk_size > 0", t)
		}
		if p.DeepMultiplierPct != 0 && p.DeepMultiplierPct < 100 {
			return fmt.Errorf("pricing: tier %q deep_multiplier_pct must be >= 100", t)
		}
		if p.Model == "" {
			return fmt.Errorf("pricing: tier %q has no model", t)
		}
	}
	if c.ShortTextThreshold <= 0 || c.MaxInputChars <= 0 {
		return fmt.Errorf("pricing: thresholds must be positive")
	}
	return nil
}

package pricing

import (
	"strings"
	"unicode/utf8"
)

type Breakdown struct {
	Text      int64 `json:"text"`
	Image     int64 `json:"image"`
	Extra     int64 `json:"extra"`
	BaseTotal int64 `json:"base_total"`
	// Multiplied is BaseTotal after the deep multiplier (equal to BaseTotal when none applies).
	Multiplied int64 `json:"multiplied"`
	Surcharge  int64 `json:"surcharge"`
	Flat       bool  `json:"flat"`
}

type Quote struct {
	TotalCreditsRequired int64     `json:"total_credits_required"`
	Breakdown            Breakdown `json:"breakdown"`
	EstimatedTokens      int       `json:"estimated_tokens"`
}

type Input struct {
	Text    string
	Images  []string
	Toggles Toggles
}

// TextLen is the trimmed character count used for every size rule.
func (in Input) TextLen() int {
	return utf8.RuneCountInString(strings.TrimSpace(in.Text))
}

// Calculate prices an analysis. It is pure; callers validate sizes first.
func Calculate(cfg Config, tier Tier, mode Mode, in Input) Quote {
	p := cfg.Policy(tier)
	textLen := in.TextLen()
	tokens := EstimateTokens(cfg, mode, textLen, len(in.Images))

	if p.FlatCharge > 0 {
		return Quote{
			TotalCreditsRequired: p.FlatCharge,
			Breakdown:            Breakdown{BaseTotal: p.FlatCharge, Multiplied: p.FlatCharge, Flat: true},
			EstimatedTokens:      tokens,
		}
	}

	var b Breakdown
	switch {
	case textLen == 0:
	case textLen <= cfg.ShortTextThreshold:
		b.Text = p.ShortCost
	default:
		b.Text = p.LongCost
	}
	b.Image = p.ImageCost * int64(len(in.Images))
	b.Extra = int64(textLen / p.ExtraChunkSize)
	b.BaseTotal = b.Text + b.Image + b.Extra
	b.Multiplied = b.BaseTotal

	if p.DeepMultiplierPct > 0 && mode == ModeDeep {
		b.Multiplied = ceilPct(b.BaseTotal, p.DeepMultiplierPct)
	}
	if p.SupportsToggle {
		if in.Toggles.Deep {
			b.Surcharge += p.DeepFlatSurcharge
		}
		if in.Toggles.Explain {
			b.Surcharge += p.ExplainSurcharge
		}
	}

	return Quote{
		TotalCreditsRequired: b.Multiplied + b.Surcharge,
		Breakdown:            b,
		EstimatedTokens:      tokens,
	}
}

// EstimateTokens is advisory only and never feeds into billing.
func EstimateTokens(cfg Config, mode Mode, textLen, imageCount int) int {
	chars := textLen + imageCount*cfg.ImagePlaceholderChars
	return cfg.TokenBaseline[mode] + (chars+3)/4
}

// ceilPct returns ceil(v * pct / 100) in integer arithmetic.
func ceilPct(v, pct int64) int64 {
	return (v*pct + 99) / 100
}

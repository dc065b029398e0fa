package pricing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateFreeTierIsFlat(t *testing.T) {
	cfg := DefaultConfig()

	for _, n := range []int{0, 10, 250, 3999} {
		q := Calculate(cfg, TierFree, ModeSnapshot, Input{
			Text:    strings.Repeat("a", n),
			Images:  []string{"img-1", "img-2"},
			Toggles: Toggles{Deep: true, Explain: true},
		})
		assert.Equal(t, int64(1), q.TotalCreditsRequired, "len=%d", n)
		assert.True(t, q.Breakdown.Flat)
	}
}

func TestCalculatePaidTiers(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name    string
		tier    Tier
		mode    Mode
		textLen int
		images  int
		toggles Toggles
		want    int64
	}{
		{"pro short text", TierPro, ModeSnapshot, 150, 0, Toggles{}, 5},
		{"pro long text", TierPro, ModeSnapshot, 300, 0, Toggles{}, 12},
		{"pro ignores toggles", TierPro, ModeSnapshot, 150, 0, Toggles{Deep: true, Explain: true}, 5},
		{"pro images only", TierPro, ModeSnapshot, 0, 2, Toggles{}, 16},
		{"plus deep toggle surcharge", TierPlus, ModeDeep, 300, 0, Toggles{Deep: true}, 24},
		{"plus explain surcharge", TierPlus, ModeExpanded, 300, 0, Toggles{Explain: true}, 15},
		{"plus extra chunk penalty", TierPlus, ModeExpanded, 1200, 0, Toggles{}, 14},
		{"max deep multiplier", TierMax, ModeDeep, 300, 0, Toggles{}, 15},
		{"max expanded no multiplier", TierMax, ModeExpanded, 300, 0, Toggles{}, 12},
		{"empty text and no images", TierPro, ModeSnapshot, 0, 0, Toggles{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			images := make([]string, tt.images)
			for i := range images {
				images[i] = "https://cdn.example.test/img.png"
			}
			q := Calculate(cfg, tt.tier, tt.mode, Input{
				Text:    strings.Repeat("x", tt.textLen),
				Images:  images,
				Toggles: tt.toggles,
			})
			assert.Equal(t, tt.want, q.TotalCreditsRequired)
			assert.GreaterOrEqual(t, q.TotalCreditsRequired, int64(0))
		})
	}
}

func TestCalculateMaxDeepBaseFifty(t *testing.T) {
	cfg := DefaultConfig()
	// 4 images (32) + long text (12) + floor(3000/500)=6 => base 50
	q := Calculate(cfg, TierMax, ModeDeep, Input{
		Text:   strings.Repeat("y", 3000),
		Images: []string{"a", "b", "c", "d"},
	})
	assert.Equal(t, int64(50), q.Breakdown.BaseTotal)
	assert.Equal(t, int64(60), q.TotalCreditsRequired)
}

func TestCalculateShortCheaperThanLong(t *testing.T) {
	cfg := DefaultConfig()
	for _, tier := range []Tier{TierPro, TierPlus, TierMax} {
		short := Calculate(cfg, tier, ModeExpanded, Input{Text: strings.Repeat("s", cfg.ShortTextThreshold)})
		long := Calculate(cfg, tier, ModeExpanded, Input{Text: strings.Repeat("l", cfg.ShortTextThreshold+1)})
		assert.Less(t, short.TotalCreditsRequired, long.TotalCreditsRequired, string(tier))
	}
}

func TestCalculateExtraPenaltyMonotonic(t *testing.T) {
	cfg := DefaultConfig()
	var prev int64 = -1
	for n := 0; n <= cfg.MaxInputChars; n += 37 {
		q := Calculate(cfg, TierPro, ModeSnapshot, Input{Text: strings.Repeat("m", n)})
		assert.GreaterOrEqual(t, q.Breakdown.Extra, prev)
		assert.Equal(t, int64(n/500), q.Breakdown.Extra)
		prev = q.Breakdown.Extra
	}
}

func TestCalculateIsDeterministic(t *testing.T) {
	cfg := DefaultConfig()
	in := Input{Text: "  she said she's busy this weekend  ", Images: []string{"x"}, Toggles: Toggles{Explain: true}}
	first := Calculate(cfg, TierPlus, ModeExpanded, in)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, Calculate(cfg, TierPlus, ModeExpanded, in))
	}
}

func TestCalculateUsesTrimmedLength(t *testing.T) {
	cfg := DefaultConfig()
	padded := "   " + strings.Repeat("p", 200) + "   "
	q := Calculate(cfg, TierPro, ModeSnapshot, Input{Text: padded})
	assert.Equal(t, int64(5), q.Breakdown.Text)
}

func TestEstimateTokens(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 600, EstimateTokens(cfg, ModeSnapshot, 0, 0))
	assert.Equal(t, 1200+1, EstimateTokens(cfg, ModeExpanded, 1, 0))
	assert.Equal(t, 2400+250+1, EstimateTokens(cfg, ModeDeep, 1, 1))
	assert.Greater(t, EstimateTokens(cfg, ModeDeep, 100, 0), EstimateTokens(cfg, ModeSnapshot, 100, 0))
}

func TestCustomPricingFixture(t *testing.T) {
	cfg := DefaultConfig()
	pro := cfg.Tiers[TierPro]
	pro.ShortCost = 1
	pro.LongCost = 2
	cfg.Tiers = map[Tier]TierPolicy{TierFree: cfg.Tiers[TierFree], TierPro: pro, TierPlus: cfg.Tiers[TierPlus], TierMax: cfg.Tiers[TierMax]}

	q := Calculate(cfg, TierPro, ModeSnapshot, Input{Text: "hello"})
	assert.Equal(t, int64(1), q.TotalCreditsRequired)
	// the default fixture is untouched
	assert.Equal(t, int64(5), Calculate(DefaultConfig(), TierPro, ModeSnapshot, Input{Text: "hello"}).TotalCreditsRequired)
}

func TestValidateConfig(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	delete(cfg.Tiers, TierPlus)
	assert.Error(t, cfg.Validate())
}

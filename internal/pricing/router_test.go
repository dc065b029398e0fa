package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveMode(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name string
		tier Tier
		in   RouteInput
		want Mode
	}{
		{"free long with images", TierFree, RouteInput{TextLen: 900, HasImages: true, RequestedMode: ModeDeep}, ModeSnapshot},
		{"pro ignores deep toggle", TierPro, RouteInput{TextLen: 900, Toggles: Toggles{Deep: true}}, ModeSnapshot},
		{"pro ignores requested mode", TierPro, RouteInput{TextLen: 50, RequestedMode: ModeExpanded}, ModeSnapshot},
		{"plus toggle forces deep", TierPlus, RouteInput{TextLen: 10, Toggles: Toggles{Deep: true}}, ModeDeep},
		{"plus short imageless", TierPlus, RouteInput{TextLen: 200}, ModeSnapshot},
		{"plus long", TierPlus, RouteInput{TextLen: 201}, ModeExpanded},
		{"plus short with image", TierPlus, RouteInput{TextLen: 20, HasImages: true}, ModeExpanded},
		{"plus request is not honored", TierPlus, RouteInput{TextLen: 20, RequestedMode: ModeDeep}, ModeSnapshot},
		{"max honors request", TierMax, RouteInput{TextLen: 900, HasImages: true, RequestedMode: ModeSnapshot}, ModeSnapshot},
		{"max images", TierMax, RouteInput{TextLen: 20, HasImages: true}, ModeDeep},
		{"max short imageless", TierMax, RouteInput{TextLen: 20}, ModeExpanded},
		{"max long", TierMax, RouteInput{TextLen: 1000}, ModeDeep},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ResolveMode(cfg, tt.tier, tt.in)
			assert.Equal(t, tt.want, r.Mode)
			assert.NotEmpty(t, r.Model)
		})
	}
}

func TestResolveModePerTierModel(t *testing.T) {
	cfg := DefaultConfig()

	r := ResolveMode(cfg, TierMax, RouteInput{TextLen: 10})
	assert.Equal(t, "openai", r.Provider)
	assert.Equal(t, "gpt-4o", r.Model)
	assert.Equal(t, "openai:gpt-4o", r.ModelID())

	plus := cfg.Tiers[TierPlus]
	plus.Model = "gemini:gemini-1.5-flash"
	cfg.Tiers[TierPlus] = plus
	r = ResolveMode(cfg, TierPlus, RouteInput{TextLen: 10})
	assert.Equal(t, "gemini", r.Provider)
	assert.Equal(t, "gemini-1.5-flash", r.Model)
}

func TestResolveModeUnknownTierPanics(t *testing.T) {
	assert.Panics(t, func() {
		ResolveMode(DefaultConfig(), Tier("enterprise"), RouteInput{})
	})
}

func TestSplitModel(t *testing.T) {
	p, m := SplitModel("gpt-4o-mini")
	assert.Equal(t, "openai", p)
	assert.Equal(t, "gpt-4o-mini", m)

	p, m = SplitModel("gemini:gemini-1.5-pro")
	assert.Equal(t, "gemini", p)
	assert.Equal(t, "gemini-1.5-pro", m)
}

func TestParseTier(t *testing.T) {
	tier, err := ParseTier(" PLUS ")
	assert.NoError(t, err)
	assert.Equal(t, TierPlus, tier)

	_, err = ParseTier("gold")
	assert.Error(t, err)
}

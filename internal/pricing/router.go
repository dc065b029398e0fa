package pricing

import "strings"

type RouteInput struct {
	TextLen       int
	HasImages     bool
	Toggles       Toggles
	RequestedMode Mode // empty when the client did not ask for one
}

type Route struct {
	Mode     Mode   `json:"mode"`
	Model    string `json:"model"`
	Provider string `json:"provider"`
}

// ResolveMode picks the mode to run and the model that runs it.
//
//	free, pro  -> snapshot, always (pro accepts toggles but they do nothing)
//	plus       -> deep toggle forces deep, else short text-only is snapshot, else expanded
//	max        -> honors an explicit request, else images deep, short text-only expanded, else deep
func ResolveMode(cfg Config, tier Tier, in RouteInput) Route {
	p := cfg.Policy(tier)
	short := in.TextLen <= cfg.ShortTextThreshold && !in.HasImages

	var mode Mode
	switch {
	case p.HonorsModeRequest && in.RequestedMode.Valid():
		mode = in.RequestedMode
	case p.HonorsModeRequest:
		switch {
		case in.HasImages:
			mode = ModeDeep
		case short:
			mode = ModeExpanded
		default:
			mode = ModeDeep
		}
	case p.SupportsToggle && p.SupportsDeepMode:
		switch {
		case in.Toggles.Deep:
			mode = ModeDeep
		case short:
			mode = ModeSnapshot
		default:
			mode = ModeExpanded
		}
	default:
		mode = ModeSnapshot
	}

	provider, model := SplitModel(p.Model)
	return Route{Mode: mode, Model: model, Provider: provider}
}

// SplitModel splits a "provider:model" identifier. A bare model name is assumed to be openai.
func SplitModel(id string) (provider, model string) {
	if i := strings.IndexByte(id, ':'); i > 0 {
		return id[:i], id[i+1:]
	}
	return "openai", id
}

// ModelID is the inverse of SplitModel and is what gets persisted and hashed.
func (r Route) ModelID() string {
	return r.Provider + ":" + r.Model
}

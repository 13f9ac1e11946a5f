// Package prefs resolves which channels an alert should be delivered on.
//
// Resolution layers, lowest to highest precedence: engine defaults, the
// user's account-level preference, and an optional per-criteria override.
// The result is a normalized, deduplicated channel list with the preferred
// channel first.
package prefs

import (
	"context"

	"stormwatch/internal/types"
)

// defaultPreference applies when a user has never configured notification
// preferences.
var defaultPreference = types.ResolvedPreference{
	Channels:         []types.Channel{types.ChannelEmail},
	PreferredChannel: types.ChannelEmail,
	Strategy:         types.StrategyFirstSuccess,
}

// PreferenceStore is the narrow persistence interface the resolver needs.
type PreferenceStore interface {
	FindUserPreference(ctx context.Context, userID string) (*types.UserPreference, error)
	FindCriteriaPreference(ctx context.Context, criteriaID string) (*types.CriteriaPreference, error)
}

// UserDirectory looks up users for the channel verification filter.
type UserDirectory interface {
	GetByID(ctx context.Context, id string) (*types.User, error)
}

// Resolver merges user and criteria preferences into a delivery routing
// decision. When a UserDirectory is provided, channels whose destination is
// unverified are filtered out before normalization.
type Resolver struct {
	store  PreferenceStore
	users  UserDirectory
	logger types.Logger
}

// NewResolver creates a preference resolver. users may be nil to disable
// the verification filter.
func NewResolver(store PreferenceStore, users UserDirectory, logger types.Logger) *Resolver {
	return &Resolver{store: store, users: users, logger: logger}
}

// Resolve returns the normalized routing decision for one user and criteria.
//
// Rules:
//   - A missing user preference falls back to engine defaults (EMAIL only).
//   - A criteria override declaring UseUserDefaults while also carrying
//     explicit routing is a configuration conflict and fails.
//   - An explicit criteria override with zero channels fails; defaults are
//     never fabricated for an explicit override.
//   - The preferred channel must be among the resolved channels and is
//     moved to the front.
func (r *Resolver) Resolve(ctx context.Context, userID, criteriaID string) (types.ResolvedPreference, error) {
	if userID == "" {
		return types.ResolvedPreference{}, types.NewAppError(
			types.ErrCodeValidationMissingField, "user id is required for preference resolution", nil)
	}

	userPref, err := r.store.FindUserPreference(ctx, userID)
	if err != nil {
		return types.ResolvedPreference{}, err
	}

	base := defaultPreference
	if userPref != nil {
		base = types.ResolvedPreference{
			Channels:         []types.Channel(userPref.Channels),
			PreferredChannel: userPref.PreferredChannel,
			Strategy:         userPref.Strategy,
		}
	}

	if criteriaID != "" {
		critPref, err := r.store.FindCriteriaPreference(ctx, criteriaID)
		if err != nil {
			return types.ResolvedPreference{}, err
		}
		base, err = applyOverride(base, critPref)
		if err != nil {
			return types.ResolvedPreference{}, err
		}
	}

	if r.users != nil {
		base.Channels, err = r.filterUnverified(ctx, userID, base.Channels)
		if err != nil {
			return types.ResolvedPreference{}, err
		}
		if base.PreferredChannel != "" && !containsChannel(base.Channels, base.PreferredChannel) {
			// The preferred channel was filtered out; fall back to the
			// first surviving channel during normalization.
			base.PreferredChannel = ""
		}
	}

	return normalize(base)
}

// applyOverride merges a criteria-level preference over the base.
func applyOverride(base types.ResolvedPreference, crit *types.CriteriaPreference) (types.ResolvedPreference, error) {
	if crit == nil {
		return base, nil
	}

	explicit := len(crit.Channels) > 0 || crit.PreferredChannel != "" || crit.Strategy != ""

	if crit.UseUserDefaults {
		if explicit {
			return types.ResolvedPreference{}, types.NewAppError(
				types.ErrCodeValidationPreferenceConflict,
				"criteria preference declares user defaults but carries explicit routing",
				nil)
		}
		return base, nil
	}

	if len(crit.Channels) == 0 {
		return types.ResolvedPreference{}, types.NewAppError(
			types.ErrCodeValidationNoUsableChannels,
			"explicit criteria preference has no channels",
			nil)
	}

	out := types.ResolvedPreference{
		Channels:         []types.Channel(crit.Channels),
		PreferredChannel: crit.PreferredChannel,
		Strategy:         crit.Strategy,
	}
	if out.Strategy == "" {
		out.Strategy = base.Strategy
	}
	return out, nil
}

// filterUnverified drops channels whose destination the user has not
// verified. PUSH has no verifiable address and always passes.
func (r *Resolver) filterUnverified(ctx context.Context, userID string, channels []types.Channel) ([]types.Channel, error) {
	user, err := r.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	var kept []types.Channel
	for _, ch := range channels {
		switch ch {
		case types.ChannelEmail:
			if user.Email != "" && user.EmailVerified {
				kept = append(kept, ch)
			}
		case types.ChannelSMS:
			if user.Phone != "" && user.PhoneVerified {
				kept = append(kept, ch)
			}
		default:
			kept = append(kept, ch)
		}
	}

	if len(kept) == 0 {
		return nil, types.NewAppError(
			types.ErrCodeValidationNoUsableChannels,
			"all preferred channels are unverified",
			nil)
	}
	if len(kept) < len(channels) && r.logger != nil {
		r.logger.Warn("dropped unverified channels",
			"user_id", userID,
			"requested", len(channels),
			"kept", len(kept),
		)
	}
	return kept, nil
}

// normalize deduplicates channels preserving order, validates them, defaults
// the preferred channel to the first, and moves the preferred channel to the
// front.
func normalize(p types.ResolvedPreference) (types.ResolvedPreference, error) {
	seen := make(map[types.Channel]bool, len(p.Channels))
	var channels []types.Channel
	for _, ch := range p.Channels {
		if !types.ValidChannel(ch) {
			return types.ResolvedPreference{}, types.NewAppErrorWithDetails(
				types.ErrCodeValidationInvalidChannel, "unknown channel in preference", nil,
				map[string]any{"channel": string(ch)})
		}
		if !seen[ch] {
			seen[ch] = true
			channels = append(channels, ch)
		}
	}

	if len(channels) == 0 {
		return types.ResolvedPreference{}, types.NewAppError(
			types.ErrCodeValidationNoUsableChannels, "no channels after normalization", nil)
	}

	preferred := p.PreferredChannel
	if preferred == "" {
		preferred = channels[0]
	}
	if !seen[preferred] {
		return types.ResolvedPreference{}, types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidChannel,
			"preferred channel is not among resolved channels", nil,
			map[string]any{"preferred": string(preferred)})
	}

	// Move the preferred channel to the front, preserving the rest.
	ordered := make([]types.Channel, 0, len(channels))
	ordered = append(ordered, preferred)
	for _, ch := range channels {
		if ch != preferred {
			ordered = append(ordered, ch)
		}
	}

	strategy := p.Strategy
	if strategy == "" {
		strategy = types.StrategyFirstSuccess
	}

	return types.ResolvedPreference{
		Channels:         ordered,
		PreferredChannel: preferred,
		Strategy:         strategy,
	}, nil
}

func containsChannel(channels []types.Channel, target types.Channel) bool {
	for _, ch := range channels {
		if ch == target {
			return true
		}
	}
	return false
}

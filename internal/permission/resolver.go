package permission

import (
	"github.com/developingchet/guild-counter-sync/internal/metrics"
	"github.com/rs/zerolog"
)

// Request is the input of one authorization decision.
type Request struct {
	ActorID    string
	ActorRoles []string
	OwnerID    string
	GuildID    string
	Action     Action
}

// Decision outcomes, also used as the result label of authorizations_total.
const (
	ReasonSuperOperator = "super_operator"
	ReasonOwner         = "owner"
	ReasonUnknownAction = "unknown_action"
	ReasonNoConfig      = "no_config"
	ReasonTier          = "tier"
	ReasonInsufficient  = "insufficient_rank"
)

// Decision is the outcome of Decide.
type Decision struct {
	Allowed  bool
	Reason   string
	Required Rank // zero for overrides and unknown actions
	Held     Rank // highest qualifying rank when allowed by tier
}

// Resolver authorizes gated actions.
type Resolver struct {
	superOperatorID string
	store           *Store
	log             zerolog.Logger
}

// NewResolver constructs a Resolver. An empty superOperatorID disables the
// super-operator override.
func NewResolver(superOperatorID string, store *Store, log zerolog.Logger) *Resolver {
	return &Resolver{superOperatorID: superOperatorID, store: store, log: log}
}

// Authorize reports whether req may proceed.
func (r *Resolver) Authorize(req Request) bool {
	return r.Decide(req).Allowed
}

// Decide evaluates, in order: super-operator, owner, unknown action,
// missing community configuration, held tiers. The overrides short-circuit
// before the action is looked up.
func (r *Resolver) Decide(req Request) Decision {
	d := r.decide(req)

	action := string(req.Action)
	if !Known(req.Action) {
		action = "unknown"
	}
	metrics.Authorizations.WithLabelValues(action, d.Reason).Inc()
	r.log.Debug().Str("guild_id", req.GuildID).Str("actor_id", req.ActorID).
		Str("action", string(req.Action)).Bool("allowed", d.Allowed).Str("reason", d.Reason).
		Msg("authorization decided")
	return d
}

func (r *Resolver) decide(req Request) Decision {
	if req.ActorID == "" {
		return Decision{Reason: ReasonInsufficient}
	}
	if r.superOperatorID != "" && req.ActorID == r.superOperatorID {
		return Decision{Allowed: true, Reason: ReasonSuperOperator}
	}
	if req.ActorID == req.OwnerID {
		return Decision{Allowed: true, Reason: ReasonOwner}
	}

	required, configured, known := r.store.required(req.GuildID, req.Action)
	if !known {
		return Decision{Reason: ReasonUnknownAction}
	}
	if !configured {
		return Decision{Reason: ReasonNoConfig, Required: required}
	}
	if held, ok := r.store.holds(req.GuildID, req.ActorRoles, required); ok {
		return Decision{Allowed: true, Reason: ReasonTier, Required: required, Held: held}
	}
	return Decision{Reason: ReasonInsufficient, Required: required}
}

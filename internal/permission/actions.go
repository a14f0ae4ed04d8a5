// Package permission decides which members may run which gated actions,
// based on a per-community tier hierarchy.
package permission

import (
	"fmt"
	"sort"
	"strconv"
)

// Rank is a tier level. A higher rank includes every lower rank.
type Rank int

const (
	RankHelper Rank = iota + 1
	RankModerator
	RankAdmin
	RankHeadAdmin
)

// MaxRank is the highest assignable rank.
const MaxRank = RankHeadAdmin

var rankNames = map[Rank]string{
	RankHelper:    "helper",
	RankModerator: "moderator",
	RankAdmin:     "admin",
	RankHeadAdmin: "head-admin",
}

func (r Rank) String() string {
	if n, ok := rankNames[r]; ok {
		return n
	}
	return "rank(" + strconv.Itoa(int(r)) + ")"
}

// Valid reports whether r is an assignable rank.
func (r Rank) Valid() bool {
	return r >= RankHelper && r <= MaxRank
}

// ParseRank accepts a rank number or name.
func ParseRank(s string) (Rank, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if r := Rank(n); r.Valid() {
			return r, nil
		}
		return 0, fmt.Errorf("rank must be 1–%d; got %d", MaxRank, n)
	}
	for r, name := range rankNames {
		if name == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown rank %q", s)
}

// Action names a gated operation.
type Action string

const (
	ActionSetup        Action = "setup"
	ActionSync         Action = "sync"
	ActionStats        Action = "stats"
	ActionPermAdd      Action = "perm_add"
	ActionPermRemove   Action = "perm_remove"
	ActionPermReset    Action = "perm_reset"
	ActionPermList     Action = "perm_list"
	ActionPermCommand  Action = "perm_command"
	ActionConfigExport Action = "config_export"
	ActionConfigImport Action = "config_import"

	// One-shot moderation actions gated here but executed elsewhere.
	ActionClear  Action = "clear"
	ActionLock   Action = "lock"
	ActionUnlock Action = "unlock"
	ActionHide   Action = "hide"
	ActionUnhide Action = "unhide"
	ActionNuke   Action = "nuke"
)

// actionRanks is the fixed minimum rank per action.
var actionRanks = map[Action]Rank{
	ActionStats:        RankHelper,
	ActionSync:         RankModerator,
	ActionClear:        RankModerator,
	ActionLock:         RankModerator,
	ActionUnlock:       RankModerator,
	ActionHide:         RankAdmin,
	ActionUnhide:       RankAdmin,
	ActionPermList:     RankAdmin,
	ActionSetup:        RankHeadAdmin,
	ActionPermAdd:      RankHeadAdmin,
	ActionPermRemove:   RankHeadAdmin,
	ActionPermReset:    RankHeadAdmin,
	ActionPermCommand:  RankHeadAdmin,
	ActionConfigExport: RankHeadAdmin,
	ActionConfigImport: RankHeadAdmin,
	ActionNuke:         RankHeadAdmin,
}

// RequiredRank returns the default minimum rank for a, and false for unknown actions.
func RequiredRank(a Action) (Rank, bool) {
	r, ok := actionRanks[a]
	return r, ok
}

// Known reports whether a belongs to the closed action set.
func Known(a Action) bool {
	_, ok := actionRanks[a]
	return ok
}

// AllActions returns every known action, sorted by name.
func AllActions() []Action {
	out := make([]Action, 0, len(actionRanks))
	for a := range actionRanks {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Package router implements the Model Router: given availability,
// preferences, constraints, and a scoring function, it produces an
// ordered candidate plan, adapted from the teacher's routing.Router
// rule-matching and candidate-collection algorithm.
package router

import (
	"sort"

	"github.com/emmett08/unified-agent-sdk/internal/catalog"
)

// Candidate is one entry of a RoutePlan.
type Candidate struct {
	Provider string
	Model    string
	Ref      string
	Profile  *catalog.Profile // nil when Model came from an explicit request with no catalog entry
}

// RoutePlan is the ordered list of candidates to attempt, per spec §3.
type RoutePlan []Candidate

// Preference mirrors spec §4.K's RoutePreference.
type Preference struct {
	ExplicitProvider   string
	ExplicitModel      string
	Class              catalog.Class
	PreferredProviders []string
	AllowFallback      bool
}

// Constraints mirrors spec §4.K's RouteConstraints.
type Constraints struct {
	MustStream       bool
	RequiresTools    bool
	AllowedProviders []string // nil = no restriction
	BlockedProviders []string
	MinContextTokens int // 0 = no minimum
}

// ScoreFunc ranks candidates; lower is better. The Supervisor supplies
// latency·10 + cost + breaker penalty, per spec §4.K step 7.
type ScoreFunc func(c Candidate) int64

// Plan implements spec §4.K's eight-step algorithm.
func Plan(cat *catalog.Catalog, available map[string]bool, pref Preference, cons Constraints, score ScoreFunc) RoutePlan {
	providers := availableProviders(available, cons)
	ordered := orderProviders(providers, pref)

	var plan RoutePlan
	if pref.ExplicitModel != "" {
		for _, p := range ordered {
			plan = append(plan, Candidate{Provider: p, Model: pref.ExplicitModel, Ref: p + ":" + pref.ExplicitModel})
		}
	} else {
		class := pref.Class
		if class == "" {
			class = catalog.ClassDefault
		}
		for _, p := range ordered {
			profiles := cat.ListByProvider(p)
			var matching []catalog.Profile
			for _, prof := range profiles {
				if classMatches(prof, class) {
					matching = append(matching, prof)
				}
			}
			sort.SliceStable(matching, func(i, j int) bool {
				return matching[i].LatencyRank < matching[j].LatencyRank
			})
			for _, prof := range matching {
				prof := prof
				plan = append(plan, Candidate{Provider: p, Model: prof.ModelID, Ref: prof.Ref(), Profile: &prof})
			}
		}
	}

	plan = applyHardFilters(plan, cons)

	if len(plan) == 0 && pref.AllowFallback {
		plan = fallbackToWholeCatalog(cat, providers, cons)
	}

	if score != nil {
		sort.SliceStable(plan, func(i, j int) bool { return score(plan[i]) < score(plan[j]) })
	}

	if !pref.AllowFallback && len(plan) > 1 {
		plan = plan[:1]
	}

	return plan
}

func availableProviders(available map[string]bool, cons Constraints) []string {
	allowed := toSet(cons.AllowedProviders)
	blocked := toSet(cons.BlockedProviders)

	var out []string
	for p, ok := range available {
		if !ok {
			continue
		}
		if allowed != nil && !allowed[p] {
			continue
		}
		if blocked[p] {
			continue
		}
		out = append(out, p)
	}
	sort.Strings(out) // deterministic base order before preference reordering
	return out
}

func orderProviders(available []string, pref Preference) []string {
	set := toSet(available)
	var ordered []string
	seen := map[string]bool{}

	add := func(p string) {
		if set[p] && !seen[p] {
			seen[p] = true
			ordered = append(ordered, p)
		}
	}

	add(pref.ExplicitProvider)
	for _, p := range pref.PreferredProviders {
		add(p)
	}
	for _, p := range available {
		add(p)
	}
	return ordered
}

func classMatches(p catalog.Profile, class catalog.Class) bool {
	if class == catalog.ClassDefault {
		return len(p.Classes) > 0
	}
	for _, c := range p.Classes {
		if c == class {
			return true
		}
	}
	return false
}

func applyHardFilters(plan RoutePlan, cons Constraints) RoutePlan {
	var out RoutePlan
	for _, c := range plan {
		if c.Profile == nil {
			out = append(out, c)
			continue
		}
		if cons.MustStream && !c.Profile.Capabilities.Streaming {
			continue
		}
		if cons.RequiresTools && !c.Profile.Capabilities.Tools {
			continue
		}
		if cons.MinContextTokens > 0 && c.Profile.MaxContextTokens > 0 && c.Profile.MaxContextTokens < cons.MinContextTokens {
			continue
		}
		out = append(out, c)
	}
	return out
}

func fallbackToWholeCatalog(cat *catalog.Catalog, available []string, cons Constraints) RoutePlan {
	set := toSet(available)
	var out RoutePlan
	for _, p := range cat.All() {
		if !set[p.ProviderID] {
			continue
		}
		p := p
		out = append(out, Candidate{Provider: p.ProviderID, Model: p.ModelID, Ref: p.Ref(), Profile: &p})
	}
	return applyHardFilters(out, cons)
}

func toSet(items []string) map[string]bool {
	if items == nil {
		return nil
	}
	out := make(map[string]bool, len(items))
	for _, i := range items {
		out[i] = true
	}
	return out
}

// Score is the default scoring callback described by spec §4.M step 5:
// latency·10 + cost + breaker penalty. The caller supplies the breaker
// penalty lookup since Router does not depend on the Breaker package.
func Score(latencyWeight int64) func(latencyRank, costRank int, breakerPenalty int64) int64 {
	return func(latencyRank, costRank int, breakerPenalty int64) int64 {
		return int64(latencyRank)*latencyWeight + int64(costRank) + breakerPenalty
	}
}

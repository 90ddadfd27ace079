// Package toolpolicy implements ToolPolicy, the decision interface the
// Tool Executor consults before invoking a tool, adapted from the
// teacher's tools/policy Resolver pattern-matching (allow/deny lists,
// wildcards) generalized with an explicit "ask" decision.
package toolpolicy

import (
	"fmt"
	"strings"
)

// Decision is the policy's verdict for one tool call.
type Decision int

const (
	// Allow lets the call proceed without approval.
	Allow Decision = iota
	// Deny refuses the call outright.
	Deny
	// Ask requires run-controller approval before the call proceeds.
	Ask
)

// Policy decides whether a named tool call (with its capability tags,
// if any) may run.
type Policy interface {
	Decide(toolName string, capabilities []string) Decision
}

// Named is implemented by policies that have a stable identifier, used by
// Composite to attribute which policy in the chain produced a non-allow
// verdict.
type Named interface {
	PolicyName() string
}

// Reasoned is implemented by policies (namely Composite) that can report
// which sub-policy is responsible for a non-allow verdict, per spec
// §4.H's "composite that ... attributes the rejecting policy name".
type Reasoned interface {
	DecideWithReason(toolName string, capabilities []string) (Decision, string)
}

// AllowAll allows every tool.
type AllowAll struct{}

// Decide always returns Allow.
func (AllowAll) Decide(string, []string) Decision { return Allow }

// PolicyName identifies this policy in a Composite's rejection reason.
func (AllowAll) PolicyName() string { return "allow-all" }

// DenyAll denies every tool.
type DenyAll struct{}

// Decide always returns Deny.
func (DenyAll) Decide(string, []string) Decision { return Deny }

// PolicyName identifies this policy in a Composite's rejection reason.
func (DenyAll) PolicyName() string { return "deny-all" }

// ToolList allows only tool names matching one of Patterns; everything
// else is denied. Patterns support the teacher's wildcard forms: "*",
// a ".*" namespace prefix, or an exact name.
type ToolList struct {
	Patterns []string
}

// Decide returns Allow if toolName matches any pattern, else Deny.
func (t ToolList) Decide(toolName string, _ []string) Decision {
	for _, p := range t.Patterns {
		if matchPattern(p, toolName) {
			return Allow
		}
	}
	return Deny
}

// PolicyName identifies this policy in a Composite's rejection reason.
func (t ToolList) PolicyName() string { return "tool-list" }

// CapabilityDenyList denies any tool carrying one of the listed
// capability tags (e.g. "network", "filesystem-write").
type CapabilityDenyList struct {
	Capabilities []string
}

// Decide returns Deny if any of the call's capabilities are denied,
// else Allow.
func (c CapabilityDenyList) Decide(_ string, capabilities []string) Decision {
	denied := toSet(c.Capabilities)
	for _, cap := range capabilities {
		if denied[cap] {
			return Deny
		}
	}
	return Allow
}

// PolicyName identifies this policy in a Composite's rejection reason.
func (c CapabilityDenyList) PolicyName() string { return "capability-deny-list" }

// CapabilityRequiresApproval returns Ask for any tool carrying one of
// the listed capability tags, and Allow otherwise.
type CapabilityRequiresApproval struct {
	Capabilities []string
}

// Decide returns Ask if any of the call's capabilities require
// approval, else Allow.
func (c CapabilityRequiresApproval) Decide(_ string, capabilities []string) Decision {
	gated := toSet(c.Capabilities)
	for _, cap := range capabilities {
		if gated[cap] {
			return Ask
		}
	}
	return Allow
}

// PolicyName identifies this policy in a Composite's rejection reason.
func (c CapabilityRequiresApproval) PolicyName() string { return "capability-requires-approval" }

// Composite evaluates policies in order. The first Deny wins outright;
// otherwise the strictest decision seen (Ask over Allow) is returned, so
// any gate in the chain can escalate to approval. Decide alone loses the
// "which policy decided this" attribution; callers that need it (the Tool
// Executor) should type-assert for Reasoned and call DecideWithReason.
type Composite struct {
	Policies []Policy
}

// Decide evaluates every policy in order and combines their verdicts.
func (c Composite) Decide(toolName string, capabilities []string) Decision {
	d, _ := c.DecideWithReason(toolName, capabilities)
	return d
}

// DecideWithReason evaluates every policy in order and, for the first
// non-allow verdict, also returns which policy produced it (falling back
// to the policy's Go type name when it does not implement Named), per
// spec §4.H's composite attribution requirement.
func (c Composite) DecideWithReason(toolName string, capabilities []string) (Decision, string) {
	strictest := Allow
	strictestName := ""
	for _, p := range c.Policies {
		switch p.Decide(toolName, capabilities) {
		case Deny:
			return Deny, policyName(p)
		case Ask:
			if strictest != Ask {
				strictest = Ask
				strictestName = policyName(p)
			}
		}
	}
	return strictest, strictestName
}

func policyName(p Policy) string {
	if n, ok := p.(Named); ok {
		return n.PolicyName()
	}
	return fmt.Sprintf("%T", p)
}

func matchPattern(pattern, name string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(name, prefix)
	}
	return pattern == name
}

func toSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, i := range items {
		out[i] = true
	}
	return out
}

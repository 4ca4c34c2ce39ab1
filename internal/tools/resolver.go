// Package tools implements the Tool Executor boundary consumed by the
// Agent Orchestrator: execute(tool_id, arguments, policy) -> Result |
// Error. Sandbox policy evaluation (profiles, groups, allow/deny with
// deny-wins semantics) is adapted from the teacher's tools/policy
// resolver, trimmed of the MCP-server and edge-daemon registration
// concepts that have no home in this core.
package tools

import (
	"strings"
	"sync"

	lalocore "github.com/lalosystems/lalocore/pkg/lalocore"
)

// Policy is the sandbox policy the orchestrator passes through to Execute,
// unchanged from the shared data model.
type Policy = lalocore.ToolPolicy

// ToolGroup is a named set of tool ids, referenced from a policy's
// Allow/Deny lists as "group:<name>".
type ToolGroup struct {
	Name  string
	Tools []string
}

// DefaultGroups mirrors the teacher's built-in bundles, narrowed to the
// tool ids this core ships with.
var DefaultGroups = map[string][]string{
	"group:web":     {"web_search", "browser"},
	"group:code":    {"code_exec"},
	"group:files":   {"file_read"},
	"group:all":     {"web_search", "browser", "code_exec", "file_read"},
}

// profileDefaults maps a policy Profile name to its implicit allow list.
var profileDefaults = map[string][]string{
	"minimal": {},
	"full":    {"group:all"},
}

// Resolver evaluates a ToolPolicy against a requested tool id.
type Resolver struct {
	mu     sync.RWMutex
	groups map[string][]string
}

// NewResolver creates a Resolver seeded with DefaultGroups.
func NewResolver() *Resolver {
	groups := make(map[string][]string, len(DefaultGroups))
	for k, v := range DefaultGroups {
		groups[k] = v
	}
	return &Resolver{groups: groups}
}

// AddGroup registers or overrides a named group.
func (r *Resolver) AddGroup(name string, toolIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups[name] = toolIDs
}

// ExpandGroups flattens group references in items to their member tool
// ids, preserving order and de-duplicating.
func (r *Resolver) ExpandGroups(items []string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for _, item := range items {
		normalized := normalizeTool(item)
		if tools, ok := r.groups[normalized]; ok {
			for _, t := range tools {
				if !seen[t] {
					seen[t] = true
					out = append(out, t)
				}
			}
			continue
		}
		if !seen[normalized] {
			seen[normalized] = true
			out = append(out, normalized)
		}
	}
	return out
}

// Decision explains an allow/deny outcome for audit logging.
type Decision struct {
	Allowed bool
	Tool    string
	Reason  string
}

// IsAllowed reports whether policy permits toolID.
func (r *Resolver) IsAllowed(policy Policy, toolID string) bool {
	return r.Decide(policy, toolID).Allowed
}

// Decide evaluates policy against toolID, deny always winning over allow,
// matching the teacher's resolver semantics.
func (r *Resolver) Decide(policy Policy, toolID string) Decision {
	normalized := normalizeTool(toolID)
	decision := Decision{Tool: normalized, Reason: "no matching allow rule"}

	var allowed []string
	if policy.Profile != "" {
		allowed = append(allowed, r.ExpandGroups(profileDefaults[policy.Profile])...)
	}
	allowed = append(allowed, r.ExpandGroups(policy.Allow)...)
	denied := r.ExpandGroups(policy.Deny)

	for _, d := range denied {
		if d == normalized {
			decision.Reason = "denied by rule: " + d
			return decision
		}
	}

	if policy.Profile == "full" {
		decision.Allowed = true
		decision.Reason = "allowed by profile full"
		return decision
	}

	for _, a := range allowed {
		if a == normalized {
			decision.Allowed = true
			decision.Reason = "allowed by rule: " + a
			return decision
		}
	}
	return decision
}

func normalizeTool(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

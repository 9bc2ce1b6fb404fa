// Package featureflags gates staged rollouts of platform features, such as
// the reworked feed ranking or chat typing indicators, without a deploy.
// Flags come from the FEATURE_FLAGS config value as a comma-separated list:
//
//	new_feed=on,chat_typing=25%,legacy_inbox=off
//
// Percentage rules bucket users deterministically, so a member who has a
// feature keeps it across sessions while the rollout widens.
package featureflags

import (
	"hash/fnv"
	"strconv"
	"strings"
)

type ruleKind int

const (
	ruleOff ruleKind = iota
	ruleOn
	rulePercent
)

// rule is one flag's compiled state. raw keeps the configured value verbatim
// for diagnostics.
type rule struct {
	kind ruleKind
	pct  int
	raw  string
}

// Manager answers flag queries against the rules parsed at startup. It is
// immutable after construction and safe for concurrent use.
type Manager struct {
	rules map[string]rule
}

// NewManager compiles a FEATURE_FLAGS value. Malformed pairs are skipped
// rather than failing startup; a typo disables one flag, not the server.
func NewManager(raw string) *Manager {
	rules := make(map[string]rule)
	for _, pair := range strings.Split(raw, ",") {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		name = normalize(name)
		compiled, ok := compile(normalize(value))
		if name == "" || !ok {
			continue
		}
		rules[name] = compiled
	}
	return &Manager{rules: rules}
}

func compile(value string) (rule, bool) {
	switch value {
	case "on", "true", "1":
		return rule{kind: ruleOn, raw: value}, true
	case "off", "false", "0":
		return rule{kind: ruleOff, raw: value}, true
	}
	if pctRaw, ok := strings.CutSuffix(value, "%"); ok {
		pct, err := strconv.Atoi(pctRaw)
		if err != nil || pct < 0 || pct > 100 {
			return rule{}, false
		}
		return rule{kind: rulePercent, pct: pct, raw: value}, true
	}
	return rule{}, false
}

// Enabled reports whether the named flag is on for the given user. Unknown
// flags are off. Percentage rules require a real user id; userID 0 (an
// anonymous viewer) never enters a partial rollout.
func (m *Manager) Enabled(name string, userID uint) bool {
	if m == nil {
		return false
	}
	r, ok := m.rules[normalize(name)]
	if !ok {
		return false
	}
	switch r.kind {
	case ruleOn:
		return true
	case rulePercent:
		if r.pct >= 100 {
			return true
		}
		if r.pct <= 0 || userID == 0 {
			return false
		}
		return rolloutBucket(name, userID) < r.pct
	default:
		return false
	}
}

// Raw returns the configured value per flag, as parsed.
func (m *Manager) Raw() map[string]string {
	out := make(map[string]string, len(m.rules))
	for name, r := range m.rules {
		out[name] = r.raw
	}
	return out
}

// Snapshot evaluates every flag for one user. Served by GET /api/features so
// clients toggle their UI off a single fetch.
func (m *Manager) Snapshot(userID uint) map[string]bool {
	out := make(map[string]bool, len(m.rules))
	for name := range m.rules {
		out[name] = m.Enabled(name, userID)
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// rolloutBucket maps a (flag, user) pair onto 0..99. The hash keys on both,
// so widening one rollout never reshuffles who is inside another.
func rolloutBucket(name string, userID uint) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(normalize(name)))
	_, _ = h.Write([]byte(":" + strconv.FormatUint(uint64(userID), 10)))
	return int(h.Sum32() % 100)
}

package ruleset

import "bytes"

// Match describes one rule application, for diagnostic reporting.
type Match struct {
	Rule    Rule
	Expired bool // true if this application exhausted the rule's budget
}

// Apply walks src left to right, replacing the first non-expired matching
// rule at each position and copying every other byte through unchanged.
// live holds the per-connection remaining-application counts, indexed the
// same as rs.Rules, and is mutated in place. Replacement text is never
// rescanned within a call, so every input byte is consumed exactly once
// and Apply always terminates, even when a replacement contains its own
// source pattern.
//
// onMatch, if non-nil, is invoked once per successful substitution in
// buffer order, for callers that want to log "rule applied" / "rule
// expired" diagnostics without coupling the engine to a logger.
func (rs *RuleSet) Apply(src []byte, live []int, onMatch func(Match)) (out []byte, applied int) {
	out = make([]byte, 0, len(src))
	for i := 0; i < len(src); {
		j, ok := rs.firstMatch(src, i, live)
		if !ok {
			out = append(out, src[i])
			i++
			continue
		}

		r := rs.Rules[j]
		out = append(out, r.To...)
		i += len(r.From)
		applied++

		expired := false
		if live[j] > 0 {
			live[j]--
			expired = live[j] == 0
		}
		if onMatch != nil {
			onMatch(Match{Rule: r, Expired: expired})
		}
	}
	return out, applied
}

// firstMatch returns the index of the earliest rule (in RuleSet order,
// not by pattern length) whose From matches src at position i and whose
// live count has not reached zero.
func (rs *RuleSet) firstMatch(src []byte, i int, live []int) (int, bool) {
	for j := range rs.Rules {
		if live[j] == 0 {
			continue
		}
		from := rs.Rules[j].From
		if len(from) > len(src)-i {
			continue
		}
		if bytes.Equal(src[i:i+len(from)], from) {
			return j, true
		}
	}
	return 0, false
}

package rings

// merge collapses candidates sharing at least MergeOverlap of the smaller
// member set. The surviving candidate keeps the higher-risk ring's label
// (pattern precedence breaks risk ties) and the union of members.
func (d *Detector) merge(candidates []candidate) []candidate {
	merged := make([]candidate, 0, len(candidates))

	for _, c := range candidates {
		target := -1
		for i := range merged {
			if overlapRatio(merged[i].members, c.members) >= d.cfg.MergeOverlap {
				target = i
				break
			}
		}
		if target < 0 {
			merged = append(merged, c)
			continue
		}

		merged[target] = mergePair(merged[target], c)
	}
	return merged
}

func mergePair(a, b candidate) candidate {
	winner := a
	if b.risk > a.risk || (b.risk == a.risk && b.pattern.precedence() > a.pattern.precedence()) {
		winner = b
	}

	members := make([]string, 0, len(a.members)+len(b.members))
	seen := make(map[string]bool, len(a.members)+len(b.members))
	for _, list := range [][]string{a.members, b.members} {
		for _, m := range list {
			if !seen[m] {
				seen[m] = true
				members = append(members, m)
			}
		}
	}

	risk := a.risk
	if b.risk > risk {
		risk = b.risk
	}

	return candidate{members: members, pattern: winner.pattern, risk: risk}
}

// overlapRatio is shared membership relative to the smaller ring.
func overlapRatio(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	inA := make(map[string]bool, len(a))
	for _, m := range a {
		inA[m] = true
	}

	shared := 0
	for _, m := range b {
		if inA[m] {
			shared++
		}
	}

	smaller := len(a)
	if len(b) < smaller {
		smaller = len(b)
	}
	return float64(shared) / float64(smaller)
}

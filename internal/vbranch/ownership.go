package vbranch

import "sort"

// normalizeRanges sorts ranges by start and merges any that touch or
// overlap, producing the canonical sorted, non-overlapping form
// OwnershipClaim.Ranges is expected to hold.
func normalizeRanges(ranges []LineRange) []LineRange {
	if len(ranges) == 0 {
		return nil
	}
	sorted := make([]LineRange, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	out := []LineRange{sorted[0]}
	for _, r := range sorted[1:] {
		last := &out[len(out)-1]
		if r.Start <= last.End {
			if r.End > last.End {
				last.End = r.End
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

// subtractRange removes other from each range in ranges, splitting a range
// into two when other falls strictly inside it. Used when a claim is
// transferred away from a branch so no two applied branches end up owning
// the same lines.
func subtractRange(ranges []LineRange, other LineRange) []LineRange {
	var out []LineRange
	for _, r := range ranges {
		if !r.Overlaps(other) {
			out = append(out, r)
			continue
		}
		if r.Start < other.Start {
			out = append(out, LineRange{Start: r.Start, End: other.Start})
		}
		if r.End > other.End {
			out = append(out, LineRange{Start: other.End, End: r.End})
		}
	}
	return out
}

// claimsOverlap reports whether two claim sets on the same path share any
// line range.
func claimsOverlap(a, b OwnershipClaim) bool {
	if a.FilePath != b.FilePath {
		return false
	}
	for _, ra := range a.Ranges {
		for _, rb := range b.Ranges {
			if ra.Overlaps(rb) {
				return true
			}
		}
	}
	return false
}

// OwnershipOverlaps reports whether candidate's claims overlap a claim held
// by a different applied branch. A candidate that is not applied never
// overlaps: only applied branches contribute to the workspace.
func OwnershipOverlaps(branches []Branch, candidate Branch) bool {
	if !candidate.Applied {
		return false
	}
	for _, other := range branches {
		if other.ID == candidate.ID || !other.Applied {
			continue
		}
		for _, oc := range other.Ownership {
			for _, cc := range candidate.Ownership {
				if claimsOverlap(oc, cc) {
					return true
				}
			}
		}
	}
	return false
}

// SubtractClaim removes claim's ranges from every claim in ownership that
// shares its file path, dropping any claim left with zero ranges. It never
// leaves an empty claim entry behind.
func SubtractClaim(ownership []OwnershipClaim, claim OwnershipClaim) []OwnershipClaim {
	out := make([]OwnershipClaim, 0, len(ownership))
	for _, existing := range ownership {
		if existing.FilePath != claim.FilePath {
			out = append(out, existing)
			continue
		}
		remaining := existing.Ranges
		for _, r := range claim.Ranges {
			remaining = subtractRange(remaining, r)
		}
		remaining = normalizeRanges(remaining)
		if len(remaining) > 0 {
			out = append(out, OwnershipClaim{FilePath: existing.FilePath, Ranges: remaining})
		}
	}
	return out
}

// AddClaim merges claim into ownership, combining ranges on a matching
// path and normalizing the result.
func AddClaim(ownership []OwnershipClaim, claim OwnershipClaim) []OwnershipClaim {
	out := make([]OwnershipClaim, 0, len(ownership)+1)
	found := false
	for _, existing := range ownership {
		if existing.FilePath == claim.FilePath {
			merged := append(append([]LineRange{}, existing.Ranges...), claim.Ranges...)
			out = append(out, OwnershipClaim{FilePath: existing.FilePath, Ranges: normalizeRanges(merged)})
			found = true
			continue
		}
		out = append(out, existing)
	}
	if !found {
		out = append(out, OwnershipClaim{FilePath: claim.FilePath, Ranges: normalizeRanges(claim.Ranges)})
	}
	return out
}

package exporter

// Ordinal index allocation. New segments inserted between already-exported
// neighbors get an index that sorts strictly between them, so existing
// filenames never have to be renumbered.

// maxSub returns the largest sub-index expressible at the given digit width.
func maxSub(digits int) int {
	n := 1
	for i := 0; i < digits; i++ {
		n *= 10
	}
	return n - 1
}

// AllocateIndices computes count ordinal indices, in order, for segments
// inserted between prev and next in the timeline. A nil prev is treated as
// (0,0); a nil next as unbounded above. subDigits <= 0 falls back to
// DefaultSubDigits.
//
// Free main-index slots are consumed first, one per insertion. Once the run
// is squeezed between adjacent mains, the remaining insertions subdivide the
// sub-index range with truncating integer division, clamped to 10^d-1.
//
// The exhausted result reports that at least one returned index ties a
// neighbor or a sibling because the sub-index precision ran out. Ties are a
// valid, degraded result: relative order between tied segments is
// unspecified, but no index is ever lost or renumbered.
func AllocateIndices(prev, next *Index, count, subDigits int) (indices []Index, exhausted bool) {
	if count <= 0 {
		return nil, false
	}
	if subDigits <= 0 {
		subDigits = DefaultSubDigits
	}
	max := maxSub(subDigits)

	p := Index{}
	if prev != nil {
		p = *prev
	}

	indices = make([]Index, 0, count)
	for len(indices) < count {
		remaining := count - len(indices)

		// A free main slot exists when the next main is more than one
		// ahead, or exactly one ahead but occupied only above sub 0.
		if next == nil || p.Main+1 < next.Main || (p.Main+1 == next.Main && next.Sub != 0) {
			p = Index{Main: p.Main + 1}
			indices = append(indices, p)
			continue
		}

		// No free main slot: subdivide sub-index space for everything
		// that is left, spread evenly over the open interval.
		base := p.Sub
		ceil := max + 1 // open range (base, 10^d) below an adjacent main
		if p.Main == next.Main {
			ceil = next.Sub // neighbors sharing a main index
		}
		last := base
		for i := 1; i <= remaining; i++ {
			sub := base + (ceil-base)*i/(remaining+1)
			if sub > max {
				sub = max
			}
			if sub <= last {
				// Precision exhausted: accept the tie.
				sub = last
				exhausted = true
			}
			last = sub
			indices = append(indices, Index{Main: p.Main, Sub: sub})
		}
		break
	}
	return indices, exhausted
}

package crawl

// DefaultSignatureDepth is how many anchor IDs make up a page signature.
// Depth 10 with promoted listings excluded is strictly more reliable than
// comparing only the first ID; the cheaper depth-1 variant remains available
// through configuration.
const DefaultSignatureDepth = 10

// Signature is an ordered sample of record-anchor IDs used to detect
// repeated pages. Promoted listings are excluded because the source injects
// them outside normal ordering and they are not stable across reloads.
type Signature []string

// Equal reports whether two signatures carry identical IDs in order.
func (s Signature) Equal(other Signature) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Detector decides, from rendered anchors, whether a result set has ended.
type Detector struct {
	depth int
}

// NewDetector builds a Detector; depth <= 0 selects the default.
func NewDetector(depth int) *Detector {
	if depth <= 0 {
		depth = DefaultSignatureDepth
	}
	return &Detector{depth: depth}
}

// SignatureOf samples up to the configured depth of non-promoted anchor IDs
// in rendered order. When fewer non-promoted anchors exist (a short last
// page, or a page of nothing but promoted listings) it falls back to
// including promoted anchors so a signature is still produced.
func (d *Detector) SignatureOf(anchors []Anchor) Signature {
	sig := make(Signature, 0, d.depth)
	for _, a := range anchors {
		if a.Promoted || a.ID == "" {
			continue
		}
		sig = append(sig, a.ID)
		if len(sig) >= d.depth {
			return sig
		}
	}
	if len(sig) > 0 {
		return sig
	}
	for _, a := range anchors {
		if a.ID == "" {
			continue
		}
		sig = append(sig, a.ID)
		if len(sig) >= d.depth {
			break
		}
	}
	return sig
}

// HasEnded reports termination: an explicit empty-results marker is always
// conclusive; otherwise two consecutive non-empty, identical signatures are.
func (d *Detector) HasEnded(prev, cur Signature, emptyMarker bool) bool {
	if emptyMarker {
		return true
	}
	return len(cur) > 0 && cur.Equal(prev)
}

package jetstream

import "sort"

// Redaction markers. The block run hides the original length of the mention
// or link; the prefix keeps the kind of thing that was there recognizable.
const (
	mentionMarker = "@█████████"
	linkMarker    = "www.█████████"
)

type redaction struct {
	index       ByteSlice
	replacement string
}

// redactable returns the marker for a facet, or nil when the facet carries
// neither a mention nor a link feature.
func redactable(facet Facet) *redaction {
	for _, feat := range facet.Features {
		switch feat.Type {
		case featureMention:
			return &redaction{index: facet.Index, replacement: mentionMarker}
		case featureLink:
			return &redaction{index: facet.Index, replacement: linkMarker}
		}
	}
	return nil
}

// Redact replaces mention and link spans in text with fixed markers. Facet
// offsets are byte offsets into the UTF-8 encoding of text exactly as
// received; they are applied left to right, and of two overlapping facets the
// one with the smaller start offset wins. Out-of-range and inverted ranges
// are dropped. See https://docs.bsky.app/docs/advanced-guides/post-richtext
func Redact(text string, facets []Facet) string {
	if len(facets) == 0 {
		return text
	}

	redactions := make([]redaction, 0, len(facets))
	for _, facet := range facets {
		if r := redactable(facet); r != nil {
			redactions = append(redactions, *r)
		}
	}
	if len(redactions) == 0 {
		return text
	}

	sort.Slice(redactions, func(i, j int) bool {
		return redactions[i].index.ByteStart < redactions[j].index.ByteStart
	})

	source := []byte(text)
	size := int64(len(source))

	var out []byte
	var lastEnd int64
	applied := false

	for _, r := range redactions {
		if r.index.ByteStart < lastEnd {
			continue // overlaps an already-applied redaction
		}
		if r.index.ByteStart >= size {
			break // sorted by start, nothing later can be in range
		}
		if r.index.ByteEnd <= r.index.ByteStart {
			continue
		}
		out = append(out, source[lastEnd:r.index.ByteStart]...)
		out = append(out, r.replacement...)
		lastEnd = r.index.ByteEnd
		applied = true
	}

	if !applied {
		return text
	}
	if lastEnd < size {
		out = append(out, source[lastEnd:]...)
	}
	return string(out)
}

package genome

import (
	"fmt"
	"strconv"
	"strings"
)

// span is one contiguous piece of a feature location, in transcription order.
type span struct {
	start  int64 // 0-based, inclusive
	end    int64 // 0-based, exclusive
	strand int8
}

// parseLocation parses an INSDC feature location such as
// "complement(join(100..200,<300..>400))" into spans ordered 5' to 3'.
func parseLocation(loc string) ([]span, error) {
	loc = strings.ReplaceAll(loc, " ", "")
	if loc == "" {
		return nil, fmt.Errorf("empty location")
	}

	switch {
	case hasCall(loc, "complement"):
		inner, err := parseLocation(callArgs(loc, "complement"))
		if err != nil {
			return nil, err
		}
		out := make([]span, len(inner))
		for i, s := range inner {
			s.strand = -s.strand
			out[len(inner)-1-i] = s
		}
		return out, nil

	case hasCall(loc, "join"), hasCall(loc, "order"):
		name := "join"
		if strings.HasPrefix(loc, "order") {
			name = "order"
		}
		var out []span
		for _, part := range splitTopLevel(callArgs(loc, name)) {
			spans, err := parseLocation(part)
			if err != nil {
				return nil, err
			}
			out = append(out, spans...)
		}
		return out, nil
	}

	if strings.Contains(loc, ":") {
		return nil, fmt.Errorf("remote location %q not supported", loc)
	}
	if strings.Contains(loc, "^") {
		return nil, fmt.Errorf("between-base location %q not supported", loc)
	}

	loc = strings.NewReplacer("<", "", ">", "").Replace(loc)
	first, last, found := strings.Cut(loc, "..")
	if !found {
		last = first
	}
	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse location start %q: %w", first, err)
	}
	end, err := strconv.ParseInt(last, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse location end %q: %w", last, err)
	}
	if start < 1 || end < start {
		return nil, fmt.Errorf("invalid location %q", loc)
	}
	return []span{{start: start - 1, end: end, strand: 1}}, nil
}

func hasCall(loc, name string) bool {
	return strings.HasPrefix(loc, name+"(") && strings.HasSuffix(loc, ")")
}

func callArgs(loc, name string) string {
	return loc[len(name)+1 : len(loc)-1]
}

// splitTopLevel splits on commas that are not nested inside parentheses.
func splitTopLevel(s string) []string {
	var parts []string
	depth, last := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[last:i])
				last = i + 1
			}
		}
	}
	return append(parts, s[last:])
}

// bounds returns the outer coordinates and strand of a location.
func bounds(spans []span) (start, end int64, strand int8) {
	start, end, strand = spans[0].start, spans[0].end, spans[0].strand
	for _, s := range spans[1:] {
		start = min(start, s.start)
		end = max(end, s.end)
	}
	return start, end, strand
}

// extract assembles the coding sequence covered by spans from a scaffold sequence.
func extract(seq string, spans []span) (string, error) {
	var b strings.Builder
	for _, s := range spans {
		if s.end > int64(len(seq)) {
			return "", fmt.Errorf("location %d..%d beyond sequence length %d", s.start+1, s.end, len(seq))
		}
		part := seq[s.start:s.end]
		if s.strand == -1 {
			part = ReverseComplement(part)
		}
		b.WriteString(part)
	}
	return b.String(), nil
}

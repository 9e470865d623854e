package sync

import "regexp"

// Policy names carry their CIS safeguard identifier in a handful of shapes,
// e.g. "CIS - 5.2 Ensure...", "Benchmark: 2.3.1 ..." or a bare leading
// "1.1.2 Ensure...". Some benchmarks only tag the description.
var (
	cisTaggedPattern  = regexp.MustCompile(`(?i)(?:CIS|Benchmark)\s*[-:]?\s*(\d+(?:\.\d+)+)`)
	cisLeadingPattern = regexp.MustCompile(`^(\d+(?:\.\d+)+)\s`)
)

// extractCISControl pulls the CIS safeguard identifier out of a policy name,
// falling back to a tagged match in the description. Returns the empty
// string when neither carries one.
func extractCISControl(name, description string) string {
	if m := cisTaggedPattern.FindStringSubmatch(name); m != nil {
		return m[1]
	}
	if m := cisLeadingPattern.FindStringSubmatch(name); m != nil {
		return m[1]
	}
	if m := cisTaggedPattern.FindStringSubmatch(description); m != nil {
		return m[1]
	}
	return ""
}

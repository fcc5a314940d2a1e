// Package fields holds pure text transforms applied to extracted job
// postings: salary detection and header splitting. Nothing here touches the
// agent or carries failure semantics.
package fields

import (
	"regexp"
	"sort"
	"strings"
)

var salaryPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\$\s?\d{2,3}\s?[kK]\s?(?:-|–|to)\s?\$\s?\d{2,3}\s?[kK]`),
	regexp.MustCompile(`\$\s?\d{4,6}\s?(?:-|–|to)\s?\$\s?\d{4,6}`),
	regexp.MustCompile(`\$\s?\d{4,6}`),
}

// SalaryFromText scans free-form description text for a salary figure.
// Ranges beat single amounts, longer matches beat shorter ones. Returns ""
// when nothing plausible is found.
func SalaryFromText(text string) string {
	if text == "" {
		return ""
	}
	cleaned := strings.ReplaceAll(text, ",", "")

	var hits []string
	for _, pattern := range salaryPatterns {
		for _, m := range pattern.FindAllString(cleaned, -1) {
			m = strings.TrimSpace(m)
			if strings.Contains(m, "$0") {
				continue
			}
			hits = append(hits, m)
		}
	}
	if len(hits) == 0 {
		return ""
	}
	sort.SliceStable(hits, func(i, j int) bool {
		ri, rj := isRange(hits[i]), isRange(hits[j])
		if ri != rj {
			return ri
		}
		return len(hits[i]) > len(hits[j])
	})
	return hits[0]
}

func isRange(s string) bool {
	lower := strings.ToLower(s)
	return strings.Contains(s, "-") || strings.Contains(s, "–") || strings.Contains(lower, "to")
}

// Fragments that indicate the header text captured navigation chrome instead
// of a real location or posted date.
var headerNoise = []string{
	"search by title",
	"try premium",
	"notifications",
}

// SplitLocationPosted splits a detail header of the form
// "Location · 3 days ago · 12 applicants" into location and posted-date
// parts. Either result may be empty when the header is missing or noisy.
func SplitLocationPosted(header string) (location, posted string) {
	header = strings.TrimSpace(header)
	if header == "" || len(header) >= 350 {
		return "", ""
	}
	parts := strings.Split(header, "·")
	trimmed := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			trimmed = append(trimmed, p)
		}
	}
	if len(trimmed) == 0 {
		return "", ""
	}
	location = trimmed[0]
	for _, p := range trimmed[1:] {
		lower := strings.ToLower(p)
		if strings.Contains(lower, "ago") || strings.Contains(lower, "reposted") {
			posted = p
			break
		}
	}
	if noisy(location) || len(location) > 120 {
		location = ""
	}
	if noisy(posted) || len(posted) > 120 {
		posted = ""
	}
	return location, posted
}

func noisy(s string) bool {
	lower := strings.ToLower(s)
	for _, marker := range headerNoise {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

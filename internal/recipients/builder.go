// Package recipients assembles the address list for a newsletter send from
// the comma-separated manual field and an optional newline-delimited file.
//
// Addresses are not validated, deduplicated or filtered; empty entries are
// kept as-is and left for the email service to reject.
package recipients

import "strings"

// Build splits manual on commas, trims each entry and appends fileLines
// after them. The manual entries always come first.
func Build(manual string, fileLines []string) []string {
	parts := strings.Split(manual, ",")
	out := make([]string, 0, len(parts)+len(fileLines))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return append(out, fileLines...)
}

// SplitLines splits fully-read file content on '\n' and trims every line.
// Empty content yields a single empty line.
func SplitLines(data []byte) []string {
	lines := strings.Split(string(data), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return lines
}

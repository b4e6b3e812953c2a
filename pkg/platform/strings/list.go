// Package strings provides string helpers shared by config and request parsing.
package strings

import (
	"strings"
)

// SplitList splits a delimited value into its trimmed, non-empty parts,
// dropping repeats. Order is preserved.
//
//	SplitList(" k1:9092, k2:9092,,k1:9092", ",")
//	// []string{"k1:9092", "k2:9092"}
func SplitList(value, sep string) []string {
	var out []string
	seen := make(map[string]struct{})
	for part := range strings.SplitSeq(value, sep) {
		p := strings.TrimSpace(part)
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

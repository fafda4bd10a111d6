package main

import (
	"fmt"
	"slices"
	"strings"
)

type diffOp struct {
	kind byte // ' ', '-' or '+'
	line string
}

// buildUnifiedDiff diffs two texts line by line.
func buildUnifiedDiff(oldName, newName, oldContent, newContent string) string {
	return buildLineDiff(oldName, newName, strings.Split(oldContent, "\n"), strings.Split(newContent, "\n"))
}

// buildLineDiff renders a single-hunk diff of two line lists. Story forks use
// it directly since their lines never contain newlines.
func buildLineDiff(oldName, newName string, before, after []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "--- %s\n+++ %s\n", oldName, newName)
	if slices.Equal(before, after) {
		b.WriteString("(no differences)\n")
		return b.String()
	}
	fmt.Fprintf(&b, "@@ -1,%d +1,%d @@\n", len(before), len(after))
	for _, op := range lineDiff(before, after) {
		b.WriteByte(op.kind)
		b.WriteString(op.line)
		b.WriteByte('\n')
	}
	return b.String()
}

// lineDiff computes an edit script from the longest common subsequence.
// Removals are emitted before additions at each divergence.
func lineDiff(before, after []string) []diffOp {
	n, m := len(before), len(after)
	// lcs[i][j] is the LCS length of before[i:] and after[j:].
	lcs := make([][]int, n+1)
	for i := range lcs {
		lcs[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if before[i] == after[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
				continue
			}
			lcs[i][j] = max(lcs[i+1][j], lcs[i][j+1])
		}
	}

	ops := make([]diffOp, 0, n+m)
	i, j := 0, 0
	for i < n || j < m {
		switch {
		case i < n && j < m && before[i] == after[j]:
			ops = append(ops, diffOp{kind: ' ', line: before[i]})
			i++
			j++
		case j == m || (i < n && lcs[i+1][j] >= lcs[i][j+1]):
			ops = append(ops, diffOp{kind: '-', line: before[i]})
			i++
		default:
			ops = append(ops, diffOp{kind: '+', line: after[j]})
			j++
		}
	}
	return ops
}

package codelist

import "strings"

// CompareCodes orders codes the way a version sort does: digit runs are
// compared by numeric value and other runs byte-wise, so "2" < "9" < "10".
// Codes equal under that rule fall back to a plain string comparison.
func CompareCodes(a, b string) int {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		ra, na := nextRun(a, i)
		rb, nb := nextRun(b, j)
		i, j = na, nb

		da, db := isDigit(ra[0]), isDigit(rb[0])
		var c int
		if da && db {
			c = compareNumeric(ra, rb)
		} else {
			c = strings.Compare(ra, rb)
		}
		if c != 0 {
			return c
		}
	}
	switch {
	case i < len(a):
		return 1
	case j < len(b):
		return -1
	}
	return strings.Compare(a, b)
}

// nextRun returns the maximal digit or non-digit run starting at i.
func nextRun(s string, i int) (string, int) {
	digit := isDigit(s[i])
	j := i + 1
	for j < len(s) && isDigit(s[j]) == digit {
		j++
	}
	return s[i:j], j
}

func compareNumeric(a, b string) int {
	ta := strings.TrimLeft(a, "0")
	tb := strings.TrimLeft(b, "0")
	if len(ta) != len(tb) {
		if len(ta) < len(tb) {
			return -1
		}
		return 1
	}
	return strings.Compare(ta, tb)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

package cfi

import "strings"

// ComparePaths orders two absolute paths by document order.
// A path that is a strict prefix of another comes first.
func ComparePaths(a, b Path) int {
	for i := 0; i < len(a.Steps) && i < len(b.Steps); i++ {
		if c := compareInt(a.Steps[i].Index, b.Steps[i].Index); c != 0 {
			return c
		}
	}
	if c := compareInt(len(a.Steps), len(b.Steps)); c != 0 {
		return c
	}
	return compareOffsets(a.Offset, b.Offset)
}

func compareOffsets(a, b *Offset) int {
	var ac, bc int
	var at, bt float64
	if a != nil {
		ac, at = a.Char, a.Temporal
	}
	if b != nil {
		bc, bt = b.Char, b.Temporal
	}
	if c := compareInt(ac, bc); c != 0 {
		return c
	}
	switch {
	case at < bt:
		return -1
	case at > bt:
		return 1
	}
	return 0
}

// Compare orders two locations by document order: start points first, then
// end points, then the raw strings, so that distinct locations never compare
// equal.
func Compare(a, b Location) int {
	if c := ComparePaths(a.StartPoint(), b.StartPoint()); c != 0 {
		return c
	}
	if c := ComparePaths(a.EndPoint(), b.EndPoint()); c != 0 {
		return c
	}
	return strings.Compare(a.raw, b.raw)
}

// CompareStrings parses and compares two CFI strings.
func CompareStrings(a, b string) (int, error) {
	la, err := Parse(a)
	if err != nil {
		return 0, err
	}
	lb, err := Parse(b)
	if err != nil {
		return 0, err
	}
	return Compare(la, lb), nil
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

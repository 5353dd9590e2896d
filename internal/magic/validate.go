package magic

// IsMagic reports whether every row, column and both diagonals of sq sum to
// the magic constant. Malformed grids are never magic.
func IsMagic(sq *Square) bool {
	if sq == nil || sq.order < 1 || len(sq.cells) != sq.order*sq.order {
		return false
	}
	n := sq.order
	target := MagicConstant(n)

	diag, anti := 0, 0
	for i := 0; i < n; i++ {
		row, col := 0, 0
		for j := 0; j < n; j++ {
			row += sq.At(i, j)
			col += sq.At(j, i)
		}
		if row != target || col != target {
			return false
		}
		diag += sq.At(i, i)
		anti += sq.At(i, n-1-i)
	}
	return diag == target && anti == target
}

// IsSymmetric reports whether every pair of centrally opposite cells sums to
// N²+1 (an associative magic square).
func IsSymmetric(sq *Square) bool {
	if sq == nil || sq.order < 1 || len(sq.cells) != sq.order*sq.order {
		return false
	}
	total := len(sq.cells)
	want := total + 1
	// Cell i is opposite cell total-1-i, so the first half (and the centre
	// for odd orders) covers every pair.
	for i := 0; i <= (total-1)/2; i++ {
		if sq.cells[i]+sq.cells[total-1-i] != want {
			return false
		}
	}
	return true
}

// IsPermutation reports whether values holds each of 1..len(values) exactly once.
func IsPermutation(values []int) bool {
	seen := make([]bool, len(values)+1)
	for _, v := range values {
		if v < 1 || v > len(values) || seen[v] {
			return false
		}
		seen[v] = true
	}
	return true
}

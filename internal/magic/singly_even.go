package magic

// SinglyEven builds a square of order 4k+2 with the Narayana–De la Hire
// composite method. Other orders are raised to the next order of that form.
//
// The primary grid uses the alphabet 1..N. Row i writes every column pair
// {j, N-1-j} as the symbols {j+1, N-j}, either straight or flipped, so each
// row is a permutation and each column holds its two complementary symbols
// N/2 times each. The main diagonal reads 1..N and the anti-diagonal N..1.
// The secondary grid is the primary turned 90° clockwise with symbol s mapped
// to (s-1)·N, and the square is their cell-wise sum.
func SinglyEven(order int) *Square {
	for order < 6 || order%4 != 2 {
		order++
	}
	n := order

	primary := New(n)
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			if straight(r, min(c, n-1-c), n) {
				primary.Set(r, c, c+1)
			} else {
				primary.Set(r, c, n-c)
			}
		}
	}

	secondary := primary.Clone()
	secondary.rotateCW()

	sq := New(n)
	for i := range sq.cells {
		sq.cells[i] = (secondary.cells[i]-1)*n + primary.cells[i]
	}
	return sq
}

// straight reports whether row writes column pair p in ascending order.
//
// Each pair is straight in exactly N/2 rows: the two diagonal rows p and
// N-1-p, the top row of pair (p+1) mod N/2, and both rows of the (N/2-3)/2
// pairs that follow it. A pair straight in only one of its two rows is never
// matched by the transposed pair, which keeps every (primary, secondary)
// combination distinct.
func straight(row, p, n int) bool {
	half := n / 2
	k := min(row, n-1-row)
	switch {
	case k == p:
		return true
	case k == (p+1)%half:
		return row < half
	default:
		d := mod(k-p, half)
		return d >= 2 && d <= 1+(half-3)/2
	}
}

package magic

// MinOrder is the smallest order for which a magic square exists (order 1 is
// trivial and order 2 has none).
const MinOrder = 3

// Generator selects a construction method by order class.
type Generator struct {
	// SkipSinglyEven grows orders of the form 4k+2 by one until an odd or
	// doubly-even order is reached instead of using the composite method.
	SkipSinglyEven bool
}

// Create builds a magic square of the requested order with the default generator.
func Create(order int) *Square {
	return Generator{}.Create(order)
}

// Create builds a magic square. Orders below MinOrder are raised to MinOrder.
func (g Generator) Create(order int) *Square {
	order = g.Order(order)
	switch {
	case order%2 != 0:
		return Siamese(order)
	case order%4 == 0:
		return DoublyEven(order)
	default:
		return SinglyEven(order)
	}
}

// Order returns the order Create will actually build for a requested order.
func (g Generator) Order(order int) int {
	if order < MinOrder {
		order = MinOrder
	}
	if g.SkipSinglyEven {
		for order%2 == 0 && order%4 != 0 {
			order++
		}
	}
	return order
}

// Siamese builds an odd-order square with the Siamese (de la Loubère) method.
// Even or too small orders are raised to the next odd order ≥ 3.
func Siamese(order int) *Square {
	for order < MinOrder || order%2 == 0 {
		order++
	}
	sq := New(order)
	total := order * order
	row, col := 0, order/2
	for count := 1; count <= total; {
		if sq.At(row, col) == 0 {
			sq.Set(row, col, count)
			count++
			row = mod(row-1, order)
			col = mod(col+1, order)
			continue
		}
		// Back to the last placed cell, then one row down.
		row = mod(row+2, order)
		col = mod(col-1, order)
	}
	return sq
}

// DoublyEven builds a square whose order is a multiple of four. Other orders
// are raised to the next multiple of four.
func DoublyEven(order int) *Square {
	for order < 4 || order%4 != 0 {
		order++
	}
	sq := New(order)
	total := order * order
	for i := range sq.cells {
		if onBlockEdge(i/order, i%order) {
			sq.cells[i] = total - i
		} else {
			sq.cells[i] = i + 1
		}
	}
	return sq
}

// onBlockEdge reports whether (r, c) is one of the two middle cells on a side
// of its 4×4 block.
func onBlockEdge(r, c int) bool {
	br, bc := r%4, c%4
	rowEdge := br == 0 || br == 3
	colEdge := bc == 0 || bc == 3
	return rowEdge != colEdge
}

func mod(a, n int) int {
	a %= n
	if a < 0 {
		a += n
	}
	return a
}

// Package magic builds, validates and scrambles magic squares.
//
// A magic square of order N holds every integer 1..N² exactly once and every
// row, column and both main diagonals sum to the magic constant N·(N²+1)/2.
package magic

import (
	"fmt"
	"strconv"
	"strings"
)

// Square is an owned N×N grid stored row-major with stride N.
type Square struct {
	order int
	cells []int
}

// New returns an empty (zero-filled) square of the given order.
func New(order int) *Square {
	if order < 0 {
		order = 0
	}
	return &Square{order: order, cells: make([]int, order*order)}
}

// FromRows copies rows into a new square. The rows must form a non-empty
// square grid.
func FromRows(rows [][]int) (*Square, error) {
	n := len(rows)
	if n == 0 {
		return nil, fmt.Errorf("square must have at least one row")
	}
	sq := New(n)
	for r, row := range rows {
		if len(row) != n {
			return nil, fmt.Errorf("row %d has %d cells, want %d", r, len(row), n)
		}
		copy(sq.cells[r*n:(r+1)*n], row)
	}
	return sq, nil
}

// MagicConstant returns the common line sum of a magic square of the given order.
func MagicConstant(order int) int {
	return order * (order*order + 1) / 2
}

// Order returns the edge length of the square.
func (s *Square) Order() int {
	if s == nil {
		return 0
	}
	return s.order
}

// At returns the value at row r, column c.
func (s *Square) At(r, c int) int {
	return s.cells[r*s.order+c]
}

// Set stores v at row r, column c.
func (s *Square) Set(r, c, v int) {
	s.cells[r*s.order+c] = v
}

// Clone returns a deep copy that shares no memory with s.
func (s *Square) Clone() *Square {
	if s == nil {
		return nil
	}
	cells := make([]int, len(s.cells))
	copy(cells, s.cells)
	return &Square{order: s.order, cells: cells}
}

// Rows returns a copy of the grid as a slice of rows.
func (s *Square) Rows() [][]int {
	rows := make([][]int, s.order)
	for r := range rows {
		rows[r] = append([]int(nil), s.cells[r*s.order:(r+1)*s.order]...)
	}
	return rows
}

// Flatten returns the row-major layout of the square.
func (s *Square) Flatten() []int {
	return append([]int(nil), s.cells...)
}

// Equal reports whether both squares have the same order and values.
func (s *Square) Equal(other *Square) bool {
	if s == nil || other == nil {
		return s == other
	}
	if s.order != other.order || len(s.cells) != len(other.cells) {
		return false
	}
	for i, v := range s.cells {
		if other.cells[i] != v {
			return false
		}
	}
	return true
}

// String renders the square as right-aligned rows.
func (s *Square) String() string {
	if s == nil || s.order == 0 {
		return ""
	}
	width := len(strconv.Itoa(s.order * s.order))
	var b strings.Builder
	for r := 0; r < s.order; r++ {
		for c := 0; c < s.order; c++ {
			if c > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%*d", width, s.At(r, c))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func (s *Square) swapRows(a, b int) {
	if a == b {
		return
	}
	n := s.order
	for c := 0; c < n; c++ {
		s.cells[a*n+c], s.cells[b*n+c] = s.cells[b*n+c], s.cells[a*n+c]
	}
}

func (s *Square) swapCols(a, b int) {
	if a == b {
		return
	}
	n := s.order
	for r := 0; r < n; r++ {
		s.cells[r*n+a], s.cells[r*n+b] = s.cells[r*n+b], s.cells[r*n+a]
	}
}

// rotateCW turns the grid 90° clockwise in place.
func (s *Square) rotateCW() {
	n := s.order
	out := make([]int, len(s.cells))
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			out[r*n+c] = s.cells[(n-1-c)*n+r]
		}
	}
	s.cells = out
}

// rotateCCW turns the grid 90° counterclockwise in place.
func (s *Square) rotateCCW() {
	n := s.order
	out := make([]int, len(s.cells))
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			out[r*n+c] = s.cells[c*n+(n-1-r)]
		}
	}
	s.cells = out
}

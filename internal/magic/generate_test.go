package magic

import (
	"sort"
	"testing"
)

func assertMagicSquare(t *testing.T, sq *Square, order int) {
	t.Helper()

	if sq.Order() != order {
		t.Fatalf("expected order %d, got %d", order, sq.Order())
	}
	if !IsMagic(sq) {
		t.Fatalf("square of order %d is not magic:\n%s", order, sq)
	}
	values := sq.Flatten()
	sort.Ints(values)
	for i, v := range values {
		if v != i+1 {
			t.Fatalf("square of order %d is not a permutation of 1..%d:\n%s", order, order*order, sq)
		}
	}
}

func TestCreateOrders(t *testing.T) {
	tests := []struct {
		name      string
		order     int
		symmetric bool
	}{
		{"siamese 3", 3, true},
		{"doubly even 4", 4, true},
		{"siamese 5", 5, true},
		{"singly even 6", 6, false},
		{"siamese 7", 7, true},
		{"doubly even 8", 8, true},
		{"siamese 9", 9, true},
		{"singly even 10", 10, false},
		{"doubly even 12", 12, true},
		{"singly even 14", 14, false},
		{"doubly even 16", 16, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sq := Create(tt.order)
			assertMagicSquare(t, sq, tt.order)
			if tt.symmetric && !IsSymmetric(sq) {
				t.Errorf("expected order %d square to be symmetric:\n%s", tt.order, sq)
			}
		})
	}
}

func TestCreateRaisesSmallOrders(t *testing.T) {
	for _, order := range []int{-4, 0, 1, 2} {
		sq := Create(order)
		if sq.Order() != MinOrder {
			t.Errorf("Create(%d): expected order %d, got %d", order, MinOrder, sq.Order())
		}
	}
}

func TestSiameseCanonicalThree(t *testing.T) {
	want, err := FromRows([][]int{
		{8, 1, 6},
		{3, 5, 7},
		{4, 9, 2},
	})
	if err != nil {
		t.Fatalf("FromRows: %v", err)
	}

	got := Create(3)
	if !got.Equal(want) {
		t.Fatalf("unexpected order 3 square:\n%s\nwant:\n%s", got, want)
	}
}

func TestDoublyEvenFour(t *testing.T) {
	want, err := FromRows([][]int{
		{1, 15, 14, 4},
		{12, 6, 7, 9},
		{8, 10, 11, 5},
		{13, 3, 2, 16},
	})
	if err != nil {
		t.Fatalf("FromRows: %v", err)
	}

	got := Create(4)
	if !got.Equal(want) {
		t.Fatalf("unexpected order 4 square:\n%s\nwant:\n%s", got, want)
	}
}

func TestConstructorsRoundOrders(t *testing.T) {
	if got := Siamese(4).Order(); got != 5 {
		t.Errorf("Siamese(4): expected order 5, got %d", got)
	}
	if got := DoublyEven(5).Order(); got != 8 {
		t.Errorf("DoublyEven(5): expected order 8, got %d", got)
	}
	if got := SinglyEven(7).Order(); got != 10 {
		t.Errorf("SinglyEven(7): expected order 10, got %d", got)
	}
	assertMagicSquare(t, SinglyEven(3), 6)
}

func TestGeneratorSkipSinglyEven(t *testing.T) {
	g := Generator{SkipSinglyEven: true}

	tests := []struct {
		requested int
		want      int
	}{
		{2, 3},
		{4, 4},
		{6, 7},
		{10, 11},
		{12, 12},
	}

	for _, tt := range tests {
		if got := g.Order(tt.requested); got != tt.want {
			t.Errorf("Order(%d) = %d, want %d", tt.requested, got, tt.want)
		}
		assertMagicSquare(t, g.Create(tt.requested), tt.want)
	}

	if got := (Generator{}).Order(6); got != 6 {
		t.Errorf("default generator should keep order 6, got %d", got)
	}
}

func TestFromRowsRejectsRaggedGrid(t *testing.T) {
	if _, err := FromRows(nil); err == nil {
		t.Fatal("expected error for empty grid")
	}
	if _, err := FromRows([][]int{{1, 2}, {3}}); err == nil {
		t.Fatal("expected error for ragged grid")
	}
	if _, err := FromRows([][]int{{1, 2, 3}, {4, 5, 6}}); err == nil {
		t.Fatal("expected error for rectangular grid")
	}
}

package magic

import (
	"fmt"
	"sort"
	"sync"
)

// Names of the built-in transform operations.
const (
	OpRotateCW      = "rotate_cw"
	OpRotateCCW     = "rotate_ccw"
	OpSymmetricSwap = "symmetric_swap"
	OpPairedSwap    = "paired_swap"
)

// TransformOp maps a magic square onto another magic square of the same
// order. Apply mutates sq in place; callers hand it a private copy.
type TransformOp interface {
	// Name returns the unique identifier for this operation
	Name() string

	// Description returns a human-readable description
	Description() string

	// Apply transforms sq, drawing any choices from rng
	Apply(sq *Square, rng Rand)
}

// BaseOp provides the identity part of a TransformOp.
type BaseOp struct {
	NameValue        string
	DescriptionValue string
}

func (b *BaseOp) Name() string {
	return b.NameValue
}

func (b *BaseOp) Description() string {
	return b.DescriptionValue
}

var (
	opsRegistry = make(map[string]TransformOp)
	opsMu       sync.RWMutex
)

// RegisterOp adds an operation to the registry.
func RegisterOp(op TransformOp) error {
	if op == nil {
		return fmt.Errorf("cannot register nil operation")
	}

	name := op.Name()
	if name == "" {
		return fmt.Errorf("operation name cannot be empty")
	}

	opsMu.Lock()
	defer opsMu.Unlock()

	if _, exists := opsRegistry[name]; exists {
		return fmt.Errorf("operation %s is already registered", name)
	}

	opsRegistry[name] = op
	return nil
}

// GetOp retrieves an operation by name.
func GetOp(name string) (TransformOp, bool) {
	opsMu.RLock()
	defer opsMu.RUnlock()

	op, exists := opsRegistry[name]
	return op, exists
}

// ListOps returns all registered operations sorted by name.
func ListOps() []TransformOp {
	opsMu.RLock()
	defer opsMu.RUnlock()

	ops := make([]TransformOp, 0, len(opsRegistry))
	for _, op := range opsRegistry {
		ops = append(ops, op)
	}

	sort.Slice(ops, func(i, j int) bool {
		return ops[i].Name() < ops[j].Name()
	})

	return ops
}

// AllowedOps returns the operation names that keep a square of the given
// order magic. Order 3 and orders 4k+2 only admit rotations.
func AllowedOps(order int) []string {
	if order == 3 || order%4 == 2 {
		return []string{OpRotateCW, OpRotateCCW}
	}
	return []string{OpRotateCW, OpRotateCCW, OpSymmetricSwap, OpPairedSwap}
}

// Transform applies amount randomly chosen allowed operations to a copy of
// sq. A negative amount means "order" operations. Squares that are not magic
// are returned unchanged.
func Transform(sq *Square, amount int, rng Rand) *Square {
	if !IsMagic(sq) {
		return sq
	}
	if rng == nil {
		rng = DefaultRand()
	}
	out := sq.Clone()
	if amount < 0 {
		amount = out.order
	}

	allowed := AllowedOps(out.order)
	for i := 0; i < amount; i++ {
		name := allowed[rng.IntN(len(allowed))]
		op, ok := GetOp(name)
		if !ok {
			continue
		}
		op.Apply(out, rng)
	}
	return out
}

// RotateCWOp turns the square 90° clockwise
type RotateCWOp struct {
	BaseOp
}

func (op *RotateCWOp) Apply(sq *Square, _ Rand) {
	sq.rotateCW()
}

// RotateCCWOp turns the square 90° counterclockwise
type RotateCCWOp struct {
	BaseOp
}

func (op *RotateCCWOp) Apply(sq *Square, _ Rand) {
	sq.rotateCCW()
}

// SymmetricSwapOp swaps row i with row N-1-i and column i with column N-1-i.
type SymmetricSwapOp struct {
	BaseOp
}

func (op *SymmetricSwapOp) Apply(sq *Square, rng Rand) {
	SwapSymmetric(sq, rng.IntN(sq.order))
}

// PairedSwapOp swaps two rows and their opposites, and the same columns.
type PairedSwapOp struct {
	BaseOp
}

func (op *PairedSwapOp) Apply(sq *Square, rng Rand) {
	n := sq.order
	if n < 4 {
		return
	}
	if n == 4 || n == 5 {
		SwapPairs(sq, 0, 1)
		return
	}
	jmax := (n - 2) / 2
	i := rng.IntN(min(n/4, jmax-1) + 1)
	j := i + 1 + rng.IntN(jmax-i)
	SwapPairs(sq, i, j)
}

// SwapSymmetric swaps row i with its opposite and column i with its opposite.
func SwapSymmetric(sq *Square, i int) {
	n := sq.order
	sq.swapRows(i, n-1-i)
	sq.swapCols(i, n-1-i)
}

// SwapPairs swaps rows i and j, rows N-1-i and N-1-j, and the same four
// columns. The permutation commutes with the central reflection, so line
// sums and central symmetry survive.
func SwapPairs(sq *Square, i, j int) {
	n := sq.order
	sq.swapRows(i, j)
	sq.swapRows(n-1-i, n-1-j)
	sq.swapCols(i, j)
	sq.swapCols(n-1-i, n-1-j)
}

func init() {
	ops := []TransformOp{
		&RotateCWOp{BaseOp{
			NameValue:        OpRotateCW,
			DescriptionValue: "Rotate the square 90 degrees clockwise",
		}},
		&RotateCCWOp{BaseOp{
			NameValue:        OpRotateCCW,
			DescriptionValue: "Rotate the square 90 degrees counterclockwise",
		}},
		&SymmetricSwapOp{BaseOp{
			NameValue:        OpSymmetricSwap,
			DescriptionValue: "Swap a row and a column with their opposites",
		}},
		&PairedSwapOp{BaseOp{
			NameValue:        OpPairedSwap,
			DescriptionValue: "Swap two rows and two columns together with their opposites",
		}},
	}
	for _, op := range ops {
		if err := RegisterOp(op); err != nil {
			panic(err)
		}
	}
}

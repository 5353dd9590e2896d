package main

import (
	"flag"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/RowanDark/magiccipher/internal/config"
	"github.com/RowanDark/magiccipher/internal/magic"
)

func runSquare(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("square", flag.ContinueOnError)
	fs.SetOutput(stderr)

	order := fs.Int("order", 3, "order of the square")
	transform := fs.Int("transform", 0, "transformation steps; negative uses the square's order")
	seed := fs.Uint64("seed", 0, "seed the random source for reproducible output")
	skipSinglyEven := fs.Bool("skip-singly-even", false, "use the next doubly-even order instead of a singly-even one")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *order < 1 {
		fmt.Fprintln(stderr, "Error: --order must be positive")
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	gen := magic.Generator{SkipSinglyEven: cfg.Generator.SkipSinglyEven}
	if setFlags(fs)["skip-singly-even"] {
		gen.SkipSinglyEven = *skipSinglyEven
	}

	var rng magic.Rand
	if setFlags(fs)["seed"] {
		rng = magic.NewSeededRand(*seed)
	}
	sq := gen.Create(*order)
	if *transform != 0 {
		sq = magic.Transform(sq, *transform, rng)
	}

	fmt.Fprint(stdout, sq.String())
	fmt.Fprintf(stdout, "order: %d  constant: %d  magic: %t  symmetric: %t\n",
		sq.Order(), magic.MagicConstant(sq.Order()), magic.IsMagic(sq), magic.IsSymmetric(sq))
	return 0
}

func runOps(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ops", flag.ContinueOnError)
	fs.SetOutput(stderr)

	order := fs.Int("order", 0, "only list operations allowed for this order")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	allowed := map[string]bool{}
	if *order > 0 {
		for _, name := range magic.AllowedOps(*order) {
			allowed[name] = true
		}
	}

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDESCRIPTION")
	fmt.Fprintln(w, "----\t-----------")
	for _, op := range magic.ListOps() {
		if *order > 0 && !allowed[op.Name()] {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\n", op.Name(), op.Description())
	}
	if err := w.Flush(); err != nil {
		fmt.Fprintf(stderr, "write output: %v\n", err)
		return 1
	}
	return 0
}

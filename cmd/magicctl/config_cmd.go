package main

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/RowanDark/magiccipher/internal/config"
)

func runConfig(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "config subcommand required")
		return 2
	}

	switch args[0] {
	case "print":
		return runConfigPrint(stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown config subcommand: %s\n", args[0])
		return 2
	}
}

func runConfigPrint(stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}

	if err := printResolvedConfig(stdout, cfg); err != nil {
		fmt.Fprintf(stderr, "print config: %v\n", err)
		return 1
	}
	return 0
}

// printResolvedConfig writes cfg in the same YAML layout the config files use.
func printResolvedConfig(out io.Writer, cfg config.Config) error {
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}

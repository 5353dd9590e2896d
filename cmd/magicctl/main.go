package main

import (
	"fmt"
	"io"
	"os"
)

const cliBanner = "magiccipher CLI (magicctl)"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}

	switch args[0] {
	case "encrypt":
		return runEncrypt(args[1:], stdout, stderr)
	case "decrypt":
		return runDecrypt(args[1:], stdout, stderr)
	case "square":
		return runSquare(args[1:], stdout, stderr)
	case "ops":
		return runOps(args[1:], stdout, stderr)
	case "keys":
		return runKeys(args[1:], stdout, stderr)
	case "config":
		return runConfig(args[1:], stdout, stderr)
	case "serve":
		return runServe(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		usage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", args[0])
		usage(stderr)
		return 2
	}
}

func usage(out io.Writer) {
	fmt.Fprintln(out, cliBanner)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Usage: magicctl <command> [options]")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  encrypt     Encrypt text and print the key and ciphertext")
	fmt.Fprintln(out, "  decrypt     Decrypt a ciphertext with a key, envelope file or stored id")
	fmt.Fprintln(out, "  square      Print a (possibly scrambled) magic square")
	fmt.Fprintln(out, "  ops         List the square transformation operations")
	fmt.Fprintln(out, "  keys        Manage the key store (list, show, delete, export, import)")
	fmt.Fprintln(out, "  config      Print the resolved configuration")
	fmt.Fprintln(out, "  serve       Run the gRPC service")
}

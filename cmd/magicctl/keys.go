package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/RowanDark/magiccipher/internal/config"
	"github.com/RowanDark/magiccipher/internal/keycodec"
	"github.com/RowanDark/magiccipher/internal/keystore"
	"github.com/RowanDark/magiccipher/internal/logging"
)

func runKeys(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "Usage: magicctl keys <command> [options]")
		fmt.Fprintln(stderr, "")
		fmt.Fprintln(stderr, "Commands:")
		fmt.Fprintln(stderr, "  list        List stored envelopes")
		fmt.Fprintln(stderr, "  show        Print one envelope as JSON")
		fmt.Fprintln(stderr, "  delete      Delete an envelope")
		fmt.Fprintln(stderr, "  export      Write all envelopes to a compressed file")
		fmt.Fprintln(stderr, "  import      Load envelopes from an export file")
		return 2
	}

	subcmd := args[0]
	subargs := args[1:]

	switch subcmd {
	case "list":
		return runKeysList(subargs, stdout, stderr)
	case "show":
		return runKeysShow(subargs, stdout, stderr)
	case "delete":
		return runKeysDelete(subargs, stdout, stderr)
	case "export":
		return runKeysExport(subargs, stdout, stderr)
	case "import":
		return runKeysImport(subargs, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown keys command: %s\n", subcmd)
		return 2
	}
}

// keysCommand parses the shared -db flag and opens the store. A nil FlagSet
// means the command already failed with the returned exit code; otherwise the
// caller closes the store.
func keysCommand(name string, args []string, stderr io.Writer, register func(*flag.FlagSet)) (*flag.FlagSet, *keystore.Store, config.Config, int) {
	fs := flag.NewFlagSet("keys "+name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("db", "", "key store path (overrides keystore_path)")
	if register != nil {
		register(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, nil, config.Config{}, 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return nil, nil, config.Config{}, 1
	}
	store, err := openStore(*dbPath, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "open key store: %v\n", err)
		return nil, nil, config.Config{}, 1
	}
	return fs, store, cfg, 0
}

func runKeysList(args []string, stdout, stderr io.Writer) int {
	var limit int
	fs, store, _, code := keysCommand("list", args, stderr, func(fs *flag.FlagSet) {
		fs.IntVar(&limit, "limit", 0, "maximum number of envelopes to list (0 = all)")
	})
	if fs == nil {
		return code
	}
	defer store.Close()

	envelopes, err := store.List(context.Background(), limit)
	if err != nil {
		fmt.Fprintf(stderr, "list envelopes: %v\n", err)
		return 1
	}
	if len(envelopes) == 0 {
		fmt.Fprintln(stdout, "No envelopes stored.")
		return 0
	}

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODE\tENCODING\tLENGTH\tKEY FINGERPRINT\tCREATED")
	fmt.Fprintln(w, "--\t----\t--------\t------\t---------------\t-------")
	for _, env := range envelopes {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			env.ID,
			env.Mode,
			env.Encoding,
			len([]rune(env.Ciphertext)),
			keycodec.Fingerprint(env.Key),
			env.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	if err := w.Flush(); err != nil {
		fmt.Fprintf(stderr, "write output: %v\n", err)
		return 1
	}
	return 0
}

func runKeysShow(args []string, stdout, stderr io.Writer) int {
	fs, store, _, code := keysCommand("show", args, stderr, nil)
	if fs == nil {
		return code
	}
	defer store.Close()

	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "Error: envelope id is required")
		return 2
	}
	env, err := store.Get(context.Background(), fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "load envelope: %v\n", err)
		if errors.Is(err, keystore.ErrNotFound) {
			return 2
		}
		return 1
	}
	data, err := env.MarshalIndent()
	if err != nil {
		fmt.Fprintf(stderr, "encode envelope: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, string(data))
	return 0
}

func runKeysDelete(args []string, stdout, stderr io.Writer) int {
	fs, store, cfg, code := keysCommand("delete", args, stderr, nil)
	if fs == nil {
		return code
	}
	defer store.Close()

	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "Error: envelope id is required")
		return 2
	}
	id := fs.Arg(0)
	if err := store.Delete(context.Background(), id); err != nil {
		fmt.Fprintf(stderr, "delete envelope: %v\n", err)
		if errors.Is(err, keystore.ErrNotFound) {
			return 2
		}
		return 1
	}

	audit, err := newAuditLogger(cfg, "magicctl")
	if err != nil {
		fmt.Fprintf(stderr, "open audit log: %v\n", err)
		return 1
	}
	defer audit.Close()
	emitAudit(audit, stderr, logging.KeyDeleted(id))

	fmt.Fprintf(stdout, "deleted %s\n", id)
	return 0
}

func runKeysExport(args []string, stdout, stderr io.Writer) int {
	var out string
	fs, store, _, code := keysCommand("export", args, stderr, func(fs *flag.FlagSet) {
		fs.StringVar(&out, "o", "", "output file (required)")
	})
	if fs == nil {
		return code
	}
	defer store.Close()

	if out == "" {
		fmt.Fprintln(stderr, "Error: -o is required")
		return 2
	}
	f, err := os.OpenFile(out, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		fmt.Fprintf(stderr, "create export: %v\n", err)
		return 1
	}
	n, err := store.Export(context.Background(), f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		fmt.Fprintf(stderr, "export: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "exported %d envelopes to %s\n", n, out)
	return 0
}

func runKeysImport(args []string, stdout, stderr io.Writer) int {
	fs, store, _, code := keysCommand("import", args, stderr, nil)
	if fs == nil {
		return code
	}
	defer store.Close()

	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "Error: export file is required")
		return 2
	}
	f, err := os.Open(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "open export: %v\n", err)
		return 1
	}
	defer f.Close()

	stats, err := store.Import(context.Background(), f)
	if err != nil {
		fmt.Fprintf(stderr, "import: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "imported %d envelopes, skipped %d existing\n", stats.Imported, stats.Skipped)
	return 0
}

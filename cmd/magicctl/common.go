package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/RowanDark/magiccipher/internal/config"
	"github.com/RowanDark/magiccipher/internal/keystore"
	"github.com/RowanDark/magiccipher/internal/logging"
)

// cipherFlags are the engine settings every cipher command accepts. Unset
// flags keep the configured value.
type cipherFlags struct {
	mode      string
	encoding  string
	transform int
	filler    string
	delimiter string
}

func (f *cipherFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.mode, "mode", "", "cipher mode (basic, enhanced)")
	fs.StringVar(&f.encoding, "encoding", "", "key encoding (decimal, binary)")
	fs.IntVar(&f.transform, "transform", 0, "transformation steps; negative uses the square's order")
	fs.StringVar(&f.filler, "filler", "", "filler character")
	fs.StringVar(&f.delimiter, "delimiter", "", "key delimiter")
}

// apply copies explicitly set flags onto cfg and revalidates it.
func (f *cipherFlags) apply(fs *flag.FlagSet, cfg *config.Config) error {
	set := setFlags(fs)
	if set["mode"] {
		cfg.Cipher.Mode = f.mode
		if !set["encoding"] {
			// Let the engine pick the mode's encoding.
			cfg.Cipher.Encoding = ""
		}
	}
	if set["encoding"] {
		cfg.Cipher.Encoding = f.encoding
	}
	if set["transform"] {
		cfg.Cipher.Transformations = f.transform
	}
	if set["filler"] {
		cfg.Cipher.Filler = f.filler
	}
	if set["delimiter"] {
		cfg.Cipher.Delimiter = f.delimiter
	}
	return cfg.Validate()
}

func setFlags(fs *flag.FlagSet) map[string]bool {
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	return set
}

func openStore(flagPath string, cfg config.Config) (*keystore.Store, error) {
	path := strings.TrimSpace(flagPath)
	if path == "" {
		path = cfg.KeystorePath
	}
	if path == "" {
		return nil, errors.New("no key store configured (use -db or keystore_path)")
	}
	return keystore.Open(path, nil)
}

// newAuditLogger writes to the configured audit file only; the CLI keeps
// stdout for command output. It returns nil when no audit log is configured.
func newAuditLogger(cfg config.Config, component string) (*logging.AuditLogger, error) {
	if strings.TrimSpace(cfg.AuditLog) == "" {
		return nil, nil
	}
	return logging.NewAuditLogger(component, logging.WithoutStdout(), logging.WithFile(cfg.AuditLog))
}

func emitAudit(logger *logging.AuditLogger, stderr io.Writer, event logging.AuditEvent) {
	if logger == nil {
		return
	}
	if err := logger.Emit(event); err != nil {
		fmt.Fprintf(stderr, "audit log error: %v\n", err)
	}
}

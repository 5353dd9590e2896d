package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/RowanDark/magiccipher/internal/cipher"
	"github.com/RowanDark/magiccipher/internal/config"
	"github.com/RowanDark/magiccipher/internal/keycodec"
	"github.com/RowanDark/magiccipher/internal/keystore"
	"github.com/RowanDark/magiccipher/internal/logging"
	"github.com/RowanDark/magiccipher/internal/magic"
)

func runEncrypt(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("encrypt", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var cf cipherFlags
	cf.register(fs)
	store := fs.Bool("store", false, "save the result in the key store")
	dbPath := fs.String("db", "", "key store path (overrides keystore_path)")
	asJSON := fs.Bool("json", false, "print the result as a JSON envelope")
	seed := fs.Uint64("seed", 0, "seed the random source for reproducible keys")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	text := strings.Join(fs.Args(), " ")
	if text == "" {
		fmt.Fprintln(stderr, "Error: text to encrypt is required")
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	if err := cf.apply(fs, &cfg); err != nil {
		fmt.Fprintf(stderr, "invalid options: %v\n", err)
		return 2
	}

	var rng magic.Rand
	if setFlags(fs)["seed"] {
		rng = magic.NewSeededRand(*seed)
	}
	opts, err := cfg.EngineOptions(rng)
	if err != nil {
		fmt.Fprintf(stderr, "invalid options: %v\n", err)
		return 2
	}
	engine, err := cipher.NewEngine(opts)
	if err != nil {
		fmt.Fprintf(stderr, "invalid options: %v\n", err)
		return 2
	}

	res, err := engine.Encrypt(text)
	if err != nil {
		fmt.Fprintf(stderr, "encrypt: %v\n", err)
		return 1
	}
	env := keystore.NewEnvelope(res, engine.Options())

	if *store {
		ks, err := openStore(*dbPath, cfg)
		if err != nil {
			fmt.Fprintf(stderr, "open key store: %v\n", err)
			return 1
		}
		defer ks.Close()
		if err := ks.Save(context.Background(), &env); err != nil {
			fmt.Fprintf(stderr, "store envelope: %v\n", err)
			return 1
		}
	}

	audit, err := newAuditLogger(cfg, "magicctl")
	if err != nil {
		fmt.Fprintf(stderr, "open audit log: %v\n", err)
		return 1
	}
	defer audit.Close()
	emitAudit(audit, stderr, logging.KeyIssued(logging.KeyInfo{
		Fingerprint: keycodec.Fingerprint(res.Key),
		Mode:        string(env.Mode),
		Encoding:    string(env.Encoding),
		Order:       res.Order,
		EnvelopeID:  env.ID,
	}))

	if *asJSON {
		data, err := env.MarshalIndent()
		if err != nil {
			fmt.Fprintf(stderr, "encode envelope: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, string(data))
		return 0
	}

	if env.ID != "" {
		fmt.Fprintf(stdout, "id: %s\n", env.ID)
	}
	fmt.Fprintf(stdout, "key: %s\n", res.Key)
	fmt.Fprintf(stdout, "ciphertext: %s\n", res.Ciphertext)
	if res.Filler != opts.Filler {
		fmt.Fprintf(stdout, "filler: %s\n", string(res.Filler))
	}
	return 0
}

func runDecrypt(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("decrypt", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var cf cipherFlags
	cf.register(fs)
	key := fs.String("key", "", "key printed by encrypt")
	envelopePath := fs.String("envelope", "", "JSON envelope written by encrypt -json")
	id := fs.String("id", "", "envelope id in the key store")
	dbPath := fs.String("db", "", "key store path (overrides keystore_path)")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	sources := 0
	for _, v := range []string{*key, *envelopePath, *id} {
		if v != "" {
			sources++
		}
	}
	if sources != 1 {
		fmt.Fprintln(stderr, "Error: exactly one of -key, -envelope or -id is required")
		return 2
	}
	ciphertext := strings.Join(fs.Args(), " ")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}

	var env keystore.Envelope
	switch {
	case *id != "":
		ks, err := openStore(*dbPath, cfg)
		if err != nil {
			fmt.Fprintf(stderr, "open key store: %v\n", err)
			return 1
		}
		defer ks.Close()
		stored, err := ks.Get(context.Background(), *id)
		if err != nil {
			fmt.Fprintf(stderr, "load envelope: %v\n", err)
			if errors.Is(err, keystore.ErrNotFound) {
				return 2
			}
			return 1
		}
		env = *stored
	case *envelopePath != "":
		env, err = readEnvelopeFile(*envelopePath)
		if err != nil {
			fmt.Fprintf(stderr, "read envelope: %v\n", err)
			return 1
		}
	default:
		env, err = envelopeForKey(fs, &cf, cfg, *key)
		if err != nil {
			fmt.Fprintf(stderr, "invalid options: %v\n", err)
			return 2
		}
	}
	if ciphertext != "" {
		env.Ciphertext = ciphertext
	}
	if env.Ciphertext == "" {
		fmt.Fprintln(stderr, "Error: ciphertext is required")
		return 2
	}

	audit, err := newAuditLogger(cfg, "magicctl")
	if err != nil {
		fmt.Fprintf(stderr, "open audit log: %v\n", err)
		return 1
	}
	defer audit.Close()

	keyInfo := logging.KeyInfo{
		Fingerprint: keycodec.Fingerprint(env.Key),
		Mode:        string(env.Mode),
		EnvelopeID:  env.ID,
	}
	plain, err := env.Open()
	if err != nil {
		emitAudit(audit, stderr, logging.Decrypted(keyInfo, cipher.RejectionReason(err)))
		fmt.Fprintf(stderr, "decrypt: %v\n", err)
		return 1
	}
	emitAudit(audit, stderr, logging.Decrypted(keyInfo, ""))
	fmt.Fprintln(stdout, plain)
	return 0
}

// envelopeForKey builds an envelope from a bare key. Mode and encoding come
// from flags when given, otherwise from the key's structure.
func envelopeForKey(fs *flag.FlagSet, cf *cipherFlags, cfg config.Config, key string) (keystore.Envelope, error) {
	if err := cf.apply(fs, &cfg); err != nil {
		return keystore.Envelope{}, err
	}
	set := setFlags(fs)
	if !set["mode"] && !set["encoding"] {
		detected, err := cipher.DetectKey(key, cfg.Cipher.Delimiter)
		if err != nil {
			return keystore.Envelope{}, err
		}
		if len(detected) == 0 {
			return keystore.Envelope{}, fmt.Errorf("cannot tell how key %q was encoded; pass -mode and -encoding", keycodec.Fingerprint(key))
		}
		cfg.Cipher.Mode = string(detected[0].Mode)
		cfg.Cipher.Encoding = string(detected[0].Encoding)
	}
	opts, err := cfg.EngineOptions(nil)
	if err != nil {
		return keystore.Envelope{}, err
	}
	engine, err := cipher.NewEngine(opts)
	if err != nil {
		return keystore.Envelope{}, err
	}
	resolved := engine.Options()
	return keystore.Envelope{
		Mode:      resolved.Mode,
		Encoding:  resolved.Encoding,
		Delimiter: resolved.Delimiter,
		Filler:    string(resolved.Filler),
		Key:       key,
	}, nil
}

// readEnvelopeFile extracts the decryption fields from an exported envelope.
// Unknown fields are ignored and missing settings take their defaults.
func readEnvelopeFile(path string) (keystore.Envelope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return keystore.Envelope{}, err
	}
	if !gjson.ValidBytes(data) {
		return keystore.Envelope{}, fmt.Errorf("%s is not valid JSON", path)
	}

	fields := gjson.GetManyBytes(data, "id", "mode", "encoding", "delimiter", "filler", "key", "ciphertext")
	env := keystore.Envelope{
		ID:         fields[0].String(),
		Mode:       cipher.Mode(fields[1].String()),
		Encoding:   keycodec.Encoding(fields[2].String()),
		Delimiter:  fields[3].String(),
		Filler:     fields[4].String(),
		Key:        fields[5].String(),
		Ciphertext: fields[6].String(),
	}
	if env.Key == "" {
		return keystore.Envelope{}, fmt.Errorf("%s has no key field", path)
	}
	if env.Mode == "" {
		env.Mode = cipher.ModeBasic
	}
	if env.Encoding == "" {
		env.Encoding = keycodec.EncodingDecimal
		if env.Mode == cipher.ModeEnhanced {
			env.Encoding = keycodec.EncodingBinary
		}
	}
	if env.Delimiter == "" {
		env.Delimiter = keycodec.DefaultDelimiter
	}
	if env.Filler == "" {
		env.Filler = string(cipher.DefaultFiller)
	}
	return env, nil
}

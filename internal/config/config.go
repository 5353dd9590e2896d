package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/RowanDark/magiccipher/internal/cipher"
	"github.com/RowanDark/magiccipher/internal/keycodec"
	"github.com/RowanDark/magiccipher/internal/magic"
)

const (
	envPrefix     = "MAGICCIPHER_"
	localFileName = "magiccipher.yml"
	homeDirName   = ".magiccipher"
	homeFileName  = "config.yml"
)

// Config captures the magiccipher configuration resolved from defaults,
// optional files, and environment overrides.
type Config struct {
	Cipher       CipherConfig    `yaml:"cipher"`
	Generator    GeneratorConfig `yaml:"generator"`
	KeystorePath string          `yaml:"keystore_path"`
	AuditLog     string          `yaml:"audit_log"`
	RPC          RPCConfig       `yaml:"rpc"`
}

// CipherConfig controls how keys and ciphertexts are produced.
type CipherConfig struct {
	Mode            string `yaml:"mode"`
	Encoding        string `yaml:"encoding"`
	Transformations int    `yaml:"transformations"`
	Filler          string `yaml:"filler"`
	Delimiter       string `yaml:"delimiter"`
}

// GeneratorConfig controls magic square construction.
type GeneratorConfig struct {
	SkipSinglyEven bool `yaml:"skip_singly_even"`
}

// RPCConfig controls the gRPC service started by magicctl serve. Metrics are
// served over HTTP only when MetricsAddr is set.
type RPCConfig struct {
	Addr        string `yaml:"addr"`
	MaxConns    int    `yaml:"max_conns"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Cipher: CipherConfig{
			Mode:            string(cipher.ModeBasic),
			Encoding:        "",
			Transformations: 0,
			Filler:          string(cipher.DefaultFiller),
			Delimiter:       keycodec.DefaultDelimiter,
		},
		Generator: GeneratorConfig{
			SkipSinglyEven: false,
		},
		KeystorePath: "",
		AuditLog:     "",
		RPC: RPCConfig{
			Addr:     "127.0.0.1:50061",
			MaxConns: 64,
		},
	}
}

// Load resolves the configuration using defaults, configuration files, and
// environment overrides. The lookup order for configuration files is:
//  1. ~/.magiccipher/config.yml
//  2. ./magiccipher.yml
//
// Environment variables prefixed with MAGICCIPHER_ have the highest precedence.
func Load() (Config, error) {
	cfg := Default()

	if err := loadHomeConfig(&cfg); err != nil {
		return Config{}, err
	}
	if err := loadLocalConfig(&cfg); err != nil {
		return Config{}, err
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// ApplyFile merges the YAML file at path into cfg. Missing keys keep their
// current values.
func ApplyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := applyFileConfig(cfg, data); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func loadHomeConfig(cfg *Config) error {
	home, err := os.UserHomeDir()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("determine home directory: %w", err)
	}
	return loadOptional(cfg, filepath.Join(home, homeDirName, homeFileName))
}

func loadLocalConfig(cfg *Config) error {
	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determine working directory: %w", err)
	}
	return loadOptional(cfg, filepath.Join(wd, localFileName))
}

func loadOptional(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := applyFileConfig(cfg, data); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

type fileConfig struct {
	Cipher       *fileCipherConfig    `yaml:"cipher"`
	Generator    *fileGeneratorConfig `yaml:"generator"`
	KeystorePath *string              `yaml:"keystore_path"`
	AuditLog     *string              `yaml:"audit_log"`
	RPC          *fileRPCConfig       `yaml:"rpc"`
}

type fileCipherConfig struct {
	Mode            *string `yaml:"mode"`
	Encoding        *string `yaml:"encoding"`
	Transformations *int    `yaml:"transformations"`
	Filler          *string `yaml:"filler"`
	Delimiter       *string `yaml:"delimiter"`
}

type fileGeneratorConfig struct {
	SkipSinglyEven *bool `yaml:"skip_singly_even"`
}

type fileRPCConfig struct {
	Addr        *string `yaml:"addr"`
	MaxConns    *int    `yaml:"max_conns"`
	MetricsAddr *string `yaml:"metrics_addr"`
}

func applyFileConfig(cfg *Config, data []byte) error {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return err
	}

	if fc.Cipher != nil {
		if fc.Cipher.Mode != nil {
			cfg.Cipher.Mode = strings.TrimSpace(*fc.Cipher.Mode)
		}
		if fc.Cipher.Encoding != nil {
			cfg.Cipher.Encoding = strings.TrimSpace(*fc.Cipher.Encoding)
		}
		if fc.Cipher.Transformations != nil {
			cfg.Cipher.Transformations = *fc.Cipher.Transformations
		}
		if fc.Cipher.Filler != nil {
			cfg.Cipher.Filler = *fc.Cipher.Filler
		}
		if fc.Cipher.Delimiter != nil {
			cfg.Cipher.Delimiter = *fc.Cipher.Delimiter
		}
	}
	if fc.Generator != nil && fc.Generator.SkipSinglyEven != nil {
		cfg.Generator.SkipSinglyEven = *fc.Generator.SkipSinglyEven
	}
	if fc.KeystorePath != nil {
		cfg.KeystorePath = strings.TrimSpace(*fc.KeystorePath)
	}
	if fc.AuditLog != nil {
		cfg.AuditLog = strings.TrimSpace(*fc.AuditLog)
	}
	if fc.RPC != nil {
		if fc.RPC.Addr != nil {
			cfg.RPC.Addr = strings.TrimSpace(*fc.RPC.Addr)
		}
		if fc.RPC.MaxConns != nil {
			cfg.RPC.MaxConns = *fc.RPC.MaxConns
		}
		if fc.RPC.MetricsAddr != nil {
			cfg.RPC.MetricsAddr = strings.TrimSpace(*fc.RPC.MetricsAddr)
		}
	}

	return nil
}

func applyEnvOverrides(cfg *Config) error {
	if val, ok := lookupEnv("MODE"); ok {
		cfg.Cipher.Mode = val
	}
	if val, ok := lookupEnv("ENCODING"); ok {
		cfg.Cipher.Encoding = val
	}
	if val, ok := lookupEnv("TRANSFORMATIONS"); ok {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%sTRANSFORMATIONS: %w", envPrefix, err)
		}
		cfg.Cipher.Transformations = parsed
	}
	// Filler and delimiter may legitimately be whitespace, so they are not trimmed.
	if val, ok := os.LookupEnv(envPrefix + "FILLER"); ok && val != "" {
		cfg.Cipher.Filler = val
	}
	if val, ok := os.LookupEnv(envPrefix + "DELIMITER"); ok && val != "" {
		cfg.Cipher.Delimiter = val
	}
	if val, ok := lookupEnv("SKIP_SINGLY_EVEN"); ok {
		parsed, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("%sSKIP_SINGLY_EVEN: %w", envPrefix, err)
		}
		cfg.Generator.SkipSinglyEven = parsed
	}
	if val, ok := lookupEnv("KEYSTORE"); ok {
		cfg.KeystorePath = val
	}
	if val, ok := lookupEnv("AUDIT_LOG"); ok {
		cfg.AuditLog = val
	}
	if val, ok := lookupEnv("RPC_ADDR"); ok {
		cfg.RPC.Addr = val
	}
	if val, ok := lookupEnv("RPC_MAX_CONNS"); ok {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%sRPC_MAX_CONNS: %w", envPrefix, err)
		}
		cfg.RPC.MaxConns = parsed
	}
	if val, ok := lookupEnv("RPC_METRICS_ADDR"); ok {
		cfg.RPC.MetricsAddr = val
	}
	return nil
}

func lookupEnv(name string) (string, bool) {
	val := strings.TrimSpace(os.Getenv(envPrefix + name))
	return val, val != ""
}

// Validate reports settings the cipher engine would reject.
func (c Config) Validate() error {
	if _, err := c.EngineOptions(nil); err != nil {
		return err
	}
	if c.RPC.MaxConns < 0 {
		return fmt.Errorf("rpc.max_conns must not be negative")
	}
	return nil
}

// EngineOptions converts the cipher settings into engine options. rng may be
// nil to use the default source.
func (c Config) EngineOptions(rng magic.Rand) (cipher.Options, error) {
	mode, err := cipher.ParseMode(c.Cipher.Mode)
	if err != nil {
		return cipher.Options{}, err
	}

	var enc keycodec.Encoding
	if strings.TrimSpace(c.Cipher.Encoding) != "" {
		enc, err = keycodec.ParseEncoding(c.Cipher.Encoding)
		if err != nil {
			return cipher.Options{}, err
		}
	}

	filler, err := parseFiller(c.Cipher.Filler)
	if err != nil {
		return cipher.Options{}, err
	}

	if err := validateDelimiter(c.Cipher.Delimiter); err != nil {
		return cipher.Options{}, err
	}

	return cipher.Options{
		Mode:            mode,
		Encoding:        enc,
		Transformations: c.Cipher.Transformations,
		Filler:          filler,
		Delimiter:       c.Cipher.Delimiter,
		Generator:       magic.Generator{SkipSinglyEven: c.Generator.SkipSinglyEven},
		Rand:            rng,
	}, nil
}

// ParseFiller returns the single rune in s.
func ParseFiller(s string) (rune, error) {
	return parseFiller(s)
}

func parseFiller(s string) (rune, error) {
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("filler must be exactly one character, got %q", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return 0, fmt.Errorf("filler %q is not valid UTF-8", s)
	}
	return r, nil
}

func validateDelimiter(d string) error {
	if d == "" {
		return fmt.Errorf("delimiter cannot be empty")
	}
	// A delimiter made of digits would be indistinguishable from key values.
	if strings.Trim(d, "0123456789") == "" {
		return fmt.Errorf("delimiter %q cannot consist of digits", d)
	}
	return nil
}

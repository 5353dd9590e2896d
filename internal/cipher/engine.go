package cipher

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/RowanDark/magiccipher/internal/keycodec"
	"github.com/RowanDark/magiccipher/internal/magic"
)

// Mode selects the cipher variant.
type Mode string

const (
	// ModeBasic permutes characters only.
	ModeBasic Mode = "basic"
	// ModeEnhanced also XORs every character with a random offset stored in the key.
	ModeEnhanced Mode = "enhanced"
)

// DefaultFiller marks layout slots that carry no plaintext character.
const DefaultFiller = '_'

// offsetLimit keeps XORed code points inside the same 128-aligned block, so
// ASCII stays ASCII and valid runes stay valid.
const offsetLimit = 128

var (
	// ErrEmptyText is returned when there is nothing to encrypt.
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrFillerMismatch means the filler slots of an enhanced ciphertext are
	// not the tail of its layout, usually because it was decrypted with a
	// filler other than Result.Filler.
	ErrFillerMismatch = errors.New("filler does not match ciphertext")
)

// ParseMode validates a mode name.
func ParseMode(name string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(name))) {
	case ModeBasic:
		return ModeBasic, nil
	case ModeEnhanced:
		return ModeEnhanced, nil
	default:
		return "", fmt.Errorf("unknown cipher mode %q", name)
	}
}

// Options configures an Engine.
type Options struct {
	Mode Mode
	// Encoding of the key. Empty selects decimal for basic and binary for
	// enhanced; enhanced keys are always binary.
	Encoding keycodec.Encoding
	// Transformations applied to the generated square; negative means the
	// square's order.
	Transformations int
	Filler          rune
	Delimiter       string
	Generator       magic.Generator
	Rand            magic.Rand
}

// DefaultOptions returns the basic, untransformed configuration.
func DefaultOptions() Options {
	return Options{
		Mode:      ModeBasic,
		Filler:    DefaultFiller,
		Delimiter: keycodec.DefaultDelimiter,
	}
}

// Result is the outcome of one encryption.
type Result struct {
	Key        string
	Ciphertext string
	// Filler is the placeholder actually written; enhanced mode may move it
	// off the requested one. Decrypt needs this value.
	Filler rune
	Order  int
	Layout []int
	Offset uint32
}

// Engine encrypts and decrypts text with magic-square layouts.
type Engine struct {
	opts  Options
	codec keycodec.Codec
}

// NewEngine validates opts and returns an engine.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Mode == "" {
		opts.Mode = ModeBasic
	}
	if _, err := ParseMode(string(opts.Mode)); err != nil {
		return nil, err
	}
	if opts.Filler == 0 {
		opts.Filler = DefaultFiller
	}
	if !utf8.ValidRune(opts.Filler) {
		return nil, fmt.Errorf("invalid filler %U", opts.Filler)
	}
	if opts.Delimiter == "" {
		opts.Delimiter = keycodec.DefaultDelimiter
	}

	switch {
	case opts.Encoding == "" && opts.Mode == ModeEnhanced:
		opts.Encoding = keycodec.EncodingBinary
	case opts.Encoding == "":
		opts.Encoding = keycodec.EncodingDecimal
	default:
		enc, err := keycodec.ParseEncoding(string(opts.Encoding))
		if err != nil {
			return nil, err
		}
		opts.Encoding = enc
	}
	if opts.Mode == ModeEnhanced && opts.Encoding != keycodec.EncodingBinary {
		return nil, fmt.Errorf("enhanced mode requires %s key encoding", keycodec.EncodingBinary)
	}
	if opts.Rand == nil {
		opts.Rand = magic.DefaultRand()
	}

	return &Engine{opts: opts, codec: keycodec.New(opts.Delimiter)}, nil
}

// Options returns the resolved engine options.
func (e *Engine) Options() Options {
	return e.opts
}

// OrderFor returns the smallest order whose square has room for n characters.
func OrderFor(n int) int {
	order := int(math.Sqrt(float64(n)))
	for order*order < n {
		order++
	}
	for order > 0 && (order-1)*(order-1) >= n {
		order--
	}
	return order
}

// Layout builds the (possibly transformed) layout for a text of n characters.
func (e *Engine) Layout(n int) (*magic.Square, []int) {
	sq := e.opts.Generator.Create(OrderFor(n))
	if e.opts.Transformations != 0 {
		sq = magic.Transform(sq, e.opts.Transformations, e.opts.Rand)
	}
	return sq, sq.Flatten()
}

// Encrypt permutes text through a fresh layout and returns the key and ciphertext.
func (e *Engine) Encrypt(text string) (Result, error) {
	chars := []rune(text)
	if len(chars) == 0 {
		return Result{}, ErrEmptyText
	}

	sq, layout := e.Layout(len(chars))
	res := Result{Order: sq.Order(), Layout: layout, Filler: e.opts.Filler}

	var offset *uint32
	if e.opts.Mode == ModeEnhanced {
		res.Offset = uint32(e.opts.Rand.IntN(offsetLimit))
		res.Filler = adjustFiller(e.opts.Filler, chars, res.Offset)
		offset = &res.Offset
	}

	out := make([]rune, len(layout))
	for i, pos := range layout {
		switch {
		case pos > len(chars):
			out[i] = res.Filler
		case offset != nil:
			out[i] = chars[pos-1] ^ rune(res.Offset)
		default:
			out[i] = chars[pos-1]
		}
	}
	res.Ciphertext = string(out)

	key, err := e.codec.Encode(layout, e.opts.Encoding, offset)
	if err != nil {
		return Result{}, fmt.Errorf("encode key: %w", err)
	}
	res.Key = key
	return res, nil
}

// Decrypt reverses Encrypt using the engine's filler.
func (e *Engine) Decrypt(ciphertext, key string) (string, error) {
	return e.DecryptWithFiller(ciphertext, key, e.opts.Filler)
}

// DecryptWithFiller reverses Encrypt for ciphertext written with filler.
// Key problems are reported as *keycodec.KeyError. In basic mode every
// filler rune is dropped, including any the plaintext itself contained. In
// enhanced mode a filler that leaves gaps in the text yields
// ErrFillerMismatch.
func (e *Engine) DecryptWithFiller(ciphertext, key string, filler rune) (string, error) {
	chars := []rune(ciphertext)
	enhanced := e.opts.Mode == ModeEnhanced

	decoded, err := e.codec.Decode(key, e.opts.Encoding, enhanced, len(chars))
	if err != nil {
		return "", err
	}

	plain := make([]rune, len(chars))
	if !enhanced {
		for i, pos := range decoded.Layout {
			plain[pos-1] = chars[i]
		}
		return strings.ReplaceAll(string(plain), string(filler), ""), nil
	}

	filled := make([]bool, len(chars))
	for i, pos := range decoded.Layout {
		if chars[i] == filler {
			continue
		}
		plain[pos-1] = chars[i] ^ rune(decoded.Offset)
		filled[pos-1] = true
	}

	// Text positions 1..L carry characters and L+1..N² carry filler.
	n := 0
	for n < len(filled) && filled[n] {
		n++
	}
	for _, f := range filled[n:] {
		if f {
			return "", fmt.Errorf("%w %U", ErrFillerMismatch, filler)
		}
	}
	return string(plain[:n]), nil
}

// RejectionReason is the short status for a failed decryption: the key error
// kind when there is one, otherwise the error text.
func RejectionReason(err error) string {
	if kind := keycodec.KindOf(err); kind != 0 {
		return kind.String()
	}
	return err.Error()
}

// adjustFiller bumps filler until no character of text XORed with offset
// equals it.
func adjustFiller(filler rune, text []rune, offset uint32) rune {
	encoded := make(map[rune]struct{}, len(text))
	for _, ch := range text {
		encoded[ch^rune(offset)] = struct{}{}
	}
	for {
		if _, clash := encoded[filler]; !clash && utf8.ValidRune(filler) {
			return filler
		}
		filler++
		if filler > utf8.MaxRune {
			filler = 1
		}
	}
}

// Encrypt runs a basic engine with default options.
func Encrypt(text string) (Result, error) {
	engine, err := NewEngine(DefaultOptions())
	if err != nil {
		return Result{}, err
	}
	return engine.Encrypt(text)
}

// Decrypt runs a basic engine with default options.
func Decrypt(ciphertext, key string) (string, error) {
	engine, err := NewEngine(DefaultOptions())
	if err != nil {
		return "", err
	}
	return engine.Decrypt(ciphertext, key)
}

package keystore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/RowanDark/magiccipher/internal/cipher"
	"github.com/RowanDark/magiccipher/internal/keycodec"
)

// Envelope bundles everything needed to decrypt one ciphertext.
type Envelope struct {
	ID         string            `json:"id"`
	Mode       cipher.Mode       `json:"mode"`
	Encoding   keycodec.Encoding `json:"encoding"`
	Delimiter  string            `json:"delimiter"`
	Filler     string            `json:"filler"`
	Key        string            `json:"key"`
	Ciphertext string            `json:"ciphertext"`
	CreatedAt  time.Time         `json:"created_at"`
}

// NewEnvelope captures an encryption result together with the resolved engine
// options that produced it (see cipher.Engine.Options). The filler recorded is
// the effective one from res.
func NewEnvelope(res cipher.Result, opts cipher.Options) Envelope {
	return Envelope{
		Mode:       opts.Mode,
		Encoding:   opts.Encoding,
		Delimiter:  opts.Delimiter,
		Filler:     string(res.Filler),
		Key:        res.Key,
		Ciphertext: res.Ciphertext,
	}
}

// EngineOptions rebuilds the options needed to decrypt the envelope.
func (e Envelope) EngineOptions() (cipher.Options, error) {
	mode, err := cipher.ParseMode(string(e.Mode))
	if err != nil {
		return cipher.Options{}, err
	}
	enc, err := keycodec.ParseEncoding(string(e.Encoding))
	if err != nil {
		return cipher.Options{}, err
	}
	filler := []rune(e.Filler)
	if len(filler) != 1 {
		return cipher.Options{}, fmt.Errorf("envelope %s: filler must be one character, got %q", e.ID, e.Filler)
	}
	return cipher.Options{
		Mode:      mode,
		Encoding:  enc,
		Filler:    filler[0],
		Delimiter: e.Delimiter,
	}, nil
}

// Open decrypts the envelope's ciphertext with its own key and settings.
func (e Envelope) Open() (string, error) {
	opts, err := e.EngineOptions()
	if err != nil {
		return "", err
	}
	engine, err := cipher.NewEngine(opts)
	if err != nil {
		return "", err
	}
	return engine.DecryptWithFiller(e.Ciphertext, e.Key, opts.Filler)
}

// MarshalIndent renders the envelope as exported by magicctl.
func (e Envelope) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(e, "", "  ")
}

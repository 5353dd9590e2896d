package keystore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
)

// Export writes every stored envelope to w as an lz4 frame of JSON lines and
// returns how many were written.
func (s *Store) Export(ctx context.Context, w io.Writer) (int, error) {
	envelopes, err := s.List(ctx, 0)
	if err != nil {
		return 0, err
	}

	zw := lz4.NewWriter(w)
	enc := json.NewEncoder(zw)
	enc.SetEscapeHTML(false)
	for _, env := range envelopes {
		if err := enc.Encode(env); err != nil {
			return 0, fmt.Errorf("encode envelope %s: %w", env.ID, err)
		}
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("flush export: %w", err)
	}
	return len(envelopes), nil
}

// ImportStats summarises an Import run.
type ImportStats struct {
	Imported int
	Skipped  int
}

// Import loads envelopes produced by Export. Envelopes whose id is already
// present are skipped.
func (s *Store) Import(ctx context.Context, r io.Reader) (ImportStats, error) {
	var stats ImportStats
	dec := json.NewDecoder(lz4.NewReader(r))
	for {
		var env Envelope
		if err := dec.Decode(&env); err != nil {
			if errors.Is(err, io.EOF) {
				return stats, nil
			}
			return stats, fmt.Errorf("decode envelope: %w", err)
		}

		if env.ID != "" {
			_, err := s.Get(ctx, env.ID)
			if err == nil {
				stats.Skipped++
				continue
			}
			if !errors.Is(err, ErrNotFound) {
				return stats, err
			}
		}
		if err := s.Save(ctx, &env); err != nil {
			return stats, err
		}
		stats.Imported++
	}
}

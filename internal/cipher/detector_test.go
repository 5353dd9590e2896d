package cipher

import (
	"testing"

	"github.com/RowanDark/magiccipher/internal/keycodec"
	"github.com/RowanDark/magiccipher/internal/magic"
)

func TestDetectKey(t *testing.T) {
	basicBinary, err := NewEngine(Options{Encoding: keycodec.EncodingBinary})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	enhanced, err := NewEngine(Options{Mode: ModeEnhanced, Rand: magic.NewSeededRand(4)})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	decimalKey, _ := Encrypt("attack at dawn")
	binaryKey, _ := basicBinary.Encrypt("attack at dawn")
	enhancedKey, _ := enhanced.Encrypt("attack at dawn")

	tests := []struct {
		name          string
		key           string
		expectedMode  Mode
		expectedEnc   keycodec.Encoding
		minConfidence float64
	}{
		{"decimal", decimalKey.Key, ModeBasic, keycodec.EncodingDecimal, 0.8},
		{"binary", binaryKey.Key, ModeBasic, keycodec.EncodingBinary, 0.9},
		{"enhanced", enhancedKey.Key, ModeEnhanced, keycodec.EncodingBinary, 0.9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := DetectKey(tt.key, "/")
			if err != nil {
				t.Fatalf("DetectKey(%q): %v", tt.key, err)
			}
			if len(results) == 0 {
				t.Fatalf("expected a detection for %q", tt.key)
			}
			top := results[0]
			if top.Mode != tt.expectedMode || top.Encoding != tt.expectedEnc {
				t.Errorf("expected %s/%s, got %s/%s", tt.expectedMode, tt.expectedEnc, top.Mode, top.Encoding)
			}
			if top.Confidence < tt.minConfidence {
				t.Errorf("expected confidence >= %.2f, got %.2f", tt.minConfidence, top.Confidence)
			}
		})
	}
}

func TestDetectKeyRejectsJunk(t *testing.T) {
	if _, err := DetectKey("  ", "/"); err == nil {
		t.Fatal("expected error for empty key")
	}

	results, err := DetectKey("not/a/key", "/")
	if err != nil {
		t.Fatalf("DetectKey: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no detections, got %+v", results)
	}

	// Three bits is not a valid width.
	results, _ = DetectKey("11/000100100011", "/")
	for _, r := range results {
		if r.Encoding == keycodec.EncodingBinary {
			t.Fatalf("unexpected binary detection %+v", r)
		}
	}
}

func TestDetectKeyShortDecimalIsLowConfidence(t *testing.T) {
	results, err := DetectKey("1/2/3/4", "/")
	if err != nil {
		t.Fatalf("DetectKey: %v", err)
	}
	if len(results) != 1 || results[0].Confidence > 0.5 {
		t.Fatalf("expected one low-confidence result, got %+v", results)
	}
}

package cipher

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/RowanDark/magiccipher/internal/keycodec"
)

var (
	binaryPattern  = regexp.MustCompile(`^[01]+$`)
	decimalPattern = regexp.MustCompile(`^[0-9]+$`)
)

// DetectionResult is one guess at how a key was produced.
type DetectionResult struct {
	Mode       Mode              `json:"mode"`
	Encoding   keycodec.Encoding `json:"encoding"`
	Confidence float64           `json:"confidence"` // 0.0 to 1.0
	Reasoning  string            `json:"reasoning"`
}

// DetectKey guesses the mode and encoding of key from its structure alone.
// Results are sorted by confidence, highest first.
func DetectKey(key, delimiter string) ([]DetectionResult, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("empty key")
	}
	if delimiter == "" {
		delimiter = keycodec.DefaultDelimiter
	}
	fields := strings.Split(key, delimiter)

	results := []DetectionResult{}
	results = append(results, detectBinaryKey(fields)...)
	results = append(results, detectDecimalKey(fields)...)

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Confidence > results[j].Confidence
	})
	return results, nil
}

// detectBinaryKey recognises <width>/<blob> and <width>/<offset>/<blob>.
func detectBinaryKey(fields []string) []DetectionResult {
	if len(fields) != 2 && len(fields) != 3 {
		return nil
	}
	for _, f := range fields {
		if !binaryPattern.MatchString(f) {
			return nil
		}
	}

	width, err := strconv.ParseUint(fields[0], 2, 8)
	if err != nil || width < 4 || width&(width-1) != 0 {
		return nil
	}
	blob := fields[len(fields)-1]
	if len(blob)%int(width) != 0 {
		return nil
	}

	confidence := 0.95
	count := len(blob) / int(width)
	if !perfectSquare(count) {
		confidence = 0.5
	}

	if len(fields) == 3 {
		return []DetectionResult{{
			Mode:       ModeEnhanced,
			Encoding:   keycodec.EncodingBinary,
			Confidence: confidence,
			Reasoning:  fmt.Sprintf("%d-bit packed layout of %d values with an offset field", width, count),
		}}
	}
	return []DetectionResult{{
		Mode:       ModeBasic,
		Encoding:   keycodec.EncodingBinary,
		Confidence: confidence,
		Reasoning:  fmt.Sprintf("%d-bit packed layout of %d values", width, count),
	}}
}

// detectDecimalKey recognises v1/v2/.../vN².
func detectDecimalKey(fields []string) []DetectionResult {
	for _, f := range fields {
		if !decimalPattern.MatchString(f) {
			return nil
		}
	}

	confidence := 0.9
	// Squares below order 3 are never generated.
	if len(fields) < 9 || !perfectSquare(len(fields)) {
		confidence = 0.3
	}
	return []DetectionResult{{
		Mode:       ModeBasic,
		Encoding:   keycodec.EncodingDecimal,
		Confidence: confidence,
		Reasoning:  fmt.Sprintf("%d delimited decimal values", len(fields)),
	}}
}

func perfectSquare(n int) bool {
	for i := 0; i*i <= n; i++ {
		if i*i == n {
			return n > 0
		}
	}
	return false
}

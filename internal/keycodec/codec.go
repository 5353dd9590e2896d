// Package keycodec serializes layouts to textual keys and parses them back.
//
// Key grammar, with "/" as the default delimiter:
//
//	decimal:           v1/v2/.../vN²
//	binary:            <width>/<blob>
//	binary + offset:   <width>/<offset>/<blob>
//
// width and offset are base-2 literals without prefix; blob concatenates every
// layout value as a zero-padded width-bit base-2 literal.
package keycodec

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Encoding selects the textual form of a key.
type Encoding string

const (
	EncodingDecimal Encoding = "decimal"
	EncodingBinary  Encoding = "binary"
)

// DefaultDelimiter separates key fields.
const DefaultDelimiter = "/"

const (
	minBitWidth = 4
	maxBitWidth = 64
)

// ParseEncoding validates an encoding name.
func ParseEncoding(name string) (Encoding, error) {
	switch Encoding(strings.ToLower(strings.TrimSpace(name))) {
	case EncodingDecimal:
		return EncodingDecimal, nil
	case EncodingBinary:
		return EncodingBinary, nil
	default:
		return "", fmt.Errorf("unknown key encoding %q", name)
	}
}

// Codec encodes and decodes keys using a fixed delimiter.
type Codec struct {
	Delimiter string
}

// New returns a codec for delimiter, falling back to DefaultDelimiter.
func New(delimiter string) Codec {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	return Codec{Delimiter: delimiter}
}

func (c Codec) delimiter() string {
	if c.Delimiter == "" {
		return DefaultDelimiter
	}
	return c.Delimiter
}

// Decoded is a parsed key.
type Decoded struct {
	Layout    []int
	BitWidth  int
	Offset    uint32
	HasOffset bool
}

// BitWidth returns the smallest width, starting at 4 and doubling, able to
// hold max.
func BitWidth(max int) int {
	width := minBitWidth
	for width < maxBitWidth && uint64(max) >= uint64(1)<<width {
		width *= 2
	}
	return width
}

// EncodeDecimal joins the layout values with the delimiter.
func (c Codec) EncodeDecimal(layout []int) string {
	parts := make([]string, len(layout))
	for i, v := range layout {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, c.delimiter())
}

// EncodeBinary writes the bit-packed form. A non-nil offset is embedded
// between the width and the blob.
func (c Codec) EncodeBinary(layout []int, offset *uint32) string {
	maxValue := 0
	for _, v := range layout {
		if v > maxValue {
			maxValue = v
		}
	}
	width := BitWidth(maxValue)

	var blob strings.Builder
	blob.Grow(len(layout) * width)
	for _, v := range layout {
		fmt.Fprintf(&blob, "%0*b", width, v)
	}

	fields := []string{strconv.FormatUint(uint64(width), 2)}
	if offset != nil {
		fields = append(fields, strconv.FormatUint(uint64(*offset), 2))
	}
	fields = append(fields, blob.String())
	return strings.Join(fields, c.delimiter())
}

// Encode writes layout in the requested encoding. Offsets are only carried by
// the binary encoding.
func (c Codec) Encode(layout []int, enc Encoding, offset *uint32) (string, error) {
	switch enc {
	case EncodingDecimal:
		if offset != nil {
			return "", fmt.Errorf("decimal keys cannot carry an offset")
		}
		return c.EncodeDecimal(layout), nil
	case EncodingBinary:
		return c.EncodeBinary(layout, offset), nil
	default:
		return "", fmt.Errorf("unknown key encoding %q", enc)
	}
}

// Decode parses key and validates it against a ciphertext of textLen
// characters. Checks run in order: length, format, shape, size, contents.
func (c Codec) Decode(key string, enc Encoding, withOffset bool, textLen int) (Decoded, error) {
	if len(key) == 0 {
		return Decoded{}, keyError(WrongKeyLength, "", nil)
	}

	var (
		decoded Decoded
		err     error
	)
	switch enc {
	case EncodingDecimal:
		if withOffset {
			return Decoded{}, keyError(WrongKeyFormat, "decimal keys cannot carry an offset", nil)
		}
		decoded.Layout, err = c.parseDecimal(key)
	case EncodingBinary:
		decoded, err = c.parseBinary(key, withOffset)
	default:
		return Decoded{}, keyError(WrongKeyFormat, fmt.Sprintf("unknown encoding %q", enc), nil)
	}
	if err != nil {
		return Decoded{}, err
	}

	if err := validateLayout(decoded.Layout, textLen); err != nil {
		return Decoded{}, err
	}
	return decoded, nil
}

func (c Codec) parseDecimal(key string) ([]int, error) {
	parts := strings.Split(key, c.delimiter())
	layout := make([]int, len(parts))
	for i, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, keyError(WrongKeyFormat, fmt.Sprintf("invalid value at position %d", i), err)
		}
		layout[i] = v
	}
	return layout, nil
}

func (c Codec) parseBinary(key string, withOffset bool) (Decoded, error) {
	want := 2
	if withOffset {
		want = 3
	}
	fields := strings.Split(key, c.delimiter())
	if len(fields) != want {
		return Decoded{}, keyError(WrongKeyFormat, fmt.Sprintf("expected %d fields, got %d", want, len(fields)), nil)
	}

	width64, err := strconv.ParseUint(fields[0], 2, 8)
	if err != nil {
		return Decoded{}, keyError(WrongKeyFormat, "invalid bit width", err)
	}
	width := int(width64)
	if !validWidth(width) {
		return Decoded{}, keyError(WrongKeyFormat, fmt.Sprintf("unsupported bit width %d", width), nil)
	}

	decoded := Decoded{BitWidth: width}
	if withOffset {
		offset, err := strconv.ParseUint(fields[1], 2, 32)
		if err != nil {
			return Decoded{}, keyError(WrongKeyFormat, "invalid offset", err)
		}
		decoded.Offset = uint32(offset)
		decoded.HasOffset = true
	}

	blob := fields[len(fields)-1]
	if len(blob)%width != 0 {
		return Decoded{}, keyError(WrongKeyFormat, fmt.Sprintf("blob length %d is not a multiple of %d", len(blob), width), nil)
	}

	decoded.Layout = make([]int, 0, len(blob)/width)
	for i := 0; i < len(blob); i += width {
		v, err := strconv.ParseUint(blob[i:i+width], 2, width)
		if err != nil {
			return Decoded{}, keyError(WrongKeyFormat, fmt.Sprintf("invalid binary chunk at position %d", i), err)
		}
		if v > math.MaxInt32 {
			// Never a valid position; rejected by the contents check.
			v = 0
		}
		decoded.Layout = append(decoded.Layout, int(v))
	}
	return decoded, nil
}

func validWidth(width int) bool {
	for w := minBitWidth; w <= maxBitWidth; w *= 2 {
		if w == width {
			return true
		}
	}
	return false
}

func validateLayout(layout []int, textLen int) error {
	count := len(layout)
	side := int(math.Sqrt(float64(count)))
	for side*side > count {
		side--
	}
	for (side+1)*(side+1) <= count {
		side++
	}
	if count == 0 || side*side != count {
		return keyError(WrongKeyShape, fmt.Sprintf("%d elements do not form a square", count), nil)
	}

	if count != textLen {
		return keyError(WrongKeySize, fmt.Sprintf("key has %d elements, text has %d characters", count, textLen), nil)
	}

	seen := make([]bool, count+1)
	for i, v := range layout {
		if v < 1 || v > count {
			return keyError(WrongKeyContents, fmt.Sprintf("value %d at position %d out of range", v, i), nil)
		}
		if seen[v] {
			return keyError(WrongKeyContents, fmt.Sprintf("value %d repeated", v), nil)
		}
		seen[v] = true
	}
	return nil
}

package rpc

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"
)

// EncryptRequest asks the service to encrypt Text. Empty fields fall back to
// the server's configured defaults.
type EncryptRequest struct {
	Text            string
	Mode            string
	Encoding        string
	Transformations *int
	Filler          string
	Delimiter       string
	// Store persists the result in the server's key store.
	Store bool
}

// EncryptResponse carries everything needed to decrypt later.
type EncryptResponse struct {
	Key        string
	Ciphertext string
	Filler     string
	Order      int
	EnvelopeID string
}

// DecryptRequest asks the service to decrypt Ciphertext with Key, or the
// stored envelope EnvelopeID when set.
type DecryptRequest struct {
	Ciphertext string
	Key        string
	Mode       string
	Encoding   string
	Filler     string
	Delimiter  string
	EnvelopeID string
}

// DecryptResponse holds the recovered text.
type DecryptResponse struct {
	Text string
}

// SquareRequest asks for a magic square of Order after Transformations
// scrambling steps. Seed makes the scrambling reproducible.
type SquareRequest struct {
	Order           int
	Transformations int
	Seed            *uint64
}

// SquareResponse describes the generated square.
type SquareResponse struct {
	Order     int
	Constant  int
	Rows      [][]int
	Magic     bool
	Symmetric bool
}

func (r EncryptRequest) toStruct() (*structpb.Struct, error) {
	fields := map[string]any{
		"text":      r.Text,
		"mode":      r.Mode,
		"encoding":  r.Encoding,
		"filler":    r.Filler,
		"delimiter": r.Delimiter,
		"store":     r.Store,
	}
	if r.Transformations != nil {
		fields["transformations"] = *r.Transformations
	}
	return structpb.NewStruct(fields)
}

func encryptRequestFromStruct(s *structpb.Struct) (EncryptRequest, error) {
	req := EncryptRequest{
		Text:      stringField(s, "text"),
		Mode:      stringField(s, "mode"),
		Encoding:  stringField(s, "encoding"),
		Filler:    stringField(s, "filler"),
		Delimiter: stringField(s, "delimiter"),
		Store:     boolField(s, "store"),
	}
	if _, ok := s.GetFields()["transformations"]; ok {
		n, err := intField(s, "transformations")
		if err != nil {
			return EncryptRequest{}, err
		}
		req.Transformations = &n
	}
	return req, nil
}

func (r EncryptResponse) toStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"key":         r.Key,
		"ciphertext":  r.Ciphertext,
		"filler":      r.Filler,
		"order":       r.Order,
		"envelope_id": r.EnvelopeID,
	})
}

func encryptResponseFromStruct(s *structpb.Struct) (EncryptResponse, error) {
	order, err := intField(s, "order")
	if err != nil {
		return EncryptResponse{}, err
	}
	return EncryptResponse{
		Key:        stringField(s, "key"),
		Ciphertext: stringField(s, "ciphertext"),
		Filler:     stringField(s, "filler"),
		Order:      order,
		EnvelopeID: stringField(s, "envelope_id"),
	}, nil
}

func (r DecryptRequest) toStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"ciphertext":  r.Ciphertext,
		"key":         r.Key,
		"mode":        r.Mode,
		"encoding":    r.Encoding,
		"filler":      r.Filler,
		"delimiter":   r.Delimiter,
		"envelope_id": r.EnvelopeID,
	})
}

func decryptRequestFromStruct(s *structpb.Struct) DecryptRequest {
	return DecryptRequest{
		Ciphertext: stringField(s, "ciphertext"),
		Key:        stringField(s, "key"),
		Mode:       stringField(s, "mode"),
		Encoding:   stringField(s, "encoding"),
		Filler:     stringField(s, "filler"),
		Delimiter:  stringField(s, "delimiter"),
		EnvelopeID: stringField(s, "envelope_id"),
	}
}

func (r DecryptResponse) toStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"text": r.Text})
}

func (r SquareRequest) toStruct() (*structpb.Struct, error) {
	fields := map[string]any{
		"order":           r.Order,
		"transformations": r.Transformations,
	}
	if r.Seed != nil {
		// Struct numbers are float64; the seed travels as a string to keep all 64 bits.
		fields["seed"] = fmt.Sprintf("%d", *r.Seed)
	}
	return structpb.NewStruct(fields)
}

func squareRequestFromStruct(s *structpb.Struct) (SquareRequest, error) {
	order, err := intField(s, "order")
	if err != nil {
		return SquareRequest{}, err
	}
	amount, err := intField(s, "transformations")
	if err != nil {
		return SquareRequest{}, err
	}
	req := SquareRequest{Order: order, Transformations: amount}
	if raw := stringField(s, "seed"); raw != "" {
		var seed uint64
		if _, err := fmt.Sscanf(raw, "%d", &seed); err != nil {
			return SquareRequest{}, fmt.Errorf("seed: %w", err)
		}
		req.Seed = &seed
	}
	return req, nil
}

func (r SquareResponse) toStruct() (*structpb.Struct, error) {
	rows := make([]any, len(r.Rows))
	for i, row := range r.Rows {
		vals := make([]any, len(row))
		for j, v := range row {
			vals[j] = v
		}
		rows[i] = vals
	}
	return structpb.NewStruct(map[string]any{
		"order":     r.Order,
		"constant":  r.Constant,
		"rows":      rows,
		"magic":     r.Magic,
		"symmetric": r.Symmetric,
	})
}

func squareResponseFromStruct(s *structpb.Struct) (SquareResponse, error) {
	order, err := intField(s, "order")
	if err != nil {
		return SquareResponse{}, err
	}
	constant, err := intField(s, "constant")
	if err != nil {
		return SquareResponse{}, err
	}
	resp := SquareResponse{
		Order:     order,
		Constant:  constant,
		Magic:     boolField(s, "magic"),
		Symmetric: boolField(s, "symmetric"),
	}
	for _, rowVal := range s.GetFields()["rows"].GetListValue().GetValues() {
		var row []int
		for _, v := range rowVal.GetListValue().GetValues() {
			n, err := toInt(v.GetNumberValue())
			if err != nil {
				return SquareResponse{}, fmt.Errorf("rows: %w", err)
			}
			row = append(row, n)
		}
		resp.Rows = append(resp.Rows, row)
	}
	return resp, nil
}

func stringField(s *structpb.Struct, name string) string {
	return s.GetFields()[name].GetStringValue()
}

func boolField(s *structpb.Struct, name string) bool {
	return s.GetFields()[name].GetBoolValue()
}

func intField(s *structpb.Struct, name string) (int, error) {
	n, err := toInt(s.GetFields()[name].GetNumberValue())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return n, nil
}

func toInt(f float64) (int, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("%v is not a valid integer", f)
	}
	return int(f), nil
}

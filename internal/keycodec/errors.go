package keycodec

import "errors"

// ErrorKind classifies why a key was rejected.
type ErrorKind int

const (
	// WrongKeyLength means the key is empty.
	WrongKeyLength ErrorKind = iota + 1
	// WrongKeyFormat means a delimiter, binary or integer literal did not parse.
	WrongKeyFormat
	// WrongKeyShape means the element count cannot form a square layout.
	WrongKeyShape
	// WrongKeySize means the layout length differs from the ciphertext length.
	WrongKeySize
	// WrongKeyContents means the layout is not a permutation of 1..N².
	WrongKeyContents
)

// String returns the user-facing status message for the kind.
func (k ErrorKind) String() string {
	switch k {
	case WrongKeyLength:
		return "Wrong key length"
	case WrongKeyFormat:
		return "Wrong key format"
	case WrongKeyShape:
		return "Wrong key shape"
	case WrongKeySize:
		return "Wrong key size"
	case WrongKeyContents:
		return "Wrong key contents"
	default:
		return "Unknown key error"
	}
}

// KeyError reports a rejected key.
type KeyError struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

func (e *KeyError) Error() string {
	if e.Detail == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Detail
}

func (e *KeyError) Unwrap() error {
	return e.Err
}

// Is matches any KeyError of the same kind, so the sentinels below work with
// errors.Is regardless of detail.
func (e *KeyError) Is(target error) bool {
	t, ok := target.(*KeyError)
	return ok && t.Kind == e.Kind
}

var (
	ErrWrongKeyLength   = &KeyError{Kind: WrongKeyLength}
	ErrWrongKeyFormat   = &KeyError{Kind: WrongKeyFormat}
	ErrWrongKeyShape    = &KeyError{Kind: WrongKeyShape}
	ErrWrongKeySize     = &KeyError{Kind: WrongKeySize}
	ErrWrongKeyContents = &KeyError{Kind: WrongKeyContents}
)

// KindOf returns the kind of a KeyError anywhere in err's chain, or 0.
func KindOf(err error) ErrorKind {
	var ke *KeyError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return 0
}

func keyError(kind ErrorKind, detail string, err error) *KeyError {
	return &KeyError{Kind: kind, Detail: detail, Err: err}
}

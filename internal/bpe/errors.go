package bpe

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures returned by the tokenizer engine.
type ErrorKind string

const (
	KindConfig              ErrorKind = "config_error"
	KindIO                  ErrorKind = "io_error"
	KindMalformedTable      ErrorKind = "malformed_table"
	KindDecode              ErrorKind = "decode_error"
	KindVocabularyExhausted ErrorKind = "vocabulary_exhausted"
)

// Sentinels for errors.Is. Any *Error of the same kind matches.
var (
	ErrConfig              = &Error{Kind: KindConfig}
	ErrIO                  = &Error{Kind: KindIO}
	ErrMalformedTable      = &Error{Kind: KindMalformedTable}
	ErrDecode              = &Error{Kind: KindDecode}
	ErrVocabularyExhausted = &Error{Kind: KindVocabularyExhausted}
)

// Error carries a failure kind so callers can react to known failure modes
// without string matching.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error

	// Requested and Achieved are set for KindVocabularyExhausted.
	Requested int
	Achieved  int
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// AsError returns the *Error in err's chain, or nil.
func AsError(err error) *Error {
	var bpeErr *Error
	if errors.As(err, &bpeErr) {
		return bpeErr
	}
	return nil
}

func configError(format string, args ...any) error {
	return &Error{Kind: KindConfig, Message: fmt.Sprintf(format, args...)}
}

func malformed(format string, args ...any) error {
	return &Error{Kind: KindMalformedTable, Message: fmt.Sprintf(format, args...)}
}

func ioError(msg string, err error) error {
	return &Error{Kind: KindIO, Message: msg, Err: err}
}

func decodeError(format string, args ...any) error {
	return &Error{Kind: KindDecode, Message: fmt.Sprintf(format, args...)}
}

// ConfigErrorf builds a KindConfig error. Packages that validate settings
// for the engine use it so failures share one kind.
func ConfigErrorf(format string, args ...any) error {
	return configError(format, args...)
}

// Package protocol defines the signal token codec and the frame format
// relayed over the DataChannel.
//
// A signal token is the text form of a session description that a user copies
// from one terminal and pastes into the other:
//
//	"<~" + ascii85(gzip(smaz(text))) + "~>"
package protocol

import (
	"bytes"
	"encoding/ascii85"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/klauspost/compress/gzip"
)

const (
	tokenPrefix = "<~"
	tokenSuffix = "~>"
)

// ErrInvalidToken is matched (errors.Is) by every error returned from Decode.
var ErrInvalidToken = errors.New("invalid signal token")

// DecodeError reports the stage at which a token failed to decode.
type DecodeError struct {
	Stage string // "ascii85", "gzip", "smaz", "utf8" or "json"
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode signal token (%s): %v", e.Stage, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is makes every DecodeError match ErrInvalidToken.
func (e *DecodeError) Is(target error) bool { return target == ErrInvalidToken }

// Encode compresses text with smaz, then gzip at best compression, and
// returns the ASCII85 form wrapped in "<~" "~>".
func Encode(text string) (string, error) {
	compressed := smazCompress([]byte(text))

	var zipped bytes.Buffer
	zw, err := gzip.NewWriterLevel(&zipped, gzip.BestCompression)
	if err != nil {
		return "", fmt.Errorf("gzip writer: %w", err)
	}
	if _, err := zw.Write(compressed); err != nil {
		return "", fmt.Errorf("gzip write: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("gzip close: %w", err)
	}

	out := make([]byte, ascii85.MaxEncodedLen(zipped.Len()))
	n := ascii85.Encode(out, zipped.Bytes())

	return tokenPrefix + string(out[:n]) + tokenSuffix, nil
}

// Decode reverses Encode. Surrounding whitespace is ignored. Any malformed
// input yields a *DecodeError; Decode never returns partial text.
func Decode(token string) (string, error) {
	body := strings.TrimSpace(token)
	if len(body) < len(tokenPrefix)+len(tokenSuffix) ||
		!strings.HasPrefix(body, tokenPrefix) ||
		!strings.HasSuffix(body, tokenSuffix) {
		return "", &DecodeError{Stage: "ascii85", Err: errors.New(`missing "<~" "~>" delimiters`)}
	}
	body = body[len(tokenPrefix) : len(body)-len(tokenSuffix)]

	// 'z' expands a single character into four zero bytes.
	raw := make([]byte, 4*len(body)+4)
	n, _, err := ascii85.Decode(raw, []byte(body), true)
	if err != nil {
		return "", &DecodeError{Stage: "ascii85", Err: err}
	}

	zr, err := gzip.NewReader(bytes.NewReader(raw[:n]))
	if err != nil {
		return "", &DecodeError{Stage: "gzip", Err: err}
	}
	// Encoders on both ends write a bare header; anything else is corruption.
	if zr.Name != "" || zr.Comment != "" || zr.Extra != nil || hasModTime(zr.ModTime) {
		return "", &DecodeError{Stage: "gzip", Err: errors.New("unexpected header fields")}
	}
	compressed, err := io.ReadAll(zr)
	if err != nil {
		return "", &DecodeError{Stage: "gzip", Err: err}
	}

	plain, err := smazDecompress(compressed)
	if err != nil {
		return "", &DecodeError{Stage: "smaz", Err: err}
	}

	if !utf8.Valid(plain) {
		return "", &DecodeError{Stage: "utf8", Err: errors.New("payload is not valid UTF-8")}
	}

	return string(plain), nil
}

// hasModTime reports whether a gzip header carried a modification time. A
// zero field decodes either as the zero Time or as the Unix epoch.
func hasModTime(t time.Time) bool {
	return !t.IsZero() && t.Unix() != 0
}

package protocol

import (
	"errors"
	"fmt"
)

// smazCodebook is the standard smaz dictionary. Code i expands to
// smazCodebook[i]; codes 254 and 255 introduce verbatim bytes.
var smazCodebook = [254]string{
	" ", "the", "e", "t", "a", "of", "o", "and", "i", "n", "s", "e ", "r",
	" th", " t", "in", "he", "th", "h", "he ", "to", "\r\n", "l", "s ",
	"d", " a", "an", "er", "c", " o", "d ", "on", " of", "re", "of ", "t ",
	", ", "is", "u", "at", "   ", "n ", "or", "which", "f", "m", "as",
	"it", "that", "\n", "was", "en", "  ", " w", "es", " an", " i", "\r",
	"f ", "g", "p", "nd", " s", "nd ", "ed ", "w", "ed", "http://", "for",
	"te", "ing", "y ", "The", " c", "ti", "r ", "his", "st", " in", "ar",
	"nt", ",", " to", "y", "ng", " h", "with", "le", "al", "to ", "b",
	"ou", "be", "were", " b", "se", "o ", "ent", "ha", "ng ", "their",
	"\"", "hi", "from", " f", "in ", "de", "ion", "me", "v", ".", "ve",
	"all", "re ", "ri", "ro", "is ", "co", "f t", "are", "ea", ". ", "her",
	" m", "er ", " p", "es ", "by", "they", "di", "ra", "ic", "not", "s, ",
	"d t", "at ", "ce", "la", "h ", "ne", "as ", "tio", "on ", "n t", "io",
	"we", " a ", "om", ", a", "s o", "ur", "li", "ll", "ch", "had", "this",
	"e t", "g ", "e\r\n", " wh", "ere", " co", "e o", "a ", "us", " d",
	"ss", "\n\r\n", "\r\n\r", "=\"", " be", " e", "s a", "ma", "one",
	"t t", "or ", "but", "el", "so", "l ", "e s", "s,", "no", "ter", " wa",
	"iv", "ho", "e a", " r", "hat", "s t", "ns", "ch ", "wh", "tr", "ut",
	"/", "have", "ly ", "ta", " ha", " on", "tha", "-", " l", "ati", "en ",
	"pe", " re", "there", "ass", "si", " fo", "wa", "ec", "our", "who",
	"its", "z", "fo", "rs", ">", "ot", "un", "<", "im", "th ", "nc", "ate",
	"><", "ver", "ad", " we", "ly", "ee", " n", "id", " cl", "ac", "il",
	"</", "rt", " wi", "div", "e, ", " it", "whi", " ma", "ge", "x", "e c",
	"men", ".com",
}

const (
	smazVerbatimByte = 254 // followed by one literal byte
	smazVerbatimRun  = 255 // followed by (len-1) and len literal bytes
	smazMaxEntry     = 7   // longest codebook entry ("http://")
	smazMaxVerbatim  = 256
)

var smazCodes = func() map[string]byte {
	m := make(map[string]byte, len(smazCodebook))
	for i, s := range smazCodebook {
		m[s] = byte(i)
	}
	return m
}()

var errSmazTruncated = errors.New("smaz: truncated verbatim run")

// smazCompress encodes in with the smaz codebook. At each position the
// longest codebook entry wins; unmatched bytes are emitted as verbatim runs of
// at most 256 bytes.
func smazCompress(in []byte) []byte {
	out := make([]byte, 0, len(in))
	var verbatim []byte

	flush := func() {
		switch n := len(verbatim); {
		case n == 0:
		case n == 1:
			out = append(out, smazVerbatimByte, verbatim[0])
		default:
			out = append(out, smazVerbatimRun, byte(n-1))
			out = append(out, verbatim...)
		}
		verbatim = verbatim[:0]
	}

	for pos := 0; pos < len(in); {
		matched := false
		for n := min(smazMaxEntry, len(in)-pos); n > 0; n-- {
			if code, ok := smazCodes[string(in[pos:pos+n])]; ok {
				flush()
				out = append(out, code)
				pos += n
				matched = true
				break
			}
		}
		if matched {
			continue
		}

		verbatim = append(verbatim, in[pos])
		pos++
		if len(verbatim) == smazMaxVerbatim {
			flush()
		}
	}
	flush()

	return out
}

// smazDecompress reverses smazCompress.
func smazDecompress(in []byte) ([]byte, error) {
	out := make([]byte, 0, len(in)*2)

	for pos := 0; pos < len(in); {
		switch code := in[pos]; code {
		case smazVerbatimByte:
			if pos+1 >= len(in) {
				return nil, errSmazTruncated
			}
			out = append(out, in[pos+1])
			pos += 2

		case smazVerbatimRun:
			if pos+1 >= len(in) {
				return nil, errSmazTruncated
			}
			n := int(in[pos+1]) + 1
			if pos+2+n > len(in) {
				return nil, fmt.Errorf("%w: need %d bytes, have %d", errSmazTruncated, n, len(in)-pos-2)
			}
			out = append(out, in[pos+2:pos+2+n]...)
			pos += 2 + n

		default:
			out = append(out, smazCodebook[code]...)
			pos++
		}
	}

	return out, nil
}

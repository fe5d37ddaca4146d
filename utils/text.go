package utils

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DecodeText returns data as a UTF-8 string. A UTF-8 BOM is dropped; bytes
// that are not valid UTF-8 are decoded as GBK, the usual encoding of older
// Chinese lyric files.
func DecodeText(data []byte) (string, error) {
	if bytes.HasPrefix(data, utf8BOM) {
		return string(bytes.TrimPrefix(data, utf8BOM)), nil
	}
	if utf8.Valid(data) {
		return string(data), nil
	}

	gbkReader := transform.NewReader(bytes.NewReader(data), simplifiedchinese.GBK.NewDecoder())
	decoded, err := io.ReadAll(gbkReader)
	if err != nil {
		return "", fmt.Errorf("failed to decode as GBK: %w", err)
	}
	return string(decoded), nil
}

// FoldText applies NFKC compatibility folding and lower-casing, and removes
// all whitespace. Full-width and half-width forms of the same text fold to
// the same string.
func FoldText(s string) string {
	s = norm.NFKC.String(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// NormalizeKey folds s for use in lookup keys: NFKC, lower case, single
// spaces, trimmed.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(norm.NFKC.String(s)), " "))
}

package utils

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"errors"
	"io"
	"strings"
	"sync"
)

// MaxUnpackedSize bounds what Unpack will inflate.
const MaxUnpackedSize = 16 << 20

// ErrTooLarge is returned by Unpack for payloads over MaxUnpackedSize.
var ErrTooLarge = errors.New("unpacked payload too large")

var gzipWriters = sync.Pool{
	New: func() any {
		w, _ := gzip.NewWriterLevel(io.Discard, gzip.BestCompression)
		return w
	},
}

// Pack gzips s and base64-encodes the result so it can be stored as text.
func Pack(s string) (string, error) {
	var buf bytes.Buffer
	enc := base64.NewEncoder(base64.StdEncoding, &buf)

	zw := gzipWriters.Get().(*gzip.Writer)
	defer gzipWriters.Put(zw)
	zw.Reset(enc)

	if _, err := io.WriteString(zw, s); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Unpack reverses Pack.
func Unpack(s string) (string, error) {
	zr, err := gzip.NewReader(base64.NewDecoder(base64.StdEncoding, strings.NewReader(s)))
	if err != nil {
		return "", err
	}
	defer zr.Close()

	data, err := io.ReadAll(io.LimitReader(zr, MaxUnpackedSize+1))
	if err != nil {
		return "", err
	}
	if len(data) > MaxUnpackedSize {
		return "", ErrTooLarge
	}
	return string(data), nil
}

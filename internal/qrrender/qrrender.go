// Package qrrender turns token payloads into PNG QR codes delivered as
// data URLs, ready for an <img> tag on the phone showing the code.
package qrrender

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
)

const (
	DefaultSize = 256
	dataURLPNG  = "data:image/png;base64,"
)

var ErrEmptyContent = errors.New("qr content is empty")

// PNG encodes content at medium error correction, scaled to size×size.
func PNG(content string, size int) ([]byte, error) {
	if content == "" {
		return nil, ErrEmptyContent
	}
	if size <= 0 {
		size = DefaultSize
	}

	code, err := qr.Encode(content, qr.M, qr.Auto)
	if err != nil {
		return nil, fmt.Errorf("qr encode: %w", err)
	}
	scaled, err := barcode.Scale(code, size, size)
	if err != nil {
		return nil, fmt.Errorf("qr scale: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		return nil, fmt.Errorf("png encode: %w", err)
	}
	return buf.Bytes(), nil
}

// DataURL is PNG rendered as a data:image/png;base64 URL.
func DataURL(content string) (string, error) {
	b, err := PNG(content, DefaultSize)
	if err != nil {
		return "", err
	}
	return dataURLPNG + base64.StdEncoding.EncodeToString(b), nil
}

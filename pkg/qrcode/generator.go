package qrcode

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	skipqrcode "github.com/skip2/go-qrcode"
)

var (
	// ErrEmptyContent is returned when the content string is empty or only whitespace.
	ErrEmptyContent = errors.New("content cannot be empty")
	// ErrGenerateFailed is returned when the QR code generation fails.
	ErrGenerateFailed = errors.New("failed to generate QR code")
)

// defaultSize is the size in pixels used when no size is specified.
const defaultSize = 256

// Render encodes content as a PNG QR code of size x size pixels. A size of 0
// or less falls back to defaultSize. Medium error correction keeps the code
// scannable on typical phone cameras without inflating otpauth URIs into
// dense, slow-to-scan images.
func Render(content string, size int) ([]byte, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	if size <= 0 {
		size = defaultSize
	}
	png, err := skipqrcode.Encode(content, skipqrcode.Medium, size)
	if err != nil {
		return nil, errors.Join(ErrGenerateFailed, err)
	}
	return png, nil
}

// DataURI renders content as a QR code and returns it as a base64 data URI,
// ready for an <img src="..."> on the enrollment page:
//
//	uri, err := qrcode.DataURI(setup.ProvisioningURI, 256)
//	if err != nil {
//		return err
//	}
//	// <img src="{{.uri}}">
func DataURI(content string, size int) (string, error) {
	png, err := Render(content, size)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("data:image/png;base64,%s", base64.StdEncoding.EncodeToString(png)), nil
}

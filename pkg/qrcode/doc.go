// Package qrcode renders otpauth provisioning URIs (or any other string) as
// QR code images, either as raw PNG bytes or as a data-URI string that can be
// embedded directly into an enrollment page.
//
// The package is a thin wrapper around github.com/skip2/go-qrcode that adds
// sensible defaults and input validation.
//
// # Usage
//
//	import "github.com/authkit/twofactor/pkg/qrcode"
//
//	// Raw PNG bytes
//	img, err := qrcode.Render(setup.ProvisioningURI, 256)
//	if err != nil {
//		// handle error
//	}
//
//	// Data URI for an <img> tag
//	dataURI, err := qrcode.DataURI(setup.ProvisioningURI, 256)
//	if err != nil {
//		// handle error
//	}
//
// # Error Handling
//
// The functions return well-defined sentinel errors:
//
//   - ErrEmptyContent   – the content argument was empty.
//   - ErrGenerateFailed – the underlying library could not encode the content.
//
// Wrap your error handling with errors.Is for robust comparisons.
package qrcode

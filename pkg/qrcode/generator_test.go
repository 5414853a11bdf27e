package qrcode_test

import (
	"bytes"
	"encoding/base64"
	"image/png"
	"strings"
	"testing"

	"github.com/authkit/twofactor/pkg/qrcode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleURI = "otpauth://totp/Acme:alice@example.com?secret=JBSWY3DPEHPK3PXP&issuer=Acme"

func TestRender(t *testing.T) {
	t.Parallel()

	t.Run("rejects empty content", func(t *testing.T) {
		t.Parallel()
		result, err := qrcode.Render("", 256)
		require.ErrorIs(t, err, qrcode.ErrEmptyContent)
		assert.Nil(t, result)
	})

	t.Run("rejects whitespace-only content", func(t *testing.T) {
		t.Parallel()
		result, err := qrcode.Render("   \t\n", 256)
		require.ErrorIs(t, err, qrcode.ErrEmptyContent)
		assert.Nil(t, result)
	})

	t.Run("renders a provisioning URI at the requested size", func(t *testing.T) {
		t.Parallel()
		result, err := qrcode.Render(sampleURI, 400)
		require.NoError(t, err)
		require.NotEmpty(t, result)

		img, err := png.Decode(bytes.NewReader(result))
		require.NoError(t, err, "result should be a valid PNG image")
		assert.Equal(t, 400, img.Bounds().Dx())
		assert.Equal(t, 400, img.Bounds().Dy())
	})

	t.Run("falls back to the default size", func(t *testing.T) {
		t.Parallel()
		for _, size := range []int{0, -10} {
			result, err := qrcode.Render(sampleURI, size)
			require.NoError(t, err)

			img, err := png.Decode(bytes.NewReader(result))
			require.NoError(t, err)
			assert.Equal(t, 256, img.Bounds().Dx())
			assert.Equal(t, 256, img.Bounds().Dy())
		}
	})
}

func TestDataURI(t *testing.T) {
	t.Parallel()

	t.Run("rejects empty content", func(t *testing.T) {
		t.Parallel()
		result, err := qrcode.DataURI("", 256)
		require.ErrorIs(t, err, qrcode.ErrEmptyContent)
		assert.Empty(t, result)
	})

	t.Run("produces a decodable PNG data URI", func(t *testing.T) {
		t.Parallel()
		result, err := qrcode.DataURI(sampleURI, 256)
		require.NoError(t, err)

		const prefix = "data:image/png;base64,"
		require.True(t, strings.HasPrefix(result, prefix))

		decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(result, prefix))
		require.NoError(t, err)

		img, err := png.Decode(bytes.NewReader(decoded))
		require.NoError(t, err)
		assert.Equal(t, 256, img.Bounds().Dx())
		assert.Equal(t, 256, img.Bounds().Dy())
	})
}

package otp_test

import (
	"testing"

	"github.com/authkit/twofactor/pkg/otp"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSecret(t *testing.T) {
	t.Parallel()
	secret, err := otp.GenerateSecret(otp.DefaultSecretLength)
	require.NoError(t, err)
	assert.Len(t, secret, otp.DefaultSecretLength)

	// Zero length falls back to the default.
	secret, err = otp.GenerateSecret(0)
	require.NoError(t, err)
	assert.Len(t, secret, otp.DefaultSecretLength)

	other, err := otp.GenerateSecret(otp.DefaultSecretLength)
	require.NoError(t, err)
	assert.NotEqual(t, secret, other, "two generated secrets must differ")
}

func TestEncodeDecodeSecret(t *testing.T) {
	t.Parallel()
	secret, err := otp.GenerateSecret(otp.DefaultSecretLength)
	require.NoError(t, err)

	encoded := otp.EncodeSecret(secret)
	assert.Regexp(t, otp.SecretKeyRegex, encoded)
	assert.NotContains(t, encoded, "=")

	decoded, err := otp.DecodeSecret(encoded)
	require.NoError(t, err)
	assert.Equal(t, secret, decoded)
}

func TestDecodeSecret(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		input   string
		want    []byte
		wantErr bool
	}{
		{name: "canonical", input: "JBSWY3DPEHPK3PXP", want: []byte{0x48, 0x65, 0x6c, 0x6c, 0x6f, 0x21, 0xde, 0xad, 0xbe, 0xef}},
		{name: "lowercase accepted", input: "jbswy3dpehpk3pxp", want: []byte{0x48, 0x65, 0x6c, 0x6c, 0x6f, 0x21, 0xde, 0xad, 0xbe, 0xef}},
		{name: "surrounding whitespace", input: "  JBSWY3DPEHPK3PXP\n", want: []byte{0x48, 0x65, 0x6c, 0x6c, 0x6f, 0x21, 0xde, 0xad, 0xbe, 0xef}},
		{name: "trailing padding tolerated", input: "ME======", want: []byte{0x61}},
		{name: "empty", input: "", wantErr: true},
		{name: "only padding", input: "====", wantErr: true},
		{name: "invalid alphabet", input: "JBSWY3DP18PK3PXP", wantErr: true},
		{name: "embedded space", input: "JBSW Y3DP", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := otp.DecodeSecret(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, otp.ErrInvalidSecretEncoding)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProvisioningURI(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		params  otp.ProvisioningParams
		want    string
		wantErr error
	}{
		{
			name: "basic URI",
			params: otp.ProvisioningParams{
				Secret:      "ABCDEFGHIJKLMNOP",
				AccountName: "test@example.com",
				Issuer:      "TestApp",
			},
			want: "otpauth://totp/TestApp:test@example.com?algorithm=SHA1&digits=6&issuer=TestApp&period=30&secret=ABCDEFGHIJKLMNOP",
		},
		{
			name: "special characters escaped",
			params: otp.ProvisioningParams{
				Secret:      "ABCDEFGHIJKLMNOP",
				AccountName: "test+user@example.com",
				Issuer:      "Test & App",
				Algorithm:   "SHA1",
				Digits:      6,
				Period:      30,
			},
			want: "otpauth://totp/Test%20&%20App:test+user@example.com?algorithm=SHA1&digits=6&issuer=Test+%26+App&period=30&secret=ABCDEFGHIJKLMNOP",
		},
		{
			name: "custom digits and period",
			params: otp.ProvisioningParams{
				Secret:      "ABCDEFGHIJKLMNOP",
				AccountName: "alice",
				Issuer:      "Acme",
				Digits:      8,
				Period:      60,
			},
			want: "otpauth://totp/Acme:alice?algorithm=SHA1&digits=8&issuer=Acme&period=60&secret=ABCDEFGHIJKLMNOP",
		},
		{
			name:    "missing secret",
			params:  otp.ProvisioningParams{AccountName: "alice", Issuer: "Acme"},
			wantErr: otp.ErrMissingSecret,
		},
		{
			name:    "invalid secret",
			params:  otp.ProvisioningParams{Secret: "not base32!", AccountName: "alice", Issuer: "Acme"},
			wantErr: otp.ErrInvalidSecretEncoding,
		},
		{
			name:    "missing account name",
			params:  otp.ProvisioningParams{Secret: "ABCDEFGHIJKLMNOP", Issuer: "Acme"},
			wantErr: otp.ErrMissingAccountName,
		},
		{
			name:    "missing issuer",
			params:  otp.ProvisioningParams{Secret: "ABCDEFGHIJKLMNOP", AccountName: "alice"},
			wantErr: otp.ErrMissingIssuer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := otp.ProvisioningURI(tt.params)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

package otp_test

import (
	"testing"

	"github.com/authkit/twofactor/pkg/otp"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rfcSecret is the ASCII secret "12345678901234567890" from RFC 6238 Appendix B.
var rfcSecret = []byte("12345678901234567890")

func TestComputeCode_RFC6238Vectors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		unixTime int64
		digits   int
		want     string
	}{
		{name: "t=59 six digits", unixTime: 59, digits: 6, want: "287082"},
		{name: "t=59 eight digits", unixTime: 59, digits: 8, want: "94287082"},
		{name: "t=1111111109", unixTime: 1111111109, digits: 8, want: "07081804"},
		{name: "t=1111111111", unixTime: 1111111111, digits: 8, want: "14050471"},
		{name: "t=1234567890", unixTime: 1234567890, digits: 8, want: "89005924"},
		{name: "t=2000000000", unixTime: 2000000000, digits: 8, want: "69279037"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := otp.ComputeCode(rfcSecret, tt.unixTime, otp.DefaultPeriod, tt.digits)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComputeCode_Base32Secret(t *testing.T) {
	t.Parallel()
	secret, err := otp.DecodeSecret("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)

	assert.Equal(t, "996554", otp.ComputeCode(secret, 59, otp.DefaultPeriod, otp.DefaultDigits))
}

func TestComputeCode_LeadingZeros(t *testing.T) {
	t.Parallel()
	// t=1111111109 truncates to 7081804; six-digit form keeps the leading zero
	got := otp.ComputeCode(rfcSecret, 1111111109, otp.DefaultPeriod, otp.DefaultDigits)
	assert.Equal(t, "081804", got)
	assert.Len(t, got, otp.DefaultDigits)
}

func TestValidateCode_RoundTrip(t *testing.T) {
	t.Parallel()
	secret, err := otp.GenerateSecret(otp.DefaultSecretLength)
	require.NoError(t, err)

	times := []int64{0, 59, 1111111109, 1234567890, 2000000000}
	for _, unix := range times {
		code := otp.ComputeCode(secret, unix, otp.DefaultPeriod, otp.DefaultDigits)
		assert.True(t, otp.ValidateCode(code, secret, unix, otp.DefaultPeriod, otp.DefaultDigits, otp.DefaultSkew),
			"code computed at %d must validate at the same instant", unix)
	}
}

func TestValidateCode_Window(t *testing.T) {
	t.Parallel()
	const issuedAt = int64(1_700_000_059)
	secret, err := otp.GenerateSecret(otp.DefaultSecretLength)
	require.NoError(t, err)

	code := otp.ComputeCode(secret, issuedAt, otp.DefaultPeriod, otp.DefaultDigits)

	tests := []struct {
		name   string
		at     int64
		accept bool
	}{
		{name: "same instant", at: issuedAt, accept: true},
		{name: "29s later", at: issuedAt + 29, accept: true},
		{name: "29s earlier", at: issuedAt - 29, accept: true},
		{name: "61s later is two steps away", at: issuedAt + 61, accept: false},
		{name: "61s earlier is two steps away", at: issuedAt - 61, accept: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := otp.ValidateCode(code, secret, tt.at, otp.DefaultPeriod, otp.DefaultDigits, otp.DefaultSkew)
			assert.Equal(t, tt.accept, got)
		})
	}
}

func TestValidateCode_RejectsMalformedCandidates(t *testing.T) {
	t.Parallel()
	secret, err := otp.GenerateSecret(otp.DefaultSecretLength)
	require.NoError(t, err)

	const unix = int64(1_700_000_000)
	valid := otp.ComputeCode(secret, unix, otp.DefaultPeriod, otp.DefaultDigits)

	candidates := []string{
		"",
		"abcdef",
		valid + "0",    // too long
		valid[:5],      // too short
		"12 456",       // inner whitespace
		"-12345",       // sign
		"１２３４５６", // full-width digits
	}
	for _, candidate := range candidates {
		assert.False(t, otp.ValidateCode(candidate, secret, unix, otp.DefaultPeriod, otp.DefaultDigits, otp.DefaultSkew),
			"candidate %q must be rejected", candidate)
	}
}

func TestMatchingStep(t *testing.T) {
	t.Parallel()
	const unix = int64(1_700_000_000)
	secret, err := otp.GenerateSecret(otp.DefaultSecretLength)
	require.NoError(t, err)

	// Code from the previous step matches the previous counter, not the current one.
	prev := otp.ComputeCode(secret, unix-30, otp.DefaultPeriod, otp.DefaultDigits)
	step, ok := otp.MatchingStep(prev, secret, unix, otp.DefaultPeriod, otp.DefaultDigits, otp.DefaultSkew)
	require.True(t, ok)
	assert.Equal(t, (unix-30)/otp.DefaultPeriod, step)

	cur := otp.ComputeCode(secret, unix, otp.DefaultPeriod, otp.DefaultDigits)
	step, ok = otp.MatchingStep(cur, secret, unix, otp.DefaultPeriod, otp.DefaultDigits, otp.DefaultSkew)
	require.True(t, ok)
	assert.Equal(t, unix/otp.DefaultPeriod, step)

	_, ok = otp.MatchingStep("000000", secret, unix, otp.DefaultPeriod, otp.DefaultDigits, otp.DefaultSkew)
	if cur != "000000" && prev != "000000" {
		assert.False(t, ok)
	}
}

package identity

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1" //nolint:gosec // RFC 6238 mandates SHA-1 for authenticator compatibility
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"math/big"
	"net/url"
	"strings"
	"time"
)

// TOTP parameters. Standard authenticator-app defaults: SHA-1, 6 digits,
// 30-second step.
const (
	totpSecretBytes = 20
	totpDigits      = 6
	totpPeriod      = 30

	// totpSkew is how many steps either side of "now" a code is accepted,
	// absorbing clock drift between server and authenticator device.
	totpSkew = 1
)

// base32NoPadding encodes secrets the way authenticator apps expect.
var base32NoPadding = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateTOTPSecret creates a fresh random 160-bit secret, base32-encoded
// without padding.
func GenerateTOTPSecret() (string, error) {
	buf := make([]byte, totpSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating TOTP secret: %w", err)
	}
	return base32NoPadding.EncodeToString(buf), nil
}

// ProvisionURI builds the otpauth:// URI encoded into the enrollment QR code.
func ProvisionURI(issuer, account, secret string) string {
	label := url.PathEscape(issuer) + ":" + url.PathEscape(account)
	params := url.Values{}
	params.Set("secret", secret)
	params.Set("issuer", issuer)
	params.Set("period", fmt.Sprintf("%d", totpPeriod))
	params.Set("digits", fmt.Sprintf("%d", totpDigits))
	params.Set("algorithm", "SHA1")
	return "otpauth://totp/" + label + "?" + params.Encode()
}

// VerifyTOTP reports whether code is valid for the secret at the given
// instant, accepting one step of drift either side.
func VerifyTOTP(secret, code string, now time.Time) bool {
	code = strings.TrimSpace(code)
	if len(code) != totpDigits {
		return false
	}

	key, err := base32NoPadding.DecodeString(strings.ToUpper(strings.TrimSpace(secret)))
	if err != nil {
		return false
	}

	counter := now.Unix() / totpPeriod
	match := false
	for offset := int64(-totpSkew); offset <= totpSkew; offset++ {
		step := counter + offset
		if step < 0 {
			continue
		}
		expected := hotpCode(key, uint64(step))
		// Constant-time compare; check every window so timing does not
		// reveal which one matched.
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			match = true
		}
	}
	return match
}

// hotpCode computes an RFC 4226 HOTP value for the counter, zero-padded
// to totpDigits.
func hotpCode(key []byte, counter uint64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	// Dynamic truncation per RFC 4226 §5.3.
	offset := sum[len(sum)-1] & 0x0f
	value := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	mod := uint32(1)
	for i := 0; i < totpDigits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", totpDigits, value%mod)
}

// Recovery code parameters. Codes are two groups of four lowercase
// base-36 characters joined by a dash, e.g. "k3f9-x21q".
const (
	// RecoveryCodeCount is the number of codes issued at 2FA enrollment.
	RecoveryCodeCount = 8

	recoveryGroupLen   = 4
	recoveryCodeGroups = 2
	recoverySeparator  = "-"
	recoveryAlphabet   = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// GenerateRecoveryCodes creates a fresh batch of one-time recovery codes.
func GenerateRecoveryCodes() ([]string, error) {
	codes := make([]string, 0, RecoveryCodeCount)
	for i := 0; i < RecoveryCodeCount; i++ {
		code, err := newRecoveryCode()
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, nil
}

// newRecoveryCode generates a single recovery code from crypto/rand.
func newRecoveryCode() (string, error) {
	groups := make([]string, 0, recoveryCodeGroups)
	alphabetLen := big.NewInt(int64(len(recoveryAlphabet)))

	for i := 0; i < recoveryCodeGroups; i++ {
		var b strings.Builder
		for j := 0; j < recoveryGroupLen; j++ {
			n, err := rand.Int(rand.Reader, alphabetLen)
			if err != nil {
				return "", fmt.Errorf("generating recovery code: %w", err)
			}
			b.WriteByte(recoveryAlphabet[n.Int64()])
		}
		groups = append(groups, b.String())
	}

	return strings.Join(groups, recoverySeparator), nil
}

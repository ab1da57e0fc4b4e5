package session

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
)

// challengeSize is the length in bytes of a generated authentication
// challenge.
const challengeSize = 32

// GenerateChallenge returns a cryptographically random challenge, the
// server side of the HMAC-SHA1 handshake of spec.md §4.F. Grounded on the
// teacher's own crypto/rand use in secret.go's OTP generator.
func GenerateChallenge() ([]byte, error) {
	b := make([]byte, challengeSize)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// ComputeResponse returns HMAC-SHA1(password, challenge), computed by
// both the client answering a challenge and the server checking it.
func ComputeResponse(password string, challenge []byte) []byte {
	mac := hmac.New(sha1.New, []byte(password))
	mac.Write(challenge)
	return mac.Sum(nil)
}

// VerifyResponse reports whether response is the expected answer to
// challenge under password, using a constant-time comparison.
func VerifyResponse(password string, challenge, response []byte) bool {
	expected := ComputeResponse(password, challenge)
	return hmac.Equal(expected, response)
}

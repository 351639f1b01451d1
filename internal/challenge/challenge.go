// Package challenge implements the stateless, authenticated challenge
// token: mint binds (nonce, timestamp, answer) under a server secret with
// HMAC-SHA256; verify recomputes the authenticator under a guessed answer
// and compares in constant time. No error kind distinguishes *why* a token
// failed to verify — forged, expired and wrong-guess all fold to false.
package challenge

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/rawblock/geronimo-captcha/internal/clockutil"
)

// Mint generates a fresh nonce, reads the current wall-clock second from
// clock, and returns the three-field "nonce:timestamp:auth_b64" token
// binding answerDigit under secret. The caller is responsible for ensuring
// answerDigit is in [1..9]; Mint does not validate it, matching the
// original crate's build_challenge_id, which trusts its sprite composer.
func Mint(secret []byte, answerDigit uint8, clock clockutil.Clock) (string, uint64) {
	nonce := uuid.New().String()
	timestamp := clock.NowSeconds()
	auth := authenticate(secret, nonce, answerDigit, timestamp)

	token := nonce + ":" + strconv.FormatUint(timestamp, 10) + ":" +
		base64.StdEncoding.EncodeToString(auth)
	return token, timestamp
}

// Verify reports whether token authenticates guessDigit under secret and
// has not exceeded ttl seconds of age as observed by clock. Steps (1)-(3)
// and the length check may short-circuit freely — they test public,
// answer-independent structure. The final byte comparison never
// short-circuits: it always runs subtle.ConstantTimeCompare over the full
// HMAC length, so a forged token and a wrong guess are indistinguishable in
// timing. An expired token is rejected before the HMAC is computed.
func Verify(secret []byte, token string, guessDigit uint8, ttl uint64, clock clockutil.Clock) bool {
	parts := strings.Split(token, ":")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return false
	}
	nonce, rawTimestamp, rawAuth := parts[0], parts[1], parts[2]

	timestamp, err := strconv.ParseUint(rawTimestamp, 10, 64)
	if err != nil {
		return false
	}

	now := clock.NowSeconds()
	if now > saturatingAdd(timestamp, ttl) {
		return false
	}

	expected, err := base64.StdEncoding.DecodeString(rawAuth)
	if err != nil {
		return false
	}

	computed := authenticate(secret, nonce, guessDigit, timestamp)
	if len(expected) != len(computed) {
		return false
	}

	return subtle.ConstantTimeCompare(computed, expected) == 1
}

func authenticate(secret []byte, nonce string, digit uint8, timestamp uint64) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(nonce))
	mac.Write([]byte{digit})
	var tsBE [8]byte
	binary.BigEndian.PutUint64(tsBE[:], timestamp)
	mac.Write(tsBE[:])
	return mac.Sum(nil)
}

func saturatingAdd(a, b uint64) uint64 {
	sum := a + b
	if sum < a {
		return ^uint64(0)
	}
	return sum
}

package auth

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"strings"
	"time"

	"github.com/bnema/steam-accounts-cli/internal/domain"
	"github.com/bnema/steam-accounts-cli/internal/ports"
)

const (
	guardCodePeriod   = 30
	guardCodeLength   = 5
	guardCodeAlphabet = "23456789BCDFGHJKMNPQRTVWXY"
)

// GenerateGuardCode derives the five-character guard code valid for the
// 30-second window containing at.
func GenerateGuardCode(sharedSecret string, at time.Time) (string, error) {
	trimmed := strings.TrimSpace(sharedSecret)
	if trimmed == "" {
		return "", &domain.AuthCodeError{Err: domain.ErrInvalidSharedSecret}
	}

	key, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil {
		return "", &domain.AuthCodeError{Err: errors.Join(domain.ErrInvalidSharedSecret, err)}
	}
	if len(key) == 0 {
		return "", &domain.AuthCodeError{Err: domain.ErrInvalidSharedSecret}
	}

	var counter [8]byte
	binary.BigEndian.PutUint64(counter[:], uint64(at.Unix()/guardCodePeriod))

	mac := hmac.New(sha1.New, key)
	mac.Write(counter[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	full := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	code := make([]byte, guardCodeLength)
	for i := range code {
		code[i] = guardCodeAlphabet[full%uint32(len(guardCodeAlphabet))]
		full /= uint32(len(guardCodeAlphabet))
	}

	return string(code), nil
}

type GuardCodes struct {
	clock ports.Clock
}

var _ ports.GuardCodeProvider = GuardCodes{}

func NewGuardCodes(clock ports.Clock) GuardCodes {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return GuardCodes{clock: clock}
}

func (g GuardCodes) GenerateCode(sharedSecret string) (string, error) {
	clock := g.clock
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return GenerateGuardCode(sharedSecret, clock.Now())
}

package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

// RecordID is the 128-bit identifier used for refresh-token records and
// one-time token records. Rendered as unpadded base64url.
type RecordID [16]byte

const (
	secretSize       = 32
	opaqueTokenBytes = 16 + secretSize
)

// ErrTokenMalformed is returned when an opaque token fails structural decoding.
var ErrTokenMalformed = errors.New("malformed opaque token")

func NewRecordID() (RecordID, error) {
	var id RecordID
	_, err := rand.Read(id[:])
	return id, err
}

func (r RecordID) String() string {
	return base64.RawURLEncoding.EncodeToString(r[:])
}

func ParseRecordID(s string) (RecordID, error) {
	var id RecordID

	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return id, ErrTokenMalformed
	}
	if len(raw) != len(id) {
		return id, ErrTokenMalformed
	}

	copy(id[:], raw)
	return id, nil
}

// NewSecret draws a fresh 256-bit secret from the system CSPRNG.
func NewSecret() ([secretSize]byte, error) {
	var secret [secretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

// HashSecret is the fallback secret digest for stores that do not carry
// their own keyed hash.
func HashSecret(secret [secretSize]byte) [32]byte {
	return sha256.Sum256(secret[:])
}

// EncodeOpaqueToken packs recordID||secret into a single client-facing
// token string. Used for refresh tokens, password-reset tokens, and
// email-verification tokens alike: the record ID locates the server-side
// record, the secret authenticates against the stored hash.
func EncodeOpaqueToken(recordID string, secret [secretSize]byte) (string, error) {
	id, err := ParseRecordID(recordID)
	if err != nil {
		return "", err
	}

	var raw [opaqueTokenBytes]byte
	copy(raw[:len(id)], id[:])
	copy(raw[len(id):], secret[:])

	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// DecodeOpaqueToken splits a client token back into record ID and secret.
func DecodeOpaqueToken(token string) (string, [secretSize]byte, error) {
	var secret [secretSize]byte

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", secret, ErrTokenMalformed
	}
	if len(raw) != opaqueTokenBytes {
		return "", secret, ErrTokenMalformed
	}

	var id RecordID
	copy(id[:], raw[:len(id)])
	copy(secret[:], raw[len(id):])

	return id.String(), secret, nil
}

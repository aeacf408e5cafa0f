// Package token implements access-token issuance/verification and the
// keyed hashing of refresh-token secrets.
//
// Access tokens are short-lived signed JWTs carrying identity and role
// claims; they are stateless and cannot be revoked before expiry. Refresh
// tokens are opaque to the client (record ID plus a random secret); their
// validity is gated by a live, non-revoked server-side record that stores
// an HMAC of the secret. Access and refresh material are keyed with
// distinct secrets so compromise of one does not compromise the other.
package token

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the access-token signature algorithm.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

var (
	// ErrTokenExpired is returned for a structurally valid but expired token.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid covers signature, claim, and structural failures.
	ErrTokenInvalid = errors.New("token invalid")
)

// Config holds signing material and lifetimes.
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod SigningMethod
	Issuer        string
	Audience      string
	Leeway        time.Duration

	// AccessKey signs access tokens: the HMAC secret for hs256, or the
	// ed25519 private key (raw or PEM) for ed25519.
	AccessKey []byte
	// AccessPublicKey verifies ed25519 access tokens. Unused for hs256.
	AccessPublicKey []byte
	// RefreshKey keys the HMAC applied to refresh secrets before storage.
	// Must differ from AccessKey.
	RefreshKey []byte
}

// AccessClaims is the access-token claim set.
type AccessClaims struct {
	UID  string `json:"uid"`
	SID  string `json:"sid"`
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Manager issues and verifies tokens. Immutable after construction; safe
// for concurrent use.
type Manager struct {
	config Config
}

// NewManager validates the configuration and returns a manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("access TTL must be > 0")
	}
	if cfg.RefreshTTL <= 0 {
		return nil, errors.New("refresh TTL must be > 0")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if len(cfg.RefreshKey) < 32 {
		return nil, errors.New("refresh key must be >= 256 bits")
	}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.AccessKey) < 32 {
			return nil, errors.New("hs256 requires access key >= 256 bits")
		}
	case MethodEd25519:
		if _, err := parseEdPrivateKey(cfg.AccessKey); err != nil {
			return nil, err
		}
		if _, err := parseEdPublicKey(cfg.AccessPublicKey); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	if hmac.Equal(cfg.AccessKey, cfg.RefreshKey) {
		return nil, errors.New("access and refresh keys must differ")
	}

	return &Manager{config: cfg}, nil
}

// AccessTTL returns the configured access-token lifetime.
func (m *Manager) AccessTTL() time.Duration {
	return m.config.AccessTTL
}

// RefreshTTL returns the configured refresh-token lifetime.
func (m *Manager) RefreshTTL() time.Duration {
	return m.config.RefreshTTL
}

// IssueAccess signs an access token binding the user, session record, and
// role, with issuer/audience claims filled from config.
func (m *Manager) IssueAccess(userID, sessionID, role string) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		UID:  userID,
		SID:  sessionID,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.AccessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	tok := jwt.NewWithClaims(m.method(), claims)

	signKey, err := m.signKey()
	if err != nil {
		return "", err
	}

	return tok.SignedString(signKey)
}

// VerifyAccess parses and validates an access token, enforcing algorithm,
// signature, expiry, issuer, and audience. Expiry maps to ErrTokenExpired;
// everything else maps to ErrTokenInvalid.
func (m *Manager) VerifyAccess(tokenStr string) (*AccessClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method().Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parser := jwt.NewParser(options...)
	tok, err := parser.ParseWithClaims(tokenStr, &AccessClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.method().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.verifyKey()
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := tok.Claims.(*AccessClaims)
	if !ok || !tok.Valid {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// HashRefreshSecret computes the keyed digest of a refresh secret for
// storage and lookup. HMAC-SHA256 under the refresh key: a stolen record
// table cannot be turned back into usable tokens, and the refresh keyspace
// is independent of access-token signing.
func (m *Manager) HashRefreshSecret(secret [32]byte) [32]byte {
	mac := hmac.New(sha256.New, m.config.RefreshKey)
	mac.Write(secret[:])

	var out [32]byte
	copy(out[:], mac.Sum(nil))
	return out
}

func (m *Manager) method() jwt.SigningMethod {
	switch m.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (m *Manager) signKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return m.config.AccessKey, nil
	default:
		return parseEdPrivateKey(m.config.AccessKey)
	}
}

func (m *Manager) verifyKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return m.config.AccessKey, nil
	default:
		return parseEdPublicKey(m.config.AccessPublicKey)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}

package auth

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jhaveripatric/api-gateway/internal/config"
)

// ErrInvalidToken wraps every verification failure.
var ErrInvalidToken = errors.New("invalid token")

// Verifier validates ES256 bearer tokens for protected upstreams.
type Verifier struct {
	publicKeys map[string]*ecdsa.PublicKey // kid -> key
	parser     *jwt.Parser
}

// Claims represents JWT claims with user info.
type Claims struct {
	UserID   string   `json:"user_id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

// New builds a verifier from the auth settings and loads the public key.
func New(cfg config.AuthConfig) (*Verifier, error) {
	v := NewVerifier(cfg.Issuer, cfg.Audience)
	if err := v.LoadPublicKey(cfg.KeyID, cfg.PublicKeyFile); err != nil {
		return nil, err
	}
	return v, nil
}

// NewVerifier creates a verifier with no keys.
func NewVerifier(issuer, audience string) *Verifier {
	return &Verifier{
		publicKeys: make(map[string]*ecdsa.PublicKey),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithAudience(audience),
			jwt.WithExpirationRequired(),
		),
	}
}

// LoadPublicKey loads a PEM encoded ECDSA public key from path.
func (v *Verifier) LoadPublicKey(keyID, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read public key: %w", err)
	}
	return v.AddPublicKey(keyID, data)
}

// AddPublicKey registers a PEM encoded ECDSA public key under keyID.
func (v *Verifier) AddPublicKey(keyID string, pemData []byte) error {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return errors.New("no PEM block found")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return fmt.Errorf("parse public key: %w", err)
	}

	ecdsaPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return errors.New("not an ECDSA public key")
	}

	v.publicKeys[keyID] = ecdsaPub
	return nil
}

// HasKeys returns true if any public keys are loaded.
func (v *Verifier) HasKeys() bool {
	return len(v.publicKeys) > 0
}

// Verify validates a JWT and returns claims.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(tokenString, claims, v.keyFor)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return claims, nil
}

// Authenticate extracts and verifies the bearer token of r.
func (v *Verifier) Authenticate(r *http.Request) (*Claims, error) {
	token, err := ExtractToken(r)
	if err != nil {
		return nil, err
	}
	return v.Verify(token)
}

func (v *Verifier) keyFor(token *jwt.Token) (any, error) {
	kid, ok := token.Header["kid"].(string)
	if !ok {
		return nil, errors.New("missing kid in header")
	}
	key, ok := v.publicKeys[kid]
	if !ok {
		return nil, fmt.Errorf("unknown kid: %s", kid)
	}
	return key, nil
}

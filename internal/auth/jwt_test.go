package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jhaveripatric/api-gateway/internal/config"
)

func generateKey(t *testing.T) (*ecdsa.PrivateKey, []byte) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	return key, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
}

func sign(t *testing.T, key *ecdsa.PrivateKey, kid string, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = kid
	s, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func validClaims() Claims {
	return Claims{
		UserID:   "u-42",
		Username: "ada",
		Roles:    []string{"viewer", "uploader"},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "auth_service",
			Audience:  jwt.ClaimStrings{"gateway"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestNewLoadsKeyFile(t *testing.T) {
	_, pemData := generateKey(t)
	path := filepath.Join(t.TempDir(), "public.pem")
	if err := os.WriteFile(path, pemData, 0o600); err != nil {
		t.Fatal(err)
	}

	v, err := New(config.AuthConfig{PublicKeyFile: path, KeyID: "k1", Issuer: "auth_service", Audience: "gateway"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !v.HasKeys() {
		t.Error("expected key to be loaded")
	}

	if _, err := New(config.AuthConfig{PublicKeyFile: filepath.Join(t.TempDir(), "missing.pem"), KeyID: "k1"}); err == nil {
		t.Error("expected error for missing key file")
	}
}

func TestVerify(t *testing.T) {
	key, pemData := generateKey(t)
	otherKey, _ := generateKey(t)

	v := NewVerifier("auth_service", "gateway")
	if err := v.AddPublicKey("k1", pemData); err != nil {
		t.Fatalf("AddPublicKey() error = %v", err)
	}

	claims, err := v.Verify(sign(t, key, "k1", validClaims()))
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.UserID != "u-42" || claims.Username != "ada" {
		t.Errorf("unexpected claims %+v", claims)
	}

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	wrongIssuer := validClaims()
	wrongIssuer.Issuer = "someone_else"
	wrongAudience := validClaims()
	wrongAudience.Audience = jwt.ClaimStrings{"other"}
	noExpiry := validClaims()
	noExpiry.ExpiresAt = nil

	bad := map[string]string{
		"expired":        sign(t, key, "k1", expired),
		"wrong issuer":   sign(t, key, "k1", wrongIssuer),
		"wrong audience": sign(t, key, "k1", wrongAudience),
		"no expiry":      sign(t, key, "k1", noExpiry),
		"unknown kid":    sign(t, key, "k2", validClaims()),
		"wrong key":      sign(t, otherKey, "k1", validClaims()),
		"garbage":        "not.a.token",
	}
	for name, token := range bad {
		if _, err := v.Verify(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("%s: Verify() error = %v, want ErrInvalidToken", name, err)
		}
	}
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	_, pemData := generateKey(t)
	v := NewVerifier("auth_service", "gateway")
	if err := v.AddPublicKey("k1", pemData); err != nil {
		t.Fatal(err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims())
	token.Header["kid"] = "k1"
	s, err := token.SignedString([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.Verify(s); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Verify(HS256) error = %v, want ErrInvalidToken", err)
	}
}

func TestAuthenticate(t *testing.T) {
	key, pemData := generateKey(t)
	v := NewVerifier("auth_service", "gateway")
	if err := v.AddPublicKey("k1", pemData); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/video_service/streams", nil)
	if _, err := v.Authenticate(req); !errors.Is(err, ErrMissingToken) {
		t.Errorf("Authenticate() without header error = %v, want ErrMissingToken", err)
	}

	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	if _, err := v.Authenticate(req); err == nil {
		t.Error("expected error for basic auth")
	}

	req.Header.Set("Authorization", "bearer "+sign(t, key, "k1", validClaims()))
	claims, err := v.Authenticate(req)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if GetClaims(WithClaims(req.Context(), claims)) != claims {
		t.Error("claims not stored in context")
	}
}

func TestSetIdentity(t *testing.T) {
	h := http.Header{}
	h.Set(HeaderUserID, "forged")
	h.Set(HeaderUserRoles, "admin")

	c := validClaims()
	c.Roles = nil
	SetIdentity(h, &c)

	if got := h.Get(HeaderUserID); got != "u-42" {
		t.Errorf("%s = %q", HeaderUserID, got)
	}
	if got := h.Get(HeaderUserName); got != "ada" {
		t.Errorf("%s = %q", HeaderUserName, got)
	}
	if got := h.Get(HeaderUserRoles); got != "" {
		t.Errorf("%s = %q, forged value should be gone", HeaderUserRoles, got)
	}

	StripIdentity(h)
	if len(h) != 0 {
		t.Errorf("headers left after StripIdentity: %v", h)
	}
}

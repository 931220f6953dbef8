package signing

import (
	"crypto/rsa"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/josh-kwaku/interbank-settlement/internal/domain"
)

// Claims is the body of an interbank transfer assertion.
type Claims struct {
	domain.Assertion
	jwt.RegisteredClaims
}

type Signer struct {
	issuer  string
	keyPath string
	ttl     time.Duration
	now     func() time.Time

	mu     sync.Mutex
	key    *rsa.PrivateKey
	public jwk.Key
}

func NewSigner(issuer, keyPath string, ttl time.Duration) *Signer {
	return &Signer{
		issuer:  issuer,
		keyPath: keyPath,
		ttl:     ttl,
		now:     time.Now,
	}
}

// loadKey reads the private key on first use. A failed read is not cached so the
// next attempt tries the file again.
func (s *Signer) loadKey() (*rsa.PrivateKey, jwk.Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.key != nil {
		return s.key, s.public, nil
	}

	raw, err := os.ReadFile(s.keyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read private key: %v: %w", err, domain.ErrSigning)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("parse private key: %v: %w", err, domain.ErrSigning)
	}
	public, err := publicJWK(&key.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("public key: %v: %w", err, domain.ErrSigning)
	}

	s.key = key
	s.public = public
	return s.key, s.public, nil
}

// publicJWK describes pub as an RS256 signing key whose kid is its RFC 7638
// SHA-256 thumbprint.
func publicJWK(pub *rsa.PublicKey) (jwk.Key, error) {
	key, err := jwk.FromRaw(pub)
	if err != nil {
		return nil, err
	}
	if err := key.Set(jwk.KeyUsageKey, jwk.ForSignature); err != nil {
		return nil, err
	}
	if err := key.Set(jwk.AlgorithmKey, jwa.RS256); err != nil {
		return nil, err
	}
	if err := jwk.AssignKeyID(key); err != nil {
		return nil, err
	}
	return key, nil
}

func (s *Signer) Sign(transferID uuid.UUID, a domain.Assertion) (string, error) {
	key, public, err := s.loadKey()
	if err != nil {
		return "", fmt.Errorf("Sign: %w", err)
	}

	now := s.now().UTC()
	claims := Claims{
		Assertion: a,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			ID:        transferID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = public.KeyID()

	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("Sign: %v: %w", err, domain.ErrSigning)
	}
	return signed, nil
}

// PublicKeySet is the JWKS this bank publishes for its peers.
func (s *Signer) PublicKeySet() (jwk.Set, error) {
	_, public, err := s.loadKey()
	if err != nil {
		return nil, fmt.Errorf("PublicKeySet: %w", err)
	}

	set := jwk.NewSet()
	if err := set.AddKey(public); err != nil {
		return nil, fmt.Errorf("PublicKeySet: %w", err)
	}
	return set, nil
}

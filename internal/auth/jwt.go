// Package auth verifies the RS256 access tokens issued by the identity
// provider and resolves them into a Session.
package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

type Config struct {
	Issuer   string
	Audience string
	Leeway   time.Duration
}

// AccessClaims carries the author projection next to the registered claims.
type AccessClaims struct {
	jwt.RegisteredClaims
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Image string `json:"picture,omitempty"`
}

// Session is the authenticated identity behind a request or connection.
type Session struct {
	UserID string
	Name   string
	Email  string
	Image  string
}

func (s Session) User() domain.User {
	u := domain.User{ID: s.UserID, Email: s.Email}
	if s.Name != "" {
		u.Name = &s.Name
	}
	if s.Image != "" {
		u.Image = &s.Image
	}
	return u
}

type Verifier struct {
	public *rsa.PublicKey
	parser *jwt.Parser
}

func NewVerifier(public *rsa.PublicKey, cfg Config) *Verifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &Verifier{public: public, parser: jwt.NewParser(opts...)}
}

// FromToken validates signature, issuer, audience and time claims.
func (v *Verifier) FromToken(token string) (Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, ErrMissingToken
	}

	claims := &AccessClaims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.public, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Session{}, fmt.Errorf("%w: expired", ErrInvalidToken)
		}
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Session{}, ErrInvalidSubject
	}

	return Session{
		UserID: claims.Subject,
		Name:   claims.Name,
		Email:  claims.Email,
		Image:  claims.Image,
	}, nil
}

// ResolveSession reads the token from the Authorization header, falling back to
// the access_token query parameter used by browser websockets.
func (v *Verifier) ResolveSession(r *http.Request) (Session, error) {
	return v.FromToken(TokenFromRequest(r))
}

func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}

// Signer issues access tokens. The service itself only verifies; signing is
// used by dev tooling and tests.
type Signer struct {
	private *rsa.PrivateKey
	cfg     Config
	ttl     time.Duration
	now     func() time.Time
}

func NewSigner(private *rsa.PrivateKey, cfg Config, ttl time.Duration) *Signer {
	return &Signer{private: private, cfg: cfg, ttl: ttl, now: time.Now}
}

func (s *Signer) Sign(sess Session) (string, error) {
	now := s.now()
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sess.UserID,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-s.cfg.Leeway)),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Name:  sess.Name,
		Email: sess.Email,
		Image: sess.Image,
	}
	if s.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{s.cfg.Audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.private)
}

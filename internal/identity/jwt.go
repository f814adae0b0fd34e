package identity

import (
	"errors"
	"fmt"
	"time"

	"chronotech-quiz-service/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for tokens that fail signature or claim checks.
var ErrInvalidToken = domain.Errorf(domain.ErrUnauthenticated, "invalid identity token")

// Claims carries the identity fields of a signed-in user. The subject is the uid.
type Claims struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 identity tokens and issues them for local use.
type Verifier struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewVerifier(secret, issuer string, ttl time.Duration) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}
}

// Verify parses token and returns the identity it vouches for.
func (v *Verifier) Verify(token string) (*domain.Identity, error) {
	if len(v.secret) == 0 {
		return nil, domain.Errorf(domain.ErrUnauthenticated, "identity verification is not configured")
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	},
		jwt.WithIssuer(v.issuer),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &domain.Identity{
		UID:         claims.Subject,
		DisplayName: claims.Name,
		Email:       claims.Email,
		PhotoURL:    claims.Picture,
	}, nil
}

// Issue signs a token for id, valid for the verifier's ttl.
func (v *Verifier) Issue(id domain.Identity) (string, error) {
	if len(v.secret) == 0 {
		return "", errors.New("jwt secret is not configured")
	}
	if id.UID == "" {
		return "", domain.Errorf(domain.ErrInvalidArgument, "uid is required")
	}
	now := v.now()
	claims := &Claims{
		Name:    id.DisplayName,
		Email:   id.Email,
		Picture: id.PhotoURL,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Package jwt verifies and issues the HS256 bearer credential {sub, role, exp}.
package jwt

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/kirinyoku/venuebook/internal/domain"
)

type Claims struct {
	Role string `json:"role"`
	jwtlib.RegisteredClaims
}

type Service struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func New(secret string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &Service{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// GenerateToken signs a credential for userID. Production tokens are issued
// elsewhere. This exists for tooling and tests.
func (s *Service) GenerateToken(userID int64, role domain.Role) (string, error) {
	const op = "jwt.Service.GenerateToken"

	if !role.Valid() {
		return "", fmt.Errorf("%s: unknown role %q", op, role)
	}

	now := s.now()
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwtlib.NewNumericDate(now),
		},
	}

	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, nil
}

// Verify checks the signature and expiry of tokenStr and returns the identity
// it carries. Any failure is domain.ErrUnauthenticated.
func (s *Service) Verify(tokenStr string) (*domain.Identity, error) {
	const op = "jwt.Service.Verify"

	token, err := jwtlib.ParseWithClaims(tokenStr, &Claims{}, func(t *jwtlib.Token) (any, error) {
		return s.secret, nil
	},
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%s: %w: %w", op, domain.ErrUnauthenticated, errOrInvalid(err))
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, fmt.Errorf("%s: %w: invalid claims", op, domain.ErrUnauthenticated)
	}

	subject, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || subject <= 0 {
		return nil, fmt.Errorf("%s: %w: invalid subject %q", op, domain.ErrUnauthenticated, claims.Subject)
	}

	role := domain.Role(claims.Role)
	if !role.Valid() {
		return nil, fmt.Errorf("%s: %w: invalid role %q", op, domain.ErrUnauthenticated, claims.Role)
	}

	return &domain.Identity{
		SubjectID: subject,
		Role:      role,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func errOrInvalid(err error) error {
	if err != nil {
		return err
	}
	return errors.New("invalid token")
}

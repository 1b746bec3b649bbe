package usecase

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"unifydata-backend/internal/auth/domain"
	"unifydata-backend/internal/auth/repository"
	"unifydata-backend/pkg/config"
)

// Identity is the authenticated principal attached to every request.
type Identity struct {
	UserID string
	OrgID  string
	Email  string
}

type AuthUsecase interface {
	// IssueToken registers the user (and their organization if new) and
	// returns a signed JWT.
	IssueToken(email, name, orgName string) (string, *domain.User, error)

	// ValidateToken parses and verifies a JWT, returning the identity it
	// carries.
	ValidateToken(token string) (*Identity, error)
}

type authUsecase struct {
	users  repository.UserRepository
	secret []byte
	expiry time.Duration
}

func NewAuthUsecase(users repository.UserRepository, cfg *config.Config) AuthUsecase {
	return &authUsecase{
		users:  users,
		secret: []byte(cfg.JWTSecret),
		expiry: cfg.JWTExpiry,
	}
}

type claims struct {
	OrgID string `json:"org_id"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func (u *authUsecase) IssueToken(email, name, orgName string) (string, *domain.User, error) {
	user, err := u.users.FindByEmail(email)
	if err != nil {
		return "", nil, fmt.Errorf("find user: %w", err)
	}
	if user == nil {
		org := &domain.Organization{Name: orgName}
		if org.Name == "" {
			org.Name = email
		}
		if err := u.users.CreateOrganization(org); err != nil {
			return "", nil, fmt.Errorf("create organization: %w", err)
		}
		user = &domain.User{OrgID: org.ID, Email: email, Name: name}
		if err := u.users.Create(user); err != nil {
			return "", nil, fmt.Errorf("create user: %w", err)
		}
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		OrgID: user.OrgID,
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(u.expiry)),
		},
	})
	signed, err := token.SignedString(u.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, user, nil
}

func (u *authUsecase) ValidateToken(tokenString string) (*Identity, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return u.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return &Identity{UserID: c.Subject, OrgID: c.OrgID, Email: c.Email}, nil
}

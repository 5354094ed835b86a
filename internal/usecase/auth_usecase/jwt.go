package auth

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"storefront/internal/domain/model"
	"storefront/internal/usecase"
)

// トークンから取り出した利用者
type Identity struct {
	UserID int64
	Name   string
	Role   model.Role
}

func (i Identity) IsAdmin() bool { return i.Role == model.RoleAdmin }

type accessClaims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// HS256のアクセストークン発行と検証
type JWTService struct {
	secret []byte
	ttl    time.Duration
	clock  Clock
}

func NewJWTService(secret string, ttl time.Duration, clock Clock) *JWTService {
	if clock == nil {
		clock = SystemClock{}
	}
	return &JWTService{secret: []byte(secret), ttl: ttl, clock: clock}
}

func (s *JWTService) Issue(user model.User) (string, time.Time, error) {
	now := s.clock.Now()
	exp := now.Add(s.ttl)

	claims := accessClaims{
		Name: user.Name,
		Role: string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return token, exp, nil
}

// 署名・期限・中身を検証。失敗はすべて ErrUnauthorized。
func (s *JWTService) Verify(raw string) (Identity, error) {
	var claims accessClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", usecase.ErrUnauthorized, err)
	}
	if !token.Valid {
		return Identity{}, fmt.Errorf("%w: invalid token", usecase.ErrUnauthorized)
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return Identity{}, fmt.Errorf("%w: invalid subject", usecase.ErrUnauthorized)
	}
	role := model.Role(claims.Role)
	if role != model.RoleUser && role != model.RoleAdmin {
		return Identity{}, fmt.Errorf("%w: invalid role", usecase.ErrUnauthorized)
	}

	return Identity{UserID: userID, Name: claims.Name, Role: role}, nil
}

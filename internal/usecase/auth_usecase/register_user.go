package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"storefront/internal/domain/model"
	"storefront/internal/logging"
	"storefront/internal/repository"
	"storefront/internal/usecase"
	"storefront/internal/validator"
)

// 会員登録の入力
type RegisterUserInput struct {
	Name     string
	Email    string
	Password string
}

// 登録・ログインの出力（passwordはjsonに出ない）
type AuthOutput struct {
	User      model.User `json:"user"`
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
}

// email重複
var ErrEmailAlreadyExists = fmt.Errorf("%w: email already exists", usecase.ErrConflict)

// 平文パスワードからハッシュへ。
type PasswordHasher interface {
	Hash(plain string) (string, error)
}

// JWTを発行する約束
type AccessTokenIssuer interface {
	Issue(user model.User) (token string, expiresAt time.Time, err error)
}

// 現在の時間
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

type RegisterUserUsecase struct {
	userRepo repository.UserRepository
	hasher   PasswordHasher
	issuer   AccessTokenIssuer
}

// DI
func NewRegisterUserUsecase(userRepo repository.UserRepository, hasher PasswordHasher, issuer AccessTokenIssuer) *RegisterUserUsecase {
	return &RegisterUserUsecase{userRepo: userRepo, hasher: hasher, issuer: issuer}
}

// 会員登録実行。roleは常にuser。
func (u *RegisterUserUsecase) Execute(ctx context.Context, in RegisterUserInput) (AuthOutput, error) {
	if err := validator.ValidateRegister(in.Name, in.Email, in.Password); err != nil {
		return AuthOutput{}, err
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))

	// email重複チェック
	_, err := u.userRepo.FindByEmail(ctx, email)
	if err == nil {
		return AuthOutput{}, ErrEmailAlreadyExists
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return AuthOutput{}, fmt.Errorf("%w: find user: %w", usecase.ErrStorage, err)
	}

	hashed, err := u.hasher.Hash(in.Password)
	if err != nil {
		return AuthOutput{}, err
	}

	user := &model.User{
		Name:         strings.TrimSpace(in.Name),
		Email:        email,
		PasswordHash: hashed,
		Role:         model.RoleUser,
	}
	if err := u.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return AuthOutput{}, ErrEmailAlreadyExists
		}
		return AuthOutput{}, fmt.Errorf("%w: create user: %w", usecase.ErrStorage, err)
	}

	token, exp, err := u.issuer.Issue(*user)
	if err != nil {
		return AuthOutput{}, err
	}

	logging.FromContext(ctx).Info("user registered", "user_id", user.ID)
	return AuthOutput{User: *user, Token: token, ExpiresAt: exp}, nil
}

// bcryptハッシュ化
type BcryptPasswordHasher struct {
	cost int
}

// DI
func NewBcryptPasswordHasher(cost int) *BcryptPasswordHasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &BcryptPasswordHasher{cost}
}

func (h *BcryptPasswordHasher) Hash(plain string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashedBytes), nil
}

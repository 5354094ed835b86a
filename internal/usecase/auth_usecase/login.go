package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"storefront/internal/logging"
	"storefront/internal/repository"
	"storefront/internal/usecase"
	"storefront/internal/validator"
)

// handlerからusecaseに渡す入力
type LoginInput struct {
	Email    string
	Password string
}

// メールまたはパスワードが違う
var ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", usecase.ErrUnauthorized)

// 入力パスワードと保存したハッシュを比べる約束
type PasswordVerifier interface {
	Verify(plain string, hashed string) bool
}

type LoginUsecase struct {
	userRepo repository.UserRepository
	verifier PasswordVerifier
	issuer   AccessTokenIssuer
}

func NewLoginUsecase(userRepo repository.UserRepository, verifier PasswordVerifier, issuer AccessTokenIssuer) *LoginUsecase {
	return &LoginUsecase{userRepo: userRepo, verifier: verifier, issuer: issuer}
}

// ログイン処理を実行する
func (u *LoginUsecase) Execute(ctx context.Context, in LoginInput) (AuthOutput, error) {
	if err := validator.ValidateLogin(in.Email, in.Password); err != nil {
		return AuthOutput{}, err
	}

	user, err := u.userRepo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(in.Email)))
	if errors.Is(err, repository.ErrNotFound) {
		return AuthOutput{}, ErrInvalidCredentials
	}
	if err != nil {
		return AuthOutput{}, fmt.Errorf("%w: find user: %w", usecase.ErrStorage, err)
	}

	if !u.verifier.Verify(in.Password, user.PasswordHash) {
		logging.FromContext(ctx).Warn("login failed", "user_id", user.ID)
		return AuthOutput{}, ErrInvalidCredentials
	}

	token, exp, err := u.issuer.Issue(*user)
	if err != nil {
		return AuthOutput{}, err
	}
	return AuthOutput{User: *user, Token: token, ExpiresAt: exp}, nil
}

// bcryptハッシュと平文を比較
type BcryptPasswordVerifier struct{}

// DI
func NewBcryptPasswordVerifier() *BcryptPasswordVerifier {
	return &BcryptPasswordVerifier{}
}

func (v *BcryptPasswordVerifier) Verify(plain string, hashed string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)) == nil
}

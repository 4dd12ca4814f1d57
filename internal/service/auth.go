package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/immxrtalbeast/auction_live/internal/domain"
	"github.com/immxrtalbeast/auction_live/internal/repository"
	"github.com/immxrtalbeast/auction_live/lib/logger/sl"
)

// Claims is the token shape the auth gate accepts.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// AuthGate turns a bearer credential into a Principal. It never caches:
// every call re-checks the signature and reloads the user.
type AuthGate struct {
	users  repository.UserRepository
	secret []byte
	issuer string
	log    *slog.Logger
	now    func() time.Time
}

func NewAuthGate(users repository.UserRepository, secret, issuer string, log *slog.Logger) *AuthGate {
	if log == nil {
		log = slog.Default()
	}
	return &AuthGate{
		users:  users,
		secret: []byte(secret),
		issuer: issuer,
		log:    log,
		now:    time.Now,
	}
}

func (g *AuthGate) Authenticate(ctx context.Context, credential string) (domain.Principal, error) {
	const op = "service.auth.authenticate"
	log := g.log.With(slog.String("op", op))

	token := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(credential), "Bearer "))
	if token == "" {
		return domain.Principal{}, domain.NewError(domain.KindInvalidCredential, "credential is missing")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(g.now),
	}
	if g.issuer != "" {
		opts = append(opts, jwt.WithIssuer(g.issuer))
	}

	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return g.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		log.Debug("credential rejected", slog.Any("reason", err))
		return domain.Principal{}, domain.NewError(domain.KindInvalidCredential, "credential is invalid or expired")
	}

	if claims.Subject == "" {
		return domain.Principal{}, domain.NewError(domain.KindInvalidCredential, "credential has no subject")
	}

	user, err := g.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return domain.Principal{}, domain.NewError(domain.KindInvalidCredential, "unknown user")
		}
		log.Error("failed to load user", slog.String("user_id", claims.Subject), sl.Err(err))
		return domain.Principal{}, domain.StoreError(err)
	}

	if !user.IsActive() {
		return domain.Principal{}, domain.NewError(domain.KindUserInactive, "account is not active")
	}

	return domain.PrincipalFromUser(user), nil
}

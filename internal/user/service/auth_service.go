package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"ctfoj/internal/common/cache"
	"ctfoj/internal/common/db"
	"ctfoj/internal/event"
	"ctfoj/internal/user/repository"
	pkgerrors "ctfoj/pkg/errors"
	"ctfoj/pkg/utils/logger"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultAccessTokenTTL = 12 * time.Hour
	defaultLoginFailTTL   = 15 * time.Minute
	defaultLoginFailLimit = 5
	defaultJWTIssuer      = "ctfoj"

	tokenTypeAccess = "access"
)

// AuthServiceConfig holds configuration for AuthService.
type AuthServiceConfig struct {
	JWTSecret      []byte
	JWTIssuer      string
	AccessTokenTTL time.Duration
	LoginFailTTL   time.Duration
	LoginFailLimit int
}

// EventLogger records login outcomes.
type EventLogger interface {
	Log(ctx context.Context, ip, typ, data, cid, uid string) int64
}

// AuthService manages users, teams and access tokens.
type AuthService struct {
	dbProvider     db.Provider
	users          repository.UserRepository
	teams          repository.TeamRepository
	loginFailCache cache.BasicOps
	events         EventLogger
	config         AuthServiceConfig
	now            func() time.Time
}

// NewAuthService creates a new AuthService. loginFailCache and events may be nil.
func NewAuthService(
	provider db.Provider,
	users repository.UserRepository,
	teams repository.TeamRepository,
	loginFailCache cache.BasicOps,
	events EventLogger,
	cfg AuthServiceConfig,
) *AuthService {
	if cfg.AccessTokenTTL == 0 {
		cfg.AccessTokenTTL = defaultAccessTokenTTL
	}
	if cfg.LoginFailTTL == 0 {
		cfg.LoginFailTTL = defaultLoginFailTTL
	}
	if cfg.LoginFailLimit == 0 {
		cfg.LoginFailLimit = defaultLoginFailLimit
	}
	if cfg.JWTIssuer == "" {
		cfg.JWTIssuer = defaultJWTIssuer
	}
	return &AuthService{
		dbProvider:     provider,
		users:          users,
		teams:          teams,
		loginFailCache: loginFailCache,
		events:         events,
		config:         cfg,
		now:            time.Now,
	}
}

// LoginInput represents input for user login.
type LoginInput struct {
	UID      string
	Password string
	IP       string
}

// AuthResult is the outcome of a successful login.
type AuthResult struct {
	AccessToken     string
	AccessExpiresAt time.Time
	UID             string
	Team            string
}

type tokenClaims struct {
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// AddUser creates a user with a bcrypt password hash.
func (s *AuthService) AddUser(ctx context.Context, uid, password string) error {
	if err := validateUID(uid); err != nil {
		return err
	}
	if err := validatePassword(password); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return pkgerrors.Wrap(fmt.Errorf("hash password failed: %w", err), pkgerrors.InternalServerError)
	}
	return s.withTransaction(ctx, func(tx db.Transaction) error {
		if err := s.users.Create(ctx, tx, &repository.User{UID: uid, PasswordHash: string(hash)}); err != nil {
			if stderrors.Is(err, repository.ErrUserExists) {
				return pkgerrors.Newf(pkgerrors.UserAlreadyExists, "User already exists: %s", uid)
			}
			return pkgerrors.Wrap(fmt.Errorf("create user failed: %w", err), pkgerrors.DatabaseError)
		}
		return nil
	})
}

// SetPassword replaces the password of an existing user.
func (s *AuthService) SetPassword(ctx context.Context, uid, password string) error {
	if err := validatePassword(password); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return pkgerrors.Wrap(fmt.Errorf("hash password failed: %w", err), pkgerrors.InternalServerError)
	}
	if err := s.users.UpdatePassword(ctx, nil, uid, string(hash)); err != nil {
		if stderrors.Is(err, repository.ErrUserNotFound) {
			return pkgerrors.New(pkgerrors.UserNotFound)
		}
		return pkgerrors.Wrap(fmt.Errorf("update password failed: %w", err), pkgerrors.DatabaseError)
	}
	return nil
}

// JoinTeam moves uid into tid. An empty tid removes uid from its team.
func (s *AuthService) JoinTeam(ctx context.Context, uid, tid string) error {
	if tid != "" {
		if err := validateTeamID(tid); err != nil {
			return err
		}
	}
	exists, err := s.users.Exists(ctx, uid)
	if err != nil {
		return pkgerrors.Wrap(fmt.Errorf("check user failed: %w", err), pkgerrors.DatabaseError)
	}
	if !exists {
		return pkgerrors.New(pkgerrors.UserNotFound)
	}
	if tid == "" {
		err = s.teams.Leave(ctx, nil, uid)
	} else {
		err = s.teams.Join(ctx, nil, uid, tid)
	}
	if err != nil {
		return pkgerrors.Wrap(fmt.Errorf("update team failed: %w", err), pkgerrors.DatabaseError)
	}
	return nil
}

// Login verifies credentials and issues an access token. Every attempt is
// recorded as a login-success or login-fail event.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (AuthResult, error) {
	if input.UID == "" || input.Password == "" {
		return AuthResult{}, pkgerrors.New(pkgerrors.InvalidCredentials)
	}
	if err := s.checkLoginLimit(ctx, input.UID, input.IP); err != nil {
		return AuthResult{}, err
	}

	hash, err := s.users.GetPasswordHash(ctx, input.UID)
	if err != nil {
		if stderrors.Is(err, repository.ErrUserNotFound) {
			s.recordLoginFailure(ctx, input.UID, input.IP)
			s.logEvent(ctx, input.IP, event.TypeLoginFail, "")
			return AuthResult{}, pkgerrors.New(pkgerrors.InvalidCredentials)
		}
		return AuthResult{}, pkgerrors.Wrap(fmt.Errorf("get user failed: %w", err), pkgerrors.DatabaseError)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(input.Password)); err != nil {
		s.recordLoginFailure(ctx, input.UID, input.IP)
		s.logEvent(ctx, input.IP, event.TypeLoginFail, input.UID)
		return AuthResult{}, pkgerrors.New(pkgerrors.InvalidCredentials)
	}
	s.clearLoginFailure(ctx, input.UID, input.IP)

	token, expiresAt, err := s.generateToken(input.UID)
	if err != nil {
		return AuthResult{}, err
	}
	team, err := s.teamOf(ctx, input.UID)
	if err != nil {
		logger.Warn(ctx, "team lookup failed", zap.String("uid", input.UID), zap.Error(err))
	}
	s.logEvent(ctx, input.IP, event.TypeLoginSuccess, input.UID)
	return AuthResult{AccessToken: token, AccessExpiresAt: expiresAt, UID: input.UID, Team: team}, nil
}

// Profile returns the team uid currently plays for, "" when teamless.
func (s *AuthService) Profile(ctx context.Context, uid string) (string, error) {
	exists, err := s.users.Exists(ctx, uid)
	if err != nil {
		return "", pkgerrors.Wrap(fmt.Errorf("check user failed: %w", err), pkgerrors.DatabaseError)
	}
	if !exists {
		return "", pkgerrors.New(pkgerrors.UserNotFound)
	}
	team, err := s.teamOf(ctx, uid)
	if err != nil {
		return "", pkgerrors.Wrap(fmt.Errorf("get team failed: %w", err), pkgerrors.DatabaseError)
	}
	return team, nil
}

func (s *AuthService) teamOf(ctx context.Context, uid string) (string, error) {
	if s.teams == nil {
		return "", nil
	}
	tid, ok, err := s.teams.TeamOf(ctx, uid)
	if err != nil || !ok {
		return "", err
	}
	return tid, nil
}

// Authenticate validates an access token and returns its uid.
func (s *AuthService) Authenticate(ctx context.Context, raw string) (string, error) {
	if raw == "" {
		return "", pkgerrors.New(pkgerrors.TokenInvalid)
	}
	claims, err := s.parseToken(raw)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (s *AuthService) generateToken(uid string) (string, time.Time, error) {
	if len(s.config.JWTSecret) == 0 {
		return "", time.Time{}, pkgerrors.New(pkgerrors.TokenGenerationFailed).WithMessage("jwt secret is not configured")
	}
	now := s.now()
	expiresAt := now.Add(s.config.AccessTokenTTL)
	claims := tokenClaims{
		TokenType: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.JWTIssuer,
			Subject:   uid,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.config.JWTSecret)
	if err != nil {
		return "", time.Time{}, pkgerrors.Wrap(fmt.Errorf("sign token failed: %w", err), pkgerrors.TokenGenerationFailed)
	}
	return signed, expiresAt, nil
}

func (s *AuthService) parseToken(raw string) (*tokenClaims, error) {
	if len(s.config.JWTSecret) == 0 {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	parsed, err := jwt.ParseWithClaims(raw, &tokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.config.JWTSecret, nil
	})
	if err != nil {
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			return nil, pkgerrors.New(pkgerrors.TokenExpired)
		}
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if claims.Issuer != s.config.JWTIssuer {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if claims.TokenType != tokenTypeAccess {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if claims.Subject == "" {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	return claims, nil
}

func (s *AuthService) logEvent(ctx context.Context, ip, typ, uid string) {
	if s.events == nil {
		return
	}
	s.events.Log(ctx, ip, typ, "", "", uid)
}

func (s *AuthService) withTransaction(ctx context.Context, fn func(tx db.Transaction) error) error {
	database, err := db.CurrentDatabase(s.dbProvider)
	if err != nil {
		return fn(nil)
	}
	if err := database.Transaction(ctx, fn); err != nil {
		if _, ok := err.(*pkgerrors.Error); ok {
			return err
		}
		return pkgerrors.Wrap(fmt.Errorf("transaction failed: %w", err), pkgerrors.TransactionFailed)
	}
	return nil
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-apotek/internal/common"
)

const defaultAccessTTL = 12 * time.Hour

// Service authenticates operators and issues access tokens. Every login opens a new
// draft session whose id travels in the token's sid claim.
type Service struct {
	operators OperatorStore
	secret    []byte
	accessTTL time.Duration
	now       func() time.Time
	signer    jwa.SignatureAlgorithm
	validator TokenValidator
	issuer    string
	audience  string
	clockSkew time.Duration
	log       zerolog.Logger
}

// Config configures the auth service.
type Config struct {
	Operators      OperatorStore
	Secret         string
	AccessTokenTTL time.Duration
	Issuer         string
	Audience       string
	ClockSkew      time.Duration
	Logger         *zerolog.Logger
}

// OperatorView is the safe subset of an operator returned to clients.
type OperatorView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// LoginResult bundles token material returned after a successful login.
type LoginResult struct {
	Operator     OperatorView `json:"operator"`
	SessionID    string       `json:"session_id"`
	AccessToken  string       `json:"access_token"`
	AccessExpiry time.Time    `json:"access_token_expires_at"`
}

// Claims are the identity fields carried by an access token.
type Claims struct {
	OperatorID string
	SessionID  string
}

// NewService constructs a Service instance with sane defaults.
func NewService(cfg Config) (*Service, error) {
	if cfg.Operators == nil {
		return nil, errors.New("auth: operator store is required")
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("auth: secret is required")
	}
	accessTTL := cfg.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = "backend-apotek"
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = "apotek-pos"
	}
	clockSkew := cfg.ClockSkew
	if clockSkew < 0 {
		clockSkew = 0
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "auth").Logger()
	}
	return &Service{
		operators: cfg.Operators,
		secret:    []byte(secret),
		accessTTL: accessTTL,
		now:       time.Now,
		signer:    jwa.HS256,
		validator: TokenValidator{
			Issuer:    issuer,
			Audience:  audience,
			ClockSkew: clockSkew,
			Algorithm: jwa.HS256,
		},
		issuer:    issuer,
		audience:  audience,
		clockSkew: clockSkew,
		log:       logger,
	}, nil
}

// WithNow allows tests to override the time provider.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// HashPassword hashes a password with the default argon2id parameters.
func HashPassword(password string) (string, error) {
	return argon2id.CreateHash(password, argon2id.DefaultParams)
}

func invalidCredentials() error {
	return common.NewAppError("INVALID_CREDENTIALS", "invalid operator id or password", http.StatusUnauthorized, nil)
}

// Login verifies credentials and issues an access token bound to a fresh session.
func (s *Service) Login(ctx context.Context, operatorID, password string) (LoginResult, error) {
	operatorID = strings.TrimSpace(operatorID)
	if operatorID == "" || password == "" {
		return LoginResult{}, invalidCredentials()
	}
	op, err := s.operators.Get(ctx, operatorID)
	if err != nil {
		if errors.Is(err, ErrOperatorNotFound) {
			return LoginResult{}, invalidCredentials()
		}
		return LoginResult{}, err
	}
	ok, err := argon2id.ComparePasswordAndHash(password, op.PasswordHash)
	if err != nil || !ok {
		return LoginResult{}, invalidCredentials()
	}
	sessionID := uuid.NewString()
	token, expiresAt, err := s.signAccessToken(op.ID, sessionID)
	if err != nil {
		return LoginResult{}, fmt.Errorf("sign access token: %w", err)
	}
	s.log.Info().Str("cashier_id", op.ID).Str("session_id", sessionID).Msg("operator logged in")
	return LoginResult{
		Operator:     OperatorView{ID: op.ID, Name: op.Name},
		SessionID:    sessionID,
		AccessToken:  token,
		AccessExpiry: expiresAt,
	}, nil
}

// Me returns the operator profile for id.
func (s *Service) Me(ctx context.Context, operatorID string) (OperatorView, error) {
	op, err := s.operators.Get(ctx, operatorID)
	if err != nil {
		if errors.Is(err, ErrOperatorNotFound) {
			return OperatorView{}, common.NewAppError("NOT_FOUND", "operator not found", http.StatusNotFound, err)
		}
		return OperatorView{}, err
	}
	return OperatorView{ID: op.ID, Name: op.Name}, nil
}

// ParseAccessToken validates an access token and returns its operator and session ids.
func (s *Service) ParseAccessToken(token string) (Claims, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return Claims{}, common.NewAppError("UNAUTHORIZED", "missing token", http.StatusUnauthorized, nil)
	}
	algorithm, err := extractTokenAlgorithm(trimmed)
	if err != nil {
		return Claims{}, common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	if s.validator.Algorithm != "" && algorithm != s.validator.Algorithm {
		return Claims{}, common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, s.secret), jwt.WithValidate(false))
	if err != nil {
		return Claims{}, common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	claims, err := s.validator.Validate(parsed, algorithm, s.now())
	if err != nil {
		return Claims{}, common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	return claims, nil
}

func extractTokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("auth: token contains no signatures")
	}
	var algorithm jwa.SignatureAlgorithm
	for _, sig := range signatures {
		headers := sig.ProtectedHeaders()
		if headers == nil {
			return "", errors.New("auth: token missing protected headers")
		}
		alg := headers.Algorithm()
		if alg == "" {
			return "", errors.New("auth: token missing algorithm")
		}
		if alg == jwa.NoSignature {
			return "", errors.New("auth: token uses none algorithm")
		}
		if algorithm == "" {
			algorithm = alg
		} else if algorithm != alg {
			return "", fmt.Errorf("auth: mixed token algorithms detected")
		}
	}
	return algorithm, nil
}

func (s *Service) signAccessToken(operatorID, sessionID string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.accessTTL)
	token, err := jwt.NewBuilder().
		Subject(operatorID).
		Issuer(s.issuer).
		Audience([]string{s.audience}).
		IssuedAt(now).
		NotBefore(now.Add(-s.clockSkew)).
		Expiration(expiresAt).
		Claim(sessionClaim, sessionID).
		Build()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(s.signer, s.secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return string(signed), expiresAt, nil
}

package auth

import (
	"context"
	"errors"
	"time"

	"backend-cmbraga/internal/db"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	accessTokenTTL  = 15 * time.Minute
	refreshTokenTTL = 7 * 24 * time.Hour
)

var (
	hashPasswordFn    = bcrypt.GenerateFromPassword
	parseWithClaimsFn = jwt.ParseWithClaims
	signTokenFn       = (*Service).signToken
)

type Service struct {
	secret []byte
	db     db.Querier
}

type Claims struct {
	AccountID string `json:"account_id"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

func NewService(secret string, db db.Querier) *Service {
	return &Service{
		secret: []byte(secret),
		db:     db,
	}
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (Account, TokenResponse, error) {
	if req.Email == "" || req.Password == "" {
		return Account{}, TokenResponse{}, errors.New("email and password required")
	}
	if req.Role == "" {
		req.Role = RoleParent
	}
	hash, err := hashPasswordFn([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return Account{}, TokenResponse{}, err
	}

	account := Account{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		Role:         req.Role,
		ParentID:     req.ParentID,
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO accounts (id, email, password_hash, full_name, role, parent_id)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at
	`, account.ID, account.Email, account.PasswordHash, account.FullName, account.Role, account.ParentID)
	if err := row.Scan(&account.CreatedAt); err != nil {
		return Account{}, TokenResponse{}, err
	}

	tokens, err := s.GenerateTokens(ctx, account.ID, account.Role)
	if err != nil {
		return Account{}, TokenResponse{}, err
	}
	return account, tokens, nil
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (Account, TokenResponse, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, email, password_hash, full_name, role, COALESCE(parent_id,''), created_at
		FROM accounts WHERE email = $1
	`, req.Email)

	var account Account
	if err := row.Scan(&account.ID, &account.Email, &account.PasswordHash, &account.FullName, &account.Role, &account.ParentID, &account.CreatedAt); err != nil {
		return Account{}, TokenResponse{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.Password)); err != nil {
		return Account{}, TokenResponse{}, errors.New("invalid credentials")
	}

	tokens, err := s.GenerateTokens(ctx, account.ID, account.Role)
	if err != nil {
		return Account{}, TokenResponse{}, err
	}
	return account, tokens, nil
}

func (s *Service) GenerateTokens(ctx context.Context, accountID, role string) (TokenResponse, error) {
	access, err := signTokenFn(s, accountID, role, accessTokenTTL)
	if err != nil {
		return TokenResponse{}, err
	}

	refresh, err := signTokenFn(s, accountID, role, refreshTokenTTL)
	if err != nil {
		return TokenResponse{}, err
	}

	if err := s.saveRefreshToken(ctx, refresh, accountID, refreshTokenTTL); err != nil {
		return TokenResponse{}, err
	}

	return TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(accessTokenTTL.Seconds()),
	}, nil
}

func (s *Service) ValidateRefreshToken(ctx context.Context, token string) (*Claims, error) {
	claims, err := s.parseToken(token)
	if err != nil {
		return nil, err
	}

	accountID, expiresAt, err := s.lookupRefreshToken(ctx, token)
	if err != nil || accountID != claims.AccountID || time.Now().After(expiresAt) {
		return nil, errors.New("refresh token invalid")
	}
	return claims, nil
}

func (s *Service) ValidateAccessToken(token string) (*Claims, error) {
	return s.parseToken(token)
}

func (s *Service) signToken(accountID, role string, ttl time.Duration) (string, error) {
	claims := Claims{
		AccountID: accountID,
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *Service) parseToken(token string) (*Claims, error) {
	parsed, err := parseWithClaimsFn(token, &Claims{}, func(_ *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("token invalid")
	}
	return claims, nil
}

func (s *Service) saveRefreshToken(ctx context.Context, token, accountID string, ttl time.Duration) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO refresh_tokens (id, account_id, token, expires_at)
		VALUES ($1,$2,$3,$4)
	`, uuid.NewString(), accountID, token, time.Now().Add(ttl))
	return err
}

func (s *Service) lookupRefreshToken(ctx context.Context, token string) (string, time.Time, error) {
	row := s.db.QueryRow(ctx, `
		SELECT account_id, expires_at
		FROM refresh_tokens
		WHERE token = $1 AND revoked_at IS NULL
	`, token)
	var accountID string
	var expiresAt time.Time
	if err := row.Scan(&accountID, &expiresAt); err != nil {
		return "", time.Time{}, err
	}
	return accountID, expiresAt, nil
}

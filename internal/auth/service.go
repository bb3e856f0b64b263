package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"backend-runcheer/internal/db"
	"backend-runcheer/internal/users"
)

const (
	accessTokenTTL  = 15 * time.Minute
	refreshTokenTTL = 7 * 24 * time.Hour
)

var ErrKakaoLogin = errors.New("kakao login failed")

var (
	signTokenFn       = (*Service).signToken
	parseWithClaimsFn = jwt.ParseWithClaims
)

type UserStore interface {
	Upsert(ctx context.Context, u users.User) (users.User, error)
}

type Service struct {
	secret []byte
	db     db.Querier
	kakao  *KakaoClient
	users  UserStore
}

func NewService(secret string, db db.Querier, kakao *KakaoClient, users UserStore) *Service {
	return &Service{
		secret: []byte(secret),
		db:     db,
		kakao:  kakao,
		users:  users,
	}
}

// LoginWithKakao exchanges the authorization code, stores the Kakao profile
// and issues a RunCheer token pair.
func (s *Service) LoginWithKakao(ctx context.Context, req KakaoTokenRequest) (users.User, TokenResponse, error) {
	if req.Code == "" {
		return users.User{}, TokenResponse{}, errors.New("authorization code is required")
	}
	tok, err := s.kakao.Exchange(ctx, req.Code, req.RedirectURI)
	if err != nil {
		return users.User{}, TokenResponse{}, fmt.Errorf("%w: %v", ErrKakaoLogin, err)
	}
	profile, err := s.kakao.Profile(ctx, tok)
	if err != nil {
		return users.User{}, TokenResponse{}, fmt.Errorf("%w: %v", ErrKakaoLogin, err)
	}

	user, err := s.users.Upsert(ctx, users.User{
		KakaoID:      strconv.FormatInt(profile.ID, 10),
		Name:         profile.Nickname(),
		ProfileImage: profile.ImageURL(),
	})
	if err != nil {
		return users.User{}, TokenResponse{}, err
	}

	tokens, err := s.GenerateTokens(ctx, user.KakaoID)
	if err != nil {
		return users.User{}, TokenResponse{}, err
	}
	return user, tokens, nil
}

func (s *Service) GenerateTokens(ctx context.Context, userID string) (TokenResponse, error) {
	access, err := signTokenFn(s, userID, accessTokenTTL)
	if err != nil {
		return TokenResponse{}, err
	}

	refresh, err := signTokenFn(s, userID, refreshTokenTTL)
	if err != nil {
		return TokenResponse{}, err
	}

	if err := s.saveRefreshToken(ctx, refresh, userID, refreshTokenTTL); err != nil {
		return TokenResponse{}, err
	}

	return TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(accessTokenTTL.Seconds()),
	}, nil
}

func (s *Service) ValidateRefreshToken(ctx context.Context, token string) (string, error) {
	claims, err := s.parseToken(token)
	if err != nil {
		return "", err
	}

	userID, expiresAt, err := s.lookupRefreshToken(ctx, token)
	if err != nil || userID != claims.UserID || time.Now().After(expiresAt) {
		return "", errors.New("refresh token invalid")
	}
	return claims.UserID, nil
}

func (s *Service) ValidateAccessToken(token string) (string, error) {
	claims, err := s.parseToken(token)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

func (s *Service) signToken(userID string, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
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

func (s *Service) saveRefreshToken(ctx context.Context, token, userID string, ttl time.Duration) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token, expires_at)
		VALUES ($1,$2,$3,$4)
	`, uuid.NewString(), userID, token, time.Now().Add(ttl))
	return err
}

func (s *Service) lookupRefreshToken(ctx context.Context, token string) (string, time.Time, error) {
	row := s.db.QueryRow(ctx, `
		SELECT user_id, expires_at
		FROM refresh_tokens
		WHERE token = $1 AND revoked_at IS NULL
	`, token)
	var userID string
	var expiresAt time.Time
	if err := row.Scan(&userID, &expiresAt); err != nil {
		return "", time.Time{}, err
	}
	return userID, expiresAt, nil
}

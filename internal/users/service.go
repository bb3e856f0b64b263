package users

import (
	"context"
	"errors"

	"backend-runcheer/internal/db"
)

var (
	ErrNotFound  = errors.New("user not found")
	ErrDuplicate = errors.New("user already exists")
)

type Service struct {
	db db.Querier
}

func NewService(db db.Querier) *Service {
	return &Service{db: db}
}

func (s *Service) Get(ctx context.Context, kakaoID string) (User, error) {
	row := s.db.QueryRow(ctx, `
		SELECT kakao_id, name, profile_image, created_at, updated_at
		FROM users WHERE kakao_id=$1
	`, kakaoID)
	return scanUser(row)
}

func (s *Service) Create(ctx context.Context, u User) (User, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO users (kakao_id, name, profile_image)
		VALUES ($1,$2,$3)
		RETURNING kakao_id, name, profile_image, created_at, updated_at
	`, u.KakaoID, u.Name, u.ProfileImage)
	created, err := scanUser(row)
	if db.IsUniqueViolation(err) {
		return User{}, ErrDuplicate
	}
	return created, err
}

// Upsert records the latest profile from the identity provider.
func (s *Service) Upsert(ctx context.Context, u User) (User, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO users (kakao_id, name, profile_image)
		VALUES ($1,$2,$3)
		ON CONFLICT (kakao_id) DO UPDATE
		SET name=EXCLUDED.name, profile_image=EXCLUDED.profile_image, updated_at=NOW()
		RETURNING kakao_id, name, profile_image, created_at, updated_at
	`, u.KakaoID, u.Name, u.ProfileImage)
	return scanUser(row)
}

func (s *Service) Update(ctx context.Context, kakaoID string, p Patch) (User, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE users
		SET name=COALESCE($2, name),
			profile_image=COALESCE($3, profile_image),
			updated_at=NOW()
		WHERE kakao_id=$1
		RETURNING kakao_id, name, profile_image, created_at, updated_at
	`, kakaoID, p.Name, p.ProfileImage)
	return scanUser(row)
}

func (s *Service) Delete(ctx context.Context, kakaoID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM users WHERE kakao_id=$1`, kakaoID)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (User, error) {
	var u User
	if err := row.Scan(&u.KakaoID, &u.Name, &u.ProfileImage, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if db.IsNoRows(err) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

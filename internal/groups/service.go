package groups

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"backend-runcheer/internal/db"
)

var (
	ErrNotFound       = errors.New("group not found")
	ErrMemberNotFound = errors.New("member not found")
	ErrAlreadyMember  = errors.New("already a member")
	ErrBibTaken       = errors.New("bib number already exists in this group")
	ErrDuplicate      = errors.New("duplicate entry")
)

const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 6
)

type Service struct {
	db       db.Querier
	validate *validator.Validate
}

func NewService(db db.Querier) *Service {
	return &Service{db: db, validate: validator.New()}
}

// Create inserts a group together with its creator's membership.
func (s *Service) Create(ctx context.Context, in CreateInput) (Group, Member, error) {
	if in.Role == "" {
		in.Role = RoleRunner
	}
	if err := s.validate.Struct(in); err != nil {
		return Group{}, Member{}, err
	}
	if in.Code == "" {
		code, err := NewCode()
		if err != nil {
			return Group{}, Member{}, err
		}
		in.Code = code
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Group{}, Member{}, err
	}

	group := Group{Code: in.Code, Name: in.Name, EventID: in.EventID, CreatorKakaoID: in.CreatorKakaoID}
	row := tx.QueryRow(ctx, `
		INSERT INTO groups (code, name, event_id, creator_kakao_id)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at
	`, group.Code, group.Name, group.EventID, group.CreatorKakaoID)
	if err := row.Scan(&group.CreatedAt); err != nil {
		_ = tx.Rollback(ctx)
		return Group{}, Member{}, mapWriteErr(err)
	}

	member, err := insertMember(ctx, tx, Member{
		GroupCode: in.Code,
		KakaoID:   in.CreatorKakaoID,
		Role:      in.Role,
		Bib:       in.Bib,
		PhotoURL:  in.PhotoURL,
		TeamName:  in.TeamName,
	})
	if err != nil {
		_ = tx.Rollback(ctx)
		return Group{}, Member{}, mapWriteErr(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Group{}, Member{}, err
	}
	return group, member, nil
}

func (s *Service) Join(ctx context.Context, in JoinInput) (Member, error) {
	if in.Role == "" {
		in.Role = RoleRunner
	}
	if err := s.validate.Struct(in); err != nil {
		return Member{}, err
	}
	if _, err := s.Get(ctx, in.Code); err != nil {
		return Member{}, err
	}

	var exists bool
	if err := s.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM group_members WHERE group_code=$1 AND kakao_id=$2)
	`, in.Code, in.KakaoID).Scan(&exists); err != nil {
		return Member{}, err
	}
	if exists {
		return Member{}, ErrAlreadyMember
	}

	if in.Role == RoleRunner {
		if err := s.db.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM group_members WHERE group_code=$1 AND bib=$2)
		`, in.Code, in.Bib).Scan(&exists); err != nil {
			return Member{}, err
		}
		if exists {
			return Member{}, ErrBibTaken
		}
	}

	member, err := insertMember(ctx, s.db, Member{
		GroupCode: in.Code,
		KakaoID:   in.KakaoID,
		Role:      in.Role,
		Bib:       in.Bib,
		PhotoURL:  in.PhotoURL,
		TeamName:  in.TeamName,
	})
	if err != nil {
		return Member{}, mapWriteErr(err)
	}
	return member, nil
}

// Leave removes a membership. With an empty code every membership of the
// user is removed.
func (s *Service) Leave(ctx context.Context, code, kakaoID string) error {
	var (
		tag pgconn.CommandTag
		err error
	)
	if code == "" {
		tag, err = s.db.Exec(ctx, `DELETE FROM group_members WHERE kakao_id=$1`, kakaoID)
	} else {
		tag, err = s.db.Exec(ctx, `DELETE FROM group_members WHERE group_code=$1 AND kakao_id=$2`, code, kakaoID)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMemberNotFound
	}
	return nil
}

func (s *Service) Get(ctx context.Context, code string) (Group, error) {
	row := s.db.QueryRow(ctx, `
		SELECT code, name, event_id, creator_kakao_id, created_at
		FROM groups WHERE code=$1
	`, code)
	var g Group
	if err := row.Scan(&g.Code, &g.Name, &g.EventID, &g.CreatorKakaoID, &g.CreatedAt); err != nil {
		if db.IsNoRows(err) {
			return Group{}, ErrNotFound
		}
		return Group{}, err
	}
	return g, nil
}

func (s *Service) Delete(ctx context.Context, code string) (Group, error) {
	row := s.db.QueryRow(ctx, `
		DELETE FROM groups WHERE code=$1
		RETURNING code, name, event_id, creator_kakao_id, created_at
	`, code)
	var g Group
	if err := row.Scan(&g.Code, &g.Name, &g.EventID, &g.CreatorKakaoID, &g.CreatedAt); err != nil {
		if db.IsNoRows(err) {
			return Group{}, ErrNotFound
		}
		return Group{}, err
	}
	return g, nil
}

// ForUser returns the group a user belongs to.
func (s *Service) ForUser(ctx context.Context, kakaoID string) (Group, error) {
	row := s.db.QueryRow(ctx, `
		SELECT g.code, g.name, g.event_id, g.creator_kakao_id, g.created_at, COALESCE(u.name, '')
		FROM groups g
		INNER JOIN group_members gm ON g.code = gm.group_code
		LEFT JOIN users u ON g.creator_kakao_id = u.kakao_id
		WHERE gm.kakao_id=$1
		ORDER BY gm.joined_at DESC
		LIMIT 1
	`, kakaoID)
	var g Group
	if err := row.Scan(&g.Code, &g.Name, &g.EventID, &g.CreatorKakaoID, &g.CreatedAt, &g.CreatorName); err != nil {
		if db.IsNoRows(err) {
			return Group{}, ErrNotFound
		}
		return Group{}, err
	}
	return g, nil
}

// Runners lists members with their profiles, runners before supporters.
func (s *Service) Runners(ctx context.Context, code string) ([]Runner, error) {
	rows, err := s.db.Query(ctx, `
		SELECT gm.kakao_id, COALESCE(u.name, ''), COALESCE(u.profile_image, ''), gm.role, gm.bib, gm.photo_url, gm.team_name, gm.joined_at
		FROM group_members gm
		LEFT JOIN users u ON gm.kakao_id = u.kakao_id
		WHERE gm.group_code=$1
		ORDER BY (gm.role = 'runner') DESC, u.name
	`, code)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runners []Runner
	for rows.Next() {
		var r Runner
		if err := rows.Scan(&r.KakaoID, &r.Name, &r.ProfileImage, &r.Role, &r.Bib, &r.PhotoURL, &r.TeamName, &r.JoinedAt); err != nil {
			return nil, err
		}
		runners = append(runners, r)
	}
	return runners, rows.Err()
}

func (s *Service) UpdatePhoto(ctx context.Context, in PhotoUpdate) error {
	if err := s.validate.Struct(in); err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE group_members SET photo_url=$4
		WHERE group_code=$1 AND kakao_id=$2 AND bib=$3
	`, in.GroupCode, in.KakaoID, in.Bib, in.PhotoURL)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// Roster loads a group and its members in one call for tracking.
func (s *Service) Roster(ctx context.Context, code string) (Group, []Runner, error) {
	g, err := s.Get(ctx, code)
	if err != nil {
		return Group{}, nil, err
	}
	runners, err := s.Runners(ctx, code)
	if err != nil {
		return Group{}, nil, err
	}
	return g, runners, nil
}

// NewCode returns a random invite code.
func NewCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate group code: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertMember(ctx context.Context, q rowQuerier, m Member) (Member, error) {
	row := q.QueryRow(ctx, `
		INSERT INTO group_members (group_code, kakao_id, role, bib, photo_url, team_name)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING joined_at
	`, m.GroupCode, m.KakaoID, m.Role, m.Bib, m.PhotoURL, m.TeamName)
	if err := row.Scan(&m.JoinedAt); err != nil {
		return Member{}, err
	}
	return m, nil
}

func mapWriteErr(err error) error {
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

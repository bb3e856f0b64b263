package groups

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
)

var errQuery = errors.New("query failed")

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func groupRow(code string) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"code", "name", "event_id", "creator_kakao_id", "created_at"}).
		AddRow(code, "Crew", 132, "k-1", time.Now())
}

func TestCreateWithMember(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO groups`).
		WithArgs("RUN123", "Crew", 132, "k-1").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectQuery(`INSERT INTO group_members`).
		WithArgs("RUN123", "k-1", RoleRunner, "1001", "https://img/1.jpg", "").
		WillReturnRows(pgxmock.NewRows([]string{"joined_at"}).AddRow(time.Now()))
	mock.ExpectCommit()

	group, member, err := svc.Create(context.Background(), CreateInput{
		Code:           "RUN123",
		Name:           "Crew",
		EventID:        132,
		CreatorKakaoID: "k-1",
		Bib:            "1001",
		PhotoURL:       "https://img/1.jpg",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if group.Code != "RUN123" || member.Role != RoleRunner || member.Bib != "1001" {
		t.Fatalf("unexpected result %+v %+v", group, member)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateGeneratesCodeForSupporter(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO groups`).
		WithArgs(pgxmock.AnyArg(), "Cheer", 133, "k-2").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectQuery(`INSERT INTO group_members`).
		WithArgs(pgxmock.AnyArg(), "k-2", RoleSupporter, "", "", "").
		WillReturnRows(pgxmock.NewRows([]string{"joined_at"}).AddRow(time.Now()))
	mock.ExpectCommit()

	group, _, err := svc.Create(context.Background(), CreateInput{Name: "Cheer", EventID: 133, CreatorKakaoID: "k-2", Role: RoleSupporter})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(group.Code) != codeLength {
		t.Fatalf("expected generated code, got %q", group.Code)
	}
}

func TestCreateRunnerRequiresBibAndPhoto(t *testing.T) {
	svc := NewService(nil)
	_, _, err := svc.Create(context.Background(), CreateInput{Name: "Crew", EventID: 1, CreatorKakaoID: "k-1"})
	if err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestCreateDuplicateRollsBack(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO groups`).
		WithArgs("DUP", "Crew", 132, "k-1").
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	_, _, err := svc.Create(context.Background(), CreateInput{Code: "DUP", Name: "Crew", EventID: 132, CreatorKakaoID: "k-1", Role: RoleSupporter})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateMemberInsertError(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO groups`).
		WithArgs("X1", "Crew", 132, "k-1").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectQuery(`INSERT INTO group_members`).
		WillReturnError(errQuery)
	mock.ExpectRollback()

	_, _, err := svc.Create(context.Background(), CreateInput{Code: "X1", Name: "Crew", EventID: 132, CreatorKakaoID: "k-1", Role: RoleSupporter})
	if !errors.Is(err, errQuery) {
		t.Fatalf("expected query error, got %v", err)
	}
}

func TestJoin(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock)

	mock.ExpectQuery(`SELECT code, name, event_id, creator_kakao_id, created_at`).
		WithArgs("RUN123").
		WillReturnRows(groupRow("RUN123"))
	mock.ExpectQuery(`SELECT EXISTS .* kakao_id=\$2`).
		WithArgs("RUN123", "k-9").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`SELECT EXISTS .* bib=\$2`).
		WithArgs("RUN123", "2002").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`INSERT INTO group_members`).
		WithArgs("RUN123", "k-9", RoleRunner, "2002", "p.jpg", "").
		WillReturnRows(pgxmock.NewRows([]string{"joined_at"}).AddRow(time.Now()))

	member, err := svc.Join(context.Background(), JoinInput{Code: "RUN123", KakaoID: "k-9", Bib: "2002", PhotoURL: "p.jpg"})
	if err != nil || member.KakaoID != "k-9" {
		t.Fatalf("join: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestJoinRejections(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock)

	mock.ExpectQuery(`SELECT code, name, event_id, creator_kakao_id, created_at`).
		WithArgs("NOPE").
		WillReturnError(pgx.ErrNoRows)
	if _, err := svc.Join(context.Background(), JoinInput{Code: "NOPE", KakaoID: "k", Role: RoleSupporter}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	mock.ExpectQuery(`SELECT code, name, event_id, creator_kakao_id, created_at`).
		WithArgs("G1").
		WillReturnRows(groupRow("G1"))
	mock.ExpectQuery(`SELECT EXISTS .* kakao_id=\$2`).
		WithArgs("G1", "k").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	if _, err := svc.Join(context.Background(), JoinInput{Code: "G1", KakaoID: "k", Role: RoleSupporter}); !errors.Is(err, ErrAlreadyMember) {
		t.Fatalf("expected ErrAlreadyMember, got %v", err)
	}

	mock.ExpectQuery(`SELECT code, name, event_id, creator_kakao_id, created_at`).
		WithArgs("G1").
		WillReturnRows(groupRow("G1"))
	mock.ExpectQuery(`SELECT EXISTS .* kakao_id=\$2`).
		WithArgs("G1", "k2").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`SELECT EXISTS .* bib=\$2`).
		WithArgs("G1", "7").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	if _, err := svc.Join(context.Background(), JoinInput{Code: "G1", KakaoID: "k2", Bib: "7", PhotoURL: "p"}); !errors.Is(err, ErrBibTaken) {
		t.Fatalf("expected ErrBibTaken, got %v", err)
	}
}

func TestLeave(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock)

	mock.ExpectExec(`DELETE FROM group_members WHERE group_code=\$1 AND kakao_id=\$2`).
		WithArgs("G1", "k").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	if err := svc.Leave(context.Background(), "G1", "k"); err != nil {
		t.Fatalf("leave: %v", err)
	}

	mock.ExpectExec(`DELETE FROM group_members WHERE kakao_id=\$1`).
		WithArgs("k").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	if err := svc.Leave(context.Background(), "", "k"); !errors.Is(err, ErrMemberNotFound) {
		t.Fatalf("expected ErrMemberNotFound, got %v", err)
	}

	mock.ExpectExec(`DELETE FROM group_members`).WillReturnError(errQuery)
	if err := svc.Leave(context.Background(), "G1", "k"); !errors.Is(err, errQuery) {
		t.Fatalf("expected query error, got %v", err)
	}
}

func TestGetDeleteForUser(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock)

	mock.ExpectQuery(`DELETE FROM groups`).
		WithArgs("G1").
		WillReturnRows(groupRow("G1"))
	if g, err := svc.Delete(context.Background(), "G1"); err != nil || g.Code != "G1" {
		t.Fatalf("delete: %v", err)
	}

	mock.ExpectQuery(`DELETE FROM groups`).
		WithArgs("G2").
		WillReturnError(pgx.ErrNoRows)
	if _, err := svc.Delete(context.Background(), "G2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	mock.ExpectQuery(`SELECT g.code, g.name`).
		WithArgs("k-1").
		WillReturnRows(pgxmock.NewRows([]string{"code", "name", "event_id", "creator_kakao_id", "created_at", "creator_name"}).
			AddRow("G1", "Crew", 132, "k-1", time.Now(), "Kim"))
	if g, err := svc.ForUser(context.Background(), "k-1"); err != nil || g.CreatorName != "Kim" {
		t.Fatalf("for user: %v", err)
	}

	mock.ExpectQuery(`SELECT g.code, g.name`).
		WithArgs("k-2").
		WillReturnError(pgx.ErrNoRows)
	if _, err := svc.ForUser(context.Background(), "k-2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	mock.ExpectQuery(`SELECT code, name, event_id, creator_kakao_id, created_at`).
		WithArgs("G3").
		WillReturnError(errQuery)
	if _, err := svc.Get(context.Background(), "G3"); !errors.Is(err, errQuery) {
		t.Fatalf("expected query error, got %v", err)
	}
}

func TestRosterAndRunners(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock)

	mock.ExpectQuery(`SELECT code, name, event_id, creator_kakao_id, created_at`).
		WithArgs("G1").
		WillReturnRows(groupRow("G1"))
	mock.ExpectQuery(`SELECT gm.kakao_id`).
		WithArgs("G1").
		WillReturnRows(pgxmock.NewRows([]string{"kakao_id", "name", "profile_image", "role", "bib", "photo_url", "team_name", "joined_at"}).
			AddRow("k-1", "Kim", "p.jpg", RoleRunner, "1001", "c.jpg", "", time.Now()).
			AddRow("k-2", "Lee", "", RoleSupporter, "", "", "", time.Now()))

	g, runners, err := svc.Roster(context.Background(), "G1")
	if err != nil || g.EventID != 132 || len(runners) != 2 {
		t.Fatalf("roster: %v", err)
	}
	if runners[0].Bib != "1001" || runners[0].PhotoURL != "c.jpg" {
		t.Fatalf("unexpected runner %+v", runners[0])
	}

	mock.ExpectQuery(`SELECT gm.kakao_id`).WithArgs("G2").WillReturnError(errQuery)
	if _, err := svc.Runners(context.Background(), "G2"); !errors.Is(err, errQuery) {
		t.Fatalf("expected query error, got %v", err)
	}
}

func TestUpdatePhoto(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock)

	mock.ExpectExec(`UPDATE group_members SET photo_url`).
		WithArgs("G1", "k-1", "1001", "new.jpg").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	if err := svc.UpdatePhoto(context.Background(), PhotoUpdate{GroupCode: "G1", KakaoID: "k-1", Bib: "1001", PhotoURL: "new.jpg"}); err != nil {
		t.Fatalf("update photo: %v", err)
	}

	mock.ExpectExec(`UPDATE group_members SET photo_url`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	if err := svc.UpdatePhoto(context.Background(), PhotoUpdate{GroupCode: "G1", KakaoID: "k-1", Bib: "9", PhotoURL: "x"}); !errors.Is(err, ErrMemberNotFound) {
		t.Fatalf("expected ErrMemberNotFound, got %v", err)
	}

	if err := svc.UpdatePhoto(context.Background(), PhotoUpdate{GroupCode: "G1"}); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestNewCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := NewCode()
		if err != nil || len(code) != codeLength {
			t.Fatalf("bad code %q: %v", code, err)
		}
		for _, r := range code {
			if !containsRune(codeAlphabet, r) {
				t.Fatalf("unexpected rune %q in %q", r, code)
			}
		}
		seen[code] = true
	}
	if len(seen) < 45 {
		t.Fatalf("codes not random enough: %d unique", len(seen))
	}
}

func containsRune(s string, r rune) bool {
	for _, c := range s {
		if c == r {
			return true
		}
	}
	return false
}

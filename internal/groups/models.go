package groups

import "time"

const (
	RoleRunner    = "runner"
	RoleSupporter = "supporter"
)

type Group struct {
	Code           string    `json:"code"`
	Name           string    `json:"name"`
	EventID        int       `json:"event_id"`
	CreatorKakaoID string    `json:"creator_kakao_id"`
	CreatorName    string    `json:"creator_name,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type Member struct {
	GroupCode string    `json:"group_code"`
	KakaoID   string    `json:"kakao_id"`
	Role      string    `json:"role"`
	Bib       string    `json:"bib,omitempty"`
	PhotoURL  string    `json:"photo_url,omitempty"`
	TeamName  string    `json:"team_name,omitempty"`
	JoinedAt  time.Time `json:"joined_at"`
}

// Runner is a member joined with the user profile.
type Runner struct {
	KakaoID      string    `json:"kakao_id"`
	Name         string    `json:"name"`
	ProfileImage string    `json:"profile_image"`
	Role         string    `json:"role"`
	Bib          string    `json:"bib"`
	PhotoURL     string    `json:"photo_url"`
	TeamName     string    `json:"team_name"`
	JoinedAt     time.Time `json:"joined_at"`
}

type CreateInput struct {
	Code           string `json:"code" validate:"omitempty,alphanum,max=16"`
	Name           string `json:"name" validate:"required"`
	EventID        int    `json:"eventId" validate:"gt=0"`
	CreatorKakaoID string `json:"creatorKakaoId" validate:"required"`
	Role           string `json:"role" validate:"omitempty,oneof=runner supporter"`
	Bib            string `json:"bib" validate:"required_if=Role runner"`
	PhotoURL       string `json:"photoUrl" validate:"required_if=Role runner"`
	TeamName       string `json:"teamName"`
}

type JoinInput struct {
	Code     string `json:"code" validate:"required"`
	KakaoID  string `json:"kakaoId" validate:"required"`
	Role     string `json:"role" validate:"omitempty,oneof=runner supporter"`
	Bib      string `json:"bib" validate:"required_if=Role runner"`
	PhotoURL string `json:"photoUrl" validate:"required_if=Role runner"`
	TeamName string `json:"teamName"`
}

type PhotoUpdate struct {
	GroupCode string `json:"groupCode" validate:"required"`
	KakaoID   string `json:"kakaoId" validate:"required"`
	Bib       string `json:"bib" validate:"required"`
	PhotoURL  string `json:"photoUrl" validate:"required"`
}

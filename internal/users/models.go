package users

import "time"

type User struct {
	KakaoID      string    `json:"kakao_id"`
	Name         string    `json:"name"`
	ProfileImage string    `json:"profile_image"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Patch carries optional fields; nil leaves the stored value unchanged.
type Patch struct {
	Name         *string `json:"name"`
	ProfileImage *string `json:"profileImage"`
}

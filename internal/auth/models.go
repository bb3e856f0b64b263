package auth

import (
	"github.com/golang-jwt/jwt/v5"

	"backend-runcheer/internal/users"
)

// Claims carry the Kakao user id as the subject of RunCheer tokens.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

type KakaoTokenRequest struct {
	Code        string `json:"code"`
	RedirectURI string `json:"redirectUri"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

type LoginResponse struct {
	User   users.User    `json:"user"`
	Tokens TokenResponse `json:"tokens"`
}

// KakaoProfile is the subset of /v2/user/me we read. Older apps only fill
// properties, newer ones only kakao_account.profile.
type KakaoProfile struct {
	ID         int64 `json:"id"`
	Properties struct {
		Nickname     string `json:"nickname"`
		ProfileImage string `json:"profile_image"`
	} `json:"properties"`
	KakaoAccount struct {
		Profile struct {
			Nickname        string `json:"nickname"`
			ProfileImageURL string `json:"profile_image_url"`
		} `json:"profile"`
	} `json:"kakao_account"`
}

func (p KakaoProfile) Nickname() string {
	if p.KakaoAccount.Profile.Nickname != "" {
		return p.KakaoAccount.Profile.Nickname
	}
	return p.Properties.Nickname
}

func (p KakaoProfile) ImageURL() string {
	if p.KakaoAccount.Profile.ProfileImageURL != "" {
		return p.KakaoAccount.Profile.ProfileImageURL
	}
	return p.Properties.ProfileImage
}

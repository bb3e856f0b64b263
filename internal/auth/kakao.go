package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
)

type KakaoConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthURL      string
	TokenURL     string
	ProfileURL   string
}

// KakaoClient performs the authorization-code exchange and profile lookup.
type KakaoClient struct {
	oauth      oauth2.Config
	profileURL string
}

func NewKakaoClient(cfg KakaoConfig) *KakaoClient {
	return &KakaoClient{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		profileURL: cfg.ProfileURL,
	}
}

// Exchange trades an authorization code for a Kakao token. A non-empty
// redirectURI overrides the configured one and must match the authorize call.
func (k *KakaoClient) Exchange(ctx context.Context, code, redirectURI string) (*oauth2.Token, error) {
	conf := k.oauth
	if redirectURI != "" {
		conf.RedirectURL = redirectURI
	}
	return conf.Exchange(ctx, code)
}

func (k *KakaoClient) Profile(ctx context.Context, tok *oauth2.Token) (KakaoProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.profileURL, nil)
	if err != nil {
		return KakaoProfile{}, err
	}
	resp, err := k.oauth.Client(ctx, tok).Do(req)
	if err != nil {
		return KakaoProfile{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return KakaoProfile{}, fmt.Errorf("kakao profile: status %d: %s", resp.StatusCode, body)
	}
	var p KakaoProfile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return KakaoProfile{}, fmt.Errorf("kakao profile: %w", err)
	}
	if p.ID == 0 {
		return KakaoProfile{}, fmt.Errorf("kakao profile: missing id")
	}
	return p, nil
}

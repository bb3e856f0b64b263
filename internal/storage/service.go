package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"backend-runcheer/internal/db"
)

const (
	maxImageBytes = 10 << 20
	kindRunner    = "runner-photo"
)

var (
	ErrInvalidImage = errors.New("invalid image data")
	ErrTooLarge     = errors.New("image too large")
)

type UploadRequest struct {
	KakaoID   string `json:"kakaoId" validate:"required"`
	GroupCode string `json:"groupCode" validate:"required"`
	ImageData string `json:"imageData" validate:"required"`
}

type UploadResult struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type Service struct {
	db       db.Querier
	blob     Blob
	now      func() time.Time
	validate *validator.Validate
}

func NewService(db db.Querier, blob Blob) *Service {
	return &Service{db: db, blob: blob, now: time.Now, validate: validator.New()}
}

// Upload stores a runner photo sent as a base64 data URL.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (UploadResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return UploadResult{}, err
	}
	contentType, data, err := DecodeDataURL(req.ImageData)
	if err != nil {
		return UploadResult{}, err
	}

	key := fmt.Sprintf("runners/runner-%s-%s-%d%s", req.KakaoID, req.GroupCode, s.now().UnixMilli(), extension(contentType))
	url, err := s.blob.Put(ctx, key, contentType, data)
	if err != nil {
		return UploadResult{}, fmt.Errorf("store image: %w", err)
	}
	id, err := s.SaveObject(ctx, req.KakaoID, url, kindRunner)
	if err != nil {
		return UploadResult{}, err
	}
	return UploadResult{ID: id, URL: url}, nil
}

func (s *Service) SaveObject(ctx context.Context, userID, url, kind string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(ctx, `
		INSERT INTO storage_objects (id, user_id, url, kind)
		VALUES ($1,$2,$3,$4)
	`, id, userID, url, kind)
	if err != nil {
		return "", err
	}
	return id, nil
}

// DecodeDataURL accepts "data:image/png;base64,..." or bare base64, which is
// taken to be JPEG.
func DecodeDataURL(s string) (string, []byte, error) {
	contentType := "image/jpeg"
	payload := s
	if rest, ok := strings.CutPrefix(s, "data:"); ok {
		meta, data, found := strings.Cut(rest, ",")
		if !found || !strings.HasSuffix(meta, ";base64") {
			return "", nil, ErrInvalidImage
		}
		contentType = strings.TrimSuffix(meta, ";base64")
		payload = data
	}
	if !strings.HasPrefix(contentType, "image/") {
		return "", nil, ErrInvalidImage
	}
	if base64.StdEncoding.DecodedLen(len(payload)) > maxImageBytes {
		return "", nil, ErrTooLarge
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil || len(data) == 0 {
		return "", nil, ErrInvalidImage
	}
	return contentType, data, nil
}

func extension(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".jpg"
	}
}

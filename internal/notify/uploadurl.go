package notify

import (
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UploadURLGenerator produces the child-facing call-to-action URL embedded in
// notification emails. The capability token lets the child reach the upload
// flow without a full login.
type UploadURLGenerator interface {
	GenerateUploadURL(parentID, childID, challengeID string) (string, error)
}

type jwtURLSigner struct {
	baseURL    string
	signingKey []byte
	ttl        time.Duration
}

// NewJWTURLSigner builds signed upload URLs: baseURL?token=<jwt>.
func NewJWTURLSigner(baseURL string, signingKey []byte, ttl time.Duration) (UploadURLGenerator, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("upload base URL is required")
	}
	if len(signingKey) == 0 {
		return nil, fmt.Errorf("upload URL signing key is required")
	}
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &jwtURLSigner{baseURL: baseURL, signingKey: signingKey, ttl: ttl}, nil
}

func (s *jwtURLSigner) GenerateUploadURL(parentID, childID, challengeID string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":          childID,
		"parent_id":    parentID,
		"challenge_id": challengeID,
		"iat":          now.Unix(),
		"exp":          now.Add(s.ttl).Unix(),
	})

	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign upload token: %w", err)
	}

	u, err := url.Parse(s.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse upload base URL: %w", err)
	}
	q := u.Query()
	q.Set("token", signed)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Package auth mints and verifies the signed upload tokens that drive the
// stateless multipart protocol, plus the plain bearer-token helper used by
// the external AuthContext collaborator.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/thilojaeggi/fynncloud-backend/internal/common"
)

// UploadClaims carries every claim the multipart hot path needs to verify
// and act on a chunk upload without touching the database. Treat every
// field as tainted until ParseUploadToken has checked the signature.
type UploadClaims struct {
	jwt.RegisteredClaims

	SessionID        string `json:"session_id"`
	FileID           string `json:"file_id"`
	ProviderUploadID string `json:"provider_upload_id"`
	OwnerID          string `json:"owner_id"`
	Filename         string `json:"filename"`
	ContentType      string `json:"content_type"`
	TotalSize        int64  `json:"total_size"`
	MaxChunkSize     int64  `json:"max_chunk_size"`
	ParentID         string `json:"parent_id,omitempty"`
	LastModified     int64  `json:"last_modified"`
}

// GenerateUploadToken mints an HMAC-SHA256 signed token carrying the claims
// a multipart session needs for the lifetime of its upload. IssuedAt and
// ExpiresAt are stamped here; callers must not set them on claims.
func GenerateUploadToken(claims UploadClaims, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString(secretKey)
}

// ParseUploadToken verifies the token's signature and expiry and returns its
// claims. Callers must not act on any claim before this returns successfully.
func ParseUploadToken(tokenString string, secretKey []byte) (*UploadClaims, error) {
	claims := &UploadClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}

	if !token.Valid {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}

// Claims is the bearer-session claim shape consumed by the AuthContext
// collaborator; session/login issuance itself lives
// outside this core.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
}

// GenerateToken mints a bearer session token sharing the multipart secret.
func GenerateToken(userID string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		UserID: userID,
	})

	return token.SignedString(secretKey)
}

// GetUserIDFromToken verifies a bearer session token and returns its owner.
func GetUserIDFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrTokenExpired
		}
		return "", common.ErrInvalidToken
	}

	if !token.Valid {
		return "", common.ErrInvalidToken
	}

	return claims.UserID, nil
}

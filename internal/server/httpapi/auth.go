package httpapi

import (
	"net/http"
	"strings"

	"github.com/thilojaeggi/fynncloud-backend/internal/common"
	"github.com/thilojaeggi/fynncloud-backend/internal/server/auth"
)

// AuthContext resolves the authenticated caller's owner id from a request,
// or rejects with common.ErrUnauthorized. Session issuance itself lives
// outside this core; only verification is implemented here.
type AuthContext interface {
	OwnerID(r *http.Request) (string, error)
}

// BearerAuthContext verifies the session bearer token minted by
// auth.GenerateToken.
type BearerAuthContext struct {
	SecretKey []byte
}

func (a *BearerAuthContext) OwnerID(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", common.ErrUnauthorized
	}
	token := strings.TrimPrefix(header, prefix)

	ownerID, err := auth.GetUserIDFromToken(token, a.SecretKey)
	if err != nil {
		return "", common.ErrUnauthorized
	}
	return ownerID, nil
}

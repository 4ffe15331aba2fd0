package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/thilojaeggi/fynncloud-backend/internal/server/models"
)

func bearerToken(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

type initiateMultipartRequest struct {
	Filename     string  `json:"filename"`
	ContentType  string  `json:"contentType"`
	TotalSize    int64   `json:"totalSize"`
	ParentID     *string `json:"parentID"`
	LastModified int64   `json:"lastModified"`
}

func (s *Server) handleInitiateMultipart(w http.ResponseWriter, r *http.Request) {
	ownerID, err := s.auth.OwnerID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req initiateMultipartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "malformed body")
		return
	}

	result, err := s.multipart.Initiate(r.Context(), ownerID, req.Filename, req.ContentType, req.ParentID, req.TotalSize, req.LastModified)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleUploadPart(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionID")
	partNumber, err := strconv.Atoi(r.PathValue("part"))
	if err != nil {
		writeBadRequest(w, "part must be an integer")
		return
	}

	result, err := s.multipart.UploadPart(r.Context(), sessionID, bearerToken(r), partNumber, r.ContentLength, r.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type completeMultipartRequest struct {
	Parts []models.Part `json:"parts"`
}

func (s *Server) handleCompleteMultipart(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionID")

	var req completeMultipartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "malformed body")
		return
	}

	node, err := s.multipart.Complete(r.Context(), sessionID, bearerToken(r), req.Parts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (s *Server) handleAbortMultipart(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionID")

	if err := s.multipart.Abort(r.Context(), sessionID, bearerToken(r)); err != nil {
		writeError(w, err)
		return
	}
	writeNoContent(w)
}

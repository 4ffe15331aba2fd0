package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/thilojaeggi/fynncloud-backend/internal/server/models"
)

type listResponse struct {
	Files       []*models.FileNode `json:"files"`
	ParentID    *string            `json:"parentID"`
	Breadcrumbs []*models.FileNode `json:"breadcrumbs,omitempty"`
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	ownerID, err := s.auth.OwnerID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	parentID := nilIfEmpty(r.URL.Query().Get("parentID"))
	files, breadcrumbs, err := s.storage.List(r.Context(), ownerID, models.ListFilter{Kind: models.ListFolder, ParentID: parentID})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, listResponse{Files: files, ParentID: parentID, Breadcrumbs: breadcrumbs})
}

// handleShowOrView serves both `GET /files/{id}` and the view shorthands
// (`GET /files/recent`, `/favorites`, `/shared`, `/trash`, `/all`) since
// both share a single path segment under /files.
func (s *Server) handleShowOrView(w http.ResponseWriter, r *http.Request) {
	seg := r.PathValue("idOrView")

	ownerID, err := s.auth.OwnerID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if kind, ok := viewKinds[seg]; ok {
		files, _, err := s.storage.List(r.Context(), ownerID, models.ListFilter{Kind: kind})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, listResponse{Files: files})
		return
	}

	node, err := s.storage.Get(r.Context(), ownerID, seg)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ownerID, err := s.auth.OwnerID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	q := r.URL.Query()
	claimedSize, err := strconv.ParseInt(q.Get("size"), 10, 64)
	if err != nil {
		if r.ContentLength > 0 {
			claimedSize = r.ContentLength
		} else {
			writeBadRequest(w, "size or Content-Length required")
			return
		}
	}
	lastModified, _ := strconv.ParseInt(q.Get("lastModified"), 10, 64)

	node, err := s.storage.Upload(r.Context(), ownerID, q.Get("filename"), q.Get("contentType"), nilIfEmpty(q.Get("parentID")), claimedSize, lastModified, r.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, node)
}

func (s *Server) handleUpdateContent(w http.ResponseWriter, r *http.Request) {
	ownerID, err := s.auth.OwnerID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	id := r.PathValue("id")
	q := r.URL.Query()
	claimedSize, err := strconv.ParseInt(q.Get("size"), 10, 64)
	if err != nil {
		if r.ContentLength > 0 {
			claimedSize = r.ContentLength
		} else {
			writeBadRequest(w, "size or Content-Length required")
			return
		}
	}
	lastModified, _ := strconv.ParseInt(q.Get("lastModified"), 10, 64)

	node, err := s.storage.UpdateContent(r.Context(), ownerID, id, q.Get("contentType"), claimedSize, lastModified, r.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

type createDirectoryRequest struct {
	Name     string  `json:"name"`
	ParentID *string `json:"parentID"`
}

func (s *Server) handleCreateDirectory(w http.ResponseWriter, r *http.Request) {
	ownerID, err := s.auth.OwnerID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req createDirectoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "malformed body")
		return
	}

	node, err := s.storage.CreateDirectory(r.Context(), ownerID, req.Name, req.ParentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, node)
}

type renameRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	ownerID, err := s.auth.OwnerID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "malformed body")
		return
	}

	node, err := s.storage.Rename(r.Context(), ownerID, r.PathValue("id"), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

type moveRequest struct {
	FileID   string  `json:"fileID"`
	ParentID *string `json:"parentID"`
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	ownerID, err := s.auth.OwnerID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "malformed body")
		return
	}

	node, err := s.storage.Move(r.Context(), ownerID, req.FileID, req.ParentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

type favoriteRequest struct {
	IsFavorite *bool `json:"isFavorite"`
}

func (s *Server) handleFavorite(w http.ResponseWriter, r *http.Request) {
	ownerID, err := s.auth.OwnerID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req favoriteRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "malformed body")
			return
		}
	}
	isFavorite := true
	if req.IsFavorite != nil {
		isFavorite = *req.IsFavorite
	}

	node, err := s.storage.Favorite(r.Context(), ownerID, r.PathValue("id"), isFavorite)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	ownerID, err := s.auth.OwnerID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	node, body, size, err := s.storage.Download(r.Context(), ownerID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", node.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+node.Name+`"`)
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
}

func (s *Server) handleSoftDelete(w http.ResponseWriter, r *http.Request) {
	ownerID, err := s.auth.OwnerID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.storage.SoftDelete(r.Context(), ownerID, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeNoContent(w)
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	ownerID, err := s.auth.OwnerID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	node, err := s.storage.Restore(r.Context(), ownerID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (s *Server) handleHardDelete(w http.ResponseWriter, r *http.Request) {
	ownerID, err := s.auth.OwnerID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.storage.HardDelete(r.Context(), ownerID, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeNoContent(w)
}

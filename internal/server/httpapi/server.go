// Package httpapi is the thin HTTP transport over StorageService and
// MultipartCoordinator: a stdlib net/http ServeMux wiring every operation
// from the endpoint table to its handler, with no third-party router.
package httpapi

import (
	"net/http"

	"github.com/thilojaeggi/fynncloud-backend/internal/logging"
	"github.com/thilojaeggi/fynncloud-backend/internal/server/models"
	"github.com/thilojaeggi/fynncloud-backend/internal/server/service"
)

// Server holds the collaborators every handler needs.
type Server struct {
	storage   *service.StorageService
	multipart *service.MultipartCoordinator
	auth      AuthContext
	log       logging.Logger
}

// NewServer constructs the HTTP transport's dependency set.
func NewServer(storage *service.StorageService, multipart *service.MultipartCoordinator, auth AuthContext, log logging.Logger) *Server {
	return &Server{storage: storage, multipart: multipart, auth: auth, log: log}
}

// NewRouter wires every endpoint in the table to its handler using the
// Go 1.22+ method-tagged ServeMux patterns.
func (s *Server) NewRouter() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /files", s.handleList)
	mux.HandleFunc("GET /files/{idOrView}", s.handleShowOrView)
	mux.HandleFunc("GET /files/{id}/download", s.handleDownload)
	mux.HandleFunc("PUT /files", s.handleUpload)
	mux.HandleFunc("PUT /files/{id}", s.handleUpdateContent)
	mux.HandleFunc("POST /files/create-directory", s.handleCreateDirectory)
	mux.HandleFunc("PATCH /files/{id}", s.handleRename)
	mux.HandleFunc("POST /files/move-file", s.handleMove)
	mux.HandleFunc("POST /files/{id}/favorite", s.handleFavorite)
	mux.HandleFunc("DELETE /files/{id}/permanent-delete", s.handleHardDelete)
	mux.HandleFunc("DELETE /files/{id}", s.handleSoftDelete)
	mux.HandleFunc("POST /files/{id}/restore", s.handleRestore)

	mux.HandleFunc("POST /files/multipart/initiate", s.handleInitiateMultipart)
	mux.HandleFunc("PUT /files/multipart/{sessionID}/part/{part}", s.handleUploadPart)
	mux.HandleFunc("POST /files/multipart/{sessionID}/complete", s.handleCompleteMultipart)
	mux.HandleFunc("DELETE /files/multipart/{sessionID}/abort", s.handleAbortMultipart)

	return mux
}

var viewKinds = map[string]models.ListFilterKind{
	"all":       models.ListAll,
	"recent":    models.ListRecent,
	"favorites": models.ListFavorites,
	"shared":    models.ListShared,
	"trash":     models.ListTrash,
}

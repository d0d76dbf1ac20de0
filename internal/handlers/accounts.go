package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cerebro-dash/apiserver/internal/services"
	"github.com/cerebro-dash/apiserver/types"
	"github.com/go-chi/chi/v5"
)

// AccountHandler serves the account directory and provisioning endpoints.
type AccountHandler struct {
	directory *services.DirectoryService
	accounts  *services.AccountService
	exports   *services.ExportService
	logger    *slog.Logger
}

func NewAccountHandler(
	directory *services.DirectoryService,
	accounts *services.AccountService,
	exports *services.ExportService,
	logger *slog.Logger,
) *AccountHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountHandler{directory: directory, accounts: accounts, exports: exports, logger: logger}
}

// AccountRouter registers account routes on the given router. Every route
// requires authMiddleware when it is set.
func AccountRouter(
	r chi.Router,
	directory *services.DirectoryService,
	accounts *services.AccountService,
	exports *services.ExportService,
	authMiddleware func(http.Handler) http.Handler,
	logger *slog.Logger,
) {
	handler := NewAccountHandler(directory, accounts, exports, logger)

	if authMiddleware != nil {
		r.Use(authMiddleware)
	}
	r.Get("/", handler.List)
	r.Post("/", handler.Create)
	r.Get("/search", handler.Search)
	r.Get("/categories", handler.Categories)
	r.Get("/stats", handler.Stats)
	r.Get("/online", handler.Online)
	r.Post("/export", handler.Export)
	r.Get("/exports", handler.ListExports)
	r.Get("/exports/{name}", handler.DownloadExport)
	r.Route("/{accountID}", func(r chi.Router) {
		r.Get("/", handler.Get)
		r.Get("/characters", handler.Characters)
		r.Get("/gmlevel", handler.GMLevel)
		r.Post("/gmlevel", handler.SetGMLevel)
		r.Post("/password", handler.ChangePassword)
		r.Get("/meta", handler.GetMeta)
		r.Put("/meta", handler.SetMeta)
	})
}

type CreateAccountRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

type ChangePasswordRequest struct {
	Password string `json:"password"`
}

type SetGMLevelRequest struct {
	GMLevel int  `json:"gm_level"`
	RealmID *int `json:"realm_id"`
}

type DirectoryResponse struct {
	Accounts []types.DirectoryEntry `json:"accounts"`
	Query    *string                `json:"query,omitempty"`
}

func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	includeBots, category, ok := h.filters(w, r, true)
	if !ok {
		return
	}

	entries, err := h.directory.List(r.Context(), services.ListOptions{
		IncludeBots: includeBots,
		Category:    category,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to list accounts")
		return
	}
	writeJSON(w, http.StatusOK, DirectoryResponse{Accounts: entries})
}

func (h *AccountHandler) Search(w http.ResponseWriter, r *http.Request) {
	includeBots, category, ok := h.filters(w, r, false)
	if !ok {
		return
	}

	query := r.URL.Query().Get("q")
	entries, err := h.directory.Search(r.Context(), services.SearchOptions{
		Query:       query,
		IncludeBots: includeBots,
		Category:    category,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to search accounts")
		return
	}
	writeJSON(w, http.StatusOK, DirectoryResponse{Accounts: entries, Query: &query})
}

func (h *AccountHandler) Categories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]types.Category{"categories": h.directory.Categories()})
}

func (h *AccountHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.accounts.Stats(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to load stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *AccountHandler) Online(w http.ResponseWriter, r *http.Request) {
	online, err := h.accounts.Online(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to load online accounts")
		return
	}
	writeJSON(w, http.StatusOK, map[string][]types.OnlineAccount{"online": online})
}

func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	created, err := h.accounts.Create(r.Context(), req.Username, req.Password, req.Email)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to create account")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *AccountHandler) Export(w http.ResponseWriter, r *http.Request) {
	key, err := h.exports.ExportDirectory(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to export directory")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"key": key})
}

func (h *AccountHandler) ListExports(w http.ResponseWriter, r *http.Request) {
	exports, err := h.exports.ListExports(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to list exports")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"exports": exports})
}

func (h *AccountHandler) DownloadExport(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	body, err := h.exports.OpenExport(r.Context(), name)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to read export")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "export download interrupted", "name", name, "error", err)
	}
}

func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseAccountID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	account, err := h.accounts.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to fetch account")
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *AccountHandler) Characters(w http.ResponseWriter, r *http.Request) {
	id, err := parseAccountID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	characters, err := h.accounts.Characters(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to fetch characters")
		return
	}
	writeJSON(w, http.StatusOK, map[string][]types.Character{"characters": characters})
}

func (h *AccountHandler) GMLevel(w http.ResponseWriter, r *http.Request) {
	id, err := parseAccountID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	level, err := h.accounts.GMLevel(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to fetch gm level")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"gm_level": level})
}

func (h *AccountHandler) SetGMLevel(w http.ResponseWriter, r *http.Request) {
	id, err := parseAccountID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req SetGMLevelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	realmID := services.AllRealms
	if req.RealmID != nil {
		realmID = *req.RealmID
	}

	if err := h.accounts.SetGMLevel(r.Context(), id, req.GMLevel, realmID); err != nil {
		writeServiceError(w, r, h.logger, err, "failed to set gm level")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AccountHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	id, err := parseAccountID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if err := h.accounts.ChangePassword(r.Context(), id, req.Password); err != nil {
		writeServiceError(w, r, h.logger, err, "failed to change password")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AccountHandler) GetMeta(w http.ResponseWriter, r *http.Request) {
	id, err := parseAccountID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	meta, err := h.directory.GetMetadata(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to fetch metadata")
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (h *AccountHandler) SetMeta(w http.ResponseWriter, r *http.Request) {
	id, err := parseAccountID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var patch services.MetadataPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	meta, err := h.directory.SetMetadata(r.Context(), id, patch)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to update metadata")
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// filters reads include_bots (defaulting to includeBotsDefault) and category,
// answering 400 itself when either is malformed.
func (h *AccountHandler) filters(w http.ResponseWriter, r *http.Request, includeBotsDefault bool) (bool, *types.Category, bool) {
	includeBots, err := parseBoolQuery(r, "include_bots", includeBotsDefault)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false, nil, false
	}

	raw := strings.TrimSpace(r.URL.Query().Get("category"))
	if raw == "" {
		return includeBots, nil, true
	}
	category := types.Category(strings.ToLower(raw))
	if !category.Valid() {
		writeError(w, http.StatusBadRequest, errors.New("invalid category").Error())
		return false, nil, false
	}
	return includeBots, &category, true
}

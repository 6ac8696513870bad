package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"github.com/starford/lightauth/internal/apperr"
	"github.com/starford/lightauth/internal/bundle"
	"github.com/starford/lightauth/internal/models"
	"github.com/starford/lightauth/internal/otp"
	"github.com/starford/lightauth/internal/otpuri"
	"github.com/starford/lightauth/internal/vaultservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *vaultservice.Service
	now func() time.Time
}

// NewHandler creates a new Handler.
func NewHandler(svc *vaultservice.Service) *Handler {
	return &Handler{svc: svc, now: time.Now}
}

// accountIndex parses the {index} URL parameter. It writes a 400 and
// returns false when the parameter is not an integer.
func accountIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("index must be an integer"))
		return 0, false
	}
	return i, true
}

func accountViews(accs []models.Account) []AccountView {
	return lo.Map(accs, func(a models.Account, i int) AccountView {
		return accountView(i, a)
	})
}

// Unlock handles POST /api/unlock.
//
//	@Summary		Open a session with the vault password
//	@Tags			session
//	@Accept			json
//	@Produce		json
//	@Param			body	body		UnlockRequest	true	"Password (empty when encryption is disabled)"
//	@Success		200		{object}	UnlockResponse
//	@Failure		401		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/unlock [post]
func (h *Handler) Unlock(w http.ResponseWriter, r *http.Request) {
	var req UnlockRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ok, err := h.svc.Unlock(r.Context(), req.Password)
	switch {
	case ok && errors.Is(err, apperr.ErrVaultUnreadable):
		writeJSON(w, http.StatusOK, UnlockResponse{Unlocked: true, Unreadable: true, Warning: err.Error()})
	case err != nil:
		writeError(w, "unlock", err)
	case !ok:
		writeJSON(w, http.StatusUnauthorized, errorBody(apperr.ErrWrongPassword.Error()))
	default:
		writeJSON(w, http.StatusOK, UnlockResponse{Unlocked: true})
	}
}

// Lock handles POST /api/lock.
//
//	@Summary		Close the session and wipe the password from memory
//	@Tags			session
//	@Success		204
//	@Security		BearerAuth
//	@Router			/lock [post]
func (h *Handler) Lock(w http.ResponseWriter, r *http.Request) {
	h.svc.Lock()
	w.WriteHeader(http.StatusNoContent)
}

// Status handles GET /api/status.
//
//	@Summary		Report session and vault state
//	@Tags			session
//	@Produce		json
//	@Success		200	{object}	vaultservice.Status
//	@Security		BearerAuth
//	@Router			/status [get]
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status())
}

// ChangePassword handles POST /api/password.
//
//	@Summary		Change or remove the vault password
//	@Tags			session
//	@Accept			json
//	@Param			body	body	PasswordRequest	true	"Old and new password; empty new disables encryption"
//	@Success		204
//	@Failure		401	{object}	errResponse
//	@Failure		423	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/password [post]
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req PasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.SetPassword(r.Context(), req.Old, req.New); err != nil {
		writeError(w, "set password", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListAccounts handles GET /api/accounts.
//
//	@Summary		List accounts in stored order, without secrets
//	@Tags			accounts
//	@Produce		json
//	@Success		200	{object}	AccountListResponse
//	@Failure		423	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/accounts [get]
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accs, err := h.svc.Accounts()
	if err != nil {
		writeError(w, "list accounts", err)
		return
	}
	writeJSON(w, http.StatusOK, AccountListResponse{Accounts: accountViews(accs)})
}

// CreateAccount handles POST /api/accounts.
//
//	@Summary		Add an account from fields or an otpauth URI
//	@Tags			accounts
//	@Accept			json
//	@Produce		json
//	@Param			body	body		AccountRequest	true	"Account to add"
//	@Success		201		{object}	AccountView
//	@Failure		400		{object}	errResponse
//	@Failure		423		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/accounts [post]
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req AccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	a := req.account()
	if req.URI != "" {
		key, ok := otpuri.Parse(req.URI)
		if !ok {
			writeJSON(w, http.StatusBadRequest, errorBody("not a usable otpauth uri"))
			return
		}
		a = key.Account()
		a.Icon = req.Icon
	}
	i, err := h.svc.Add(r.Context(), a)
	if err != nil {
		writeError(w, "add account", err)
		return
	}
	stored, err := h.svc.Get(i)
	if err != nil {
		writeError(w, "add account", err)
		return
	}
	writeJSON(w, http.StatusCreated, accountView(i, stored))
}

// GetAccount handles GET /api/accounts/{index}.
//
//	@Summary		Get one account without its secret
//	@Tags			accounts
//	@Produce		json
//	@Param			index	path		int	true	"Account index"
//	@Success		200		{object}	AccountView
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/accounts/{index} [get]
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	i, ok := accountIndex(w, r)
	if !ok {
		return
	}
	a, err := h.svc.Get(i)
	if err != nil {
		writeError(w, "get account", err)
		return
	}
	writeJSON(w, http.StatusOK, accountView(i, a))
}

// UpdateAccount handles PUT /api/accounts/{index}.
//
//	@Summary		Edit name, issuer and icon of an account
//	@Description	The secret cannot be changed. Omit it or send the stored value.
//	@Tags			accounts
//	@Accept			json
//	@Produce		json
//	@Param			index	path		int				true	"Account index"
//	@Param			body	body		AccountRequest	true	"Updated fields"
//	@Success		200		{object}	AccountView
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/accounts/{index} [put]
func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	i, ok := accountIndex(w, r)
	if !ok {
		return
	}
	var req AccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.Update(r.Context(), i, req.account()); err != nil {
		writeError(w, "update account", err)
		return
	}
	a, err := h.svc.Get(i)
	if err != nil {
		writeError(w, "update account", err)
		return
	}
	writeJSON(w, http.StatusOK, accountView(i, a))
}

// DeleteAccount handles DELETE /api/accounts/{index}.
//
//	@Summary		Remove an account; later indices shift down
//	@Tags			accounts
//	@Param			index	path	int	true	"Account index"
//	@Success		204
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/accounts/{index} [delete]
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	i, ok := accountIndex(w, r)
	if !ok {
		return
	}
	if err := h.svc.Remove(r.Context(), i); err != nil {
		writeError(w, "remove account", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetCode handles GET /api/accounts/{index}/code.
//
//	@Summary		Current code and countdown for one account
//	@Tags			codes
//	@Produce		json
//	@Param			index	path		int	true	"Account index"
//	@Success		200		{object}	vaultservice.CodeView
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/accounts/{index}/code [get]
func (h *Handler) GetCode(w http.ResponseWriter, r *http.Request) {
	i, ok := accountIndex(w, r)
	if !ok {
		return
	}
	c, err := h.svc.CurrentCode(i, h.now())
	if err != nil {
		writeError(w, "current code", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// ListCodes handles GET /api/codes.
//
//	@Summary		Current codes for every account
//	@Tags			codes
//	@Produce		json
//	@Success		200	{object}	CodeListResponse
//	@Failure		423	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/codes [get]
func (h *Handler) ListCodes(w http.ResponseWriter, r *http.Request) {
	codes, err := h.svc.Codes(h.now())
	if err != nil {
		writeError(w, "list codes", err)
		return
	}
	writeJSON(w, http.StatusOK, CodeListResponse{Codes: codes})
}

// GetURI handles GET /api/accounts/{index}/uri.
//
//	@Summary		Provisioning URI for an account (contains the secret)
//	@Tags			accounts
//	@Produce		json
//	@Param			index	path		int	true	"Account index"
//	@Success		200		{object}	URIResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/accounts/{index}/uri [get]
func (h *Handler) GetURI(w http.ResponseWriter, r *http.Request) {
	i, ok := accountIndex(w, r)
	if !ok {
		return
	}
	a, err := h.svc.Get(i)
	if err != nil {
		writeError(w, "account uri", err)
		return
	}
	writeJSON(w, http.StatusOK, URIResponse{URI: otpuri.Build(a)})
}

// GetQR handles GET /api/accounts/{index}/qr.
//
//	@Summary		QR code PNG of the provisioning URI
//	@Tags			accounts
//	@Produce		png
//	@Param			index	path	int	true	"Account index"
//	@Param			size	query	int	false	"Image size in pixels"
//	@Success		200
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/accounts/{index}/qr [get]
func (h *Handler) GetQR(w http.ResponseWriter, r *http.Request) {
	i, ok := accountIndex(w, r)
	if !ok {
		return
	}
	size := otpuri.DefaultQRSize
	if v := r.URL.Query().Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 64 || n > 2048 {
			writeJSON(w, http.StatusBadRequest, errorBody("size must be between 64 and 2048"))
			return
		}
		size = n
	}
	a, err := h.svc.Get(i)
	if err != nil {
		writeError(w, "account qr", err)
		return
	}
	png, err := otpuri.QRCode(a, size)
	if err != nil {
		writeError(w, "account qr", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// Export handles POST /api/export.
//
//	@Summary		Export accounts to a .lauth bundle
//	@Description	Empty indices exports every account. A password encrypts the bundle.
//	@Tags			transfer
//	@Accept			json
//	@Produce		octet-stream
//	@Param			body	body	ExportRequest	true	"Selection and bundle password"
//	@Success		200
//	@Failure		404	{object}	errResponse
//	@Failure		423	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/export [post]
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	var req ExportRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	data, err := h.svc.Export(r.Context(), req.Indices, req.Password, req.Legacy)
	if err != nil {
		writeError(w, "export", err)
		return
	}
	contentType := "application/json"
	if req.Password != "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "accounts"+bundle.DefaultExtension))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Import handles POST /api/import.
//
//	@Summary		Preview or import a .lauth bundle
//	@Description	With preview=true the decoded accounts are returned and nothing is added.
//	@Tags			transfer
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ImportRequest	true	"Bundle bytes (base64), password and selection"
//	@Success		200		{object}	ImportResponse
//	@Failure		400		{object}	errResponse
//	@Failure		401		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/import [post]
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Data) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("data is required"))
		return
	}
	if req.Preview {
		accs, err := h.svc.PreviewImport(req.Data, req.Password)
		if err != nil {
			writeError(w, "import preview", err)
			return
		}
		writeJSON(w, http.StatusOK, ImportResponse{Accounts: accountViews(accs)})
		return
	}
	added, err := h.svc.Import(r.Context(), req.Data, req.Password, req.Indices)
	if err != nil {
		writeError(w, "import", err)
		return
	}
	writeJSON(w, http.StatusOK, ImportResponse{Accounts: accountViews(added), Added: true})
}

// ParseURI handles POST /api/uri/parse.
//
//	@Summary		Parse an otpauth URI without storing it
//	@Tags			tools
//	@Accept			json
//	@Produce		json
//	@Param			body	body		URIRequest	true	"URI to parse"
//	@Success		200		{object}	otpuri.Key
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/uri/parse [post]
func (h *Handler) ParseURI(w http.ResponseWriter, r *http.Request) {
	var req URIRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	key, ok := otpuri.Parse(req.URI)
	if !ok {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody("not a usable otpauth uri"))
		return
	}
	writeJSON(w, http.StatusOK, key)
}

// GenerateSecret handles GET /api/secret.
//
//	@Summary		Generate a random 32-character base32 secret
//	@Tags			tools
//	@Produce		json
//	@Success		200	{object}	SecretResponse
//	@Security		BearerAuth
//	@Router			/secret [get]
func (h *Handler) GenerateSecret(w http.ResponseWriter, r *http.Request) {
	secret, err := otp.GenerateSecret()
	if err != nil {
		writeError(w, "generate secret", err)
		return
	}
	writeJSON(w, http.StatusOK, SecretResponse{Secret: secret})
}

// GetSettings handles GET /api/settings.
//
//	@Summary		Read the settings document
//	@Tags			settings
//	@Produce		json
//	@Success		200	{object}	map[string]any
//	@Security		BearerAuth
//	@Router			/settings [get]
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Settings()
	if err != nil {
		writeError(w, "read settings", err)
		return
	}
	writeJSON(w, http.StatusOK, s.Public())
}

// UpdateSettings handles PUT /api/settings.
//
//	@Summary		Update theme, auto-copy and countdown preferences
//	@Tags			settings
//	@Accept			json
//	@Produce		json
//	@Param			body	body		vaultservice.Preferences	true	"Fields to change"
//	@Success		200		{object}	map[string]any
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/settings [put]
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req vaultservice.Preferences
	if !decodeJSON(w, r, &req) {
		return
	}
	s, err := h.svc.UpdatePreferences(req)
	if err != nil {
		writeError(w, "update settings", err)
		return
	}
	writeJSON(w, http.StatusOK, s.Public())
}

// Audit handles GET /api/audit.
//
//	@Summary		Recent vault activity, newest first
//	@Tags			settings
//	@Produce		json
//	@Param			limit	query		int	false	"Maximum entries"
//	@Success		200		{object}	map[string]any
//	@Security		BearerAuth
//	@Router			/audit [get]
func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := h.svc.ActivityLog(r.Context(), limit)
	if err != nil {
		writeError(w, "activity log", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

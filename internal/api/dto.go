package api

import (
	"github.com/starford/lightauth/internal/models"
	"github.com/starford/lightauth/internal/vaultservice"
)

// UnlockRequest is the request body for POST /api/unlock.
type UnlockRequest struct {
	Password string `json:"password"`
}

// UnlockResponse reports the session state after an unlock.
type UnlockResponse struct {
	Unlocked   bool   `json:"unlocked" validate:"required"`
	Unreadable bool   `json:"unreadable,omitempty"`
	Warning    string `json:"warning,omitempty"`
}

// AccountRequest is the request body for creating or updating an account.
// On create, URI may be given instead of the individual fields.
type AccountRequest struct {
	Name   string `json:"name" example:"alice@example.com"`
	Issuer string `json:"issuer" example:"GitHub"`
	Secret string `json:"secret" example:"JBSWY3DPEHPK3PXP"`
	Icon   string `json:"icon"`
	URI    string `json:"uri,omitempty" example:"otpauth://totp/GitHub:alice?secret=JBSWY3DPEHPK3PXP&issuer=GitHub"`
}

func (r AccountRequest) account() models.Account {
	return models.Account{Name: r.Name, Issuer: r.Issuer, Secret: r.Secret, Icon: r.Icon}
}

// AccountView is an account without its secret.
type AccountView struct {
	Index  int    `json:"index" example:"0"`
	Name   string `json:"name" example:"alice@example.com"`
	Issuer string `json:"issuer" example:"GitHub"`
	Icon   string `json:"icon,omitempty"`
}

func accountView(i int, a models.Account) AccountView {
	return AccountView{Index: i, Name: a.Name, Issuer: a.Issuer, Icon: a.Icon}
}

// AccountListResponse wraps the account list.
type AccountListResponse struct {
	Accounts []AccountView `json:"accounts" validate:"required"`
}

// CodeListResponse wraps the current codes.
type CodeListResponse struct {
	Codes []vaultservice.CodeView `json:"codes" validate:"required"`
}

// PasswordRequest is the request body for POST /api/password.
// An empty New disables encryption.
type PasswordRequest struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// ExportRequest is the request body for POST /api/export.
type ExportRequest struct {
	Indices  []int  `json:"indices"`
	Password string `json:"password"`
	Legacy   bool   `json:"legacy"`
}

// ImportRequest is the request body for POST /api/import. Data is the
// bundle file, base64-encoded in JSON.
type ImportRequest struct {
	Data     []byte `json:"data" validate:"required"`
	Password string `json:"password"`
	Indices  []int  `json:"indices"`
	Preview  bool   `json:"preview"`
}

// ImportResponse lists the accounts decoded (preview) or added.
type ImportResponse struct {
	Accounts []AccountView `json:"accounts" validate:"required"`
	Added    bool          `json:"added"`
}

// URIRequest is the request body for POST /api/uri/parse.
type URIRequest struct {
	URI string `json:"uri" validate:"required"`
}

// URIResponse carries a provisioning URI.
type URIResponse struct {
	URI string `json:"uri" validate:"required"`
}

// SecretResponse carries a freshly generated secret.
type SecretResponse struct {
	Secret string `json:"secret" example:"JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP" validate:"required"`
}

package viewmodels

import (
	"html/template"

	"folio/internal/auth"
	"folio/internal/models"
)

// PageData is a unified struct to hold all possible data for any page.
type PageData struct {
	Title       string
	AuthEnabled bool
	Principal   *auth.Principal
	IsLoggedIn  bool
	CanCreate   bool
	CanUpdate   bool
	CanDelete   bool

	// Index
	Pages         []string
	BackupEnabled bool
	BackupURL     string

	// Wiki page
	Page      models.Page
	Content   template.HTML
	NewPage   bool
	Timestamp string

	// Login
	ReturnURL string
	Error     string
}

// New fills the principal-dependent fields of a PageData.
func New(title string, p *auth.Principal, authEnabled bool) PageData {
	return PageData{
		Title:       title,
		AuthEnabled: authEnabled,
		Principal:   p,
		IsLoggedIn:  authEnabled && p != nil,
		CanCreate:   p.Can(auth.CapCreate),
		CanUpdate:   p.Can(auth.CapUpdate),
		CanDelete:   p.Can(auth.CapDelete),
	}
}

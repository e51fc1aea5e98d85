package http

import (
	"net/http"
	"unicode/utf8"

	"finex/internal/auth"
	"finex/internal/core"
	"finex/internal/log"
)

const maxPrincipalLength = 64

type loginView struct {
	Principal string
	Error     string
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.PrincipalFrom(r.Context()); ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.renderPage(w, r, http.StatusOK, "login", pageData{Title: "Masuk", Content: loginView{}})
}

// handleLogin is the development identity provider: the entered identifier
// becomes the principal.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	p, err := parseBody(r)
	if err != nil {
		BadRequestError("Format permintaan tidak valid").Write(w)
		return
	}

	principal := p.Get("principal")
	var msg string
	switch {
	case principal == "":
		msg = "Identitas tidak boleh kosong"
	case utf8.RuneCountInString(principal) > maxPrincipalLength:
		msg = "Identitas terlalu panjang"
	}
	if msg != "" {
		s.renderPage(w, r, http.StatusUnprocessableEntity, "login", pageData{
			Title:   "Masuk",
			Content: loginView{Principal: principal, Error: msg},
		})
		return
	}

	s.sessions.Issue(w, core.Principal(principal))
	log.FromContext(r.Context()).InfoContext(r.Context(), "User signed in", log.FieldPrincipal, principal)

	if isHTMX(r) {
		NewHTMXResponse().Redirect("/").Write(w)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Clear(w)
	if isHTMX(r) {
		NewHTMXResponse().Redirect("/login").Write(w)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// handleSaveProfile stores the caller's display name. The first profile
// saved on an instance becomes its admin.
func (s *Server) handleSaveProfile(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		ErrorResponse(http.StatusUnauthorized, "Silakan masuk terlebih dahulu").Write(w)
		return
	}

	p, err := parseBody(r)
	if err != nil {
		BadRequestError("Format permintaan tidak valid").Write(w)
		return
	}
	name := p.Get("name")
	if name == "" {
		UnprocessableEntityError("Nama tidak boleh kosong").Write(w)
		return
	}

	if err := s.backend.SaveCallerUserProfile(r.Context(), core.UserProfile{Name: name}); err != nil {
		s.fail(w, r, err, "Gagal menyimpan profil")
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Profile saved", log.FieldPrincipal, string(principal))

	SuccessResponse("Profil berhasil disimpan").
		TriggerProfileSaved().
		Redirect("/").
		Write(w)
}

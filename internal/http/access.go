package http

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"

	"finex/internal/auth"
	"finex/internal/core"
	"finex/internal/log"
)

// viewer is the signed-in member a ledger handler acts for.
type viewer struct {
	Principal core.Principal
	Profile   core.UserProfile
	Role      core.UserRole
}

type memberHandler func(w http.ResponseWriter, r *http.Request, v *viewer)

type accessState int

const (
	accessAnonymous accessState = iota
	accessNoProfile
	accessDenied
	accessGranted
)

// resolveViewer loads the caller's profile and role.
func (s *Server) resolveViewer(ctx context.Context) (*viewer, accessState, error) {
	p, ok := auth.PrincipalFrom(ctx)
	if !ok {
		return nil, accessAnonymous, nil
	}

	v := &viewer{Principal: p}
	var profile *core.UserProfile
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		profile, err = s.backend.GetCallerUserProfile(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		v.Role, err = s.backend.GetCallerUserRole(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, accessAnonymous, err
	}

	switch {
	case profile == nil:
		return v, accessNoProfile, nil
	case !v.Role.CanUseLedger():
		v.Profile = *profile
		return v, accessDenied, nil
	}
	v.Profile = *profile
	return v, accessGranted, nil
}

// member guards ledger routes. Full page loads get the login, profile setup
// or access denied screen; HTMX and API calls get an error status.
func (s *Server) member(h memberHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, state, err := s.resolveViewer(r.Context())
		if err != nil {
			log.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to resolve viewer", log.FieldError, err)
			s.fail(w, r, err, "Gagal memuat data pengguna")
			return
		}

		if state == accessGranted {
			h(w, r, v)
			return
		}

		page := !isHTMX(r) && r.Method == http.MethodGet && !strings.HasPrefix(r.URL.Path, "/api/")
		switch state {
		case accessAnonymous:
			if page {
				s.renderPage(w, r, http.StatusUnauthorized, "login", pageData{Title: "Masuk", Content: loginView{}})
				return
			}
			ErrorResponse(http.StatusUnauthorized, "Silakan masuk terlebih dahulu").Write(w)
		case accessNoProfile:
			if page {
				s.renderPage(w, r, http.StatusOK, "profile", pageData{Title: "Selamat Datang"})
				return
			}
			ErrorResponse(http.StatusForbidden, "Lengkapi profil Anda terlebih dahulu").Write(w)
		case accessDenied:
			log.FromContext(r.Context()).InfoContext(r.Context(), "Ledger access refused",
				log.FieldPrincipal, string(v.Principal),
				"role", string(v.Role))
			if page {
				s.renderPage(w, r, http.StatusForbidden, "denied", pageData{Title: "Akses Terbatas", UserName: v.Profile.Name})
				return
			}
			ErrorResponse(http.StatusForbidden, "Anda tidak memiliki akses").Write(w)
		}
	}
}

// fail writes an error toast response for err.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.FromContext(r.Context()).ErrorContext(r.Context(), fallback,
			log.FieldError, err,
			log.FieldPath, r.URL.Path)
	}
	ErrorResponse(status, messageFor(err, fallback)).Write(w)
}

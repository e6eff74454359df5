package httpapi

import (
	"net/http"
	"strings"

	"projectmatch/auth"
)

// Actor identifies the authenticated caller of a request.
type Actor struct {
	ID   string
	Role auth.Role
}

type authedHandler func(w http.ResponseWriter, r *http.Request, actor Actor)

func (h *handler) requireAuth(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := h.authenticate(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		next(w, r, actor)
	}
}

func (h *handler) requireRole(role auth.Role, next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := h.authenticate(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		if actor.Role != role && actor.Role != auth.RoleAdmin {
			writeError(w, http.StatusForbidden, errRoleForbidden)
			return
		}
		next(w, r, actor)
	}
}

func (h *handler) authenticate(r *http.Request) (Actor, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return Actor{}, errMissingToken
	}

	userID, role, err := h.svc.Auth.VerifyToken(token)
	if err != nil {
		return Actor{}, err
	}
	return Actor{ID: userID, Role: role}, nil
}

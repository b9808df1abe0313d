package security

import (
	"net/http"
	"strings"

	"github.com/pocketbase/pocketbase/core"
	"golang.org/x/crypto/bcrypt"
)

const AdminTokenHeader = "X-Admin-Token"

// AdminGuard protects operator routes. A request passes with a pocketbase
// superuser session or a token matching the configured bcrypt hash.
type AdminGuard struct {
	hash []byte
}

func NewAdminGuard(tokenHash string) *AdminGuard {
	return &AdminGuard{hash: []byte(strings.TrimSpace(tokenHash))}
}

func (g *AdminGuard) Check(token string) bool {
	if len(g.hash) == 0 || token == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(g.hash, []byte(token)) == nil
}

func (g *AdminGuard) Middleware() func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		if e.HasSuperuserAuth() || g.Check(requestToken(e.Request)) {
			return e.Next()
		}
		return e.JSON(http.StatusUnauthorized, map[string]string{
			"error": "admin token required",
		})
	}
}

func requestToken(r *http.Request) string {
	if token := r.Header.Get(AdminTokenHeader); token != "" {
		return token
	}
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

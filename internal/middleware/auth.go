// Package middleware содержит HTTP middleware портала.
package middleware

import (
	"errors"
	"net/http"
	"slices"

	"go.uber.org/zap"

	"github.com/mmeshcher/ration-portal/internal/model"
	"github.com/mmeshcher/ration-portal/internal/session"
)

// LoginPath: страница входа, куда перенаправляются запросы без сессии.
const LoginPath = "/auth/login"

// SessionLoader загружает сессию по cookie запроса.
type SessionLoader interface {
	Load(r *http.Request) (*session.Session, error)
}

// Sessions кладёт сессию запроса в контекст, если cookie действителен.
func Sessions(loader SessionLoader, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, err := loader.Load(r)
			if err != nil {
				if !errors.Is(err, session.ErrNotFound) {
					logger.Warn("load session failed", zap.Error(err))
				}
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(session.WithSession(r.Context(), s)))
		})
	}
}

// RequireSession перенаправляет на страницу входа запросы без сессии с токеном.
// Защищённый обработчик при этом не вызывается.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := session.FromContext(r.Context())
		if !ok || !s.Authenticated() {
			http.Redirect(w, r, LoginPath, http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole пропускает только пользователей с ролью из списка, остальным отдаёт denied.
// Роль берётся из кэшированного в сессии профиля, к бэкенду запрос не идёт.
func RequireRole(denied http.Handler, roles ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, ok := session.FromContext(r.Context())
			if !ok || !s.Authenticated() {
				http.Redirect(w, r, LoginPath, http.StatusSeeOther)
				return
			}
			if !slices.Contains(roles, s.Role()) {
				denied.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

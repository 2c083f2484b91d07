package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/mmeshcher/ration-portal/internal/session"
)

const (
	// CSRFField: имя скрытого поля формы с CSRF-токеном.
	CSRFField  = "csrf_token"
	csrfHeader = "X-CSRF-Token"

	// maxBodySize ограничивает тело формы, которое разбирается ради поиска токена.
	maxBodySize = 10 << 20
)

// CSRF проверяет токен в изменяющих запросах авторизованной сессии.
// Запросы без сессии (вход, регистрация) пропускаются: у них нечего подделывать.
func CSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		s, ok := session.FromContext(r.Context())
		if !ok || !s.Authenticated() {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get(csrfHeader)
		if token == "" {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
			token = r.PostFormValue(CSRFField)
		}

		if s.CSRFToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.CSRFToken)) != 1 {
			http.Error(w, "invalid csrf token", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

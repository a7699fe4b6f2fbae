package server

import (
	"crypto/subtle"
	"net/http"
)

// secretTokenHeader заголовок, в котором Telegram передает секрет webhook
const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// webhookAuthMiddleware сверяет секрет, заданный при setWebhook
func (s *Server) webhookAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.security.RequireSecretToken() {
			next.ServeHTTP(w, r)
			return
		}

		provided := r.Header.Get(secretTokenHeader)
		if provided == "" {
			s.securityLogger.LogFailedAuth(r, "missing_secret_token")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		if subtle.ConstantTimeCompare([]byte(provided), []byte(s.security.SecretToken)) != 1 {
			s.securityLogger.LogFailedAuth(r, "invalid_secret_token")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

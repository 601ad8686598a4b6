// cors.go — middleware CORS для анонимного публичного API.
// Каналы не имеют владельцев и контроля доступа, API открыт любому
// origin; preflight-запросы OPTIONS обрываются здесь же.
package middleware

import "net/http"

// CORS возвращает middleware, добавляющий разрешающие CORS-заголовки
// ко всем ответам и отвечающий на OPTIONS preflight.
func CORS() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Max-Age", "86400")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

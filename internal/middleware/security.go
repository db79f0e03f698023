package middleware

import (
	"net"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// SecurityHeaders returns an Echo middleware that adds security headers to
// every response. API responses carry collection data and must not be cached.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set(echo.HeaderCacheControl, "no-store")

			return next(c)
		}
	}
}

// LocalOrigin returns an Echo middleware that rejects browser requests whose
// Origin is not a loopback address. Requests without an Origin header (the
// editor, curl, the CLI) pass through.
func LocalOrigin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			origin := c.Request().Header.Get(echo.HeaderOrigin)
			if origin == "" || isLoopbackOrigin(origin) {
				return next(c)
			}
			return c.JSON(http.StatusForbidden, map[string]string{
				"error": "cross-origin requests are not allowed",
			})
		}
	}
}

// LocalCORS returns an Echo middleware that answers preflights and sets
// Access-Control-Allow-Origin for the origins LocalOrigin admits.
func LocalCORS() echo.MiddlewareFunc {
	return echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOriginFunc: func(origin string) (bool, error) {
			return isLoopbackOrigin(origin), nil
		},
		AllowMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete,
		},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderXRequestID},
		MaxAge:       600,
	})
}

func isLoopbackOrigin(origin string) bool {
	// "null" is sent by sandboxed webviews.
	if origin == "null" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if u.Scheme == "vscode-webview" {
		return true
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

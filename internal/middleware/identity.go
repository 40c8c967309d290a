package middleware

import "github.com/labstack/echo/v4"

// userID returns the authenticated account id, or "anon".
func userID(c echo.Context) string {
	if s, ok := c.Get(ContextKeyUserID).(string); ok && s != "" {
		return s
	}
	return "anon"
}

// clientIP returns echo's view of the caller address, or "unknown".
func clientIP(c echo.Context) string {
	if ip := c.RealIP(); ip != "" {
		return ip
	}
	return "unknown"
}

package middleware

import (
	"github.com/gin-gonic/gin"
)

// Security header constants
const (
	HeaderXFrameOptions           = "X-Frame-Options"
	HeaderXContentTypeOptions     = "X-Content-Type-Options"
	HeaderReferrerPolicy          = "Referrer-Policy"
	HeaderPermissionsPolicy       = "Permissions-Policy"
	HeaderContentSecurityPolicy   = "Content-Security-Policy"
	HeaderStrictTransportSecurity = "Strict-Transport-Security"
)

// DefaultSecurityHeaders are sent on every response
var DefaultSecurityHeaders = map[string]string{
	HeaderXFrameOptions:         "DENY",
	HeaderXContentTypeOptions:   "nosniff",
	HeaderReferrerPolicy:        "strict-origin-when-cross-origin",
	HeaderPermissionsPolicy:     "geolocation=(), microphone=(), camera=()",
	HeaderContentSecurityPolicy: "default-src 'self'; frame-ancestors 'none'",
}

// hstsValue is one year, subdomains included
const hstsValue = "max-age=31536000; includeSubDomains"

// SecurityHeadersMiddleware adds security headers to responses.
// HSTS is only sent when cookies are marked Secure, since it pins the browser to HTTPS.
func SecurityHeadersMiddleware(hsts bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		for header, value := range DefaultSecurityHeaders {
			c.Header(header, value)
		}
		if hsts {
			c.Header(HeaderStrictTransportSecurity, hstsValue)
		}

		c.Next()
	}
}

package contexthelpers

type contextKey string

const (
	currentPathContextKey = contextKey("currentPath")
	csrfTokenContextKey   = contextKey("csrfToken")
	cspNonceContextKey    = contextKey("cspNonce")
	requestIDContextKey   = contextKey("requestID")
	flashContextKey       = contextKey("flash")
)

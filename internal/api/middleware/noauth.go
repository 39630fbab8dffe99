package middleware

import (
	"github.com/gin-gonic/gin"
)

// AnonymousUserID is the user recorded for requests when AUTH_MODE=none
const AnonymousUserID = "anonymous"

// NoAuth is a pass-through middleware for when AUTH_MODE=none.
// It allows all requests without authentication.
func NoAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Set a placeholder user ID for logging and history
		c.Set("user_id", AnonymousUserID)
		c.Set("user_id_str", AnonymousUserID)
		c.Next()
	}
}

package middleware

import "github.com/gin-gonic/gin"

// NoStore marks responses as uncacheable. Attempt state and timer values are
// only valid at the moment they are served.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Header("Pragma", "no-cache")
		c.Next()
	}
}

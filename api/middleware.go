package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"library-service/library"
)

const principalKey = "principal"

// requestLogger emits one structured entry per request.
func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
			"client":  c.ClientIP(),
		})
		if p, ok := c.Get(principalKey); ok {
			entry = entry.WithField("user_id", p.(library.Principal).UserID)
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			entry.Error("request")
		case c.Writer.Status() >= http.StatusBadRequest:
			entry.Warn("request")
		default:
			entry.Info("request")
		}
	}
}

// authenticate resolves HTTP Basic credentials (email, password) to a
// Principal and stores it on the context.
func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		email, password, hasAuth := c.Request.BasicAuth()
		if !hasAuth {
			c.Header("WWW-Authenticate", `Basic realm="library"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "err": "authentication required"})
			return
		}
		p, err := s.mgr.Authenticate(c.Request.Context(), email, password)
		if err != nil {
			c.Header("WWW-Authenticate", `Basic realm="library"`)
			s.fail(c, err)
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}

// requireAdmin rejects callers that are not librarians.
func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !principal(c).IsAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "err": "admin privileges required"})
			return
		}
		c.Next()
	}
}

func principal(c *gin.Context) library.Principal {
	if v, ok := c.Get(principalKey); ok {
		return v.(library.Principal)
	}
	return library.Principal{}
}

package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"library-service/library"
)

// ok writes the success envelope {success: true, <key>: value}.
func ok(c *gin.Context, status int, key string, value any) {
	c.JSON(status, gin.H{"success": true, key: value})
}

// statusFor maps library error classes onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, library.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, library.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, library.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, library.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, library.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail writes {success: false, err: message} and aborts the chain.
func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, gin.H{"success": false, "err": msg})
}

func (s *Server) badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "err": err.Error()})
}

// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"carpool/internal/apperrors"
	"carpool/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

// isValidID accepts the UUID form produced by types.NewID and other short
// alphanumeric ids.
func isValidID(v string) bool {
	if v == "" || len(v) > 64 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

// pathID reads the :id parameter and writes a 400 when it is malformed.
func pathID(c *gin.Context) (types.ID, bool) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid id")
		return "", false
	}
	return types.ID(id), true
}

// bindOptional binds a JSON body if one was sent.
func bindOptional(c *gin.Context, v any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(v); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeDomainError maps error kinds to status codes. Infrastructure errors
// are logged and hidden behind a generic message.
func writeDomainError(c *gin.Context, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Printf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		msg := "internal error"
		if status == http.StatusServiceUnavailable {
			msg = "transaction failed, nothing was changed"
		}
		writeError(c, status, msg)
		return
	}
	writeError(c, status, err.Error())
}

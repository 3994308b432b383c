package utils

import (
	"net/http"
	"strings"

	"learnedge/apperr"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// GenerateDashlessUUID creates a new UUID v4 and returns its string representation
// with all dashes removed.
func GenerateDashlessUUID() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")
}

// Envelope is the body shape of every response.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// RespondOK writes a successful envelope.
func RespondOK(c *gin.Context, status int, message string, data any) {
	c.JSON(status, Envelope{Success: true, Message: message, Data: data})
}

// RespondError translates err into its HTTP status and writes a failure envelope.
// The error is attached to the context so the request logger records the cause.
func RespondError(c *gin.Context, err error) {
	_ = c.Error(err)
	kind := apperr.KindOf(err)
	c.AbortWithStatusJSON(kind.HTTPStatus(), Envelope{Success: false, Message: apperr.PublicMessage(err)})
}

// RespondBadRequest is shorthand for an Invalid error built from a binding failure.
func RespondBadRequest(c *gin.Context, message string) {
	RespondError(c, apperr.Invalid("%s", message))
}

// NoRoute answers unknown paths with the standard envelope.
func NoRoute(c *gin.Context) {
	c.JSON(http.StatusNotFound, Envelope{Success: false, Message: "route not found"})
}

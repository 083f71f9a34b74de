package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperr "github.com/yungbote/gallery-client/internal/pkg/errors"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = apperr.Message(err)
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondAppError picks the status from the error kind.
func RespondAppError(c *gin.Context, err error) {
	code := apperr.Kind(err)
	if code == "" {
		code = "upstream_error"
	}
	RespondError(c, StatusFor(err), code, err)
}

func StatusFor(err error) int {
	switch apperr.Kind(err) {
	case "not_found":
		return http.StatusNotFound
	case "unauthorized":
		return http.StatusUnauthorized
	case "invalid_argument":
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

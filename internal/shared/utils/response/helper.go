package response

import (
	"github.com/gin-gonic/gin"

	"refundsaga/internal/shared/apperror"
)

func RespondJSON(c *gin.Context, status string, code int, message string, data interface{}, errors interface{}) {
	c.JSON(code, StandardApiResponse{
		Status:     status,
		StatusCode: code,
		Message:    message,
		Data:       data,
		Errors:     errors,
	})
}

// RespondError maps a classified error to its status. The error kind goes in
// errors so clients can branch without parsing the message.
func RespondError(c *gin.Context, err error) {
	code := apperror.HTTPStatus(err)
	if code >= 500 {
		_ = c.Error(err)
	}
	var details interface{}
	if kind, ok := apperror.KindOf(err); ok {
		details = map[string]interface{}{"kind": kind}
	}
	RespondJSON(c, "error", code, apperror.Message(err), nil, details)
}

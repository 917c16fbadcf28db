package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/mechdata-backend/internal/pkg/ctxutil"
)

// ErrorBody is the payload of every non-2xx JSON response.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// JSONError aborts the request with {"error": ErrorBody}.
func JSONError(c *gin.Context, status int, code, message string) {
	body := ErrorBody{Code: code, Message: message}
	if td := ctxutil.GetTraceData(c.Request.Context()); td != nil {
		body.RequestID = td.RequestID
	}
	c.AbortWithStatusJSON(status, gin.H{"error": body})
}

func OK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

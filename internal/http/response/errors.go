package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/mechdata-backend/internal/domain/pipelineerr"
)

// StatusFor maps a pipeline error code onto an HTTP status.
func StatusFor(code pipelineerr.Code) int {
	switch code {
	case pipelineerr.CodeNotFound, pipelineerr.CodeValuationNotFound:
		return http.StatusNotFound
	case pipelineerr.CodeValidation, pipelineerr.CodeMalformedSource:
		return http.StatusBadRequest
	case pipelineerr.CodeStoreConflict, pipelineerr.CodePendingResolution, pipelineerr.CodeResolutionAmbiguous:
		return http.StatusConflict
	case pipelineerr.CodeValuationTransient:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// Error writes err using its pipeline code. Uncoded errors are internal and
// their message is not exposed.
func Error(c *gin.Context, err error) {
	code := pipelineerr.CodeOf(err)
	if code == "" {
		code = pipelineerr.CodeInternal
	}
	status := StatusFor(code)
	msg := pipelineerr.Reason(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		msg = "internal error"
	}
	JSONError(c, status, string(code), msg)
}

package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prooflab/cardproof-backend/internal/platform/apierr"
)

// ErrorBody is the wire shape for every error: the taxonomy kind, a short
// message, and the job id when one is in play. Stack traces never leak.
type ErrorBody struct {
	Error   apierr.Kind `json:"error"`
	Message string      `json:"message"`
	JobID   string      `json:"jobId,omitempty"`
}

func RespondError(c *gin.Context, err *apierr.Error) {
	if err == nil {
		err = apierr.New(apierr.KindInternal, "unknown error")
	}
	c.JSON(err.Kind.HTTPStatus(), ErrorBody{
		Error:   err.Kind,
		Message: err.Message,
		JobID:   err.JobID,
	})
}

func RespondKind(c *gin.Context, kind apierr.Kind, msg string) {
	RespondError(c, apierr.New(kind, msg))
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

package server

import (
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/proofing/internal/auth"
	"github.com/MarcoPoloResearchLab/proofing/internal/catalog"
	"github.com/MarcoPoloResearchLab/proofing/internal/emails"
	"github.com/MarcoPoloResearchLab/proofing/internal/favorites"
	"github.com/MarcoPoloResearchLab/proofing/internal/identity"
	"github.com/MarcoPoloResearchLab/proofing/internal/recordstore"
	"github.com/MarcoPoloResearchLab/proofing/internal/selection"
	"github.com/MarcoPoloResearchLab/proofing/internal/svcerr"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type errorResponse struct {
	Error   string   `json:"error"`
	Code    string   `json:"code,omitempty"`
	Message string   `json:"message,omitempty"`
	Details []string `json:"details,omitempty"`
}

func (h *httpHandler) respondError(c *gin.Context, err error) {
	status, response := describeError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	c.JSON(status, response)
}

func describeError(err error) (int, errorResponse) {
	response := errorResponse{}
	if code, ok := svcerr.CodeOf(err); ok {
		response.Code = code
	}

	var nameErr *identity.InvalidNameError
	var clientErr *selection.ClientInfoError
	switch {
	case errors.As(err, &nameErr):
		response.Error = "invalid_name"
		response.Message = nameErr.Reason
		return http.StatusBadRequest, response
	case errors.As(err, &clientErr):
		response.Error = "invalid_client_info"
		response.Details = clientErr.Errors
		return http.StatusBadRequest, response
	case errors.Is(err, selection.ErrNoSelection):
		response.Error = "no_selection"
		response.Message = selection.NoSelectionMessage
		return http.StatusUnprocessableEntity, response
	case errors.Is(err, catalog.ErrGalleryNotFound), errors.Is(err, catalog.ErrPhotoNotFound):
		response.Error = "not_found"
		return http.StatusNotFound, response
	case errors.Is(err, catalog.ErrInvalidGallery),
		errors.Is(err, catalog.ErrInvalidPhoto),
		errors.Is(err, favorites.ErrInvalidGalleryID),
		errors.Is(err, favorites.ErrInvalidPhotoID),
		errors.Is(err, favorites.ErrInvalidCommentID),
		errors.Is(err, favorites.ErrEmptyComment),
		errors.Is(err, favorites.ErrCommentTooLong),
		errors.Is(err, emails.ErrInvalidAddress):
		response.Error = "invalid_request"
		response.Message = err.Error()
		return http.StatusBadRequest, response
	case errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrGalleryMismatch):
		response.Error = "unauthorized"
		return http.StatusUnauthorized, response
	case errors.Is(err, favorites.ErrRemoteNotConfigured), recordstore.IsUnavailable(err):
		response.Error = "store_unavailable"
		return http.StatusServiceUnavailable, response
	default:
		response.Error = "internal_error"
		return http.StatusInternalServerError, response
	}
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: message})
}

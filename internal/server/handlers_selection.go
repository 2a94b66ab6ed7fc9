package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/proofing/internal/favorites"
	"github.com/MarcoPoloResearchLab/proofing/internal/selection"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type favoriteRequestPayload struct {
	PhotoID  string `json:"photo_id"`
	UserName string `json:"user_name"`
}

type commentRequestPayload struct {
	PhotoID  string `json:"photo_id"`
	Comment  string `json:"comment"`
	UserName string `json:"user_name"`
}

type exportRequestPayload struct {
	Type       string             `json:"type"`
	ClientInfo *clientInfoPayload `json:"client_info"`
}

type exportResponsePayload struct {
	selection.Result
	Text string `json:"text"`
}

func (h *httpHandler) handleListFavorites(c *gin.Context) {
	entries, err := h.favorites.Favorites(c.Request.Context(), galleryFromContext(c).ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"favorites": entries, "count": len(entries)})
}

func (h *httpHandler) handleMyFavorites(c *gin.Context) {
	entries, err := h.favorites.MyFavorites(c.Request.Context(), galleryFromContext(c).ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"favorites": entries, "count": len(entries)})
}

func (h *httpHandler) handleAddFavorite(c *gin.Context) {
	gallery := galleryFromContext(c)
	if !gallery.AllowFavorites {
		c.JSON(http.StatusForbidden, errorResponse{Error: "favorites_disabled"})
		return
	}
	var request favoriteRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, "invalid favorite payload")
		return
	}
	if err := h.ensureSession(c.Request.Context(), request.UserName); err != nil {
		h.respondError(c, err)
		return
	}
	favorite, err := h.favorites.AddToFavorites(c.Request.Context(), gallery.ID, request.PhotoID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, favorite)
}

func (h *httpHandler) handleRemoveFavorite(c *gin.Context) {
	removed, err := h.favorites.RemoveFromFavorites(c.Request.Context(), galleryFromContext(c).ID, c.Param("photoID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func (h *httpHandler) handleClearFavorites(c *gin.Context) {
	cleared, err := h.favorites.ClearAllFavorites(c.Request.Context(), galleryFromContext(c).ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": cleared})
}

func (h *httpHandler) handleListComments(c *gin.Context) {
	galleryID := galleryFromContext(c).ID
	var (
		comments []favorites.Comment
		err      error
	)
	if photoID := strings.TrimSpace(c.Query("photo_id")); photoID != "" {
		comments, err = h.favorites.PhotoComments(c.Request.Context(), galleryID, photoID)
	} else {
		comments, err = h.favorites.Comments(c.Request.Context(), galleryID)
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments, "count": len(comments)})
}

func (h *httpHandler) handleAddComment(c *gin.Context) {
	gallery := galleryFromContext(c)
	if !gallery.AllowComments {
		c.JSON(http.StatusForbidden, errorResponse{Error: "comments_disabled"})
		return
	}
	var request commentRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, "invalid comment payload")
		return
	}
	if err := h.ensureSession(c.Request.Context(), request.UserName); err != nil {
		h.respondError(c, err)
		return
	}
	comment, err := h.favorites.AddComment(c.Request.Context(), gallery.ID, request.PhotoID, request.Comment)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

func (h *httpHandler) handleRemoveComment(c *gin.Context) {
	removed, err := h.favorites.RemoveGalleryComment(c.Request.Context(), galleryFromContext(c).ID, c.Param("commentID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func (h *httpHandler) handleCounts(c *gin.Context) {
	ctx := c.Request.Context()
	galleryID := galleryFromContext(c).ID
	favoritesCount, err := h.favorites.FavoritesCount(ctx, galleryID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	commentsCount, err := h.favorites.CommentsCount(ctx, galleryID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response := gin.H{"favorites": favoritesCount, "comments": commentsCount}
	if photoID := strings.TrimSpace(c.Query("photo_id")); photoID != "" {
		photoComments, err := h.favorites.PhotoCommentsCount(ctx, galleryID, photoID)
		if err != nil {
			h.respondError(c, err)
			return
		}
		favorite, err := h.favorites.IsFavorite(ctx, galleryID, photoID)
		if err != nil {
			h.respondError(c, err)
			return
		}
		response["photo_comments"] = photoComments
		response["is_favorite"] = favorite
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleExport(c *gin.Context) {
	var request exportRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, "invalid export payload")
		return
	}
	exportRequest := selection.Request{
		GalleryID: galleryFromContext(c).ID,
		Type:      selection.ParseType(request.Type),
	}
	if request.ClientInfo != nil {
		exportRequest.ClientInfo = &selection.ClientInfo{
			Name:  request.ClientInfo.Name,
			Email: request.ClientInfo.Email,
			Phone: request.ClientInfo.Phone,
		}
	}
	result, err := h.selection.Export(c.Request.Context(), exportRequest)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if result.EmailError != "" {
		h.logger.Warn("selection exported without notification",
			zap.String("gallery_id", exportRequest.GalleryID),
			zap.String("email_error", result.EmailError),
		)
	}
	c.JSON(http.StatusOK, exportResponsePayload{Result: result, Text: result.Text})
}

// ensureSession creates the session lazily on the first attributed write.
func (h *httpHandler) ensureSession(ctx context.Context, userName string) error {
	if strings.TrimSpace(userName) == "" || h.identity.IsLoggedIn(ctx) {
		return nil
	}
	_, err := h.identity.CreateSession(ctx, userName, "")
	return err
}

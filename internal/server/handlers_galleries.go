package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/proofing/internal/auth"
	"github.com/MarcoPoloResearchLab/proofing/internal/catalog"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type galleryRequestPayload struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	Password       string `json:"password"`
	AllowComments  bool   `json:"allow_comments"`
	AllowFavorites bool   `json:"allow_favorites"`
}

type galleryUpdatePayload struct {
	Name           *string `json:"name"`
	Description    *string `json:"description"`
	Password       *string `json:"password"`
	AllowComments  *bool   `json:"allow_comments"`
	AllowFavorites *bool   `json:"allow_favorites"`
}

type accessRequestPayload struct {
	Password string `json:"password"`
}

type accessResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (h *httpHandler) handleListGalleries(c *gin.Context) {
	galleries, err := h.catalog.ListGalleries(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"galleries": galleries})
}

func (h *httpHandler) handleCreateGallery(c *gin.Context) {
	var request galleryRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, "invalid gallery payload")
		return
	}
	gallery, err := h.catalog.CreateGallery(c.Request.Context(), catalog.GalleryInput{
		Name:           request.Name,
		Description:    request.Description,
		Password:       request.Password,
		AllowComments:  request.AllowComments,
		AllowFavorites: request.AllowFavorites,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gallery)
}

func (h *httpHandler) handleGetGallery(c *gin.Context) {
	gallery, err := h.catalog.GetGallery(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gallery)
}

func (h *httpHandler) handleUpdateGallery(c *gin.Context) {
	var request galleryUpdatePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, "invalid gallery payload")
		return
	}
	gallery, err := h.catalog.UpdateGallery(c.Request.Context(), c.Param("id"), catalog.GalleryUpdate{
		Name:           request.Name,
		Description:    request.Description,
		Password:       request.Password,
		AllowComments:  request.AllowComments,
		AllowFavorites: request.AllowFavorites,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gallery)
}

func (h *httpHandler) handleDeleteGallery(c *gin.Context) {
	if err := h.catalog.DeleteGallery(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleGalleryAccess(c *gin.Context) {
	var request accessRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, "invalid access payload")
		return
	}
	galleryID := c.Param("id")
	ok, err := h.catalog.VerifyPassword(c.Request.Context(), galleryID, request.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !ok {
		h.logger.Info("gallery password rejected", zap.String("gallery_id", galleryID))
		c.JSON(http.StatusUnauthorized, errorResponse{Error: "invalid_password", Code: "gallery.invalid_password"})
		return
	}
	token, expiresIn, err := h.tokens.Issue(galleryID)
	if err != nil {
		h.logger.Error("failed to issue gallery token", zap.String("gallery_id", galleryID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "token_issue_failed"})
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(auth.CookieName, token, int(expiresIn), "/", "", c.Request.TLS != nil, true)
	c.JSON(http.StatusOK, accessResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

func (h *httpHandler) handleListPhotos(c *gin.Context) {
	gallery := galleryFromContext(c)
	var (
		photos []catalog.Photo
		err    error
	)
	if subfolder, ok := c.GetQuery("subfolder"); ok {
		photos, err = h.catalog.ListPhotosIn(c.Request.Context(), gallery.ID, subfolder)
	} else {
		photos, err = h.catalog.ListPhotos(c.Request.Context(), gallery.ID)
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"photos": photos})
}

func (h *httpHandler) handleListSubfolders(c *gin.Context) {
	subfolders, err := h.catalog.ListSubfolders(c.Request.Context(), galleryFromContext(c).ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subfolders": subfolders})
}

func (h *httpHandler) handleUploadPhotos(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		badRequest(c, "multipart form required")
		return
	}
	files := append(form.File["files"], form.File["file"]...)
	if len(files) == 0 {
		badRequest(c, "at least one file is required")
		return
	}
	subfolder := ""
	if values := form.Value["subfolder"]; len(values) > 0 {
		subfolder = values[0]
	}

	galleryID := c.Param("id")
	uploaded := make([]catalog.Photo, 0, len(files))
	for _, fileHeader := range files {
		data, err := readUpload(fileHeader)
		if errors.Is(err, errFileTooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Error: "file_too_large", Message: err.Error()})
			return
		}
		if err != nil {
			badRequest(c, "unreadable upload")
			return
		}
		photo, err := h.catalog.UploadPhoto(c.Request.Context(), catalog.PhotoUpload{
			GalleryID:   galleryID,
			Subfolder:   subfolder,
			FileName:    fileHeader.Filename,
			ContentType: fileHeader.Header.Get("Content-Type"),
			Data:        data,
		})
		if err != nil {
			h.respondError(c, err)
			return
		}
		uploaded = append(uploaded, photo)
	}
	c.JSON(http.StatusCreated, gin.H{"photos": uploaded})
}

func (h *httpHandler) handleDeletePhoto(c *gin.Context) {
	if err := h.catalog.DeletePhoto(c.Request.Context(), c.Param("id"), c.Param("photoID")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

var errFileTooLarge = errors.New("file too large")

func readUpload(fileHeader *multipart.FileHeader) ([]byte, error) {
	if fileHeader.Size > maxPhotoBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", errFileTooLarge, strings.TrimSpace(fileHeader.Filename), maxPhotoBytes)
	}
	file, err := fileHeader.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxPhotoBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxPhotoBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", errFileTooLarge, strings.TrimSpace(fileHeader.Filename), maxPhotoBytes)
	}
	return data, nil
}

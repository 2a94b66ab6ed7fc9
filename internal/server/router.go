package server

import (
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/MarcoPoloResearchLab/proofing/internal/auth"
	"github.com/MarcoPoloResearchLab/proofing/internal/catalog"
	"github.com/MarcoPoloResearchLab/proofing/internal/emails"
	"github.com/MarcoPoloResearchLab/proofing/internal/favorites"
	"github.com/MarcoPoloResearchLab/proofing/internal/identity"
	"github.com/MarcoPoloResearchLab/proofing/internal/selection"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	galleryContextKey        = "proofing_gallery"
	defaultHeartbeatInterval = 25 * time.Second
	maxPhotoBytes            = 50 << 20
	maxMultipartMemory       = 32 << 20
)

var (
	errMissingCatalog   = errors.New("catalog service dependency required")
	errMissingFavorites = errors.New("favorites service dependency required")
	errMissingSelection = errors.New("selection service dependency required")
	errMissingIdentity  = errors.New("identity provider dependency required")
	errMissingTokens    = errors.New("access token dependency required")
)

// AccessTokens issues and checks gallery access tokens.
type AccessTokens interface {
	Issue(galleryID string) (string, int64, error)
	Authorize(r *http.Request, galleryID string) error
}

// Dependencies wires the HTTP API. EmailSettings, Realtime, Metrics and
// StorageFS are optional; their routes are omitted when nil.
type Dependencies struct {
	Catalog           *catalog.Service
	Favorites         *favorites.Service
	Selection         *selection.Service
	Identity          *identity.Provider
	EmailSettings     *emails.SettingsStore
	Tokens            AccessTokens
	Realtime          *RealtimeDispatcher
	Metrics           http.Handler
	StorageFS         afero.Fs
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Catalog == nil {
		return nil, errMissingCatalog
	}
	if deps.Favorites == nil {
		return nil, errMissingFavorites
	}
	if deps.Selection == nil {
		return nil, errMissingSelection
	}
	if deps.Identity == nil {
		return nil, errMissingIdentity
	}
	if deps.Tokens == nil {
		return nil, errMissingTokens
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.MaxMultipartMemory = maxMultipartMemory
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		catalog:   deps.Catalog,
		favorites: deps.Favorites,
		selection: deps.Selection,
		identity:  deps.Identity,
		settings:  deps.EmailSettings,
		tokens:    deps.Tokens,
		realtime:  deps.Realtime,
		heartbeat: heartbeat,
		logger:    logger,
	}

	router.GET("/healthz", handler.handleHealth)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}
	if deps.StorageFS != nil {
		router.StaticFS("/storage", fileOnlyFS{fs: afero.NewHttpFs(deps.StorageFS).Dir("/")})
	}

	router.GET("/device", handler.handleDevice)
	router.GET("/session", handler.handleGetSession)
	router.POST("/session", handler.handleCreateSession)
	router.DELETE("/session", handler.handleClearSession)
	if deps.EmailSettings != nil {
		router.GET("/settings/email", handler.handleGetEmailSettings)
		router.PUT("/settings/email", handler.handleSaveEmailSettings)
	}
	router.POST("/client-info/validate", handler.handleValidateClientInfo)

	galleries := router.Group("/galleries")
	galleries.GET("", handler.handleListGalleries)
	galleries.POST("", handler.handleCreateGallery)
	galleries.GET("/:id", handler.handleGetGallery)
	galleries.PATCH("/:id", handler.handleUpdateGallery)
	galleries.DELETE("/:id", handler.handleDeleteGallery)
	galleries.POST("/:id/access", handler.handleGalleryAccess)
	galleries.POST("/:id/photos", handler.handleUploadPhotos)
	galleries.DELETE("/:id/photos/:photoID", handler.handleDeletePhoto)

	protected := galleries.Group("/:id")
	protected.Use(handler.requireGalleryAccess)
	protected.GET("/photos", handler.handleListPhotos)
	protected.GET("/subfolders", handler.handleListSubfolders)
	protected.GET("/favorites", handler.handleListFavorites)
	protected.POST("/favorites", handler.handleAddFavorite)
	protected.DELETE("/favorites", handler.handleClearFavorites)
	protected.GET("/favorites/mine", handler.handleMyFavorites)
	protected.DELETE("/favorites/:photoID", handler.handleRemoveFavorite)
	protected.GET("/comments", handler.handleListComments)
	protected.POST("/comments", handler.handleAddComment)
	protected.DELETE("/comments/:commentID", handler.handleRemoveComment)
	protected.GET("/counts", handler.handleCounts)
	protected.POST("/selection/export", handler.handleExport)
	if deps.Realtime != nil {
		protected.GET("/events", handler.handleGalleryEvents)
	}

	return router, nil
}

type httpHandler struct {
	catalog   *catalog.Service
	favorites *favorites.Service
	selection *selection.Service
	identity  *identity.Provider
	settings  *emails.SettingsStore
	tokens    AccessTokens
	realtime  *RealtimeDispatcher
	heartbeat time.Duration
	logger    *zap.Logger
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type", auth.HeaderName},
		MaxAge:       12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = allowedOrigins
		config.AllowCredentials = true
	}
	return cors.New(config)
}

func (h *httpHandler) requireGalleryAccess(c *gin.Context) {
	gallery, err := h.catalog.GetGallery(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		c.Abort()
		return
	}
	if gallery.PasswordProtected {
		if err := h.tokens.Authorize(c.Request, gallery.ID); err != nil {
			h.logger.Info("gallery access denied", zap.String("gallery_id", gallery.ID), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "unauthorized", Code: "gallery.access_denied"})
			return
		}
	}
	c.Set(galleryContextKey, gallery)
	c.Next()
}

func galleryFromContext(c *gin.Context) catalog.Gallery {
	value, _ := c.Get(galleryContextKey)
	gallery, _ := value.(catalog.Gallery)
	return gallery
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":            "ok",
		"remote_configured": h.favorites.RemoteConfigured(),
	})
}

// fileOnlyFS serves files and hides directory listings.
type fileOnlyFS struct {
	fs http.FileSystem
}

func (f fileOnlyFS) Open(name string) (http.File, error) {
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.IsDir() {
		file.Close()
		return nil, os.ErrNotExist
	}
	return file, nil
}

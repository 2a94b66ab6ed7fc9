// Package selection renders a gallery's reconciled favorites and comments
// into the client selection manifest, stores it and notifies the photographer.
package selection

import (
	"context"
	"encoding/base64"
	"errors"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/proofing/internal/blobstore"
	"github.com/MarcoPoloResearchLab/proofing/internal/catalog"
	"github.com/MarcoPoloResearchLab/proofing/internal/emails"
	"github.com/MarcoPoloResearchLab/proofing/internal/favorites"
	"github.com/MarcoPoloResearchLab/proofing/internal/identity"
	"github.com/MarcoPoloResearchLab/proofing/internal/svcerr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	selectionsPrefix = "selections"
	textContentType  = "text/plain; charset=utf-8"
	dataURLPrefix    = "data:text/plain;charset=utf-8;base64,"
)

const (
	opServiceNew = "selection.service.new"
	opExport     = "selection.export"

	outcomeUploaded  = "uploaded"
	outcomeTemporary = "temporary"
	outcomeEmpty     = "empty"
	outcomeInvalid   = "invalid"
	emailSent        = "sent"
	emailFailed      = "failed"
	emailSkipped     = "skipped"
)

// NoSelectionMessage is shown to the client when nothing is selected.
const NoSelectionMessage = "Aucune photo sélectionnée."

// ErrNoSelection indicates an export with no eligible favorites.
var ErrNoSelection = errors.New("selection: no photo selected")

var (
	errMissingSelections = errors.New("selection source is required")
	errMissingBlobs      = errors.New("blob store is required")
	noOpLogger           = zap.NewNop()
)

// CatalogReader resolves gallery names and photo metadata.
type CatalogReader interface {
	GetGallery(ctx context.Context, galleryID string) (catalog.Gallery, error)
	ListPhotos(ctx context.Context, galleryID string) ([]catalog.Photo, error)
}

// SelectionSource supplies the reconciled favorites and comments.
type SelectionSource interface {
	FavoriteRows(ctx context.Context, galleryID string) ([]favorites.Favorite, error)
	Comments(ctx context.Context, galleryID string) ([]favorites.Comment, error)
}

// SessionSource reports the current user session, if any.
type SessionSource interface {
	CurrentSession(ctx context.Context) (identity.Session, bool)
}

// SettingsSource reports whether notifications are enabled and where they go.
type SettingsSource interface {
	Load(ctx context.Context) (emails.Settings, error)
}

// ExportRecorder counts exports and notification emails.
type ExportRecorder interface {
	Export(exportType, outcome string)
	Email(outcome string)
}

// ServiceConfig wires the export service. Catalog, Sessions, Mailer and
// Settings are optional.
type ServiceConfig struct {
	Catalog    CatalogReader
	Selections SelectionSource
	Sessions   SessionSource
	Blobs      blobstore.Store
	Bucket     string
	Mailer     emails.Transport
	Settings   SettingsSource
	AppBaseURL string
	Clock      func() time.Time
	Logger     *zap.Logger
	Metrics    ExportRecorder
}

// Service performs selection exports.
type Service struct {
	catalog    CatalogReader
	selections SelectionSource
	sessions   SessionSource
	blobs      blobstore.Store
	bucket     string
	mailer     emails.Transport
	settings   SettingsSource
	appBaseURL string
	clock      func() time.Time
	logger     *zap.Logger
	metrics    ExportRecorder
}

// Request describes one export.
type Request struct {
	GalleryID  string
	Type       Type
	ClientInfo *ClientInfo
}

// Result reports what an export produced. IsTemporary marks a download URL
// that only embeds the document because the upload failed.
type Result struct {
	Export           Export `json:"export"`
	Text             string `json:"-"`
	FileName         string `json:"file_name"`
	Path             string `json:"path,omitempty"`
	URL              string `json:"url"`
	IsTemporary      bool   `json:"is_temporary"`
	PersonalFallback bool   `json:"personal_fallback,omitempty"`
	EmailSent        bool   `json:"email_sent"`
	MessageID        string `json:"message_id,omitempty"`
	EmailError       string `json:"email_error,omitempty"`
}

// NewService validates the configuration and builds a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Selections == nil {
		return nil, svcerr.New(opServiceNew, "missing_selections", errMissingSelections)
	}
	if cfg.Blobs == nil {
		return nil, svcerr.New(opServiceNew, "missing_blobs", errMissingBlobs)
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		bucket = "photos"
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		catalog:    cfg.Catalog,
		selections: cfg.Selections,
		sessions:   cfg.Sessions,
		blobs:      cfg.Blobs,
		bucket:     bucket,
		mailer:     cfg.Mailer,
		settings:   cfg.Settings,
		appBaseURL: strings.TrimRight(cfg.AppBaseURL, "/"),
		clock:      clock,
		logger:     logger,
		metrics:    cfg.Metrics,
	}, nil
}

type sourceData struct {
	galleryName string
	photos      []catalog.Photo
	favorites   []favorites.Favorite
	comments    []favorites.Comment
}

// Build assembles the export document without storing or sending it. The
// returned flag reports a personal export that fell back to the full
// selection because no session exists.
func (s *Service) Build(ctx context.Context, request Request) (Export, bool, error) {
	galleryID := strings.TrimSpace(request.GalleryID)
	if galleryID == "" {
		return Export{}, false, svcerr.New(opExport, "invalid_gallery_id", favorites.ErrInvalidGalleryID)
	}
	exportType := request.Type
	if exportType != TypePersonal {
		exportType = TypeComplete
	}
	var client *ClientInfo
	if request.ClientInfo != nil && !request.ClientInfo.IsZero() {
		if err := request.ClientInfo.validate(); err != nil {
			s.recordExport(exportType, outcomeInvalid)
			return Export{}, false, err
		}
		normalized := request.ClientInfo.normalized()
		client = &normalized
	}

	data, err := s.gather(ctx, galleryID)
	if err != nil {
		return Export{}, false, err
	}

	rows, comments := data.favorites, data.comments
	personalFallback := false
	if exportType == TypePersonal {
		session, ok := s.currentSession(ctx)
		if ok {
			rows = filterFavorites(rows, session.UserID)
			comments = filterComments(comments, session.UserID)
		} else {
			personalFallback = true
			s.logger.Warn("personal export without a session; exporting the full selection",
				zap.String("gallery_id", galleryID))
		}
	}

	unique := favorites.DedupeFavorites(rows)
	if len(unique) == 0 {
		s.recordExport(exportType, outcomeEmpty)
		return Export{}, personalFallback, svcerr.New(opExport, "no_selection", ErrNoSelection)
	}

	resolver := newPhotoResolver(data.photos)
	commentsByPhoto := make(map[string][]favorites.Comment)
	for _, comment := range comments {
		commentsByPhoto[comment.PhotoID] = append(commentsByPhoto[comment.PhotoID], comment)
	}

	export := Export{
		GalleryID:      galleryID,
		GalleryName:    data.galleryName,
		Type:           exportType,
		ExportDate:     s.clock().UTC(),
		SelectedPhotos: make([]SelectedPhoto, 0, len(unique)),
		TotalSelected:  len(unique),
		ClientInfo:     client,
		MultiUserData:  make([]PhotoUsers, 0, len(unique)),
	}
	for _, favorite := range unique {
		selected := resolver.resolve(favorite.PhotoID)
		photoComments := commentsByPhoto[favorite.PhotoID]
		selected.Comments = make([]string, 0, len(photoComments))
		userComments := make([]UserComment, 0, len(photoComments))
		for _, comment := range photoComments {
			selected.Comments = append(selected.Comments, formatComment(comment))
			userComments = append(userComments, UserComment{UserName: displayName(comment.UserName), Text: comment.Comment})
		}
		export.SelectedPhotos = append(export.SelectedPhotos, selected)
		export.MultiUserData = append(export.MultiUserData, PhotoUsers{
			PhotoID:  favorite.PhotoID,
			Users:    usersFor(rows, favorite.PhotoID),
			Comments: userComments,
		})
	}
	return export, personalFallback, nil
}

// Export builds, renders, uploads and announces a selection. Storage and
// email failures degrade the result instead of failing it.
func (s *Service) Export(ctx context.Context, request Request) (Result, error) {
	export, personalFallback, err := s.Build(ctx, request)
	if err != nil {
		return Result{}, err
	}
	text := GenerateSelectionText(export)
	result := Result{
		Export:           export,
		Text:             text,
		FileName:         export.FileName(),
		PersonalFallback: personalFallback,
	}

	objectPath := path.Join(selectionsPrefix, result.FileName)
	uploaded, err := s.blobs.Upload(ctx, s.bucket, objectPath, []byte(text), blobstore.UploadOptions{
		Upsert:      true,
		ContentType: textContentType,
	})
	if err != nil {
		s.logger.Warn("selection upload failed; returning a temporary link",
			zap.String("gallery_id", export.GalleryID), zap.String("path", objectPath), zap.Error(err))
		result.URL = dataURLPrefix + base64.StdEncoding.EncodeToString([]byte(text))
		result.IsTemporary = true
		s.recordExport(export.Type, outcomeTemporary)
	} else {
		result.Path = uploaded.Path
		result.URL = s.blobs.PublicURL(s.bucket, uploaded.Path)
		s.recordExport(export.Type, outcomeUploaded)
	}

	s.notify(ctx, &result)
	s.logger.Info("selection exported",
		zap.String("gallery_id", export.GalleryID),
		zap.String("type", string(export.Type)),
		zap.Int("total_selected", export.TotalSelected),
		zap.Bool("temporary", result.IsTemporary),
		zap.Bool("email_sent", result.EmailSent))
	return result, nil
}

func (s *Service) gather(ctx context.Context, galleryID string) (sourceData, error) {
	data := sourceData{galleryName: galleryID}
	group, groupCtx := errgroup.WithContext(ctx)

	if s.catalog != nil {
		group.Go(func() error {
			gallery, err := s.catalog.GetGallery(groupCtx, galleryID)
			if err != nil {
				s.logger.Warn("gallery lookup failed; using the gallery id as its name",
					zap.String("gallery_id", galleryID), zap.Error(err))
				return nil
			}
			if strings.TrimSpace(gallery.Name) != "" {
				data.galleryName = gallery.Name
			}
			return nil
		})
		group.Go(func() error {
			photos, err := s.catalog.ListPhotos(groupCtx, galleryID)
			if err != nil {
				s.logger.Warn("photo lookup failed; exporting raw photo ids",
					zap.String("gallery_id", galleryID), zap.Error(err))
				return nil
			}
			data.photos = photos
			return nil
		})
	}
	group.Go(func() error {
		rows, err := s.selections.FavoriteRows(groupCtx, galleryID)
		if err != nil {
			return err
		}
		data.favorites = rows
		return nil
	})
	group.Go(func() error {
		comments, err := s.selections.Comments(groupCtx, galleryID)
		if err != nil {
			return err
		}
		data.comments = comments
		return nil
	})

	if err := group.Wait(); err != nil {
		return sourceData{}, svcerr.New(opExport, "selection_read_failed", err)
	}
	return data, nil
}

func (s *Service) notify(ctx context.Context, result *Result) {
	if s.settings == nil {
		return
	}
	settings, err := s.settings.Load(ctx)
	if err != nil {
		s.logger.Warn("email settings unreadable; skipping notification", zap.Error(err))
		return
	}
	if !settings.Enabled || settings.PhotographerAddress == "" {
		return
	}
	if result.IsTemporary {
		result.EmailError = "notification skipped: the selection file could not be stored"
		s.recordEmail(emailSkipped)
		return
	}
	if s.mailer == nil {
		result.EmailError = "notification skipped: no email transport configured"
		s.recordEmail(emailSkipped)
		return
	}

	names := make([]string, 0, len(result.Export.SelectedPhotos))
	for _, photo := range result.Export.SelectedPhotos {
		names = append(names, photo.PhotoName)
	}
	clientName := ""
	if result.Export.ClientInfo != nil {
		clientName = result.Export.ClientInfo.Name
	}
	message, err := emails.BuildSelectionNotification(emails.SelectionNotification{
		GalleryName:   result.Export.GalleryName,
		SelectionType: result.Export.Type.Label(),
		ClientName:    clientName,
		PhotoCount:    result.Export.TotalSelected,
		GalleryURL:    s.galleryURL(result.Export.GalleryID),
		DownloadURL:   result.URL,
		PhotoNames:    names,
	})
	if err != nil {
		s.logger.Error("selection email rendering failed", zap.String("reason", "render_failed"), zap.Error(err))
		result.EmailError = err.Error()
		s.recordEmail(emailFailed)
		return
	}
	message.To = settings.PhotographerAddress

	messageID, err := s.mailer.Send(ctx, message)
	if err != nil {
		s.logger.Error("selection email failed",
			zap.String("gallery_id", result.Export.GalleryID), zap.String("reason", "send_failed"), zap.Error(err))
		result.EmailError = err.Error()
		s.recordEmail(emailFailed)
		return
	}
	result.EmailSent = true
	result.MessageID = messageID
	s.recordEmail(emailSent)
}

func (s *Service) currentSession(ctx context.Context) (identity.Session, bool) {
	if s.sessions == nil {
		return identity.Session{}, false
	}
	return s.sessions.CurrentSession(ctx)
}

func (s *Service) galleryURL(galleryID string) string {
	return s.appBaseURL + "/gallery/" + galleryID
}

func (s *Service) recordExport(exportType Type, outcome string) {
	if s.metrics != nil {
		s.metrics.Export(string(exportType), outcome)
	}
}

func (s *Service) recordEmail(outcome string) {
	if s.metrics != nil {
		s.metrics.Email(outcome)
	}
}

func filterFavorites(rows []favorites.Favorite, userID string) []favorites.Favorite {
	filtered := make([]favorites.Favorite, 0, len(rows))
	for _, row := range rows {
		if row.UserID == userID {
			filtered = append(filtered, row)
		}
	}
	return filtered
}

func filterComments(comments []favorites.Comment, userID string) []favorites.Comment {
	filtered := make([]favorites.Comment, 0, len(comments))
	for _, comment := range comments {
		if comment.UserID == userID {
			filtered = append(filtered, comment)
		}
	}
	return filtered
}

// usersFor lists the distinct names that favorited photoID, sorted.
func usersFor(rows []favorites.Favorite, photoID string) []string {
	seen := make(map[string]struct{})
	users := make([]string, 0)
	for _, row := range rows {
		if row.PhotoID != photoID {
			continue
		}
		name := displayName(row.UserName)
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		users = append(users, name)
	}
	sort.Strings(users)
	return users
}

func formatComment(comment favorites.Comment) string {
	if strings.TrimSpace(comment.UserName) == "" {
		return comment.Comment
	}
	return comment.Comment + " (" + comment.UserName + ")"
}

func displayName(userName string) string {
	if strings.TrimSpace(userName) == "" {
		return anonymousUser
	}
	return userName
}

// photoResolver matches favorite photo ids against the catalog by id,
// storage path, then name.
type photoResolver struct {
	byID   map[string]catalog.Photo
	byPath map[string]catalog.Photo
	byName map[string]catalog.Photo
}

func newPhotoResolver(photos []catalog.Photo) photoResolver {
	resolver := photoResolver{
		byID:   make(map[string]catalog.Photo, len(photos)),
		byPath: make(map[string]catalog.Photo, len(photos)),
		byName: make(map[string]catalog.Photo, len(photos)),
	}
	for _, photo := range photos {
		resolver.byID[photo.ID] = photo
		resolver.byPath[photo.StoragePath] = photo
		if _, ok := resolver.byName[photo.Name]; !ok {
			resolver.byName[photo.Name] = photo
		}
	}
	return resolver
}

func (r photoResolver) resolve(photoID string) SelectedPhoto {
	for _, index := range []map[string]catalog.Photo{r.byID, r.byPath, r.byName} {
		if photo, ok := index[photoID]; ok {
			return SelectedPhoto{
				PhotoID:      photoID,
				PhotoName:    photo.Name,
				OriginalName: photo.OriginalName,
				URL:          photo.URL,
			}
		}
	}
	return SelectedPhoto{PhotoID: photoID, PhotoName: path.Base(photoID)}
}

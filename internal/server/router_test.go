package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/proofing/internal/auth"
	"github.com/MarcoPoloResearchLab/proofing/internal/blobstore"
	"github.com/MarcoPoloResearchLab/proofing/internal/catalog"
	"github.com/MarcoPoloResearchLab/proofing/internal/database"
	"github.com/MarcoPoloResearchLab/proofing/internal/emails"
	"github.com/MarcoPoloResearchLab/proofing/internal/favorites"
	"github.com/MarcoPoloResearchLab/proofing/internal/identity"
	"github.com/MarcoPoloResearchLab/proofing/internal/localstore"
	"github.com/MarcoPoloResearchLab/proofing/internal/metrics"
	"github.com/MarcoPoloResearchLab/proofing/internal/recordstore"
	"github.com/MarcoPoloResearchLab/proofing/internal/selection"
	"github.com/MarcoPoloResearchLab/proofing/internal/svcerr"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type recordingMailer struct {
	mu       sync.Mutex
	messages []emails.Message
}

func (m *recordingMailer) Send(_ context.Context, message emails.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, message)
	return "msg-1", nil
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

type apiHarness struct {
	handler http.Handler
	catalog *catalog.Service
	mailer  *recordingMailer
}

func newAPIHarness(t *testing.T) apiHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(filepath.Join(t.TempDir(), "shared.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	records := recordstore.NewGormStore(db)

	local, err := localstore.Open(filepath.Join(t.TempDir(), "local.db"))
	if err != nil {
		t.Fatalf("failed to open local store: %v", err)
	}
	t.Cleanup(func() { _ = local.Close() })

	fs := afero.NewMemMapFs()
	blobs := blobstore.NewFSStore(fs, "/storage", "http://localhost:8080/storage")
	provider := identity.NewProvider(identity.Config{Store: local})
	dispatcher := NewRealtimeDispatcher()
	recorder := metrics.NewRecorder()

	catalogService, err := catalog.NewService(catalog.ServiceConfig{
		Records:      records,
		Blobs:        blobs,
		PasswordCost: bcrypt.MinCost,
	})
	if err != nil {
		t.Fatalf("failed to build catalog: %v", err)
	}
	favoritesService, err := favorites.NewService(favorites.ServiceConfig{
		Remote:    records,
		Local:     local,
		Identity:  provider,
		Migration: &favorites.MigrationState{},
		Events:    dispatcher,
		Metrics:   recorder,
	})
	if err != nil {
		t.Fatalf("failed to build favorites: %v", err)
	}
	settings := emails.NewSettingsStore(local, emails.Settings{Enabled: true, PhotographerAddress: "studio@example.com"})
	mailer := &recordingMailer{}
	selectionService, err := selection.NewService(selection.ServiceConfig{
		Catalog:    catalogService,
		Selections: favoritesService,
		Sessions:   provider,
		Blobs:      blobs,
		Bucket:     catalogService.Bucket(),
		Mailer:     mailer,
		Settings:   settings,
		AppBaseURL: "http://localhost:5173",
		Metrics:    recorder,
	})
	if err != nil {
		t.Fatalf("failed to build selection: %v", err)
	}
	tokens, err := auth.NewAccessTokenIssuer(auth.AccessTokenIssuerConfig{
		SigningSecret: []byte("test-signing-secret"),
		Issuer:        "proofing-api",
		Audience:      "proofing-gallery",
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to build token issuer: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Catalog:           catalogService,
		Favorites:         favoritesService,
		Selection:         selectionService,
		Identity:          provider,
		EmailSettings:     settings,
		Tokens:            tokens,
		Realtime:          dispatcher,
		Metrics:           recorder.Handler(),
		StorageFS:         blobs.Filesystem(),
		HeartbeatInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}
	return apiHarness{handler: handler, catalog: catalogService, mailer: mailer}
}

func (h apiHarness) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	request := httptest.NewRequest(method, path, reader)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		request.Header.Set(key, value)
	}
	recorder := httptest.NewRecorder()
	h.handler.ServeHTTP(recorder, request)
	return recorder
}

func (h apiHarness) createGallery(t *testing.T, payload galleryRequestPayload) catalog.Gallery {
	t.Helper()
	response := h.do(t, http.MethodPost, "/galleries", payload, nil)
	if response.Code != http.StatusCreated {
		t.Fatalf("create gallery: status %d body %s", response.Code, response.Body.String())
	}
	var gallery catalog.Gallery
	decode(t, response, &gallery)
	return gallery
}

func (h apiHarness) uploadPhoto(t *testing.T, galleryID, fileName string, data []byte) catalog.Photo {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("files", fileName)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}
	request := httptest.NewRequest(http.MethodPost, "/galleries/"+galleryID+"/photos", body)
	request.Header.Set("Content-Type", writer.FormDataContentType())
	recorder := httptest.NewRecorder()
	h.handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("upload: status %d body %s", recorder.Code, recorder.Body.String())
	}
	var payload struct {
		Photos []catalog.Photo `json:"photos"`
	}
	decode(t, recorder, &payload)
	if len(payload.Photos) != 1 {
		t.Fatalf("expected one uploaded photo, got %d", len(payload.Photos))
	}
	return payload.Photos[0]
}

func decode(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode %q: %v", recorder.Body.String(), err)
	}
}

func TestNewHTTPHandlerRequiresDependencies(t *testing.T) {
	if _, err := NewHTTPHandler(Dependencies{}); !errors.Is(err, errMissingCatalog) {
		t.Fatalf("expected missing catalog error, got %v", err)
	}
}

func TestHealthDeviceAndSessionRoutes(t *testing.T) {
	harness := newAPIHarness(t)

	health := harness.do(t, http.MethodGet, "/healthz", nil, nil)
	if health.Code != http.StatusOK || !strings.Contains(health.Body.String(), `"remote_configured":true`) {
		t.Fatalf("unexpected health response %d %s", health.Code, health.Body.String())
	}

	device := harness.do(t, http.MethodGet, "/device", nil, nil)
	if device.Code != http.StatusOK || !strings.Contains(device.Body.String(), "device_") {
		t.Fatalf("unexpected device response %d %s", device.Code, device.Body.String())
	}

	invalid := harness.do(t, http.MethodPost, "/session", sessionRequestPayload{UserName: "A"}, nil)
	if invalid.Code != http.StatusBadRequest || !strings.Contains(invalid.Body.String(), "invalid_name") {
		t.Fatalf("expected invalid name, got %d %s", invalid.Code, invalid.Body.String())
	}

	created := harness.do(t, http.MethodPost, "/session", sessionRequestPayload{UserName: "Alice"}, nil)
	if created.Code != http.StatusCreated {
		t.Fatalf("expected session created, got %d %s", created.Code, created.Body.String())
	}
	current := harness.do(t, http.MethodGet, "/session", nil, nil)
	if !strings.Contains(current.Body.String(), `"logged_in":true`) || !strings.Contains(current.Body.String(), "Alice") {
		t.Fatalf("unexpected session %s", current.Body.String())
	}
	if cleared := harness.do(t, http.MethodDelete, "/session", nil, nil); cleared.Code != http.StatusNoContent {
		t.Fatalf("expected no content, got %d", cleared.Code)
	}
	current = harness.do(t, http.MethodGet, "/session", nil, nil)
	if !strings.Contains(current.Body.String(), `"logged_in":false`) {
		t.Fatalf("expected session cleared, got %s", current.Body.String())
	}
}

func TestProtectedGalleryRequiresAccessToken(t *testing.T) {
	harness := newAPIHarness(t)
	gallery := harness.createGallery(t, galleryRequestPayload{Name: "Portraits", Password: "s3cret", AllowFavorites: true})
	photosPath := "/galleries/" + gallery.ID + "/photos"

	if response := harness.do(t, http.MethodGet, photosPath, nil, nil); response.Code != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized without token, got %d", response.Code)
	}

	wrong := harness.do(t, http.MethodPost, "/galleries/"+gallery.ID+"/access", accessRequestPayload{Password: "nope"}, nil)
	if wrong.Code != http.StatusUnauthorized || !strings.Contains(wrong.Body.String(), "invalid_password") {
		t.Fatalf("expected invalid password, got %d %s", wrong.Code, wrong.Body.String())
	}

	granted := harness.do(t, http.MethodPost, "/galleries/"+gallery.ID+"/access", accessRequestPayload{Password: "s3cret"}, nil)
	if granted.Code != http.StatusOK {
		t.Fatalf("expected access granted, got %d %s", granted.Code, granted.Body.String())
	}
	var access accessResponsePayload
	decode(t, granted, &access)
	if access.AccessToken == "" || access.TokenType != "Bearer" || access.ExpiresIn != 3600 {
		t.Fatalf("unexpected access response %+v", access)
	}
	if !strings.Contains(granted.Header().Get("Set-Cookie"), auth.CookieName+"=") {
		t.Fatalf("expected access cookie, got %q", granted.Header().Get("Set-Cookie"))
	}

	authorized := harness.do(t, http.MethodGet, photosPath, nil, map[string]string{"Authorization": "Bearer " + access.AccessToken})
	if authorized.Code != http.StatusOK {
		t.Fatalf("expected photos with token, got %d %s", authorized.Code, authorized.Body.String())
	}

	other := harness.createGallery(t, galleryRequestPayload{Name: "Autre", Password: "other"})
	if response := harness.do(t, http.MethodGet, "/galleries/"+other.ID+"/photos", nil, map[string]string{"Authorization": "Bearer " + access.AccessToken}); response.Code != http.StatusUnauthorized {
		t.Fatalf("token must not unlock another gallery, got %d", response.Code)
	}

	if response := harness.do(t, http.MethodGet, "/galleries/missing/photos", nil, nil); response.Code != http.StatusNotFound {
		t.Fatalf("expected not found, got %d", response.Code)
	}
}

func TestSelectionFlowOverHTTP(t *testing.T) {
	harness := newAPIHarness(t)
	gallery := harness.createGallery(t, galleryRequestPayload{Name: "Mariage", AllowFavorites: true, AllowComments: true})
	base := "/galleries/" + gallery.ID
	photo := harness.uploadPhoto(t, gallery.ID, "IMG_0001.jpg", []byte("jpeg-bytes"))

	empty := harness.do(t, http.MethodPost, base+"/selection/export", exportRequestPayload{Type: "complete"}, nil)
	if empty.Code != http.StatusUnprocessableEntity || !strings.Contains(empty.Body.String(), selection.NoSelectionMessage) {
		t.Fatalf("expected no selection, got %d %s", empty.Code, empty.Body.String())
	}

	added := harness.do(t, http.MethodPost, base+"/favorites", favoriteRequestPayload{PhotoID: photo.ID, UserName: "Alice"}, nil)
	if added.Code != http.StatusCreated {
		t.Fatalf("add favorite: %d %s", added.Code, added.Body.String())
	}
	if session := harness.do(t, http.MethodGet, "/session", nil, nil); !strings.Contains(session.Body.String(), "Alice") {
		t.Fatalf("expected lazily created session, got %s", session.Body.String())
	}

	commented := harness.do(t, http.MethodPost, base+"/comments", commentRequestPayload{PhotoID: photo.ID, Comment: "  love this  "}, nil)
	if commented.Code != http.StatusCreated {
		t.Fatalf("add comment: %d %s", commented.Code, commented.Body.String())
	}
	blank := harness.do(t, http.MethodPost, base+"/comments", commentRequestPayload{PhotoID: photo.ID, Comment: "   "}, nil)
	if blank.Code != http.StatusBadRequest {
		t.Fatalf("expected blank comment rejected, got %d", blank.Code)
	}

	counts := harness.do(t, http.MethodGet, base+"/counts?photo_id="+photo.ID, nil, nil)
	var countPayload struct {
		Favorites     int  `json:"favorites"`
		Comments      int  `json:"comments"`
		PhotoComments int  `json:"photo_comments"`
		IsFavorite    bool `json:"is_favorite"`
	}
	decode(t, counts, &countPayload)
	if countPayload.Favorites != 1 || countPayload.Comments != 1 || countPayload.PhotoComments != 1 || !countPayload.IsFavorite {
		t.Fatalf("unexpected counts %+v", countPayload)
	}

	invalidClient := harness.do(t, http.MethodPost, base+"/selection/export", exportRequestPayload{
		Type:       "complete",
		ClientInfo: &clientInfoPayload{Name: "Jean", Email: "not-an-email"},
	}, nil)
	if invalidClient.Code != http.StatusBadRequest || !strings.Contains(invalidClient.Body.String(), "invalid_client_info") {
		t.Fatalf("expected invalid client info, got %d %s", invalidClient.Code, invalidClient.Body.String())
	}

	exported := harness.do(t, http.MethodPost, base+"/selection/export", exportRequestPayload{
		Type:       "personal",
		ClientInfo: &clientInfoPayload{Name: "Jean", Email: "jean@example.com"},
	}, nil)
	if exported.Code != http.StatusOK {
		t.Fatalf("export: %d %s", exported.Code, exported.Body.String())
	}
	var result struct {
		URL         string `json:"url"`
		IsTemporary bool   `json:"is_temporary"`
		EmailSent   bool   `json:"email_sent"`
		MessageID   string `json:"message_id"`
		Text        string `json:"text"`
	}
	decode(t, exported, &result)
	if !strings.HasPrefix(result.URL, "http://localhost:8080/storage/photos/selections/selection-personal-"+gallery.ID+"-") || result.IsTemporary {
		t.Fatalf("unexpected export url %q (temporary %v)", result.URL, result.IsTemporary)
	}
	if !result.EmailSent || result.MessageID != "msg-1" || harness.mailer.count() != 1 {
		t.Fatalf("expected notification sent, got %+v", result)
	}
	if !strings.Contains(result.Text, "1. IMG_0001.jpg") || !strings.Contains(result.Text, "• love this (Alice)") {
		t.Fatalf("unexpected manifest:\n%s", result.Text)
	}

	removed := harness.do(t, http.MethodDelete, base+"/favorites/"+photo.ID, nil, nil)
	if removed.Code != http.StatusOK || !strings.Contains(removed.Body.String(), `"removed":true`) {
		t.Fatalf("remove favorite: %d %s", removed.Code, removed.Body.String())
	}
	mine := harness.do(t, http.MethodGet, base+"/favorites/mine", nil, nil)
	if !strings.Contains(mine.Body.String(), `"count":0`) {
		t.Fatalf("expected no favorites left, got %s", mine.Body.String())
	}
}

func TestGalleryFlagsGateWrites(t *testing.T) {
	harness := newAPIHarness(t)
	gallery := harness.createGallery(t, galleryRequestPayload{Name: "Lecture seule"})
	base := "/galleries/" + gallery.ID

	if response := harness.do(t, http.MethodPost, base+"/favorites", favoriteRequestPayload{PhotoID: "p1"}, nil); response.Code != http.StatusForbidden {
		t.Fatalf("expected favorites disabled, got %d", response.Code)
	}
	if response := harness.do(t, http.MethodPost, base+"/comments", commentRequestPayload{PhotoID: "p1", Comment: "hi"}, nil); response.Code != http.StatusForbidden {
		t.Fatalf("expected comments disabled, got %d", response.Code)
	}

	enabled := true
	updated := harness.do(t, http.MethodPatch, base, galleryUpdatePayload{AllowFavorites: &enabled}, nil)
	if updated.Code != http.StatusOK {
		t.Fatalf("update gallery: %d %s", updated.Code, updated.Body.String())
	}
	if response := harness.do(t, http.MethodPost, base+"/favorites", favoriteRequestPayload{PhotoID: "p1"}, nil); response.Code != http.StatusCreated {
		t.Fatalf("expected favorite accepted after update, got %d %s", response.Code, response.Body.String())
	}
}

func TestRemoveCommentIsScopedToRouteGallery(t *testing.T) {
	harness := newAPIHarness(t)
	first := harness.createGallery(t, galleryRequestPayload{Name: "Mariage", AllowComments: true})
	second := harness.createGallery(t, galleryRequestPayload{Name: "Portraits", AllowComments: true})

	added := harness.do(t, http.MethodPost, "/galleries/"+second.ID+"/comments", commentRequestPayload{PhotoID: "p1", Comment: "keep"}, nil)
	if added.Code != http.StatusCreated {
		t.Fatalf("add comment: %d %s", added.Code, added.Body.String())
	}
	var comment favorites.Comment
	decode(t, added, &comment)

	crossed := harness.do(t, http.MethodDelete, "/galleries/"+first.ID+"/comments/"+comment.ID, nil, nil)
	if crossed.Code != http.StatusOK || !strings.Contains(crossed.Body.String(), `"removed":false`) {
		t.Fatalf("expected removal through another gallery to be refused, got %d %s", crossed.Code, crossed.Body.String())
	}
	removed := harness.do(t, http.MethodDelete, "/galleries/"+second.ID+"/comments/"+comment.ID, nil, nil)
	if removed.Code != http.StatusOK || !strings.Contains(removed.Body.String(), `"removed":true`) {
		t.Fatalf("expected removal within the gallery, got %d %s", removed.Code, removed.Body.String())
	}
}

func TestStorageRouteServesFilesOnly(t *testing.T) {
	harness := newAPIHarness(t)
	gallery := harness.createGallery(t, galleryRequestPayload{Name: "Mariage"})
	photo := harness.uploadPhoto(t, gallery.ID, "IMG_0001.jpg", []byte("jpeg-bytes"))

	file := harness.do(t, http.MethodGet, "/storage/photos/"+photo.StoragePath, nil, nil)
	if file.Code != http.StatusOK || file.Body.String() != "jpeg-bytes" {
		t.Fatalf("unexpected file response %d %q", file.Code, file.Body.String())
	}
	if listing := harness.do(t, http.MethodGet, "/storage/photos/"+gallery.ID+"/", nil, nil); listing.Code != http.StatusNotFound {
		t.Fatalf("expected directory listing hidden, got %d", listing.Code)
	}

	if deleted := harness.do(t, http.MethodDelete, "/galleries/"+gallery.ID+"/photos/"+photo.ID, nil, nil); deleted.Code != http.StatusNoContent {
		t.Fatalf("delete photo: %d %s", deleted.Code, deleted.Body.String())
	}
	if gone := harness.do(t, http.MethodGet, "/storage/photos/"+photo.StoragePath, nil, nil); gone.Code != http.StatusNotFound {
		t.Fatalf("expected deleted file to be gone, got %d", gone.Code)
	}
}

func TestEmailSettingsRoutes(t *testing.T) {
	harness := newAPIHarness(t)

	loaded := harness.do(t, http.MethodGet, "/settings/email", nil, nil)
	if !strings.Contains(loaded.Body.String(), "studio@example.com") {
		t.Fatalf("expected seeded defaults, got %s", loaded.Body.String())
	}
	rejected := harness.do(t, http.MethodPut, "/settings/email", emails.Settings{Enabled: true, PhotographerAddress: "nope"}, nil)
	if rejected.Code != http.StatusBadRequest {
		t.Fatalf("expected invalid address, got %d", rejected.Code)
	}
	saved := harness.do(t, http.MethodPut, "/settings/email", emails.Settings{Enabled: false, PhotographerAddress: "Studio <photo@example.com>"}, nil)
	if saved.Code != http.StatusOK || !strings.Contains(saved.Body.String(), `"photographerAddress":"photo@example.com"`) {
		t.Fatalf("unexpected save response %d %s", saved.Code, saved.Body.String())
	}
}

func TestValidateClientInfoRoute(t *testing.T) {
	harness := newAPIHarness(t)
	response := harness.do(t, http.MethodPost, "/client-info/validate", clientInfoPayload{Name: "Jean", Email: "bad", Phone: "123"}, nil)
	var payload struct {
		Valid  bool     `json:"valid"`
		Errors []string `json:"errors"`
	}
	decode(t, response, &payload)
	if payload.Valid || len(payload.Errors) != 2 {
		t.Fatalf("unexpected validation %+v", payload)
	}
}

func TestCORSPreflightAllowsGalleryTokenHeader(t *testing.T) {
	harness := newAPIHarness(t)
	request := httptest.NewRequest(http.MethodOptions, "/galleries", http.NoBody)
	request.Header.Set("Origin", "https://app.example.com")
	request.Header.Set("Access-Control-Request-Method", http.MethodPost)
	request.Header.Set("Access-Control-Request-Headers", auth.HeaderName)

	recorder := httptest.NewRecorder()
	harness.handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, recorder.Code)
	}
	allowHeaders := recorder.Header().Get("Access-Control-Allow-Headers")
	if !strings.Contains(strings.ToLower(allowHeaders), strings.ToLower(auth.HeaderName)) {
		t.Fatalf("expected Access-Control-Allow-Headers to include %s, got %q", auth.HeaderName, allowHeaders)
	}
}

func TestMetricsRouteExposesCounters(t *testing.T) {
	harness := newAPIHarness(t)
	gallery := harness.createGallery(t, galleryRequestPayload{Name: "Mariage"})
	harness.do(t, http.MethodPost, "/galleries/"+gallery.ID+"/selection/export", exportRequestPayload{}, nil)

	response := harness.do(t, http.MethodGet, "/metrics", nil, nil)
	if response.Code != http.StatusOK || !strings.Contains(response.Body.String(), "proofing_exports_total") {
		t.Fatalf("expected exports counter, got %d %s", response.Code, response.Body.String())
	}
}

func TestGalleryEventsStreamOverWebsocket(t *testing.T) {
	harness := newAPIHarness(t)
	gallery := harness.createGallery(t, galleryRequestPayload{Name: "Mariage", AllowFavorites: true})

	server := httptest.NewServer(harness.handler)
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/galleries/" + gallery.ID + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()

	body, _ := json.Marshal(favoriteRequestPayload{PhotoID: "p1"})
	response, err := http.Post(server.URL+"/galleries/"+gallery.ID+"/favorites", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("failed to add favorite: %v", err)
	}
	response.Body.Close()
	if response.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected status %d", response.StatusCode)
	}

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("failed to set deadline: %v", err)
	}
	var message RealtimeMessage
	if err := conn.ReadJSON(&message); err != nil {
		t.Fatalf("failed to read event: %v", err)
	}
	if message.EventType != favorites.EventFavoriteAdded || message.GalleryID != gallery.ID || message.PhotoID != "p1" {
		t.Fatalf("unexpected event %+v", message)
	}
}

func TestDescribeErrorMapsTaxonomy(t *testing.T) {
	testCases := []struct {
		name   string
		err    error
		status int
		slug   string
	}{
		{name: "not found", err: svcerr.New("catalog.get_gallery", "not_found", catalog.ErrGalleryNotFound), status: http.StatusNotFound, slug: "not_found"},
		{name: "no selection", err: selection.ErrNoSelection, status: http.StatusUnprocessableEntity, slug: "no_selection"},
		{name: "empty comment", err: favorites.ErrEmptyComment, status: http.StatusBadRequest, slug: "invalid_request"},
		{name: "unavailable", err: favorites.ErrRemoteNotConfigured, status: http.StatusServiceUnavailable, slug: "store_unavailable"},
		{name: "unknown", err: errors.New("boom"), status: http.StatusInternalServerError, slug: "internal_error"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			status, response := describeError(testCase.err)
			if status != testCase.status || response.Error != testCase.slug {
				t.Fatalf("expected %d/%s, got %d/%s", testCase.status, testCase.slug, status, response.Error)
			}
		})
	}
	_, response := describeError(svcerr.New("catalog.get_gallery", "not_found", catalog.ErrGalleryNotFound))
	if response.Code != "catalog.get_gallery.not_found" {
		t.Fatalf("unexpected code %q", response.Code)
	}
}

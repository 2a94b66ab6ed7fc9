package emails

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/MarcoPoloResearchLab/proofing/internal/localstore"
)

type fakeSendGrid struct {
	response *rest.Response
	err      error
	sent     []*mail.SGMailV3
}

func (f *fakeSendGrid) SendWithContext(_ context.Context, email *mail.SGMailV3) (*rest.Response, error) {
	f.sent = append(f.sent, email)
	return f.response, f.err
}

func TestSendGridTransportReturnsMessageID(t *testing.T) {
	client := &fakeSendGrid{response: &rest.Response{
		StatusCode: 202,
		Headers:    map[string][]string{"X-Message-Id": {"msg-123"}},
	}}
	transport := newSendGridTransport(client, "Galerie Photo", "noreply@example.com")

	messageID, err := transport.Send(context.Background(), Message{
		To:      "studio@example.com",
		Subject: "Nouvelle sélection",
		HTML:    "<p>hello</p>",
		Text:    "hello",
	})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if messageID != "msg-123" {
		t.Fatalf("unexpected message id %q", messageID)
	}
	if len(client.sent) != 1 || client.sent[0].From.Address != "noreply@example.com" {
		t.Fatalf("unexpected payload %+v", client.sent)
	}
	if client.sent[0].Personalizations[0].To[0].Address != "studio@example.com" {
		t.Fatalf("unexpected recipient %+v", client.sent[0].Personalizations[0].To)
	}
}

func TestSendGridTransportErrors(t *testing.T) {
	testCases := []struct {
		name    string
		client  *fakeSendGrid
		message Message
		want    error
	}{
		{
			name:    "missing recipient",
			client:  &fakeSendGrid{},
			message: Message{Subject: "s"},
			want:    ErrInvalidMessage,
		},
		{
			name:    "rejected",
			client:  &fakeSendGrid{response: &rest.Response{StatusCode: 401, Body: "unauthorized"}},
			message: Message{To: "a@example.com", Subject: "s"},
			want:    ErrRejected,
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			transport := newSendGridTransport(testCase.client, "", "noreply@example.com")
			if _, err := transport.Send(context.Background(), testCase.message); !errors.Is(err, testCase.want) {
				t.Fatalf("expected %v, got %v", testCase.want, err)
			}
		})
	}

	failing := newSendGridTransport(&fakeSendGrid{err: errors.New("timeout")}, "", "noreply@example.com")
	if _, err := failing.Send(context.Background(), Message{To: "a@example.com", Subject: "s"}); err == nil {
		t.Fatalf("expected transport error")
	}
}

func TestBuildSelectionNotificationCapsPreview(t *testing.T) {
	names := make([]string, 0, 23)
	for index := 1; index <= 23; index++ {
		names = append(names, fmt.Sprintf("IMG_%02d.jpg", index))
	}
	message, err := BuildSelectionNotification(SelectionNotification{
		GalleryName:   "Mariage <Dupont>",
		SelectionType: "complète",
		ClientName:    "Jean",
		PhotoCount:    len(names),
		GalleryURL:    "http://localhost:5173/gallery/g1",
		DownloadURL:   "http://localhost:8080/storage/photos/selections/s.txt",
		PhotoNames:    names,
	})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if !strings.Contains(message.Subject, "23 photo(s)") {
		t.Fatalf("unexpected subject %q", message.Subject)
	}
	if !strings.Contains(message.HTML, "Mariage &lt;Dupont&gt;") {
		t.Fatalf("expected escaped gallery name in html")
	}
	if !strings.Contains(message.HTML, "IMG_20.jpg") || strings.Contains(message.HTML, "IMG_21.jpg") {
		t.Fatalf("expected preview capped at 20 names")
	}
	if !strings.Contains(message.Text, "+3 autres") || !strings.Contains(message.HTML, "+3 autres") {
		t.Fatalf("expected remaining count in both bodies")
	}
	if !strings.Contains(message.Text, "Client : Jean") {
		t.Fatalf("expected client name in text body:\n%s", message.Text)
	}
}

func TestSettingsStoreSeedsAndPersists(t *testing.T) {
	store, err := localstore.Open(filepath.Join(t.TempDir(), "local.db"))
	if err != nil {
		t.Fatalf("open local store: %v", err)
	}
	defer store.Close()
	ctx := context.Background()
	settings := NewSettingsStore(store, Settings{PhotographerAddress: "studio@example.com"})

	loaded, err := settings.Load(ctx)
	if err != nil || loaded.Enabled || loaded.PhotographerAddress != "studio@example.com" {
		t.Fatalf("expected defaults, got %+v (%v)", loaded, err)
	}

	if _, err := settings.Save(ctx, Settings{Enabled: true}); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected missing address error, got %v", err)
	}
	if _, err := settings.Save(ctx, Settings{Enabled: true, PhotographerAddress: "not an address"}); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected invalid address error, got %v", err)
	}
	saved, err := settings.Save(ctx, Settings{Enabled: true, PhotographerAddress: " Studio <photo@example.com> "})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if saved.PhotographerAddress != "photo@example.com" {
		t.Fatalf("expected normalized address, got %q", saved.PhotographerAddress)
	}

	reloaded, err := NewSettingsStore(store, Settings{}).Load(ctx)
	if err != nil || !reloaded.Enabled || reloaded.PhotographerAddress != "photo@example.com" {
		t.Fatalf("expected persisted settings, got %+v (%v)", reloaded, err)
	}
}

package emails

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
)

// previewLimit caps the photo names listed in a notification.
const previewLimit = 20

// SelectionNotification is the data rendered into the photographer email.
type SelectionNotification struct {
	GalleryName   string
	SelectionType string
	ClientName    string
	PhotoCount    int
	GalleryURL    string
	DownloadURL   string
	PhotoNames    []string
}

type notificationView struct {
	SelectionNotification
	Preview   []string
	Remaining int
}

var selectionHTML = htmltemplate.Must(htmltemplate.New("selection_html").Parse(`<!DOCTYPE html>
<html lang="fr">
<body style="font-family: Arial, sans-serif; color: #333;">
<h2>Nouvelle sélection : {{.GalleryName}}</h2>
<p><strong>Type de sélection :</strong> {{.SelectionType}}</p>
{{- if .ClientName}}
<p><strong>Client :</strong> {{.ClientName}}</p>
{{- end}}
<p><strong>Photos sélectionnées :</strong> {{.PhotoCount}}</p>
<p><a href="{{.GalleryURL}}">Voir la galerie</a> | <a href="{{.DownloadURL}}">Télécharger la sélection</a></p>
<ul>
{{- range .Preview}}
<li>{{.}}</li>
{{- end}}
{{- if .Remaining}}
<li>+{{.Remaining}} autres</li>
{{- end}}
</ul>
</body>
</html>
`))

var selectionText = texttemplate.Must(texttemplate.New("selection_text").Parse(`Nouvelle sélection : {{.GalleryName}}

Type de sélection : {{.SelectionType}}
{{- if .ClientName}}
Client : {{.ClientName}}
{{- end}}
Photos sélectionnées : {{.PhotoCount}}

Galerie : {{.GalleryURL}}
Téléchargement : {{.DownloadURL}}

{{range .Preview}}- {{.}}
{{end}}{{if .Remaining}}+{{.Remaining}} autres
{{end}}`))

// BuildSelectionNotification renders the subject and both bodies. The
// recipient is left for the caller to set.
func BuildSelectionNotification(notification SelectionNotification) (Message, error) {
	view := notificationView{SelectionNotification: notification}
	view.Preview = notification.PhotoNames
	if len(view.Preview) > previewLimit {
		view.Preview = notification.PhotoNames[:previewLimit]
		view.Remaining = len(notification.PhotoNames) - previewLimit
	}

	var html bytes.Buffer
	if err := selectionHTML.Execute(&html, view); err != nil {
		return Message{}, fmt.Errorf("emails: render html: %w", err)
	}
	var text bytes.Buffer
	if err := selectionText.Execute(&text, view); err != nil {
		return Message{}, fmt.Errorf("emails: render text: %w", err)
	}
	subject := fmt.Sprintf("Nouvelle sélection (%s) - %s - %d photo(s)",
		notification.SelectionType, notification.GalleryName, notification.PhotoCount)
	return Message{Subject: subject, HTML: html.String(), Text: text.String()}, nil
}

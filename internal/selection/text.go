package selection

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	bannerLine    = "========================================"
	separatorLine = "----------------------------------------"
	anonymousUser = "Anonyme"
)

// Type distinguishes an export of the caller's own picks from the whole gallery.
type Type string

const (
	TypePersonal Type = "personal"
	TypeComplete Type = "complete"
)

// ParseType accepts "personal" or "complete"; anything else is complete.
func ParseType(value string) Type {
	if strings.EqualFold(strings.TrimSpace(value), string(TypePersonal)) {
		return TypePersonal
	}
	return TypeComplete
}

// Label is the French display name used in documents and emails.
func (t Type) Label() string {
	if t == TypePersonal {
		return "personnelle"
	}
	return "complète"
}

// SelectedPhoto is one entry of the exported photo list.
type SelectedPhoto struct {
	PhotoID      string   `json:"photo_id"`
	PhotoName    string   `json:"photo_name"`
	OriginalName string   `json:"original_name,omitempty"`
	URL          string   `json:"url,omitempty"`
	Comments     []string `json:"comments"`
}

// UserComment is a comment with its attributed author.
type UserComment struct {
	UserName string `json:"user_name"`
	Text     string `json:"text"`
}

// PhotoUsers records everyone who favorited or commented one photo.
type PhotoUsers struct {
	PhotoID  string        `json:"photo_id"`
	Users    []string      `json:"users"`
	Comments []UserComment `json:"comments"`
}

// Export is the document rendered for one export request.
type Export struct {
	GalleryID      string          `json:"gallery_id"`
	GalleryName    string          `json:"gallery_name"`
	Type           Type            `json:"type"`
	ExportDate     time.Time       `json:"export_date"`
	SelectedPhotos []SelectedPhoto `json:"selected_photos"`
	TotalSelected  int             `json:"total_selected"`
	ClientInfo     *ClientInfo     `json:"client_info,omitempty"`
	MultiUserData  []PhotoUsers    `json:"multi_user_data,omitempty"`
}

// FileName returns selection-<type>-<gallery>-<YYYY-MM-DD>.txt.
func (e Export) FileName() string {
	return fmt.Sprintf("selection-%s-%s-%s.txt", e.Type, e.GalleryID, e.ExportDate.UTC().Format("2006-01-02"))
}

// GenerateSelectionText renders the export as the plain-text manifest. The
// output depends only on the export's fields.
func GenerateSelectionText(export Export) string {
	var builder strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&builder, format, args...)
		builder.WriteByte('\n')
	}

	line(bannerLine)
	line("SÉLECTION CLIENT - GALERIE PHOTO")
	line(bannerLine)
	line("")
	line("Galerie : %s", export.GalleryName)
	line("ID de la galerie : %s", export.GalleryID)
	line("Type de sélection : %s", export.Type.Label())
	line("Date d'export : %s", export.ExportDate.UTC().Format("2006-01-02 15:04:05 UTC"))
	line("Nombre de photos sélectionnées : %d", export.TotalSelected)
	line("")

	if export.ClientInfo != nil && !export.ClientInfo.IsZero() {
		line("INFORMATIONS CLIENT:")
		line(separatorLine)
		if export.ClientInfo.Name != "" {
			line("Nom : %s", export.ClientInfo.Name)
		}
		if export.ClientInfo.Email != "" {
			line("Email : %s", export.ClientInfo.Email)
		}
		if export.ClientInfo.Phone != "" {
			line("Téléphone : %s", export.ClientInfo.Phone)
		}
		line("")
	}

	users := make(map[string][]string, len(export.MultiUserData))
	for _, entry := range export.MultiUserData {
		users[entry.PhotoID] = entry.Users
	}

	line("PHOTOS SÉLECTIONNÉES:")
	line(separatorLine)
	for index, photo := range export.SelectedPhotos {
		line("%d. %s", index+1, photo.PhotoName)
		if photo.OriginalName != "" && photo.OriginalName != photo.PhotoName {
			line("   Fichier original : %s", photo.OriginalName)
		}
		if photo.URL != "" {
			line("   URL : %s", photo.URL)
		}
		if names := users[photo.PhotoID]; len(names) > 0 {
			line("   Sélectionnée par : %s", strings.Join(names, ", "))
		}
		if len(photo.Comments) > 0 {
			line("   Commentaires :")
			for _, comment := range photo.Comments {
				line("   • %s", comment)
			}
		}
		line("")
	}

	breakdown := userBreakdown(export)
	if len(breakdown) > 0 {
		line("DÉTAIL PAR UTILISATEUR:")
		line(separatorLine)
		for _, entry := range breakdown {
			line("%s (%d photo(s))", entry.user, len(entry.photos))
			for _, name := range entry.photos {
				line("   - %s", name)
			}
		}
		line("")
	}

	line(bannerLine)
	line("Fin de la sélection - %d photo(s)", export.TotalSelected)
	line(bannerLine)
	return builder.String()
}

type userPhotos struct {
	user   string
	photos []string
}

// userBreakdown inverts MultiUserData into per-user photo lists, users sorted
// by name and photos in export order.
func userBreakdown(export Export) []userPhotos {
	names := make(map[string]string, len(export.SelectedPhotos))
	for _, photo := range export.SelectedPhotos {
		names[photo.PhotoID] = photo.PhotoName
	}
	byUser := make(map[string][]string)
	for _, photo := range export.SelectedPhotos {
		for _, entry := range export.MultiUserData {
			if entry.PhotoID != photo.PhotoID {
				continue
			}
			for _, user := range entry.Users {
				byUser[user] = append(byUser[user], names[photo.PhotoID])
			}
		}
	}
	users := make([]string, 0, len(byUser))
	for user := range byUser {
		users = append(users, user)
	}
	sort.Strings(users)
	breakdown := make([]userPhotos, 0, len(users))
	for _, user := range users {
		breakdown = append(breakdown, userPhotos{user: user, photos: byUser[user]})
	}
	return breakdown
}

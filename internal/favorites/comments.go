package favorites

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/MarcoPoloResearchLab/proofing/internal/recordstore"
	"github.com/MarcoPoloResearchLab/proofing/internal/svcerr"
	"go.uber.org/zap"
)

// Comments returns the gallery's comments, oldest first.
func (s *Service) Comments(ctx context.Context, galleryID string) ([]Comment, error) {
	galleryID, err := normalizeID(opGetComments, reasonInvalidGallery, galleryID, ErrInvalidGalleryID)
	if err != nil {
		return nil, err
	}

	if s.remoteReady(ctx, opGetComments) {
		rows, err := s.remote.Select(ctx, recordstore.TableComments,
			[]recordstore.Filter{recordstore.Eq(columnGalleryID, galleryID)},
			recordstore.Asc(columnCreatedAt), recordstore.Asc(columnID))
		if err == nil {
			comments := make([]Comment, 0, len(rows))
			for _, row := range rows {
				comments = append(comments, commentFromRow(row))
			}
			return comments, nil
		}
		s.fallback(opGetComments, err, zap.String("gallery_id", galleryID))
	}

	comments, err := s.local.comments(ctx, galleryID)
	if err != nil {
		s.logError(opGetComments, reasonLocalFailed, err, zap.String("gallery_id", galleryID))
		return []Comment{}, nil
	}
	return comments, nil
}

// PhotoComments returns the comments attached to one photo, oldest first.
func (s *Service) PhotoComments(ctx context.Context, galleryID, photoID string) ([]Comment, error) {
	comments, err := s.Comments(ctx, galleryID)
	if err != nil {
		return nil, err
	}
	filtered := make([]Comment, 0, len(comments))
	for _, comment := range comments {
		if comment.PhotoID == photoID {
			filtered = append(filtered, comment)
		}
	}
	return filtered, nil
}

// CommentsCount returns the number of comments in the gallery.
func (s *Service) CommentsCount(ctx context.Context, galleryID string) (int, error) {
	comments, err := s.Comments(ctx, galleryID)
	if err != nil {
		return 0, err
	}
	return len(comments), nil
}

// PhotoCommentsCount returns the number of comments on one photo.
func (s *Service) PhotoCommentsCount(ctx context.Context, galleryID, photoID string) (int, error) {
	comments, err := s.PhotoComments(ctx, galleryID, photoID)
	if err != nil {
		return 0, err
	}
	return len(comments), nil
}

// AddComment attaches trimmed text to photoID, attributed to the current principal.
func (s *Service) AddComment(ctx context.Context, galleryID, photoID, text string) (Comment, error) {
	galleryID, photoID, err := normalizePair(opAddComment, galleryID, photoID)
	if err != nil {
		return Comment{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Comment{}, svcerr.New(opAddComment, "empty_comment", ErrEmptyComment)
	}
	if utf8.RuneCountInString(text) > maxCommentLength {
		return Comment{}, svcerr.New(opAddComment, "comment_too_long", ErrCommentTooLong)
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opAddComment, "id_generation_failed", err)
		return Comment{}, svcerr.New(opAddComment, "id_generation_failed", err)
	}
	principal := s.identity.Principal(ctx)
	now := s.now()
	comment := Comment{
		ID:        id,
		GalleryID: galleryID,
		PhotoID:   photoID,
		Comment:   text,
		DeviceID:  principal.DeviceID,
		UserID:    principal.UserID,
		UserName:  principal.UserName,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if s.remoteReady(ctx, opAddComment) {
		_, err := s.remote.Insert(ctx, recordstore.TableComments, comment.row())
		if err == nil {
			s.publish(SelectionEvent{GalleryID: galleryID, Type: EventCommentAdded, PhotoID: photoID, CommentID: id})
			return comment, nil
		}
		s.fallback(opAddComment, err, zap.String("gallery_id", galleryID), zap.String("photo_id", photoID))
	}

	if err := s.local.addComment(ctx, comment); err != nil {
		s.logError(opAddComment, reasonLocalFailed, err, zap.String("gallery_id", galleryID))
		return Comment{}, svcerr.New(opAddComment, reasonLocalFailed, err)
	}
	s.publish(SelectionEvent{GalleryID: galleryID, Type: EventCommentAdded, PhotoID: photoID, CommentID: id})
	return comment, nil
}

// RemoveComment deletes a comment written from this device. It reports false
// when no such comment exists or it belongs to another device.
func (s *Service) RemoveComment(ctx context.Context, commentID string) (bool, error) {
	return s.removeComment(ctx, "", commentID)
}

// RemoveGalleryComment is RemoveComment restricted to comments of galleryID.
func (s *Service) RemoveGalleryComment(ctx context.Context, galleryID, commentID string) (bool, error) {
	galleryID, err := normalizeID(opRemoveComment, reasonInvalidGallery, galleryID, ErrInvalidGalleryID)
	if err != nil {
		return false, err
	}
	return s.removeComment(ctx, galleryID, commentID)
}

// removeComment deletes commentID written from this device; an empty
// galleryID matches any gallery.
func (s *Service) removeComment(ctx context.Context, galleryID, commentID string) (bool, error) {
	commentID, err := normalizeID(opRemoveComment, "invalid_comment_id", commentID, ErrInvalidCommentID)
	if err != nil {
		return false, err
	}
	deviceID := s.identity.Principal(ctx).DeviceID

	if s.remoteReady(ctx, opRemoveComment) {
		removed, removedGalleryID, photoID, err := s.removeRemoteComment(ctx, galleryID, commentID, deviceID)
		if err == nil {
			if removed {
				s.publish(SelectionEvent{GalleryID: removedGalleryID, Type: EventCommentRemoved, PhotoID: photoID, CommentID: commentID})
			}
			return removed, nil
		}
		s.fallback(opRemoveComment, err, zap.String("comment_id", commentID))
	}

	localGalleryID, removed, err := s.local.removeComment(ctx, galleryID, commentID, deviceID)
	if err != nil {
		s.logError(opRemoveComment, reasonLocalFailed, err, zap.String("comment_id", commentID))
		return false, nil
	}
	if removed {
		s.publish(SelectionEvent{GalleryID: localGalleryID, Type: EventCommentRemoved, CommentID: commentID})
	}
	return removed, nil
}

func (s *Service) removeRemoteComment(ctx context.Context, galleryID, commentID, deviceID string) (bool, string, string, error) {
	filters := []recordstore.Filter{
		recordstore.Eq(columnID, commentID),
		recordstore.Eq(columnDeviceID, deviceID),
	}
	if galleryID != "" {
		filters = append(filters, recordstore.Eq(columnGalleryID, galleryID))
	}
	rows, err := s.remote.Select(ctx, recordstore.TableComments, filters)
	if err != nil {
		return false, "", "", err
	}
	if len(rows) == 0 {
		return false, "", "", nil
	}
	affected, err := s.remote.Delete(ctx, recordstore.TableComments, filters)
	if err != nil {
		return false, "", "", err
	}
	return affected > 0, rows[0].String(columnGalleryID), rows[0].String(columnPhotoID), nil
}

package app

import (
	"context"
	"database/sql"
	"io"
	"log"
	"net/http"
	"path"
	"strings"

	"investiflow/api/internal/extract"
	"investiflow/api/internal/search"
	"investiflow/api/internal/store"
	"investiflow/api/internal/util"
)

var attachmentContentTypes = map[string]string{
	"pdf":  "application/pdf",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

func fileTypeFor(fileName string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(fileName), "."))
	if _, ok := attachmentContentTypes[ext]; !ok {
		return "", validationError("only pdf and docx files are accepted")
	}
	return ext, nil
}

func (s *Service) parentForUser(ctx context.Context, parent store.ParentRef, userID string) error {
	projectID, err := s.store.ResolveParentProject(ctx, parent)
	if err != nil {
		return err
	}
	_, err = s.projectForUser(ctx, projectID, userID)
	return err
}

func (s *Service) attachmentForUser(ctx context.Context, attachmentID, userID string) (store.Attachment, error) {
	attachment, err := s.store.GetAttachment(ctx, attachmentID)
	if err != nil {
		return store.Attachment{}, err
	}
	if err := s.parentForUser(ctx, attachment.Parent, userID); err != nil {
		return store.Attachment{}, err
	}
	return attachment, nil
}

// UploadAttachment stores the file and records it against the parent. A parent
// holds at most one attachment.
func (s *Service) UploadAttachment(ctx context.Context, session Session, parent store.ParentRef, fileName string, size int64, r io.Reader) (store.Attachment, error) {
	if err := s.parentForUser(ctx, parent, session.UserID); err != nil {
		return store.Attachment{}, err
	}
	fileType, err := fileTypeFor(fileName)
	if err != nil {
		return store.Attachment{}, err
	}
	existing, err := s.store.ListAttachments(ctx, parent)
	if err != nil {
		return store.Attachment{}, err
	}
	if len(existing) > 0 {
		return store.Attachment{}, conflictError("ATTACHMENT_EXISTS", "parent already has an attachment")
	}

	id := util.NewID("att")
	objectKey := "attachments/" + id + "." + fileType
	if err := s.blobs.Put(ctx, objectKey, attachmentContentTypes[fileType], r, size); err != nil {
		return store.Attachment{}, err
	}
	attachment, err := s.store.InsertAttachment(ctx, store.Attachment{
		ID:        id,
		Parent:    parent,
		FileName:  fileName,
		ObjectKey: objectKey,
		FileType:  fileType,
		FileSize:  size,
	})
	if err != nil {
		_ = s.blobs.Delete(ctx, objectKey)
		return store.Attachment{}, err
	}
	return attachment, nil
}

func (s *Service) AttachmentForParent(ctx context.Context, session Session, parent store.ParentRef) (store.Attachment, error) {
	if err := s.parentForUser(ctx, parent, session.UserID); err != nil {
		return store.Attachment{}, err
	}
	attachments, err := s.store.ListAttachments(ctx, parent)
	if err != nil {
		return store.Attachment{}, err
	}
	if len(attachments) == 0 {
		return store.Attachment{}, sql.ErrNoRows
	}
	return attachments[0], nil
}

func (s *Service) GetAttachment(ctx context.Context, session Session, attachmentID string) (store.Attachment, error) {
	return s.attachmentForUser(ctx, attachmentID, session.UserID)
}

func (s *Service) OpenAttachment(ctx context.Context, session Session, attachmentID string) (store.Attachment, io.ReadCloser, error) {
	attachment, err := s.attachmentForUser(ctx, attachmentID, session.UserID)
	if err != nil {
		return store.Attachment{}, nil, err
	}
	rc, err := s.blobs.Get(ctx, attachment.ObjectKey)
	if err != nil {
		return store.Attachment{}, nil, err
	}
	return attachment, rc, nil
}

// ReplaceAttachment swaps the stored file. The previous object is removed only
// after the replacement row is persisted, so a failed replace keeps the old
// attachment intact.
func (s *Service) ReplaceAttachment(ctx context.Context, session Session, attachmentID, fileName string, size int64, r io.Reader) (store.Attachment, error) {
	current, err := s.attachmentForUser(ctx, attachmentID, session.UserID)
	if err != nil {
		return store.Attachment{}, err
	}
	fileType, err := fileTypeFor(fileName)
	if err != nil {
		return store.Attachment{}, err
	}

	objectKey := "attachments/" + util.NewID("att") + "." + fileType
	if err := s.blobs.Put(ctx, objectKey, attachmentContentTypes[fileType], r, size); err != nil {
		return store.Attachment{}, err
	}
	attachment, err := s.store.ReplaceAttachmentFile(ctx, attachmentID, fileName, objectKey, fileType, size)
	if err != nil {
		_ = s.blobs.Delete(ctx, objectKey)
		return store.Attachment{}, err
	}
	if err := s.blobs.Delete(ctx, current.ObjectKey); err != nil {
		log.Printf("attachment %s: old object %s not removed: %v", attachmentID, current.ObjectKey, err)
	}
	return attachment, nil
}

func (s *Service) DeleteAttachment(ctx context.Context, session Session, attachmentID string) error {
	attachment, err := s.attachmentForUser(ctx, attachmentID, session.UserID)
	if err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, attachment.ObjectKey); err != nil {
		return err
	}
	if err := s.store.DeleteAttachment(ctx, attachmentID); err != nil {
		// The object is already gone; the orphaned row needs operator attention.
		log.Printf("attachment %s: object %s deleted but row removal failed: %v", attachmentID, attachment.ObjectKey, err)
		return err
	}
	return nil
}

// DocumentContent extracts the attachment's full text.
func (s *Service) DocumentContent(ctx context.Context, session Session, attachmentID string) (string, error) {
	attachment, rc, err := s.OpenAttachment(ctx, session, attachmentID)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	return s.extract.Text(ctx, attachment.FileType, rc)
}

// DocumentPage extracts the attachment's text and returns one fixed-size page.
func (s *Service) DocumentPage(ctx context.Context, session Session, attachmentID string, page int) (extract.Paginated, error) {
	attachment, rc, err := s.OpenAttachment(ctx, session, attachmentID)
	if err != nil {
		return extract.Paginated{}, err
	}
	defer rc.Close()

	text, err := s.extract.Text(ctx, attachment.FileType, rc)
	if err != nil {
		return extract.Paginated{}, err
	}
	paginated, err := extract.Paginate(text, page)
	if err != nil {
		return extract.Paginated{}, domainError(http.StatusNotFound, "NOT_FOUND", "page out of range", nil)
	}
	return paginated, nil
}

// ---------------------------------------------------------------------------
// Bibliography

func (s *Service) bibliographyForUser(ctx context.Context, entryID, userID string) (store.Bibliography, error) {
	entry, err := s.store.GetBibliography(ctx, entryID)
	if err != nil {
		return store.Bibliography{}, err
	}
	if _, err := s.projectForUser(ctx, entry.ProjectID, userID); err != nil {
		return store.Bibliography{}, err
	}
	return entry, nil
}

func (s *Service) ListBibliography(ctx context.Context, session Session, projectID string) ([]store.Bibliography, error) {
	if _, err := s.projectForUser(ctx, projectID, session.UserID); err != nil {
		return nil, err
	}
	return s.store.ListBibliography(ctx, projectID)
}

type CreateBibliographyInput struct {
	Type   string
	Author string
	Year   *int
	Title  string
	Source *string
	DOI    *string
	URL    *string
	Volume *string
	Issue  *string
	Pages  *string
}

func (s *Service) CreateBibliography(ctx context.Context, session Session, projectID string, input CreateBibliographyInput) (store.Bibliography, error) {
	if _, err := s.projectForUser(ctx, projectID, session.UserID); err != nil {
		return store.Bibliography{}, err
	}
	entryType := input.Type
	if entryType == "" {
		entryType = "article"
	}
	if _, ok := allowedReferenceTypes[entryType]; !ok {
		return store.Bibliography{}, validationError("invalid reference type")
	}
	if strings.TrimSpace(input.Author) == "" || strings.TrimSpace(input.Title) == "" {
		return store.Bibliography{}, validationError("author and title are required")
	}

	entry, err := s.store.InsertBibliography(ctx, store.Bibliography{
		ID:        util.NewID("bib"),
		ProjectID: projectID,
		Type:      entryType,
		Author:    strings.TrimSpace(input.Author),
		Year:      input.Year,
		Title:     strings.TrimSpace(input.Title),
		Source:    input.Source,
		DOI:       input.DOI,
		URL:       input.URL,
		Volume:    input.Volume,
		Issue:     input.Issue,
		Pages:     input.Pages,
	})
	if err != nil {
		return store.Bibliography{}, err
	}
	s.indexReference(entry, session.UserID)
	return entry, nil
}

func (s *Service) GetBibliography(ctx context.Context, session Session, entryID string) (store.Bibliography, error) {
	return s.bibliographyForUser(ctx, entryID, session.UserID)
}

func (s *Service) UpdateBibliography(ctx context.Context, session Session, entryID string, update store.BibliographyUpdate) (store.Bibliography, error) {
	if _, err := s.bibliographyForUser(ctx, entryID, session.UserID); err != nil {
		return store.Bibliography{}, err
	}
	if update.Type != nil {
		if _, ok := allowedReferenceTypes[*update.Type]; !ok {
			return store.Bibliography{}, validationError("invalid reference type")
		}
	}
	if update.Author != nil && strings.TrimSpace(*update.Author) == "" {
		return store.Bibliography{}, validationError("author must not be empty")
	}
	if update.Title != nil && strings.TrimSpace(*update.Title) == "" {
		return store.Bibliography{}, validationError("title must not be empty")
	}
	entry, err := s.store.UpdateBibliography(ctx, entryID, update)
	if err != nil {
		return store.Bibliography{}, err
	}
	s.indexReference(entry, session.UserID)
	return entry, nil
}

func (s *Service) DeleteBibliography(ctx context.Context, session Session, entryID string) error {
	entry, err := s.bibliographyForUser(ctx, entryID, session.UserID)
	if err != nil {
		return err
	}
	if entry.ObjectKey != nil {
		if err := s.blobs.Delete(ctx, *entry.ObjectKey); err != nil {
			log.Printf("bibliography %s: object %s not removed: %v", entryID, *entry.ObjectKey, err)
		}
	}
	if err := s.store.DeleteBibliography(ctx, entryID); err != nil {
		return err
	}
	s.search.DeleteReference(entryID)
	return nil
}

// AttachBibliographyFile stores a source document for the entry, replacing any
// previous one after the new file is recorded.
func (s *Service) AttachBibliographyFile(ctx context.Context, session Session, entryID, fileName string, size int64, r io.Reader) (store.Bibliography, error) {
	current, err := s.bibliographyForUser(ctx, entryID, session.UserID)
	if err != nil {
		return store.Bibliography{}, err
	}
	fileType, err := fileTypeFor(fileName)
	if err != nil {
		return store.Bibliography{}, err
	}

	objectKey := "bibliography/" + util.NewID("bib") + "." + fileType
	if err := s.blobs.Put(ctx, objectKey, attachmentContentTypes[fileType], r, size); err != nil {
		return store.Bibliography{}, err
	}
	entry, err := s.store.SetBibliographyFile(ctx, entryID, &fileName, &objectKey)
	if err != nil {
		_ = s.blobs.Delete(ctx, objectKey)
		return store.Bibliography{}, err
	}
	if current.ObjectKey != nil {
		if err := s.blobs.Delete(ctx, *current.ObjectKey); err != nil {
			log.Printf("bibliography %s: old object %s not removed: %v", entryID, *current.ObjectKey, err)
		}
	}
	return entry, nil
}

func (s *Service) OpenBibliographyFile(ctx context.Context, session Session, entryID string) (store.Bibliography, io.ReadCloser, error) {
	entry, err := s.bibliographyForUser(ctx, entryID, session.UserID)
	if err != nil {
		return store.Bibliography{}, nil, err
	}
	if entry.ObjectKey == nil {
		return store.Bibliography{}, nil, sql.ErrNoRows
	}
	rc, err := s.blobs.Get(ctx, *entry.ObjectKey)
	if err != nil {
		return store.Bibliography{}, nil, err
	}
	return entry, rc, nil
}

func (s *Service) indexReference(entry store.Bibliography, ownerID string) {
	s.search.IndexReference(search.ReferenceRecord{
		ID:        entry.ID,
		ProjectID: entry.ProjectID,
		OwnerID:   ownerID,
		Author:    entry.Author,
		Title:     entry.Title,
		Source:    strOr(entry.Source),
		DOI:       strOr(entry.DOI),
	})
}

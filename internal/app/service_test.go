package app

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"investiflow/api/internal/ai"
	"investiflow/api/internal/auth"
	"investiflow/api/internal/config"
	"investiflow/api/internal/ordering"
	"investiflow/api/internal/search"
	"investiflow/api/internal/store"
)

type fakeStore struct {
	getUserByEmailFn        func(context.Context, string) (store.User, error)
	getUserByIDFn           func(context.Context, string) (store.User, error)
	emailTakenFn            func(context.Context, string) (bool, error)
	insertUserFn            func(context.Context, store.User) (store.User, error)
	listProjectsFn          func(context.Context, string) ([]store.Project, error)
	getProjectFn            func(context.Context, string) (store.Project, error)
	insertProjectFn         func(context.Context, store.Project) (store.Project, error)
	updateProjectFn         func(context.Context, string, store.ProjectUpdate) (store.Project, error)
	deleteProjectFn         func(context.Context, string) error
	listPhasesFn            func(context.Context, string) ([]store.Phase, error)
	getPhaseFn              func(context.Context, string) (store.Phase, error)
	insertPhaseFn           func(context.Context, store.Phase, *int) (store.Phase, error)
	updatePhaseFn           func(context.Context, string, store.PhaseUpdate) (store.Phase, error)
	reorderPhasesFn         func(context.Context, string, []ordering.Item) error
	listTasksFn             func(context.Context, string) ([]store.Task, error)
	getTaskFn               func(context.Context, string) (store.Task, error)
	insertTaskFn            func(context.Context, store.Task, *int) (store.Task, error)
	updateTaskFn            func(context.Context, string, store.TaskUpdate) (store.Task, error)
	listAttachmentsFn       func(context.Context, store.ParentRef) ([]store.Attachment, error)
	getAttachmentFn         func(context.Context, string) (store.Attachment, error)
	insertAttachmentFn      func(context.Context, store.Attachment) (store.Attachment, error)
	replaceAttachmentFileFn func(context.Context, string, string, string, string, int64) (store.Attachment, error)
	resolveParentProjectFn  func(context.Context, store.ParentRef) (string, error)
	listBibliographyFn      func(context.Context, string) ([]store.Bibliography, error)
	insertBibliographyFn    func(context.Context, store.Bibliography) (store.Bibliography, error)
	getConversationFn       func(context.Context, string) (store.Conversation, error)
	insertConversationFn    func(context.Context, store.Conversation) (store.Conversation, error)
	listMessagesFn          func(context.Context, string) ([]store.Message, error)
	insertMessageFn         func(context.Context, store.Message) (store.Message, error)
}

func (f *fakeStore) InsertUser(ctx context.Context, user store.User) (store.User, error) {
	if f.insertUserFn != nil {
		return f.insertUserFn(ctx, user)
	}
	return user, nil
}

func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if f.getUserByEmailFn != nil {
		return f.getUserByEmailFn(ctx, email)
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) GetUserByID(ctx context.Context, id string) (store.User, error) {
	if f.getUserByIDFn != nil {
		return f.getUserByIDFn(ctx, id)
	}
	return store.User{ID: id, Email: "user@example.com", FullName: "Test User", IsActive: true}, nil
}

func (f *fakeStore) UpdateUser(ctx context.Context, userID string, update store.UserUpdate) (store.User, error) {
	return store.User{ID: userID, IsActive: true}, nil
}

func (f *fakeStore) UpdateUserPassword(context.Context, string, string) error { return nil }

func (f *fakeStore) EmailTaken(ctx context.Context, email string) (bool, error) {
	if f.emailTakenFn != nil {
		return f.emailTakenFn(ctx, email)
	}
	return false, nil
}

func (f *fakeStore) ListProjects(ctx context.Context, ownerID string) ([]store.Project, error) {
	if f.listProjectsFn != nil {
		return f.listProjectsFn(ctx, ownerID)
	}
	return nil, nil
}

func (f *fakeStore) GetProject(ctx context.Context, projectID string) (store.Project, error) {
	if f.getProjectFn != nil {
		return f.getProjectFn(ctx, projectID)
	}
	return store.Project{}, sql.ErrNoRows
}

func (f *fakeStore) InsertProject(ctx context.Context, project store.Project) (store.Project, error) {
	if f.insertProjectFn != nil {
		return f.insertProjectFn(ctx, project)
	}
	return project, nil
}

func (f *fakeStore) UpdateProject(ctx context.Context, projectID string, update store.ProjectUpdate) (store.Project, error) {
	if f.updateProjectFn != nil {
		return f.updateProjectFn(ctx, projectID, update)
	}
	return store.Project{ID: projectID}, nil
}

func (f *fakeStore) DeleteProject(ctx context.Context, projectID string) error {
	if f.deleteProjectFn != nil {
		return f.deleteProjectFn(ctx, projectID)
	}
	return nil
}

func (f *fakeStore) ListPhases(ctx context.Context, projectID string) ([]store.Phase, error) {
	if f.listPhasesFn != nil {
		return f.listPhasesFn(ctx, projectID)
	}
	return nil, nil
}

func (f *fakeStore) GetPhase(ctx context.Context, phaseID string) (store.Phase, error) {
	if f.getPhaseFn != nil {
		return f.getPhaseFn(ctx, phaseID)
	}
	return store.Phase{}, sql.ErrNoRows
}

func (f *fakeStore) InsertPhase(ctx context.Context, phase store.Phase, position *int) (store.Phase, error) {
	if f.insertPhaseFn != nil {
		return f.insertPhaseFn(ctx, phase, position)
	}
	return phase, nil
}

func (f *fakeStore) UpdatePhase(ctx context.Context, phaseID string, update store.PhaseUpdate) (store.Phase, error) {
	if f.updatePhaseFn != nil {
		return f.updatePhaseFn(ctx, phaseID, update)
	}
	return store.Phase{ID: phaseID}, nil
}

func (f *fakeStore) DeletePhase(context.Context, string) error { return nil }

func (f *fakeStore) ReorderPhases(ctx context.Context, projectID string, orders []ordering.Item) error {
	if f.reorderPhasesFn != nil {
		return f.reorderPhasesFn(ctx, projectID, orders)
	}
	return nil
}

func (f *fakeStore) ListTasks(ctx context.Context, phaseID string) ([]store.Task, error) {
	if f.listTasksFn != nil {
		return f.listTasksFn(ctx, phaseID)
	}
	return nil, nil
}

func (f *fakeStore) ListProjectTasks(context.Context, string) ([]store.Task, error) { return nil, nil }

func (f *fakeStore) GetTask(ctx context.Context, taskID string) (store.Task, error) {
	if f.getTaskFn != nil {
		return f.getTaskFn(ctx, taskID)
	}
	return store.Task{}, sql.ErrNoRows
}

func (f *fakeStore) InsertTask(ctx context.Context, task store.Task, position *int) (store.Task, error) {
	if f.insertTaskFn != nil {
		return f.insertTaskFn(ctx, task, position)
	}
	return task, nil
}

func (f *fakeStore) UpdateTask(ctx context.Context, taskID string, update store.TaskUpdate) (store.Task, error) {
	if f.updateTaskFn != nil {
		return f.updateTaskFn(ctx, taskID, update)
	}
	return store.Task{ID: taskID}, nil
}

func (f *fakeStore) DeleteTask(context.Context, string) error { return nil }

func (f *fakeStore) ReorderTasks(context.Context, string, []ordering.Item) error { return nil }

func (f *fakeStore) ListAttachments(ctx context.Context, parent store.ParentRef) ([]store.Attachment, error) {
	if f.listAttachmentsFn != nil {
		return f.listAttachmentsFn(ctx, parent)
	}
	return nil, nil
}

func (f *fakeStore) GetAttachment(ctx context.Context, attachmentID string) (store.Attachment, error) {
	if f.getAttachmentFn != nil {
		return f.getAttachmentFn(ctx, attachmentID)
	}
	return store.Attachment{}, sql.ErrNoRows
}

func (f *fakeStore) InsertAttachment(ctx context.Context, attachment store.Attachment) (store.Attachment, error) {
	if f.insertAttachmentFn != nil {
		return f.insertAttachmentFn(ctx, attachment)
	}
	return attachment, nil
}

func (f *fakeStore) ReplaceAttachmentFile(ctx context.Context, attachmentID, fileName, objectKey, fileType string, fileSize int64) (store.Attachment, error) {
	if f.replaceAttachmentFileFn != nil {
		return f.replaceAttachmentFileFn(ctx, attachmentID, fileName, objectKey, fileType, fileSize)
	}
	return store.Attachment{ID: attachmentID, FileName: fileName, ObjectKey: objectKey, FileType: fileType, FileSize: fileSize}, nil
}

func (f *fakeStore) DeleteAttachment(context.Context, string) error { return nil }

func (f *fakeStore) ResolveParentProject(ctx context.Context, parent store.ParentRef) (string, error) {
	if f.resolveParentProjectFn != nil {
		return f.resolveParentProjectFn(ctx, parent)
	}
	return "", sql.ErrNoRows
}

func (f *fakeStore) ListBibliography(ctx context.Context, projectID string) ([]store.Bibliography, error) {
	if f.listBibliographyFn != nil {
		return f.listBibliographyFn(ctx, projectID)
	}
	return nil, nil
}

func (f *fakeStore) GetBibliography(context.Context, string) (store.Bibliography, error) {
	return store.Bibliography{}, sql.ErrNoRows
}

func (f *fakeStore) InsertBibliography(ctx context.Context, entry store.Bibliography) (store.Bibliography, error) {
	if f.insertBibliographyFn != nil {
		return f.insertBibliographyFn(ctx, entry)
	}
	return entry, nil
}

func (f *fakeStore) UpdateBibliography(ctx context.Context, entryID string, update store.BibliographyUpdate) (store.Bibliography, error) {
	return store.Bibliography{ID: entryID}, nil
}

func (f *fakeStore) SetBibliographyFile(ctx context.Context, entryID string, fileName, objectKey *string) (store.Bibliography, error) {
	return store.Bibliography{ID: entryID, FileName: fileName, ObjectKey: objectKey}, nil
}

func (f *fakeStore) DeleteBibliography(context.Context, string) error { return nil }

func (f *fakeStore) ListConversations(context.Context, string, string) ([]store.Conversation, error) {
	return nil, nil
}

func (f *fakeStore) GetConversation(ctx context.Context, conversationID string) (store.Conversation, error) {
	if f.getConversationFn != nil {
		return f.getConversationFn(ctx, conversationID)
	}
	return store.Conversation{}, sql.ErrNoRows
}

func (f *fakeStore) InsertConversation(ctx context.Context, conversation store.Conversation) (store.Conversation, error) {
	if f.insertConversationFn != nil {
		return f.insertConversationFn(ctx, conversation)
	}
	return conversation, nil
}

func (f *fakeStore) RenameConversation(ctx context.Context, conversationID, title string) (store.Conversation, error) {
	return store.Conversation{ID: conversationID, Title: title}, nil
}

func (f *fakeStore) DeleteConversation(context.Context, string) error { return nil }

func (f *fakeStore) ListMessages(ctx context.Context, conversationID string) ([]store.Message, error) {
	if f.listMessagesFn != nil {
		return f.listMessagesFn(ctx, conversationID)
	}
	return nil, nil
}

func (f *fakeStore) InsertMessage(ctx context.Context, message store.Message) (store.Message, error) {
	if f.insertMessageFn != nil {
		return f.insertMessageFn(ctx, message)
	}
	return message, nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }

type fakeSessions struct {
	tokens map[string]string
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{tokens: map[string]string{}}
}

func (f *fakeSessions) SaveRefreshSession(_ context.Context, tokenHash, userID string, _ time.Time) error {
	f.tokens[tokenHash] = userID
	return nil
}

func (f *fakeSessions) LookupRefreshSession(_ context.Context, tokenHash string) (string, error) {
	userID, ok := f.tokens[tokenHash]
	if !ok {
		return "", sql.ErrNoRows
	}
	return userID, nil
}

func (f *fakeSessions) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	delete(f.tokens, tokenHash)
	return nil
}

type fakeBlob struct {
	objects map[string][]byte
	deleted []string
}

func newFakeBlob() *fakeBlob {
	return &fakeBlob{objects: map[string][]byte{}}
}

func (f *fakeBlob) Put(_ context.Context, key, _ string, r io.Reader, _ int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.objects[key] = data
	return nil
}

func (f *fakeBlob) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeBlob) Delete(_ context.Context, key string) error {
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

type fakeSearch struct {
	indexedProjects   []search.ProjectRecord
	indexedReferences []search.ReferenceRecord
	deletedProjects   []string
	deletedReferences []string
	response          search.Response
}

func (f *fakeSearch) Search(search.Query) search.Response { return f.response }
func (f *fakeSearch) IndexProject(p search.ProjectRecord) {
	f.indexedProjects = append(f.indexedProjects, p)
}
func (f *fakeSearch) IndexReference(r search.ReferenceRecord) {
	f.indexedReferences = append(f.indexedReferences, r)
}
func (f *fakeSearch) DeleteProject(id string) { f.deletedProjects = append(f.deletedProjects, id) }
func (f *fakeSearch) DeleteReference(id string) {
	f.deletedReferences = append(f.deletedReferences, id)
}

type fakeAssistant struct {
	chatFn func(projectContext string, history []ai.Turn, message string) (string, error)
}

func (f *fakeAssistant) Chat(_ context.Context, projectContext string, history []ai.Turn, message string) (string, error) {
	if f.chatFn != nil {
		return f.chatFn(projectContext, history, message)
	}
	return "canned reply", nil
}
func (f *fakeAssistant) Suggest(context.Context, string) (string, error) { return "suggestion", nil }
func (f *fakeAssistant) FormatCitation(_ context.Context, raw string) (string, error) {
	return raw, nil
}
func (f *fakeAssistant) SuggestReferences(context.Context, string) (string, error) {
	return "references", nil
}
func (f *fakeAssistant) Configured() bool { return true }
func (f *fakeAssistant) Model() string { return "test-model" }

type fakeExtractor struct {
	text string
}

func (f *fakeExtractor) Text(context.Context, string, io.Reader) (string, error) {
	return f.text, nil
}

type testDeps struct {
	sessions  *fakeSessions
	blobs     *fakeBlob
	search    *fakeSearch
	assistant *fakeAssistant
}

func newTestService(fs *fakeStore) (*Service, *testDeps) {
	deps := &testDeps{
		sessions:  newFakeSessions(),
		blobs:     newFakeBlob(),
		search:    &fakeSearch{},
		assistant: &fakeAssistant{},
	}
	cfg := config.Config{
		JWTSecret:      "test-secret",
		AccessTTL:      time.Hour,
		RefreshTTL:     24 * time.Hour,
		MaxUploadBytes: 1 << 20,
	}
	svc := New(cfg, fs, deps.sessions, deps.blobs, &fakeExtractor{text: "extracted text"}, deps.search, deps.assistant)
	return svc, deps
}

func authedRequest(t *testing.T, method, target string, body io.Reader) *http.Request {
	t.Helper()
	token, err := auth.IssueToken([]byte("test-secret"), "user-1", "user@example.com", "jti-1", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func ownedProject(id string) store.Project {
	return store.Project{ID: id, OwnerID: "user-1", Name: "Thesis", Status: "planning"}
}

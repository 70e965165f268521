package app

import (
	"context"
	"database/sql"
	"io"
	"strings"
	"time"

	"investiflow/api/internal/ai"
	"investiflow/api/internal/auth"
	"investiflow/api/internal/authpw"
	"investiflow/api/internal/blob"
	"investiflow/api/internal/config"
	"investiflow/api/internal/export"
	"investiflow/api/internal/ordering"
	"investiflow/api/internal/search"
	"investiflow/api/internal/store"
	"investiflow/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	Email        string
	FullName     string
	JTI          string
	ExpiresAt    time.Time
}

var allowedProjectStatus = map[string]struct{}{
	"planning":    {},
	"in_progress": {},
	"on_hold":     {},
	"completed":   {},
	"cancelled":   {},
}

var allowedTaskStatus = map[string]struct{}{
	"pending":     {},
	"in_progress": {},
	"completed":   {},
	"on_hold":     {},
}

var allowedReferenceTypes = map[string]struct{}{
	"article":    {},
	"book":       {},
	"thesis":     {},
	"web":        {},
	"conference": {},
	"report":     {},
	"other":      {},
}

type dataStore interface {
	InsertUser(context.Context, store.User) (store.User, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByID(ctx context.Context, id string) (store.User, error)
	UpdateUser(context.Context, string, store.UserUpdate) (store.User, error)
	UpdateUserPassword(ctx context.Context, userID, passwordHash string) error
	EmailTaken(ctx context.Context, email string) (bool, error)

	ListProjects(ctx context.Context, ownerID string) ([]store.Project, error)
	GetProject(context.Context, string) (store.Project, error)
	InsertProject(context.Context, store.Project) (store.Project, error)
	UpdateProject(context.Context, string, store.ProjectUpdate) (store.Project, error)
	DeleteProject(context.Context, string) error

	ListPhases(ctx context.Context, projectID string) ([]store.Phase, error)
	GetPhase(context.Context, string) (store.Phase, error)
	InsertPhase(context.Context, store.Phase, *int) (store.Phase, error)
	UpdatePhase(context.Context, string, store.PhaseUpdate) (store.Phase, error)
	DeletePhase(context.Context, string) error
	ReorderPhases(ctx context.Context, projectID string, orders []ordering.Item) error

	ListTasks(ctx context.Context, phaseID string) ([]store.Task, error)
	ListProjectTasks(ctx context.Context, projectID string) ([]store.Task, error)
	GetTask(context.Context, string) (store.Task, error)
	InsertTask(context.Context, store.Task, *int) (store.Task, error)
	UpdateTask(context.Context, string, store.TaskUpdate) (store.Task, error)
	DeleteTask(context.Context, string) error
	ReorderTasks(ctx context.Context, phaseID string, orders []ordering.Item) error

	ListAttachments(context.Context, store.ParentRef) ([]store.Attachment, error)
	GetAttachment(context.Context, string) (store.Attachment, error)
	InsertAttachment(context.Context, store.Attachment) (store.Attachment, error)
	ReplaceAttachmentFile(ctx context.Context, attachmentID, fileName, objectKey, fileType string, fileSize int64) (store.Attachment, error)
	DeleteAttachment(context.Context, string) error
	ResolveParentProject(context.Context, store.ParentRef) (string, error)

	ListBibliography(ctx context.Context, projectID string) ([]store.Bibliography, error)
	GetBibliography(context.Context, string) (store.Bibliography, error)
	InsertBibliography(context.Context, store.Bibliography) (store.Bibliography, error)
	UpdateBibliography(context.Context, string, store.BibliographyUpdate) (store.Bibliography, error)
	SetBibliographyFile(ctx context.Context, entryID string, fileName, objectKey *string) (store.Bibliography, error)
	DeleteBibliography(context.Context, string) error

	ListConversations(ctx context.Context, projectID, userID string) ([]store.Conversation, error)
	GetConversation(context.Context, string) (store.Conversation, error)
	InsertConversation(context.Context, store.Conversation) (store.Conversation, error)
	RenameConversation(ctx context.Context, conversationID, title string) (store.Conversation, error)
	DeleteConversation(context.Context, string) error
	ListMessages(ctx context.Context, conversationID string) ([]store.Message, error)
	InsertMessage(context.Context, store.Message) (store.Message, error)

	Ping(ctx context.Context) error
}

type SessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (string, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type extractor interface {
	Text(ctx context.Context, fileType string, r io.Reader) (string, error)
}

type exporter interface {
	Export(ctx context.Context, req export.Request) (*export.Result, error)
}

type searchIndex interface {
	Search(q search.Query) search.Response
	IndexProject(p search.ProjectRecord)
	IndexReference(r search.ReferenceRecord)
	DeleteProject(id string)
	DeleteReference(id string)
}

type assistant interface {
	Chat(ctx context.Context, projectContext string, history []ai.Turn, message string) (string, error)
	Suggest(ctx context.Context, projectContext string) (string, error)
	FormatCitation(ctx context.Context, raw string) (string, error)
	SuggestReferences(ctx context.Context, topic string) (string, error)
	Configured() bool
	Model() string
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions SessionStore
	blobs    blob.Store
	extract  extractor
	exporter exporter
	search   searchIndex
	ai       assistant
	pw       *authpw.Service
}

func New(cfg config.Config, dataStore dataStore, sessions SessionStore, blobs blob.Store, extract extractor, searchIdx searchIndex, assistant assistant) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
		blobs:    blobs,
		extract:  extract,
		exporter: export.NewService(exportAdapter{store: dataStore}),
		search:   searchIdx,
		ai:       assistant,
		pw:       authpw.NewService(dataStore),
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Register(ctx context.Context, req authpw.RegisterRequest) (Session, store.User, error) {
	user, err := s.pw.Register(ctx, req)
	if err != nil {
		return Session{}, store.User{}, err
	}
	session, err := s.issueSession(ctx, user)
	if err != nil {
		return Session{}, store.User{}, err
	}
	return session, user, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (Session, store.User, error) {
	user, err := s.pw.Authenticate(ctx, email, password)
	if err != nil {
		return Session{}, store.User{}, err
	}
	session, err := s.issueSession(ctx, user)
	if err != nil {
		return Session{}, store.User{}, err
	}
	return session, user, nil
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	userID, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	if !user.IsActive {
		return Session{}, authpw.ErrAccountDisabled
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	jti := util.NewID("jti")
	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), user.ID, user.Email, jti, s.cfg.AccessTTL)
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := time.Now().Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		Email:        user.Email,
		FullName:     user.FullName,
		JTI:          jti,
		ExpiresAt:    time.Now().Add(s.cfg.AccessTTL),
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, claims.Subject)
	if err != nil {
		return Session{}, err
	}
	if !user.IsActive {
		return Session{}, auth.ErrInvalidToken
	}
	return Session{
		Token:     token,
		UserID:    user.ID,
		Email:     user.Email,
		FullName:  user.FullName,
		JTI:       claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) Profile(ctx context.Context, session Session) (store.User, error) {
	return s.store.GetUserByID(ctx, session.UserID)
}

func (s *Service) UpdateProfile(ctx context.Context, session Session, update store.UserUpdate) (store.User, error) {
	if update.FullName != nil && strings.TrimSpace(*update.FullName) == "" {
		return store.User{}, validationError("fullName must not be empty")
	}
	return s.store.UpdateUser(ctx, session.UserID, update)
}

func (s *Service) ChangePassword(ctx context.Context, session Session, currentPassword, newPassword string) error {
	return s.pw.ChangePassword(ctx, session.UserID, currentPassword, newPassword)
}

// projectForUser resolves a project for the acting user. Projects owned by
// someone else read as absent so existence is never confirmed to outsiders.
func (s *Service) projectForUser(ctx context.Context, projectID, userID string) (store.Project, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return store.Project{}, err
	}
	if project.OwnerID != userID {
		return store.Project{}, sql.ErrNoRows
	}
	return project, nil
}

func (s *Service) phaseForUser(ctx context.Context, phaseID, userID string) (store.Phase, error) {
	phase, err := s.store.GetPhase(ctx, phaseID)
	if err != nil {
		return store.Phase{}, err
	}
	if _, err := s.projectForUser(ctx, phase.ProjectID, userID); err != nil {
		return store.Phase{}, err
	}
	return phase, nil
}

func (s *Service) taskForUser(ctx context.Context, taskID, userID string) (store.Task, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return store.Task{}, err
	}
	if _, err := s.phaseForUser(ctx, task.PhaseID, userID); err != nil {
		return store.Task{}, err
	}
	return task, nil
}

func strOr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

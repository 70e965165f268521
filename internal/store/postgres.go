package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"investiflow/api/internal/ordering"
)

type PostgresStore struct {
	db    *sql.DB
	order *ordering.Engine
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, order: ordering.New()}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Users

const userColumns = `id, email, full_name, password_hash, phone_number, university, research_group, career, is_active, is_verified, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.PasswordHash, &u.PhoneNumber, &u.University, &u.ResearchGroup, &u.Career, &u.IsActive, &u.IsVerified, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (s *PostgresStore) InsertUser(ctx context.Context, user User) (User, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, email, full_name, password_hash, phone_number, university, research_group, career)
		VALUES ($1, LOWER($2), $3, $4, $5, $6, $7, $8)
		RETURNING `+userColumns+`
	`, user.ID, user.Email, user.FullName, user.PasswordHash, user.PhoneNumber, user.University, user.ResearchGroup, user.Career)
	created, err := scanUser(row)
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = LOWER($1)`, email)
	return scanUser(row)
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
	return scanUser(row)
}

func (s *PostgresStore) UpdateUser(ctx context.Context, userID string, update UserUpdate) (User, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE users
		SET full_name      = COALESCE($2, full_name),
		    phone_number   = COALESCE($3, phone_number),
		    university     = COALESCE($4, university),
		    research_group = COALESCE($5, research_group),
		    career         = COALESCE($6, career),
		    updated_at     = NOW()
		WHERE id = $1
		RETURNING `+userColumns+`
	`, userID, update.FullName, update.PhoneNumber, update.University, update.ResearchGroup, update.Career)
	return scanUser(row)
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) EmailTaken(ctx context.Context, email string) (bool, error) {
	var taken bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email = LOWER($1))`, email).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return taken, nil
}

// ---------------------------------------------------------------------------
// Refresh sessions (fallback when Redis is unavailable)

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id
		FROM refresh_sessions
		WHERE token_hash = $1
			AND revoked_at IS NULL
			AND expires_at > NOW()
	`, tokenHash).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

// ---------------------------------------------------------------------------
// Projects

const projectColumns = `id, owner_id, name, description, research_type, institution, research_group, category, status, created_at, updated_at`

func scanProject(row interface{ Scan(...any) error }) (Project, error) {
	var p Project
	err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &p.Description, &p.ResearchType, &p.Institution, &p.ResearchGroup, &p.Category, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *PostgresStore) ListProjects(ctx context.Context, ownerID string) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+projectColumns+`
		FROM projects
		WHERE owner_id = $1
		ORDER BY updated_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	items := make([]Project, 0)
	for rows.Next() {
		item, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetProject(ctx context.Context, projectID string) (Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, projectID)
	return scanProject(row)
}

func (s *PostgresStore) InsertProject(ctx context.Context, project Project) (Project, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO projects (id, owner_id, name, description, research_type, institution, research_group, category, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+projectColumns+`
	`, project.ID, project.OwnerID, project.Name, project.Description, project.ResearchType, project.Institution, project.ResearchGroup, project.Category, project.Status)
	created, err := scanProject(row)
	if err != nil {
		return Project{}, fmt.Errorf("insert project: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) UpdateProject(ctx context.Context, projectID string, update ProjectUpdate) (Project, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE projects
		SET name           = COALESCE($2, name),
		    description    = COALESCE($3, description),
		    research_type  = COALESCE($4, research_type),
		    institution    = COALESCE($5, institution),
		    research_group = COALESCE($6, research_group),
		    category       = COALESCE($7, category),
		    status         = COALESCE($8, status),
		    updated_at     = NOW()
		WHERE id = $1
		RETURNING `+projectColumns+`
	`, projectID, update.Name, update.Description, update.ResearchType, update.Institution, update.ResearchGroup, update.Category, update.Status)
	return scanProject(row)
}

func (s *PostgresStore) DeleteProject(ctx context.Context, projectID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, projectID)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ---------------------------------------------------------------------------
// Attachments

const attachmentColumns = `id, project_id, phase_id, task_id, file_name, object_key, file_type, file_size, created_at, updated_at`

func scanAttachment(row interface{ Scan(...any) error }) (Attachment, error) {
	var a Attachment
	var projectID, phaseID, taskID *string
	err := row.Scan(&a.ID, &projectID, &phaseID, &taskID, &a.FileName, &a.ObjectKey, &a.FileType, &a.FileSize, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return Attachment{}, err
	}
	switch {
	case projectID != nil:
		a.Parent = ParentRef{Kind: ParentProject, ID: *projectID}
	case phaseID != nil:
		a.Parent = ParentRef{Kind: ParentPhase, ID: *phaseID}
	case taskID != nil:
		a.Parent = ParentRef{Kind: ParentTask, ID: *taskID}
	}
	return a, nil
}

func parentColumns(parent ParentRef) (projectID, phaseID, taskID *string) {
	switch parent.Kind {
	case ParentProject:
		projectID = &parent.ID
	case ParentPhase:
		phaseID = &parent.ID
	case ParentTask:
		taskID = &parent.ID
	}
	return projectID, phaseID, taskID
}

func (s *PostgresStore) ListAttachments(ctx context.Context, parent ParentRef) ([]Attachment, error) {
	projectID, phaseID, taskID := parentColumns(parent)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+attachmentColumns+`
		FROM attachments
		WHERE ($1::text IS NOT NULL AND project_id = $1)
		   OR ($2::text IS NOT NULL AND phase_id = $2)
		   OR ($3::text IS NOT NULL AND task_id = $3)
		ORDER BY created_at
	`, projectID, phaseID, taskID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	items := make([]Attachment, 0)
	for rows.Next() {
		item, err := scanAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attachments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetAttachment(ctx context.Context, attachmentID string) (Attachment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+attachmentColumns+` FROM attachments WHERE id = $1`, attachmentID)
	return scanAttachment(row)
}

func (s *PostgresStore) InsertAttachment(ctx context.Context, attachment Attachment) (Attachment, error) {
	projectID, phaseID, taskID := parentColumns(attachment.Parent)
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO attachments (id, project_id, phase_id, task_id, file_name, object_key, file_type, file_size)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+attachmentColumns+`
	`, attachment.ID, projectID, phaseID, taskID, attachment.FileName, attachment.ObjectKey, attachment.FileType, attachment.FileSize)
	created, err := scanAttachment(row)
	if err != nil {
		return Attachment{}, fmt.Errorf("insert attachment: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) ReplaceAttachmentFile(ctx context.Context, attachmentID, fileName, objectKey, fileType string, fileSize int64) (Attachment, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE attachments
		SET file_name=$2, object_key=$3, file_type=$4, file_size=$5, updated_at=NOW()
		WHERE id = $1
		RETURNING `+attachmentColumns+`
	`, attachmentID, fileName, objectKey, fileType, fileSize)
	return scanAttachment(row)
}

func (s *PostgresStore) DeleteAttachment(ctx context.Context, attachmentID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM attachments WHERE id = $1`, attachmentID)
	if err != nil {
		return fmt.Errorf("delete attachment: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ResolveParentProject walks an attachment parent up to its owning project.
// Returns sql.ErrNoRows when the parent does not exist.
func (s *PostgresStore) ResolveParentProject(ctx context.Context, parent ParentRef) (string, error) {
	var query string
	switch parent.Kind {
	case ParentProject:
		query = `SELECT id FROM projects WHERE id = $1`
	case ParentPhase:
		query = `SELECT project_id FROM phases WHERE id = $1`
	case ParentTask:
		query = `SELECT p.project_id FROM tasks t JOIN phases p ON p.id = t.phase_id WHERE t.id = $1`
	default:
		return "", fmt.Errorf("unknown parent kind %q", parent.Kind)
	}
	var projectID string
	if err := s.db.QueryRowContext(ctx, query, parent.ID).Scan(&projectID); err != nil {
		return "", err
	}
	return projectID, nil
}

// ---------------------------------------------------------------------------
// Bibliography

const bibliographyColumns = `id, project_id, type, author, year, title, source, doi, url, volume, issue, pages, file_name, object_key, created_at, updated_at`

func scanBibliography(row interface{ Scan(...any) error }) (Bibliography, error) {
	var b Bibliography
	err := row.Scan(&b.ID, &b.ProjectID, &b.Type, &b.Author, &b.Year, &b.Title, &b.Source, &b.DOI, &b.URL, &b.Volume, &b.Issue, &b.Pages, &b.FileName, &b.ObjectKey, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

func (s *PostgresStore) ListBibliography(ctx context.Context, projectID string) ([]Bibliography, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+bibliographyColumns+`
		FROM bibliography_entries
		WHERE project_id = $1
		ORDER BY author, year
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list bibliography: %w", err)
	}
	defer rows.Close()

	items := make([]Bibliography, 0)
	for rows.Next() {
		item, err := scanBibliography(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bibliography entry: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bibliography: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetBibliography(ctx context.Context, entryID string) (Bibliography, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+bibliographyColumns+` FROM bibliography_entries WHERE id = $1`, entryID)
	return scanBibliography(row)
}

func (s *PostgresStore) InsertBibliography(ctx context.Context, entry Bibliography) (Bibliography, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO bibliography_entries (id, project_id, type, author, year, title, source, doi, url, volume, issue, pages, file_name, object_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING `+bibliographyColumns+`
	`, entry.ID, entry.ProjectID, entry.Type, entry.Author, entry.Year, entry.Title, entry.Source, entry.DOI, entry.URL, entry.Volume, entry.Issue, entry.Pages, entry.FileName, entry.ObjectKey)
	created, err := scanBibliography(row)
	if err != nil {
		return Bibliography{}, fmt.Errorf("insert bibliography entry: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) UpdateBibliography(ctx context.Context, entryID string, update BibliographyUpdate) (Bibliography, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE bibliography_entries
		SET type   = COALESCE($2, type),
		    author = COALESCE($3, author),
		    year   = COALESCE($4, year),
		    title  = COALESCE($5, title),
		    source = COALESCE($6, source),
		    doi    = COALESCE($7, doi),
		    url    = COALESCE($8, url),
		    volume = COALESCE($9, volume),
		    issue  = COALESCE($10, issue),
		    pages  = COALESCE($11, pages),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING `+bibliographyColumns+`
	`, entryID, update.Type, update.Author, update.Year, update.Title, update.Source, update.DOI, update.URL, update.Volume, update.Issue, update.Pages)
	return scanBibliography(row)
}

func (s *PostgresStore) SetBibliographyFile(ctx context.Context, entryID string, fileName, objectKey *string) (Bibliography, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE bibliography_entries
		SET file_name=$2, object_key=$3, updated_at=NOW()
		WHERE id = $1
		RETURNING `+bibliographyColumns+`
	`, entryID, fileName, objectKey)
	return scanBibliography(row)
}

func (s *PostgresStore) DeleteBibliography(ctx context.Context, entryID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM bibliography_entries WHERE id = $1`, entryID)
	if err != nil {
		return fmt.Errorf("delete bibliography entry: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SearchBibliographyFallback serves bibliography search when Meilisearch is
// down. Postgres ILIKE over the fields indexed in Meili.
func (s *PostgresStore) SearchBibliographyFallback(ctx context.Context, projectID, query string) ([]Bibliography, error) {
	pattern := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+bibliographyColumns+`
		FROM bibliography_entries
		WHERE project_id = $1
			AND (title ILIKE $2 OR author ILIKE $2 OR source ILIKE $2 OR doi ILIKE $2)
		ORDER BY author, year
	`, projectID, pattern)
	if err != nil {
		return nil, fmt.Errorf("search bibliography: %w", err)
	}
	defer rows.Close()

	items := make([]Bibliography, 0)
	for rows.Next() {
		item, err := scanBibliography(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bibliography entry: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bibliography: %w", err)
	}
	return items, nil
}

// SearchProjectsFallback mirrors the Meilisearch project index with ILIKE.
func (s *PostgresStore) SearchProjectsFallback(ctx context.Context, ownerID, query string) ([]Project, error) {
	pattern := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+projectColumns+`
		FROM projects
		WHERE owner_id = $1
			AND (name ILIKE $2 OR description ILIKE $2 OR institution ILIKE $2 OR category ILIKE $2)
		ORDER BY updated_at DESC
	`, ownerID, pattern)
	if err != nil {
		return nil, fmt.Errorf("search projects: %w", err)
	}
	defer rows.Close()

	items := make([]Project, 0)
	for rows.Next() {
		item, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return items, nil
}

// ---------------------------------------------------------------------------
// Conversations

const conversationColumns = `id, project_id, user_id, title, created_at, updated_at`

func scanConversation(row interface{ Scan(...any) error }) (Conversation, error) {
	var c Conversation
	err := row.Scan(&c.ID, &c.ProjectID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (s *PostgresStore) ListConversations(ctx context.Context, projectID, userID string) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE project_id = $1 AND user_id = $2
		ORDER BY updated_at DESC
	`, projectID, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	items := make([]Conversation, 0)
	for rows.Next() {
		item, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetConversation(ctx context.Context, conversationID string) (Conversation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, conversationID)
	return scanConversation(row)
}

func (s *PostgresStore) InsertConversation(ctx context.Context, conversation Conversation) (Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO conversations (id, project_id, user_id, title)
		VALUES ($1, $2, $3, $4)
		RETURNING `+conversationColumns+`
	`, conversation.ID, conversation.ProjectID, conversation.UserID, conversation.Title)
	created, err := scanConversation(row)
	if err != nil {
		return Conversation{}, fmt.Errorf("insert conversation: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) RenameConversation(ctx context.Context, conversationID, title string) (Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE conversations SET title=$2, updated_at=NOW() WHERE id = $1
		RETURNING `+conversationColumns+`
	`, conversationID, title)
	return scanConversation(row)
}

func (s *PostgresStore) DeleteConversation(ctx context.Context, conversationID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = $1`, conversationID)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, model_used, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	items := make([]Message, 0)
	for rows.Next() {
		var item Message
		if err := rows.Scan(&item.ID, &item.ConversationID, &item.Role, &item.Content, &item.ModelUsed, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertMessage(ctx context.Context, message Message) (Message, error) {
	var created Message
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, model_used)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, conversation_id, role, content, model_used, created_at
	`, message.ID, message.ConversationID, message.Role, message.Content, message.ModelUsed).Scan(
		&created.ID, &created.ConversationID, &created.Role, &created.Content, &created.ModelUsed, &created.CreatedAt)
	if err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE conversations SET updated_at=NOW() WHERE id = $1`, message.ConversationID); err != nil {
		return Message{}, fmt.Errorf("touch conversation: %w", err)
	}
	return created, nil
}

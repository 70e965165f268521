package store

import "time"

type User struct {
	ID            string
	Email         string
	FullName      string
	PasswordHash  string
	PhoneNumber   *string
	University    *string
	ResearchGroup *string
	Career        *string
	IsActive      bool
	IsVerified    bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Project struct {
	ID            string
	OwnerID       string
	Name          string
	Description   *string
	ResearchType  *string
	Institution   *string
	ResearchGroup *string
	Category      *string
	Status        string // planning, in_progress, on_hold, completed, cancelled
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Phase struct {
	ID        string
	ProjectID string
	Name      string
	Position  int
	Color     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Task struct {
	ID          string
	PhaseID     string
	Title       string
	Description *string
	Position    int
	Status      string // pending, in_progress, completed, on_hold
	Completed   bool
	StartDate   *time.Time
	EndDate     *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ParentKind discriminates which entity an attachment hangs off.
type ParentKind string

const (
	ParentProject ParentKind = "project"
	ParentPhase   ParentKind = "phase"
	ParentTask    ParentKind = "task"
)

// ParentRef identifies an attachment's owner. Exactly one parent per
// attachment; the database enforces the same with a CHECK constraint.
type ParentRef struct {
	Kind ParentKind
	ID   string
}

type Attachment struct {
	ID        string
	Parent    ParentRef
	FileName  string
	ObjectKey string
	FileType  string // pdf, docx
	FileSize  int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Bibliography struct {
	ID        string
	ProjectID string
	Type      string // article, book, thesis, web, conference, report, other
	Author    string
	Year      *int
	Title     string
	Source    *string
	DOI       *string
	URL       *string
	Volume    *string
	Issue     *string
	Pages     *string
	FileName  *string
	ObjectKey *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Patch structs carry partial updates. Nil fields keep the stored value.

type UserUpdate struct {
	FullName      *string
	PhoneNumber   *string
	University    *string
	ResearchGroup *string
	Career        *string
}

type ProjectUpdate struct {
	Name          *string
	Description   *string
	ResearchType  *string
	Institution   *string
	ResearchGroup *string
	Category      *string
	Status        *string
}

type PhaseUpdate struct {
	Name     *string
	Color    *string
	Position *int
}

type TaskUpdate struct {
	Title       *string
	Description *string
	Status      *string
	Completed   *bool
	StartDate   *time.Time
	EndDate     *time.Time
	Position    *int
	PhaseID     *string
}

type BibliographyUpdate struct {
	Type   *string
	Author *string
	Year   *int
	Title  *string
	Source *string
	DOI    *string
	URL    *string
	Volume *string
	Issue  *string
	Pages  *string
}

type Conversation struct {
	ID        string
	ProjectID string
	UserID    string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Message struct {
	ID             string
	ConversationID string
	Role           string // user, model
	Content        string
	ModelUsed      *string
	CreatedAt      time.Time
}

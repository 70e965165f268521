package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultProject   ResultType = "project"
	ResultReference ResultType = "reference"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type      ResultType `json:"type"`
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Snippet   string     `json:"snippet"`
	ProjectID string     `json:"projectId"`
}

// Query describes a search request. OwnerID scopes project hits to the
// caller; ProjectID, when set, narrows reference hits to one project.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	OwnerID    string
	ProjectID  string
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// ProjectRecord is the data we index for a project.
type ProjectRecord struct {
	ID          string `json:"id"`
	OwnerID     string `json:"ownerId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Institution string `json:"institution"`
	Category    string `json:"category"`
	Status      string `json:"status"`
}

// ReferenceRecord is the data we index for a bibliography entry.
type ReferenceRecord struct {
	ID        string `json:"id"`
	ProjectID string `json:"projectId"`
	OwnerID   string `json:"ownerId"`
	Author    string `json:"author"`
	Title     string `json:"title"`
	Source    string `json:"source"`
	DOI       string `json:"doi"`
}

package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultProposal ResultType = "proposal"
	ResultActivity ResultType = "activity"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type       ResultType `json:"type"`
	ID         string     `json:"id"`
	TargetPath string     `json:"targetPath"`
	Title      string     `json:"title"`
	Snippet    string     `json:"snippet"`
	Actor      string     `json:"actor,omitempty"`
	Status     string     `json:"status,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
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

// ProposalRecord is the data we index for a proposal.
type ProposalRecord struct {
	ID         string `json:"id"`
	TargetPath string `json:"targetPath"`
	ChangeType string `json:"changeType"`
	Reason     string `json:"reason"`
	Status     string `json:"status"`
	CreatedBy  string `json:"createdBy"`
}

// ActivityRecord is the data we index for an activity log entry.
type ActivityRecord struct {
	ID          string `json:"id"`
	Actor       string `json:"actor"`
	Action      string `json:"action"`
	TargetPath  string `json:"targetPath"`
	DiffSummary string `json:"diffSummary"`
}

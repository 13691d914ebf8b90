package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultEvent ResultType = "event"
	ResultGroup ResultType = "group"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type     ResultType `json:"type"`
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Snippet  string     `json:"snippet"`
	Location string     `json:"location,omitempty"`
	State    string     `json:"state,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text          string
	FilterType    ResultType // empty = all types
	FilterState   string
	PublishedOnly bool
	Limit         int
	Offset        int
}

// stateConstraint resolves the event state the backends must filter on.
// PublishedOnly wins over any caller-supplied state so an anonymous query
// can never widen its view past published events.
func (q Query) stateConstraint() string {
	if q.PublishedOnly {
		return "PUBLISHED"
	}
	return q.FilterState
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

// EventRecord is the data we index for an event.
type EventRecord struct {
	ID              string `json:"id"`
	Description     string `json:"description"`
	DescriptionLong string `json:"descriptionLong"`
	Location        string `json:"location"`
	State           string `json:"state"`
	AuthorID        string `json:"authorId"`
}

// GroupRecord is the data we index for an event group.
type GroupRecord struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

package models

// SearchHit is one ranked result of a similarity search.
// RelevanceScore is the squared L2 distance: lower is more similar.
type SearchHit struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	Author         string  `json:"author"`
	RelevanceScore float64 `json:"relevance_score"`
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Results   []SearchHit `json:"results"`
	Query     string      `json:"query,omitempty"`
	QueryTime int64       `json:"query_time_ms"`
}

// Recommendation is one thesis similar to a requested thesis.
// SimilarityScore is the squared L2 distance: lower is more similar.
type Recommendation struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Author          string  `json:"author"`
	Abstract        string  `json:"abstract"`
	SimilarityScore float64 `json:"similarity_score"`
}

// RecommendResponse is the response for a recommend request.
type RecommendResponse struct {
	Recommendations []Recommendation `json:"recommendations"`
	ThesisID        string           `json:"thesis_id,omitempty"`
	QueryTime       int64            `json:"query_time_ms"`
}

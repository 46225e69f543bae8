package domain

import "time"

// PostRecord is one publish attempt written to the post-history store
type PostRecord struct {
	ID         string
	Date       string // day bucket the post summarized; empty for ad-hoc posts
	Method     string // "linkedin" or "relay"
	Content    string
	EventCount int
	Success    bool
	Error      string
	CreatedAt  time.Time
}

// ReviewStatus is the state of a review artifact
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewExpired  ReviewStatus = "expired"
)

// ReviewRecord pairs a candidate post with its approval state
type ReviewRecord struct {
	Name      string
	Path      string
	Content   string
	Status    ReviewStatus
	CreatedAt time.Time
}

package gateway

import "time"

type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Username    string    `json:"username"`
	GitHubLogin *string   `json:"github_login,omitempty"` // nil when no GitHub account is linked
	AvatarURL   *string   `json:"avatar_url,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UpdateUserInput struct {
	Username  string `json:"username,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// ExternalAuthURL is where the user is sent to authorize with GitHub.
// When requested with a credential the server links rather than logs in.
type ExternalAuthURL struct {
	URL   string `json:"url"`
	State string `json:"state"`
}

type ReviewStatus string

const (
	ReviewStatusPending    ReviewStatus = "pending"
	ReviewStatusProcessing ReviewStatus = "processing"
	ReviewStatusCompleted  ReviewStatus = "completed"
	ReviewStatusFailed     ReviewStatus = "failed"
)

// InProgress reports whether the server is still working on the review
func (s ReviewStatus) InProgress() bool {
	return s == ReviewStatusPending || s == ReviewStatusProcessing
}

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

type SecurityIssue struct {
	ID          string    `json:"id"`
	ReviewID    string    `json:"review_id"`
	Severity    Severity  `json:"severity"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	FilePath    *string   `json:"file_path,omitempty"`
	LineStart   *int      `json:"line_start,omitempty"`
	LineEnd     *int      `json:"line_end,omitempty"`
	Suggestion  string    `json:"suggestion"`
	CWE         *string   `json:"cwe,omitempty"`
	CodeSnippet *string   `json:"code_snippet,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type Review struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	Title          string          `json:"title"`
	Code           string          `json:"code,omitempty"`
	Language       string          `json:"language"`
	Status         ReviewStatus    `json:"status"`
	Result         *string         `json:"result,omitempty"`
	CustomPrompt   *string         `json:"custom_prompt,omitempty"`
	SecurityIssues []SecurityIssue `json:"security_issues,omitempty"`
	OverallScore   float64         `json:"overall_score"`
	Summary        string          `json:"summary,omitempty"`
	Suggestions    []string        `json:"suggestions,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

type CreateReviewInput struct {
	Title        string `json:"title"`
	Code         string `json:"code,omitempty"`
	Language     string `json:"language,omitempty"`
	RepoOwner    string `json:"repo_owner,omitempty"`
	RepoName     string `json:"repo_name,omitempty"`
	RepoBranch   string `json:"repo_branch,omitempty"`
	CustomPrompt string `json:"custom_prompt,omitempty"`
}

type ReviewList struct {
	Reviews    []Review `json:"reviews"`
	Total      int      `json:"total"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
	TotalPages int      `json:"total_pages"`
}

type Repository struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	FullName    string  `json:"full_name"`
	HTMLURL     string  `json:"html_url"`
	Description string  `json:"description"`
	Language    *string `json:"language"`
	Private     bool    `json:"private"`
}

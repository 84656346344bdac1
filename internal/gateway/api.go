package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

func (c *Client) Register(ctx context.Context, in RegisterInput) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.doJSON(ctx, Request{Method: http.MethodPost, Path: "/auth/register", Body: in}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Login(ctx context.Context, in LoginInput) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.doJSON(ctx, Request{Method: http.MethodPost, Path: "/auth/login", Body: in}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RefreshToken exchanges the current credential for a fresh one
func (c *Client) RefreshToken(ctx context.Context) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	if err := c.doJSON(ctx, Request{Method: http.MethodPost, Path: "/auth/refresh"}, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

func (c *Client) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	body := map[string]string{
		"old_password": oldPassword,
		"new_password": newPassword,
	}
	return c.doJSON(ctx, Request{Method: http.MethodPost, Path: "/auth/change-password", Body: body}, nil)
}

// ExternalAuthURL returns the GitHub authorization URL. With a stored
// credential the server issues a linking URL instead of a login URL.
func (c *Client) ExternalAuthURL(ctx context.Context) (*ExternalAuthURL, error) {
	var out ExternalAuthURL
	if err := c.doJSON(ctx, Request{Method: http.MethodGet, Path: "/auth/github"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UnlinkExternal(ctx context.Context) error {
	return c.doJSON(ctx, Request{Method: http.MethodDelete, Path: "/auth/github/link"}, nil)
}

func (c *Client) Profile(ctx context.Context) (*User, error) {
	var out User
	if err := c.doJSON(ctx, Request{Method: http.MethodGet, Path: "/users/me"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateProfile(ctx context.Context, in UpdateUserInput) (*User, error) {
	var out User
	if err := c.doJSON(ctx, Request{Method: http.MethodPut, Path: "/users/me", Body: in}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteAccount(ctx context.Context) error {
	return c.doJSON(ctx, Request{Method: http.MethodDelete, Path: "/users/me"}, nil)
}

// UserRepositories lists the repositories of the linked GitHub account
func (c *Client) UserRepositories(ctx context.Context) ([]Repository, error) {
	var out []Repository
	if err := c.doJSON(ctx, Request{Method: http.MethodGet, Path: "/users/repos"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateReview(ctx context.Context, in CreateReviewInput) (*Review, error) {
	var out Review
	if err := c.doJSON(ctx, Request{Method: http.MethodPost, Path: "/reviews", Body: in}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetReview(ctx context.Context, id string) (*Review, error) {
	var out Review
	if err := c.doJSON(ctx, Request{Method: http.MethodGet, Path: "/reviews/" + url.PathEscape(id)}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListReviews(ctx context.Context, page, pageSize int) (*ReviewList, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("page_size", strconv.Itoa(pageSize))

	var out ReviewList
	if err := c.doJSON(ctx, Request{Method: http.MethodGet, Path: "/reviews", Query: query}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteReview(ctx context.Context, id string) error {
	return c.doJSON(ctx, Request{Method: http.MethodDelete, Path: "/reviews/" + url.PathEscape(id)}, nil)
}

// ReanalyzeReview resubmits the review for processing. It does not wait.
func (c *Client) ReanalyzeReview(ctx context.Context, id string) (*Review, error) {
	var out Review
	path := "/reviews/" + url.PathEscape(id) + "/reanalyze"
	if err := c.doJSON(ctx, Request{Method: http.MethodPost, Path: path}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DownloadPDF returns the PDF export as raw bytes
func (c *Client) DownloadPDF(ctx context.Context, id string) ([]byte, error) {
	return c.download(ctx, "/reviews/"+url.PathEscape(id)+"/pdf")
}

// DownloadMarkdown returns the Markdown export as raw bytes
func (c *Client) DownloadMarkdown(ctx context.Context, id string) ([]byte, error) {
	return c.download(ctx, "/reviews/"+url.PathEscape(id)+"/markdown")
}

func (c *Client) download(ctx context.Context, path string) ([]byte, error) {
	resp, err := c.Do(ctx, Request{Method: http.MethodGet, Path: path})
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) ListRepositories(ctx context.Context) ([]Repository, error) {
	var out []Repository
	if err := c.doJSON(ctx, Request{Method: http.MethodGet, Path: "/github/repos"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListBranches(ctx context.Context, owner, repo string) ([]string, error) {
	var out []string
	path := "/github/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(repo) + "/branches"
	if err := c.doJSON(ctx, Request{Method: http.MethodGet, Path: path}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

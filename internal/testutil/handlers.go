package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/codelens-dev/lens/internal/gateway"
	"github.com/go-chi/chi/v5"
)

func (f *FakeAPI) handleRegister(w http.ResponseWriter, r *http.Request, _ *fakeUser) {
	var in gateway.RegisterInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.users[in.Email]; exists {
		writeError(w, http.StatusConflict, "user already exists")
		return
	}
	u := f.addUserLocked(in.Username, in.Email, in.Password)
	writeJSON(w, http.StatusCreated, gateway.AuthResponse{Token: f.issueTokenLocked(in.Email), User: u.user})
}

func (f *FakeAPI) handleLogin(w http.ResponseWriter, r *http.Request, _ *fakeUser) {
	var in gateway.LoginInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[in.Email]
	if !ok || u.password != in.Password {
		// The real service answers bad credentials with 400, not 401.
		writeError(w, http.StatusBadRequest, "invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, gateway.AuthResponse{Token: f.issueTokenLocked(in.Email), User: u.user})
}

func (f *FakeAPI) handleRefresh(w http.ResponseWriter, _ *http.Request, u *fakeUser) {
	f.mu.Lock()
	defer f.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"token": f.issueTokenLocked(u.user.Email)})
}

func (f *FakeAPI) handleChangePassword(w http.ResponseWriter, r *http.Request, u *fakeUser) {
	var in struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if u.password != in.OldPassword {
		writeError(w, http.StatusBadRequest, "wrong password")
		return
	}
	u.password = in.NewPassword
	writeJSON(w, http.StatusOK, map[string]string{"message": "password changed"})
}

func (f *FakeAPI) handleAuthURL(w http.ResponseWriter, _ *http.Request, _ *fakeUser) {
	f.mu.Lock()
	defer f.mu.Unlock()
	writeJSON(w, http.StatusOK, gateway.ExternalAuthURL{URL: f.authURL, State: "state"})
}

func (f *FakeAPI) handleUnlink(w http.ResponseWriter, _ *http.Request, u *fakeUser) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u.user.GitHubLogin = nil
	writeJSON(w, http.StatusOK, map[string]string{"message": "unlinked"})
}

// LinkGitHub simulates the server side of a completed link flow.
func (f *FakeAPI) LinkGitHub(email, login string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[email]; ok {
		u.user.GitHubLogin = &login
	}
}

func (f *FakeAPI) handleProfile(w http.ResponseWriter, _ *http.Request, u *fakeUser) {
	f.mu.Lock()
	defer f.mu.Unlock()
	writeJSON(w, http.StatusOK, u.user)
}

func (f *FakeAPI) handleUpdateProfile(w http.ResponseWriter, r *http.Request, u *fakeUser) {
	var in gateway.UpdateUserInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if in.Username != "" {
		u.user.Username = in.Username
	}
	if in.AvatarURL != "" {
		avatar := in.AvatarURL
		u.user.AvatarURL = &avatar
	}
	writeJSON(w, http.StatusOK, u.user)
}

func (f *FakeAPI) handleDeleteAccount(w http.ResponseWriter, _ *http.Request, u *fakeUser) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, u.user.Email)
	for token, email := range f.tokens {
		if email == u.user.Email {
			delete(f.tokens, token)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (f *FakeAPI) handleRepos(w http.ResponseWriter, _ *http.Request, _ *fakeUser) {
	lang := "Go"
	writeJSON(w, http.StatusOK, []gateway.Repository{
		{ID: 1, Name: "lens", FullName: "codelens-dev/lens", HTMLURL: "https://github.com/codelens-dev/lens", Language: &lang},
	})
}

func (f *FakeAPI) handleBranches(w http.ResponseWriter, r *http.Request, _ *fakeUser) {
	if chi.URLParam(r, "repo") == "" {
		writeError(w, http.StatusNotFound, "repository not found")
		return
	}
	writeJSON(w, http.StatusOK, []string{"main", "develop"})
}

func (f *FakeAPI) handleCreateReview(w http.ResponseWriter, r *http.Request, u *fakeUser) {
	var in gateway.CreateReviewInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if in.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	rev := &gateway.Review{
		ID:        fmt.Sprintf("r%d", f.nextID),
		UserID:    u.user.ID,
		Title:     in.Title,
		Code:      in.Code,
		Language:  in.Language,
		Status:    gateway.ReviewStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	f.reviews[rev.ID] = rev
	f.order = append([]string{rev.ID}, f.order...)
	writeJSON(w, http.StatusCreated, rev)
}

func (f *FakeAPI) handleListReviews(w http.ResponseWriter, r *http.Request, _ *fakeUser) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 {
		pageSize = 20
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	total := len(f.order)
	start := min((page-1)*pageSize, total)
	end := min(start+pageSize, total)
	out := make([]gateway.Review, 0, end-start)
	for _, id := range f.order[start:end] {
		out = append(out, *f.reviews[id])
	}
	writeJSON(w, http.StatusOK, gateway.ReviewList{
		Reviews:    out,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
	})
}

func (f *FakeAPI) handleGetReview(w http.ResponseWriter, r *http.Request, _ *fakeUser) {
	id := chi.URLParam(r, "id")

	f.mu.Lock()
	defer f.mu.Unlock()
	rev, ok := f.reviews[id]
	if !ok {
		writeError(w, http.StatusNotFound, "review not found")
		return
	}
	if script := f.scripts[id]; len(script) > 0 {
		rev.Status = script[0]
		if len(script) > 1 {
			f.scripts[id] = script[1:]
		}
	}
	writeJSON(w, http.StatusOK, rev)
}

func (f *FakeAPI) handleDeleteReview(w http.ResponseWriter, r *http.Request, _ *fakeUser) {
	id := chi.URLParam(r, "id")

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.reviews[id]; !ok {
		writeError(w, http.StatusNotFound, "review not found")
		return
	}
	delete(f.reviews, id)
	for i, oid := range f.order {
		if oid == id {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (f *FakeAPI) handleReanalyze(w http.ResponseWriter, r *http.Request, _ *fakeUser) {
	id := chi.URLParam(r, "id")

	f.mu.Lock()
	defer f.mu.Unlock()
	rev, ok := f.reviews[id]
	if !ok {
		writeError(w, http.StatusNotFound, "review not found")
		return
	}
	rev.Status = gateway.ReviewStatusPending
	rev.SecurityIssues = nil
	rev.CompletedAt = nil
	writeJSON(w, http.StatusOK, rev)
}

func (f *FakeAPI) handleExport(contentType, prefix string) handler {
	return func(w http.ResponseWriter, r *http.Request, _ *fakeUser) {
		id := chi.URLParam(r, "id")

		f.mu.Lock()
		rev, ok := f.reviews[id]
		f.mu.Unlock()
		if !ok {
			writeError(w, http.StatusNotFound, "review not found")
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "%s%s", prefix, rev.Title)
	}
}

package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/codelens-dev/lens/internal/gateway"
	"github.com/codelens-dev/lens/internal/reviews"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoginAndWhoami(t *testing.T) {
	env := newEnv(t)

	out := env.mustRun("pw\n", "login", "--email", "a@b.com")
	assert.Contains(t, out, "Signed in as ann")

	out = env.mustRun("", "whoami")
	assert.Contains(t, out, "ann <a@b.com>")
	assert.Contains(t, out, "GitHub:  not linked")

	var u gateway.User
	require.NoError(t, json.Unmarshal([]byte(env.mustRun("", "whoami", "--json")), &u))
	assert.Equal(t, "a@b.com", u.Email)
}

func TestLoginPromptsForEmail(t *testing.T) {
	env := newEnv(t)

	res := env.run("a@b.com\npw\n", "login")
	require.NoError(t, res.err)
	assert.Contains(t, res.stderr, "Email: ")
	assert.Contains(t, res.stderr, "Password: ")
}

func TestLoginWrongPassword(t *testing.T) {
	env := newEnv(t)

	res := env.run("nope\n", "login", "--email", "a@b.com")
	require.Error(t, res.err)
	assert.Equal(t, "invalid credentials", res.err.Error())

	res = env.run("", "whoami")
	assert.ErrorIs(t, res.err, errNotSignedIn)
}

func TestLoginWhenSignedIn(t *testing.T) {
	env := newEnv(t)
	env.login()

	res := env.run("pw\n", "login", "--email", "a@b.com")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "already signed in as ann")
}

func TestCommandsRequireLogin(t *testing.T) {
	env := newEnv(t)

	for _, args := range [][]string{{"list"}, {"show", "r1"}, {"whoami"}, {"stats"}, {"github", "repos"}} {
		res := env.run("", args...)
		assert.ErrorIs(t, res.err, errNotSignedIn, "%v", args)
	}
	assert.Zero(t, env.api.Calls("GET /reviews"))
}

func TestLogout(t *testing.T) {
	env := newEnv(t)
	env.login()

	assert.Contains(t, env.mustRun("", "logout"), "Signed out")
	assert.ErrorIs(t, env.run("", "list").err, errNotSignedIn)
	// Idempotent.
	env.mustRun("", "logout")
}

func TestRegister(t *testing.T) {
	env := newEnv(t)

	out := env.mustRun("secret\nsecret\n", "register", "--username", "bob", "--email", "bob@b.com")
	assert.Contains(t, out, "signed in as bob")

	res := env.run("secret\nsecret\n", "logout")
	require.NoError(t, res.err)
	res = env.run("secret\nsecret\n", "register", "--username", "bob", "--email", "bob@b.com")
	require.Error(t, res.err)
	assert.Equal(t, "user already exists", res.err.Error())

	res = env.run("a\nb\n", "register", "--username", "c", "--email", "c@b.com")
	assert.EqualError(t, res.err, "passwords do not match")
}

func TestSessionExpired(t *testing.T) {
	env := newEnv(t)
	env.login()
	env.api.RevokeAll()

	res := env.run("", "list")
	assert.ErrorIs(t, res.err, errExpired)

	// The rejected credential is gone for later invocations too.
	res = env.run("", "list")
	assert.ErrorIs(t, res.err, errNotSignedIn)

	out := env.mustRun("", "errors")
	assert.Contains(t, out, "credential rejected")
}

func TestErrorsEmpty(t *testing.T) {
	env := newEnv(t)
	assert.Contains(t, env.mustRun("", "errors"), "No errors logged.")
}

func TestReviewWait(t *testing.T) {
	env := newEnv(t)
	env.login()
	src := filepath.Join(t.TempDir(), "main.go")
	require.NoError(t, os.WriteFile(src, []byte("package main\n"), 0644))
	env.api.ScriptStatuses("r1", gateway.ReviewStatusProcessing, gateway.ReviewStatusCompleted)

	out := env.mustRun("", "review", src, "--wait")
	assert.Contains(t, out, "Created review r1 (pending)")
	assert.Contains(t, out, "Waiting for review r1...")
	assert.Contains(t, out, "Review r1 completed")
	assert.Contains(t, out, "no security issues found")

	var r gateway.Review
	require.NoError(t, json.Unmarshal([]byte(env.mustRun("", "show", "r1", "--json")), &r))
	assert.Equal(t, "main.go", r.Title)
	assert.Equal(t, "go", r.Language)
}

func TestReviewFromStdinNeedsTitle(t *testing.T) {
	env := newEnv(t)
	env.login()

	res := env.run("print(1)\n", "review", "-")
	assert.EqualError(t, res.err, "--title is required when reading stdin")

	out := env.mustRun("print(1)\n", "review", "-", "--title", "snippet", "--language", "python")
	assert.Contains(t, out, "Created review r1")
}

func TestReviewRepo(t *testing.T) {
	env := newEnv(t)
	env.login()

	out := env.mustRun("", "review", "--repo", "ann/app", "--branch", "main")
	assert.Contains(t, out, "Created review r1")

	res := env.run("", "review", "--repo", "nope")
	assert.Error(t, res.err)
}

func TestWaitGivesUp(t *testing.T) {
	env := newEnv(t)
	env.login()
	env.api.PutReview(gateway.Review{ID: "r7", Title: "slow", Status: gateway.ReviewStatusPending})

	res := env.run("", "wait", "r7", "--max-polls", "2")
	assert.Equal(t, 2, exitCode(res.err))
	assert.Contains(t, res.stdout, "still pending after 2 checks")
	// One load plus two polls.
	assert.Equal(t, 3, env.api.Calls("GET /reviews/{id}"))
}

func TestWaitFailedReview(t *testing.T) {
	env := newEnv(t)
	env.login()
	env.api.PutReview(gateway.Review{ID: "r1", Status: gateway.ReviewStatusFailed})

	res := env.run("", "wait", "r1", "--quiet")
	assert.Equal(t, 1, exitCode(res.err))
	assert.Empty(t, res.stdout)
}

func TestWaitUnexpectedStatus(t *testing.T) {
	env := newEnv(t)
	env.login()
	env.api.PutReview(gateway.Review{ID: "r1", Status: "archived"})

	res := env.run("", "wait", "r1", "--max-polls", "5")
	assert.Equal(t, 1, exitCode(res.err))
	assert.Contains(t, res.stdout, `Review r1 has unexpected status "archived"`)
	assert.NotContains(t, res.stdout, "checks")
	assert.Equal(t, 1, env.api.Calls("GET /reviews/{id}"))
}

func TestListAndStats(t *testing.T) {
	env := newEnv(t)
	env.writeConfig("page_size = 2\n")
	env.login()
	env.api.PutReview(gateway.Review{
		ID: "r1", Title: "first", Status: gateway.ReviewStatusCompleted, OverallScore: 7.5,
		SecurityIssues: []gateway.SecurityIssue{{Severity: gateway.SeverityCritical}, {Severity: gateway.SeverityHigh}},
	})
	env.api.PutReview(gateway.Review{ID: "r2", Title: "second", Status: gateway.ReviewStatusPending})
	env.api.PutReview(gateway.Review{ID: "r3", Title: "third", Status: gateway.ReviewStatusProcessing})

	out := env.mustRun("", "list")
	assert.Contains(t, out, "r3")
	assert.Contains(t, out, "r2")
	assert.NotContains(t, out, "first")
	assert.Contains(t, out, "page 1 of 2, 3 reviews")
	assert.Contains(t, out, "more: lens list --page 2")

	out = env.mustRun("", "list", "--page", "2")
	assert.Contains(t, out, "first")
	assert.Contains(t, out, "7.5")
	assert.NotContains(t, out, "more:")

	var st reviews.Stats
	require.NoError(t, json.Unmarshal([]byte(env.mustRun("", "stats", "--page", "2", "--json")), &st))
	assert.Equal(t, reviews.Stats{CriticalCount: 1, HighCount: 1, CompletedCount: 1}, st)

	out = env.mustRun("", "stats")
	assert.Contains(t, out, "In progress")
}

func TestListEmpty(t *testing.T) {
	env := newEnv(t)
	env.login()
	assert.Contains(t, env.mustRun("", "list"), "No reviews found.")
}

func TestShow(t *testing.T) {
	env := newEnv(t)
	env.login()
	file, line, cwe := "db.go", 12, "CWE-89"
	env.api.PutReview(gateway.Review{
		ID: "r1", Title: "queries", Status: gateway.ReviewStatusCompleted, Language: "go",
		Summary: "One injection.",
		SecurityIssues: []gateway.SecurityIssue{{
			Severity: gateway.SeverityCritical, Title: "SQL injection",
			FilePath: &file, LineStart: &line, CWE: &cwe, Suggestion: "use placeholders",
		}},
		Suggestions: []string{"add tests"},
	})

	out := env.mustRun("", "show", "r1")
	assert.Contains(t, out, "queries")
	assert.Contains(t, out, "CRITICAL SQL injection")
	assert.Contains(t, out, "db.go:12  CWE-89")
	assert.Contains(t, out, "fix: use placeholders")
	assert.Contains(t, out, "- add tests")

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(env.mustRun("", "show", "r1", "--yaml")), &doc))
	assert.Equal(t, "queries", doc["title"])
	assert.Equal(t, "completed", doc["status"])

	out = env.mustRun("", "show", "r1", "--render")
	assert.Contains(t, out, "queries")

	res := env.run("", "show", "r404")
	assert.EqualError(t, res.err, "review not found")
}

func TestExport(t *testing.T) {
	env := newEnv(t)
	env.login()
	env.api.PutReview(gateway.Review{ID: "r1", Title: "My report", Status: gateway.ReviewStatusCompleted})
	dir := t.TempDir()

	out := env.mustRun("", "export", "r1", "--format", "md", "--output", dir)
	assert.Contains(t, out, "Saved")
	data, err := os.ReadFile(filepath.Join(dir, "My_report_r1.md"))
	require.NoError(t, err)
	assert.Equal(t, "# My report", string(data))

	env.mustRun("", "export", "r1", "-o", dir)
	_, err = os.Stat(filepath.Join(dir, "My_report_r1.pdf"))
	require.NoError(t, err)

	res := env.run("", "export", "r1", "--format", "docx")
	assert.Error(t, res.err)
}

func TestRmAndReanalyze(t *testing.T) {
	env := newEnv(t)
	env.login()
	env.api.PutReview(gateway.Review{ID: "r1", Status: gateway.ReviewStatusCompleted})
	env.api.PutReview(gateway.Review{ID: "r2", Status: gateway.ReviewStatusCompleted})

	out := env.mustRun("", "reanalyze", "r2")
	assert.Contains(t, out, "Review r2 resubmitted (pending)")

	res := env.run("", "rm", "r1", "r9")
	assert.Equal(t, 1, exitCode(res.err))
	assert.Contains(t, res.stdout, "Deleted r1")
	assert.Contains(t, res.stderr, "r9: review not found")

	assert.Contains(t, env.mustRun("", "list"), "r2")
	assert.NotContains(t, env.mustRun("", "list"), "r1 ")
}

func TestGitHubCallbackSignsIn(t *testing.T) {
	env := newEnv(t)
	token := env.api.IssueToken("a@b.com")

	out := env.mustRun("", "github", "callback", token)
	assert.Contains(t, out, "Signed in as ann")
	assert.Contains(t, env.mustRun("", "whoami"), "ann")

	env.mustRun("", "logout")
	res := env.run("", "github", "callback", "bogus")
	require.Error(t, res.err)
	assert.ErrorIs(t, env.run("", "whoami").err, errNotSignedIn)
}

func TestGitHubLoginPrintsURL(t *testing.T) {
	env := newEnv(t)
	env.api.SetAuthURL("https://github.example/authorize?x=1")

	out := env.mustRun("", "login", "--github")
	assert.Contains(t, out, "https://github.example/authorize?x=1")
	assert.Contains(t, out, "lens github callback <token>")
}

func TestGitHubLinkAndUnlink(t *testing.T) {
	env := newEnv(t)
	env.login()

	out := env.mustRun("", "github", "link")
	assert.Contains(t, out, "https://github.com/login/oauth/authorize")

	env.api.LinkGitHub("a@b.com", "anngh")
	out = env.mustRun("", "github", "callback", "--linked")
	assert.Contains(t, out, "Linked to @anngh")

	assert.Contains(t, env.mustRun("", "github", "link"), "Already linked to @anngh")
	assert.Contains(t, env.mustRun("", "github", "unlink"), "GitHub account unlinked")
	assert.Contains(t, env.mustRun("", "whoami"), "not linked")

	res := env.run("", "github", "unlink")
	assert.EqualError(t, res.err, "no GitHub account is linked")
}

func TestGitHubLinkReturnsToProfile(t *testing.T) {
	env := newEnv(t)
	env.login()

	env.mustRun("", "github", "link")
	env.api.LinkGitHub("a@b.com", "anngh")

	// The link started in another invocation; its return page is the profile.
	out := env.mustRun("", "github", "callback", "--linked")
	assert.Contains(t, out, "Linked to @anngh")
	assert.Contains(t, out, "ann <a@b.com>")
	assert.Contains(t, out, "GitHub:  @anngh")

	// The saved page is used once.
	out = env.mustRun("", "github", "callback", "--linked")
	assert.Contains(t, out, "Linked to @anngh")
	assert.NotContains(t, out, "GitHub:")
}

func TestGitHubReposAndBranches(t *testing.T) {
	env := newEnv(t)
	env.login()

	assert.Contains(t, env.mustRun("", "github", "repos"), "codelens-dev/lens")
	out := env.mustRun("", "github", "branches", "codelens-dev/lens")
	assert.Equal(t, "main\ndevelop\n", out)

	assert.Error(t, env.run("", "github", "branches", "nope").err)
}

func TestProfileUpdate(t *testing.T) {
	env := newEnv(t)
	env.login()

	out := env.mustRun("", "profile", "update", "--username", "annie", "--avatar-url", "https://x/a.png")
	assert.Contains(t, out, "Profile updated")
	assert.Contains(t, out, "annie")
	assert.Contains(t, out, "Avatar:  https://x/a.png")

	assert.Error(t, env.run("", "profile", "update").err)
}

func TestPasswd(t *testing.T) {
	env := newEnv(t)
	env.login()

	res := env.run("wrong\nnew\nnew\n", "passwd")
	assert.EqualError(t, res.err, "wrong password")

	res = env.run("pw\nnew\nother\n", "passwd")
	assert.EqualError(t, res.err, "passwords do not match")

	assert.Contains(t, env.mustRun("pw\nnew\nnew\n", "passwd"), "Password changed")
	env.mustRun("", "logout")
	env.mustRun("new\n", "login", "--email", "a@b.com")
}

func TestAccountDelete(t *testing.T) {
	env := newEnv(t)
	env.login()

	res := env.run("n\n", "account", "delete")
	assert.Equal(t, 1, exitCode(res.err))
	env.mustRun("", "whoami")

	assert.Contains(t, env.mustRun("y\n", "account", "delete"), "Account deleted")
	assert.ErrorIs(t, env.run("", "whoami").err, errNotSignedIn)
}

func TestConfigCommands(t *testing.T) {
	env := newEnv(t)

	env.mustRun("", "config", "set", "page_size", "7")
	assert.Equal(t, "7\n", env.mustRun("", "config", "get", "page_size"))
	assert.Contains(t, env.mustRun("", "config", "list"), "page_size=7")

	assert.Error(t, env.run("", "config", "get", "nope").err)
	assert.Error(t, env.run("", "config", "set", "poll_interval", "often").err)
}

func TestVersion(t *testing.T) {
	env := newEnv(t)
	assert.Contains(t, env.mustRun("", "version"), "lens ")
}

func TestEphemeralLoginIsForgotten(t *testing.T) {
	env := newEnv(t)

	assert.Contains(t, env.mustRun("pw\n", "--ephemeral", "login", "--email", "a@b.com"), "Signed in as ann")
	_, err := os.Stat(filepath.Join(env.dataDir, "session.db"))
	assert.True(t, os.IsNotExist(err))
	assert.ErrorIs(t, env.run("", "whoami").err, errNotSignedIn)
}

package reviews_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/codelens-dev/lens/internal/credstore"
	"github.com/codelens-dev/lens/internal/gateway"
	"github.com/codelens-dev/lens/internal/reviews"
	"github.com/codelens-dev/lens/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const getRoute = "GET /reviews/{id}"

type memSaver struct {
	mu    sync.Mutex
	files map[string][]byte
	err   error
}

func (m *memSaver) Save(name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.files == nil {
		m.files = make(map[string][]byte)
	}
	m.files[name] = data
	return nil
}

func newStore(t *testing.T, opts ...reviews.Option) (*reviews.Store, *testutil.FakeAPI) {
	t.Helper()
	api := testutil.NewFakeAPI(t)
	api.AddUser("ann", "a@b.com", "pw")
	store := credstore.NewMemoryStore()
	require.NoError(t, store.Put(api.IssueToken("a@b.com")))
	client := gateway.New(api.URL(), store)

	opts = append([]reviews.Option{reviews.WithPollInterval(time.Millisecond)}, opts...)
	s := reviews.NewStore(client, opts...)
	t.Cleanup(s.StopPolling)
	return s, api
}

func TestCreateReviewFocusesAndPollsToCompletion(t *testing.T) {
	s, api := newStore(t)
	ctx := context.Background()

	r := s.CreateReview(ctx, gateway.CreateReviewInput{Title: "X", Code: "..."})
	require.NotNil(t, r)
	assert.Equal(t, gateway.ReviewStatusPending, r.Status)
	require.NotEmpty(t, s.Reviews())
	assert.Equal(t, s.Focused().ID, s.Reviews()[0].ID)

	api.ScriptStatuses(r.ID, gateway.ReviewStatusCompleted)
	s.StartPolling(ctx, r.ID, 0)

	assert.False(t, s.Polling())
	assert.Equal(t, 1, api.Calls(getRoute))
	assert.Equal(t, gateway.ReviewStatusCompleted, s.Focused().Status)
	assert.Equal(t, gateway.ReviewStatusCompleted, s.Reviews()[0].Status)
}

func TestCreateReviewFailure(t *testing.T) {
	s, _ := newStore(t)

	r := s.CreateReview(context.Background(), gateway.CreateReviewInput{})
	assert.Nil(t, r)
	assert.Equal(t, "title is required", s.Error(reviews.OpCreate))
	assert.Empty(t, s.Reviews())
	assert.Nil(t, s.Focused())
}

func TestPollingUpdatesUntilDone(t *testing.T) {
	s, api := newStore(t)
	ctx := context.Background()
	r := s.CreateReview(ctx, gateway.CreateReviewInput{Title: "X"})
	require.NotNil(t, r)

	api.ScriptStatuses(r.ID,
		gateway.ReviewStatusPending,
		gateway.ReviewStatusProcessing,
		gateway.ReviewStatusFailed)
	s.StartPolling(ctx, r.ID, 0)

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, s.WaitPolling(waitCtx))
	assert.Equal(t, 3, api.Calls(getRoute))
	assert.Equal(t, gateway.ReviewStatusFailed, s.Focused().Status)
}

func TestDeleteFocusedReviewStopsPolling(t *testing.T) {
	s, api := newStore(t, reviews.WithPollInterval(time.Hour))
	ctx := context.Background()
	r := s.CreateReview(ctx, gateway.CreateReviewInput{Title: "X"})
	require.NotNil(t, r)

	api.ScriptStatuses(r.ID, gateway.ReviewStatusPending)
	s.StartPolling(ctx, r.ID, 0)
	require.True(t, s.Polling())

	require.True(t, s.DeleteReview(ctx, r.ID))
	assert.False(t, s.Polling())
	assert.Nil(t, s.Focused())
	assert.Empty(t, s.Reviews())
}

func TestDeleteOtherReviewKeepsFocus(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	first := s.CreateReview(ctx, gateway.CreateReviewInput{Title: "first"})
	second := s.CreateReview(ctx, gateway.CreateReviewInput{Title: "second"})
	require.NotNil(t, first)
	require.NotNil(t, second)

	require.True(t, s.DeleteReview(ctx, first.ID))
	require.NotNil(t, s.Focused())
	assert.Equal(t, second.ID, s.Focused().ID)
	require.Len(t, s.Reviews(), 1)
}

func TestDeleteReviewFailure(t *testing.T) {
	s, _ := newStore(t)

	assert.False(t, s.DeleteReview(context.Background(), "missing"))
	assert.Equal(t, "review not found", s.Error(reviews.OpDelete))
}

func TestClearFocusStopsPolling(t *testing.T) {
	s, api := newStore(t, reviews.WithPollInterval(time.Hour))
	ctx := context.Background()
	r := s.CreateReview(ctx, gateway.CreateReviewInput{Title: "X"})
	require.NotNil(t, r)
	api.ScriptStatuses(r.ID, gateway.ReviewStatusPending)
	s.StartPolling(ctx, r.ID, 0)

	s.ClearFocus()
	s.ClearFocus()

	assert.False(t, s.Polling())
	assert.Nil(t, s.Focused())
	assert.Len(t, s.Reviews(), 1, "clearing focus leaves the collection alone")
}

func TestPollFailureIsNotAFieldError(t *testing.T) {
	s, api := newStore(t)
	ctx := context.Background()
	r := s.CreateReview(ctx, gateway.CreateReviewInput{Title: "X"})
	require.NotNil(t, r)
	api.Fail(getRoute, http.StatusInternalServerError, "boom")

	s.StartPolling(ctx, r.ID, 0)

	assert.False(t, s.Polling())
	assert.Empty(t, s.LastError())
	assert.Empty(t, s.Error(reviews.OpFetch))
}

func TestFetchReviewsPagination(t *testing.T) {
	s, api := newStore(t, reviews.WithPageSize(2))
	for _, id := range []string{"r1", "r2", "r3"} {
		api.PutReview(gateway.Review{ID: id, Title: id, Status: gateway.ReviewStatusCompleted})
	}
	ctx := context.Background()

	require.True(t, s.FetchReviews(ctx, 0))
	assert.Equal(t, 1, s.Page())
	assert.Equal(t, 3, s.Total())
	assert.Equal(t, 2, s.TotalPages())
	assert.True(t, s.HasMore())
	assert.Len(t, s.Reviews(), 2)

	require.True(t, s.FetchReviews(ctx, 2))
	assert.Equal(t, 2, s.Page())
	assert.False(t, s.HasMore())
	require.Len(t, s.Reviews(), 1)
	assert.Equal(t, "r1", s.Reviews()[0].ID)
}

func TestFetchReviewsFailureKeepsCollection(t *testing.T) {
	s, api := newStore(t)
	api.PutReview(gateway.Review{ID: "r1", Status: gateway.ReviewStatusPending})
	ctx := context.Background()
	require.True(t, s.FetchReviews(ctx, 1))

	api.Fail("GET /reviews", http.StatusInternalServerError, "")
	assert.False(t, s.FetchReviews(ctx, 1))
	assert.Equal(t, "failed to load reviews", s.Error(reviews.OpFetch))
	assert.Len(t, s.Reviews(), 1)
	assert.False(t, s.Busy())
}

func TestFetchReviewFocuses(t *testing.T) {
	s, api := newStore(t)
	api.PutReview(gateway.Review{ID: "r9", Title: "nine"})
	ctx := context.Background()

	require.True(t, s.FetchReview(ctx, "r9"))
	assert.Equal(t, "nine", s.Focused().Title)

	assert.False(t, s.FetchReview(ctx, "nope"))
	assert.Equal(t, "review not found", s.Error(reviews.OpFetch))
	assert.Equal(t, "r9", s.Focused().ID)
}

func TestConcurrentFetchesOfSameReviewShareOneRequest(t *testing.T) {
	s, api := newStore(t)
	api.PutReview(gateway.Review{ID: "r1", Status: gateway.ReviewStatusCompleted})
	api.Delay(getRoute, 300*time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, s.FetchReview(context.Background(), "r1"))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, api.Calls(getRoute))
}

func TestCancelledFetchDoesNotEndSharedPoll(t *testing.T) {
	s, api := newStore(t, reviews.WithPollInterval(time.Hour))
	api.PutReview(gateway.Review{ID: "r1", Status: gateway.ReviewStatusProcessing})
	api.Delay(getRoute, 300*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	fetched := make(chan bool)
	go func() { fetched <- s.FetchReview(ctx, "r1") }()
	require.Eventually(t, func() bool { return api.Calls(getRoute) == 1 }, time.Second, time.Millisecond)

	started := make(chan struct{})
	go func() {
		defer close(started)
		s.StartPolling(context.Background(), "r1", 30)
	}()
	// Let the poll cycle join the request already on the wire.
	time.Sleep(50 * time.Millisecond)
	cancel()

	assert.False(t, <-fetched)
	<-started
	assert.True(t, s.Polling(), "the poll session must survive the other caller's cancellation")
	assert.Equal(t, 1, api.Calls(getRoute))
}

func TestFetchDuringReanalyzeKeepsNewerCopy(t *testing.T) {
	s, api := newStore(t)
	api.PutReview(gateway.Review{ID: "r1", Status: gateway.ReviewStatusCompleted})
	// The first load answers with the pre-reanalysis status; later loads
	// see the resubmitted review.
	api.ScriptStatuses("r1", gateway.ReviewStatusCompleted, gateway.ReviewStatusPending)
	api.Delay(getRoute, 200*time.Millisecond)
	ctx := context.Background()

	fetched := make(chan bool)
	go func() { fetched <- s.FetchReview(ctx, "r1") }()
	require.Eventually(t, func() bool { return api.Calls(getRoute) == 1 }, time.Second, time.Millisecond)

	require.NotNil(t, s.ReanalyzeReview(ctx, "r1"))
	require.True(t, <-fetched)

	assert.Equal(t, gateway.ReviewStatusPending, s.Focused().Status)
	assert.Equal(t, 2, api.Calls(getRoute))
}

func TestReanalyzeReplacesEntryWithoutPolling(t *testing.T) {
	s, api := newStore(t)
	api.PutReview(gateway.Review{
		ID:     "r1",
		Status: gateway.ReviewStatusCompleted,
		SecurityIssues: []gateway.SecurityIssue{
			{ID: "i1", Severity: gateway.SeverityCritical},
		},
	})
	ctx := context.Background()
	require.True(t, s.FetchReviews(ctx, 1))
	require.True(t, s.FetchReview(ctx, "r1"))

	r := s.ReanalyzeReview(ctx, "r1")
	require.NotNil(t, r)
	assert.Equal(t, gateway.ReviewStatusPending, s.Reviews()[0].Status)
	assert.Equal(t, gateway.ReviewStatusPending, s.Focused().Status)
	assert.False(t, s.Polling())

	assert.Nil(t, s.ReanalyzeReview(ctx, "missing"))
	assert.Equal(t, "review not found", s.Error(reviews.OpReanalyze))
}

func TestStatsFollowMutations(t *testing.T) {
	s, api := newStore(t)
	api.PutReview(gateway.Review{
		ID:     "r1",
		Status: gateway.ReviewStatusCompleted,
		SecurityIssues: []gateway.SecurityIssue{
			{Severity: gateway.SeverityCritical},
			{Severity: gateway.SeverityHigh},
			{Severity: gateway.SeverityLow},
		},
	})
	api.PutReview(gateway.Review{
		ID:             "r2",
		Status:         gateway.ReviewStatusCompleted,
		SecurityIssues: []gateway.SecurityIssue{{Severity: gateway.SeverityCritical}},
	})
	api.PutReview(gateway.Review{ID: "r3", Status: gateway.ReviewStatusProcessing})
	api.PutReview(gateway.Review{ID: "r4", Status: gateway.ReviewStatusPending})
	api.PutReview(gateway.Review{ID: "r5", Status: gateway.ReviewStatusFailed})
	ctx := context.Background()
	require.True(t, s.FetchReviews(ctx, 1))

	assert.Equal(t, reviews.Stats{CriticalCount: 2, HighCount: 1, CompletedCount: 2, PendingCount: 2}, s.Stats())

	require.True(t, s.DeleteReview(ctx, "r1"))
	assert.Equal(t, reviews.Stats{CriticalCount: 1, HighCount: 0, CompletedCount: 1, PendingCount: 2}, s.Stats())
}

func TestDownloads(t *testing.T) {
	saver := &memSaver{}
	s, api := newStore(t, reviews.WithSaver(saver))
	api.PutReview(gateway.Review{ID: "r1", Title: "Мой отчёт v2"})
	ctx := context.Background()

	require.True(t, s.DownloadPDF(ctx, "r1", "Мой отчёт v2"))
	require.True(t, s.DownloadMarkdown(ctx, "r1", ""))

	assert.Equal(t, "%PDF-1.4 Мой отчёт v2", string(saver.files["Мой_отчёт_v2_r1.pdf"]))
	assert.Contains(t, saver.files, "review_r1.md")

	assert.False(t, s.DownloadPDF(ctx, "missing", "x"))
	assert.Equal(t, "review not found", s.Error(reviews.OpDownload))

	saver.err = errors.New("disk full")
	assert.False(t, s.DownloadMarkdown(ctx, "r1", "x"))
	assert.Equal(t, "failed to download Markdown", s.Error(reviews.OpDownload))
}

func TestExportFileName(t *testing.T) {
	tests := []struct {
		title, id, ext, want string
	}{
		{"My Review", "r1", ".pdf", "My_Review_r1.pdf"},
		{"", "r2", ".md", "review_r2.md"},
		{"a/b\\c:d", "r3", ".pdf", "a_b_c_d_r3.pdf"},
		{"Ёжик", "r4", ".md", "Ёжик_r4.md"},
		{"naïve", "r5", ".md", "na_ve_r5.md"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, reviews.ExportFileName(tt.title, tt.id, tt.ext))
		})
	}
}

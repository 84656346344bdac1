// Package reviews keeps the client-side view of the user's code reviews:
// the loaded page of reviews, the single focused review, and the poller
// that follows a review while the server works on it.
package reviews

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/codelens-dev/lens/internal/gateway"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Op names a store operation with its own busy flag and error slot.
type Op string

const (
	OpFetch     Op = "fetch"
	OpCreate    Op = "create"
	OpDelete    Op = "delete"
	OpReanalyze Op = "reanalyze"
	OpDownload  Op = "download"
)

const (
	listFailed      = "failed to load reviews"
	notFound        = "review not found"
	createFailed    = "failed to create review"
	deleteFailed    = "failed to delete review"
	reanalyzeFailed = "reanalysis failed"
	pdfFailed       = "failed to download PDF"
	markdownFailed  = "failed to download Markdown"
)

// API is the part of the service the store talks to.
type API interface {
	ListReviews(ctx context.Context, page, pageSize int) (*gateway.ReviewList, error)
	GetReview(ctx context.Context, id string) (*gateway.Review, error)
	CreateReview(ctx context.Context, in gateway.CreateReviewInput) (*gateway.Review, error)
	DeleteReview(ctx context.Context, id string) error
	ReanalyzeReview(ctx context.Context, id string) (*gateway.Review, error)
	DownloadPDF(ctx context.Context, id string) ([]byte, error)
	DownloadMarkdown(ctx context.Context, id string) ([]byte, error)
}

// Saver hands an exported file to the user.
type Saver interface {
	Save(name string, data []byte) error
}

// Stats are aggregates over the currently loaded page only.
type Stats struct {
	CriticalCount  int `json:"critical_count"`
	HighCount      int `json:"high_count"`
	CompletedCount int `json:"completed_count"`
	PendingCount   int `json:"pending_count"`
}

// Store holds the review collection. It is safe for concurrent use.
type Store struct {
	api      API
	saver    Saver
	log      logrus.FieldLogger
	pageSize int
	interval time.Duration
	poller   *Poller
	flight   singleflight.Group

	mu       sync.Mutex
	reviews  []gateway.Review
	focused  *gateway.Review
	total    int
	page     int
	inflight int
	busy     map[Op]int
	errs     map[Op]string
	lastErr  string
	// gens counts completed reanalyses per id. A fetch that started
	// before one finished may carry the pre-reanalysis copy.
	gens map[string]uint64
}

type Option func(*Store)

func WithPageSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(s *Store) { s.interval = d }
}

func WithSaver(saver Saver) Option {
	return func(s *Store) { s.saver = saver }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Store) { s.log = log }
}

// NewStore creates an empty store on page 1.
func NewStore(api API, opts ...Option) *Store {
	s := &Store{
		api:      api,
		log:      logrus.StandardLogger(),
		pageSize: 20,
		interval: DefaultPollInterval,
		page:     1,
		busy:     make(map[Op]int),
		errs:     make(map[Op]string),
		gens:     make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.poller = NewPoller(s.pollFetch, s.apply, s.interval, s.log)
	return s
}

func (s *Store) begin(op Op) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight++
	s.busy[op]++
	delete(s.errs, op)
}

func (s *Store) end(op Op) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight--
	s.busy[op]--
	if s.busy[op] == 0 {
		delete(s.busy, op)
	}
}

func (s *Store) fail(op Op, err error, fallback string) {
	msg := gateway.Message(err, fallback)
	s.log.WithError(err).WithField("op", op).Debug("review operation failed")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[op] = msg
	s.lastErr = msg
}

// fetchOne loads a single review. Concurrent loads of the same id share
// one request. The shared request runs detached from every caller, so a
// caller giving up only stops its own wait. A result that may predate a
// reanalysis finished in the meantime is fetched again once; the returned
// generation is the one the kept result started under.
func (s *Store) fetchOne(ctx context.Context, id string) (*gateway.Review, uint64, error) {
	r, gen, err := s.fetchShared(ctx, id)
	if err != nil || s.generation(id) == gen {
		return r, gen, err
	}
	return s.fetchShared(ctx, id)
}

// pollFetch is fetchOne for the poller.
func (s *Store) pollFetch(ctx context.Context, id string) (*gateway.Review, error) {
	r, _, err := s.fetchOne(ctx, id)
	return r, err
}

func (s *Store) fetchShared(ctx context.Context, id string) (*gateway.Review, uint64, error) {
	gen := s.generation(id)
	ch := s.flight.DoChan(id, func() (any, error) {
		return s.api.GetReview(context.WithoutCancel(ctx), id)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, gen, res.Err
		}
		r := *res.Val.(*gateway.Review)
		return &r, gen, nil
	case <-ctx.Done():
		return nil, gen, ctx.Err()
	}
}

func (s *Store) generation(id string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[id]
}

// apply splices r into the collection and the focus wherever its id
// already appears. It never inserts.
func (s *Store) apply(r *gateway.Review) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceLocked(r)
}

func (s *Store) replaceLocked(r *gateway.Review) {
	for i := range s.reviews {
		if s.reviews[i].ID == r.ID {
			s.reviews[i] = *r
			break
		}
	}
	if s.focused != nil && s.focused.ID == r.ID {
		f := *r
		s.focused = &f
	}
}

// FetchReviews loads a page of the collection. page < 1 loads page 1.
func (s *Store) FetchReviews(ctx context.Context, page int) bool {
	if page < 1 {
		page = 1
	}
	s.begin(OpFetch)
	defer s.end(OpFetch)

	list, err := s.api.ListReviews(ctx, page, s.pageSize)
	if err != nil {
		s.fail(OpFetch, err, listFailed)
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reviews = list.Reviews
	if s.reviews == nil {
		s.reviews = []gateway.Review{}
	}
	s.total = list.Total
	s.page = list.Page
	return true
}

// FetchReview loads one review into the focus.
func (s *Store) FetchReview(ctx context.Context, id string) bool {
	s.begin(OpFetch)
	defer s.end(OpFetch)

	for {
		r, gen, err := s.fetchOne(ctx, id)
		if err != nil {
			s.fail(OpFetch, err, notFound)
			return false
		}

		s.mu.Lock()
		if s.gens[id] != gen {
			// Reanalyzed while loading; the copy may be stale.
			s.mu.Unlock()
			continue
		}
		s.focused = r
		s.mu.Unlock()
		return true
	}
}

// CreateReview submits code for review. The new review goes to the front
// of the collection and becomes the focus.
func (s *Store) CreateReview(ctx context.Context, in gateway.CreateReviewInput) *gateway.Review {
	s.begin(OpCreate)
	defer s.end(OpCreate)

	r, err := s.api.CreateReview(ctx, in)
	if err != nil {
		s.log.WithError(err).Error("failed to create review")
		s.fail(OpCreate, err, createFailed)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reviews = append([]gateway.Review{*r}, s.reviews...)
	f := *r
	s.focused = &f
	out := *r
	return &out
}

// DeleteReview deletes a review and removes it locally. If it was focused
// or being polled, polling stops before the focus is cleared.
func (s *Store) DeleteReview(ctx context.Context, id string) bool {
	s.begin(OpDelete)
	defer s.end(OpDelete)

	if err := s.api.DeleteReview(ctx, id); err != nil {
		s.fail(OpDelete, err, deleteFailed)
		return false
	}

	s.mu.Lock()
	focused := s.focused != nil && s.focused.ID == id
	s.mu.Unlock()
	if target, _, polling := s.poller.Target(); focused || (polling && target == id) {
		s.poller.Stop()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.reviews[:0]
	for _, r := range s.reviews {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	s.reviews = kept
	if s.focused != nil && s.focused.ID == id {
		s.focused = nil
	}
	return true
}

// ReanalyzeReview resubmits a review. It does not start polling.
func (s *Store) ReanalyzeReview(ctx context.Context, id string) *gateway.Review {
	s.begin(OpReanalyze)
	defer s.end(OpReanalyze)

	r, err := s.api.ReanalyzeReview(ctx, id)
	if err != nil {
		s.fail(OpReanalyze, err, reanalyzeFailed)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.gens[id]++
	s.flight.Forget(id)
	s.replaceLocked(r)
	out := *r
	return &out
}

// StartPolling follows review id until it settles. See Poller.Start.
func (s *Store) StartPolling(ctx context.Context, id string, maxAttempts int) {
	s.poller.Start(ctx, id, maxAttempts)
}

// StopPolling cancels any active polling. Idempotent.
func (s *Store) StopPolling() {
	s.poller.Stop()
}

// WaitPolling blocks until polling ends or ctx is done.
func (s *Store) WaitPolling(ctx context.Context) error {
	return s.poller.Wait(ctx)
}

// PollAttempts is Poller.Attempts.
func (s *Store) PollAttempts() int {
	return s.poller.Attempts()
}

func (s *Store) Polling() bool {
	return s.poller.Polling()
}

// ClearFocus stops polling and then drops the focused review.
func (s *Store) ClearFocus() {
	s.poller.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.focused = nil
}

// DownloadPDF saves the PDF export of a review.
func (s *Store) DownloadPDF(ctx context.Context, id, title string) bool {
	return s.download(ctx, id, title, ".pdf", s.api.DownloadPDF, pdfFailed)
}

// DownloadMarkdown saves the Markdown export of a review.
func (s *Store) DownloadMarkdown(ctx context.Context, id, title string) bool {
	return s.download(ctx, id, title, ".md", s.api.DownloadMarkdown, markdownFailed)
}

func (s *Store) download(ctx context.Context, id, title, ext string, get func(context.Context, string) ([]byte, error), fallback string) bool {
	s.begin(OpDownload)
	defer s.end(OpDownload)

	data, err := get(ctx, id)
	if err != nil {
		s.fail(OpDownload, err, fallback)
		return false
	}
	if s.saver == nil {
		s.log.Warn("no saver configured, dropping export")
		s.fail(OpDownload, nil, fallback)
		return false
	}
	if err := s.saver.Save(ExportFileName(title, id, ext), data); err != nil {
		s.fail(OpDownload, err, fallback)
		return false
	}
	return true
}

// ExportFileName builds "<title>_<id><ext>" with every character of the
// title outside Latin/Cyrillic letters and digits replaced by "_". An empty
// title becomes "review".
func ExportFileName(title, id, ext string) string {
	if title == "" {
		title = "review"
	}
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == 'ё' || r == 'Ё' || (r >= 'а' && r <= 'я') || (r >= 'А' && r <= 'Я'):
			return r
		}
		return '_'
	}, title)
	return safe + "_" + id + ext
}

package reviews

import "github.com/codelens-dev/lens/internal/gateway"

// Reviews returns a copy of the loaded page.
func (s *Store) Reviews() []gateway.Review {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]gateway.Review(nil), s.reviews...)
}

// Focused returns a copy of the focused review, or nil.
func (s *Store) Focused() *gateway.Review {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.focused == nil {
		return nil
	}
	f := *s.focused
	return &f
}

func (s *Store) Page() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

func (s *Store) PageSize() int {
	return s.pageSize
}

func (s *Store) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// TotalPages is ceil(total / pageSize).
func (s *Store) TotalPages() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (s.total + s.pageSize - 1) / s.pageSize
}

// HasMore reports whether pages remain after the current one.
func (s *Store) HasMore() bool {
	return s.Page() < s.TotalPages()
}

// Stats recomputes the aggregates for the loaded page.
func (s *Store) Stats() Stats {
	return ComputeStats(s.Reviews())
}

// ComputeStats counts critical and high findings and the completed and
// in-progress reviews in rs.
func ComputeStats(rs []gateway.Review) Stats {
	var st Stats
	for _, r := range rs {
		for _, issue := range r.SecurityIssues {
			switch issue.Severity {
			case gateway.SeverityCritical:
				st.CriticalCount++
			case gateway.SeverityHigh:
				st.HighCount++
			}
		}
		switch {
		case r.Status == gateway.ReviewStatusCompleted:
			st.CompletedCount++
		case r.Status.InProgress():
			st.PendingCount++
		}
	}
	return st
}

// Busy reports whether any operation is in flight. Polling is tracked
// separately by Polling.
func (s *Store) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight > 0
}

// BusyOp reports whether op is in flight.
func (s *Store) BusyOp(op Op) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy[op] > 0
}

// Error returns the message from op's last failure, or "".
func (s *Store) Error(op Op) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errs[op]
}

// LastError returns the most recent failure message of any operation.
func (s *Store) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"ResourceCurator/internal/domain"
	"ResourceCurator/internal/ports"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeStore struct {
	doc        domain.ResourceDocument
	fetchErr   error
	publishErr error
	published  []domain.ResourceDocument
	days       []time.Time
}

func (s *fakeStore) Fetch(context.Context) (domain.ResourceDocument, error) {
	return s.doc, s.fetchErr
}

func (s *fakeStore) Publish(_ context.Context, doc domain.ResourceDocument, day time.Time) error {
	if s.publishErr != nil {
		return s.publishErr
	}
	s.published = append(s.published, doc)
	s.days = append(s.days, day)
	return nil
}

type fakeGenerator struct {
	doc domain.ResourceDocument
	err error
}

func (g fakeGenerator) Generate(context.Context) (domain.ResourceDocument, error) {
	return g.doc, g.err
}

type fakeLinks struct{ warnings []string }

func (l fakeLinks) Check(context.Context, []domain.Resource) []string { return l.warnings }

type fakeRuns struct{ saved []domain.CycleRun }

func (r *fakeRuns) SaveRun(_ context.Context, run domain.CycleRun) error {
	r.saved = append(r.saved, run)
	return nil
}

func (r *fakeRuns) RecentRuns(context.Context, int) ([]domain.CycleRun, error) { return r.saved, nil }

type fakeNotifier struct{ digests []string }

func (n *fakeNotifier) PublishDigest(_ context.Context, digest string) error {
	n.digests = append(n.digests, digest)
	return nil
}

type fakeTracker struct {
	mu        sync.Mutex
	issues    map[int]domain.Issue
	labelled  map[int][]string
	comments  map[int][]string
	ensured   []string
	created   []domain.Issue
	bodies    map[int]string
	listCalls int

	// events records tracker writes in order, shared with a recordingLock.
	events *[]string
}

func newFakeTracker(issues ...domain.Issue) *fakeTracker {
	t := &fakeTracker{issues: map[int]domain.Issue{}, labelled: map[int][]string{}, comments: map[int][]string{}, bodies: map[int]string{}}
	for _, issue := range issues {
		t.issues[issue.Number] = issue
	}
	return t
}

func (t *fakeTracker) ListOpenIssues(context.Context) ([]domain.Issue, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listCalls++
	out := make([]domain.Issue, 0, len(t.issues))
	for _, issue := range t.issues {
		out = append(out, issue)
	}
	slices.SortFunc(out, func(a, b domain.Issue) int { return a.Number - b.Number })
	return out, nil
}

func (t *fakeTracker) GetIssue(_ context.Context, number int) (domain.Issue, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.issues[number], nil
}

func (t *fakeTracker) SetLabels(_ context.Context, number int, labels []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.labelled[number] = slices.Clone(labels)
	old := t.issues[number]
	updated := domain.NewIssue(number, old.NodeID, old.Title, old.CreatedAt, slices.Clone(labels))
	updated.Body, updated.URL, updated.Author = old.Body, old.URL, old.Author
	t.issues[number] = updated
	t.record(fmt.Sprintf("set #%d", number))
	return nil
}

func (t *fakeTracker) CreateIssue(_ context.Context, title, body string, labels []string) (domain.Issue, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	number := 1000 + len(t.created)
	issue := domain.NewIssue(number, "", title, time.Time{}, labels)
	issue.Body = body
	t.created = append(t.created, issue)
	return issue, nil
}

func (t *fakeTracker) SetBody(_ context.Context, number int, body string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bodies[number] = body
	return nil
}

func (t *fakeTracker) record(event string) {
	if t.events != nil {
		*t.events = append(*t.events, event)
	}
}

// recordingLock is a mutex that logs its transitions into the tracker's event list.
type recordingLock struct {
	mu     sync.Mutex
	events *[]string
}

func (l *recordingLock) Lock() {
	l.mu.Lock()
	*l.events = append(*l.events, "lock")
}

func (l *recordingLock) Unlock() {
	*l.events = append(*l.events, "unlock")
	l.mu.Unlock()
}

type fakeReviewer struct {
	review domain.Review
	err    error
	seen   []domain.Issue
}

func (r *fakeReviewer) Review(_ context.Context, issue domain.Issue) (domain.Review, error) {
	r.seen = append(r.seen, issue)
	return r.review, r.err
}

func (t *fakeTracker) AddComment(_ context.Context, number int, body string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.comments[number] = append(t.comments[number], body)
	return nil
}

func (t *fakeTracker) EnsureLabel(_ context.Context, name, _, _ string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ensured = append(t.ensured, name)
	return nil
}

type fakeBoard struct {
	lanes   map[int]domain.Lane
	missing domain.Lane
	hasGap  bool
}

func (b *fakeBoard) SetLane(_ context.Context, issue domain.Issue, lane domain.Lane) error {
	if b.hasGap && lane == b.missing {
		return ports.ErrLaneUnavailable
	}
	b.lanes[issue.Number] = lane
	return nil
}

var (
	_ ports.ResourceStore     = (*fakeStore)(nil)
	_ ports.ResourceGenerator = fakeGenerator{}
	_ ports.LinkChecker       = fakeLinks{}
	_ ports.RunRepository     = (*fakeRuns)(nil)
	_ ports.Notifier          = (*fakeNotifier)(nil)
	_ ports.IssueTracker      = (*fakeTracker)(nil)
	_ ports.IssueReviewer     = (*fakeReviewer)(nil)
	_ ports.LaneBoard         = (*fakeBoard)(nil)
)

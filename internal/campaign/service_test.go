package campaign

import (
	"context"
	"sync"
	"testing"

	"github.com/ignite/repguard/internal/domain"
)

// mockRepo is an in-memory repository for testing.
type mockRepo struct {
	mu        sync.Mutex
	campaigns map[string]*domain.Campaign
	pending   map[string][]string // campaign id -> unattempted recipients
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		campaigns: make(map[string]*domain.Campaign),
		pending:   make(map[string][]string),
	}
}

func (m *mockRepo) Get(_ context.Context, id string) (*domain.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockRepo) List(_ context.Context, f ListFilter) ([]domain.Campaign, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Campaign
	for _, c := range m.campaigns {
		if f.Status != "" && string(c.Status) != f.Status {
			continue
		}
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (m *mockRepo) UpdateStatus(_ context.Context, c *domain.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.campaigns[c.ID]
	if !ok {
		return ErrNotFound
	}
	stored.Status = c.Status
	stored.StartedAt = c.StartedAt
	stored.CompletedAt = c.CompletedAt
	stored.UpdatedAt = c.UpdatedAt
	return nil
}

func (m *mockRepo) IncrementCounters(_ context.Context, id string, sentDelta, failedDelta int) (*domain.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, ErrNotFound
	}
	c.TotalSent += sentDelta
	c.TotalFailed += failedDelta
	cp := *c
	return &cp, nil
}

func (m *mockRepo) PendingRecipients(_ context.Context, id string, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.pending[id]
	if len(p) > limit {
		p = p[:limit]
	}
	return append([]string(nil), p...), nil
}

func (m *mockRepo) MarkAttempted(_ context.Context, id, email string, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.pending[id]
	for i, e := range p {
		if e == email {
			m.pending[id] = append(p[:i:i], p[i+1:]...)
			break
		}
	}
	return nil
}

type captureBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *captureBus) Publish(e domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

func (b *captureBus) types() []domain.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.EventType
	for _, e := range b.events {
		out = append(out, e.Type)
	}
	return out
}

func seedCampaign(repo *mockRepo, id string, status domain.CampaignStatus, recipients []string) {
	repo.campaigns[id] = &domain.Campaign{
		ID: id, DomainID: "d1", Name: "test",
		Status: status, RecipientCount: len(recipients),
	}
	repo.pending[id] = append([]string(nil), recipients...)
}

func TestLifecycleTransitions(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, nil, Options{})
	ctx := context.Background()
	seedCampaign(repo, "c1", domain.CampaignDraft, []string{"a@x.com"})

	c, err := svc.Start(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if c.Status != domain.CampaignSending || c.StartedAt == nil {
		t.Fatalf("after start: %+v", c)
	}

	if c, err = svc.Pause(ctx, "c1"); err != nil || c.Status != domain.CampaignPaused {
		t.Fatalf("pause: %v %+v", err, c)
	}
	if c, err = svc.Resume(ctx, "c1"); err != nil || c.Status != domain.CampaignSending {
		t.Fatalf("resume: %v %+v", err, c)
	}
	if c, err = svc.Stop(ctx, "c1"); err != nil || c.Status != domain.CampaignCancelled {
		t.Fatalf("stop: %v %+v", err, c)
	}
}

func TestInvalidTransitions(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, nil, Options{})
	ctx := context.Background()

	seedCampaign(repo, "c1", domain.CampaignDraft, nil)
	if _, err := svc.Pause(ctx, "c1"); err == nil {
		t.Error("pause from draft must fail")
	}
	if _, err := svc.Resume(ctx, "c1"); err == nil {
		t.Error("resume from draft must fail")
	}

	seedCampaign(repo, "c2", domain.CampaignCompleted, nil)
	if _, err := svc.Start(ctx, "c2"); err == nil {
		t.Error("terminal campaigns are immutable")
	}
	if _, err := svc.Stop(ctx, "c2"); err == nil {
		t.Error("stop on a terminal campaign must fail")
	}
}

func TestRecordResultAutoCompletes(t *testing.T) {
	repo := newMockRepo()
	bus := &captureBus{}
	svc := NewService(repo, bus, Options{})
	ctx := context.Background()
	seedCampaign(repo, "c1", domain.CampaignDraft, []string{"a@x.com", "b@x.com"})

	if _, err := svc.Start(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.RecordResult(ctx, "c1", "a@x.com", true); err != nil {
		t.Fatal(err)
	}
	c, err := svc.RecordResult(ctx, "c1", "b@x.com", false)
	if err != nil {
		t.Fatal(err)
	}
	if c.Status != domain.CampaignCompleted {
		t.Errorf("status = %s, want completed", c.Status)
	}
	if c.TotalSent != 1 || c.TotalFailed != 1 {
		t.Errorf("counters = %d/%d", c.TotalSent, c.TotalFailed)
	}
	types := bus.types()
	if len(types) != 1 || types[0] != domain.EventCampaignCompleted {
		t.Errorf("events = %v", types)
	}
}

func TestRecordResultAbortsOnFailureRate(t *testing.T) {
	repo := newMockRepo()
	bus := &captureBus{}
	svc := NewService(repo, bus, Options{AbortFailurePct: 50, AbortMinAttempts: 4})
	ctx := context.Background()

	recipients := make([]string, 100)
	for i := range recipients {
		recipients[i] = string(rune('a'+i%26)) + "@x.com"
	}
	seedCampaign(repo, "c1", domain.CampaignDraft, recipients)

	if _, err := svc.Start(ctx, "c1"); err != nil {
		t.Fatal(err)
	}

	var c *domain.Campaign
	var err error
	// One success then failures until the abort trips.
	if c, err = svc.RecordResult(ctx, "c1", "r0", true); err != nil {
		t.Fatal(err)
	}
	for i := 0; c.Status == domain.CampaignSending && i < 10; i++ {
		if c, err = svc.RecordResult(ctx, "c1", "r-fail", false); err != nil {
			t.Fatal(err)
		}
	}

	if c.Status != domain.CampaignFailed {
		t.Fatalf("status = %s, want failed", c.Status)
	}
	types := bus.types()
	if len(types) != 1 || types[0] != domain.EventCampaignFailed {
		t.Errorf("events = %v", types)
	}
}

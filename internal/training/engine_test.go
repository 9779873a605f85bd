package training

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ignite/repguard/internal/domain"
	"github.com/ignite/repguard/internal/pkg/distlock"
)

// mockRepo is an in-memory repository for testing.
type mockRepo struct {
	mu      sync.Mutex
	domains map[string]*domain.Domain
	configs map[string]*domain.TrainingConfig
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		domains: make(map[string]*domain.Domain),
		configs: make(map[string]*domain.TrainingConfig),
	}
}

func (m *mockRepo) GetDomain(_ context.Context, id string) (*domain.Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.domains[id]
	if !ok {
		return nil, ErrDomainNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *mockRepo) ListDomains(_ context.Context) ([]domain.Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Domain
	for _, d := range m.domains {
		out = append(out, *d)
	}
	return out, nil
}

func (m *mockRepo) ListDomainsByUser(_ context.Context, userID string) ([]domain.Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Domain
	for _, d := range m.domains {
		if d.UserID == userID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (m *mockRepo) UpdateDomainTraining(_ context.Context, d *domain.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.domains[d.ID] = &cp
	return nil
}

func (m *mockRepo) GetConfig(_ context.Context, domainID string) (*domain.TrainingConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.configs[domainID]
	if !ok {
		return nil, ErrConfigNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockRepo) SaveConfig(_ context.Context, c *domain.TrainingConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.configs[c.DomainID] = &cp
	return nil
}

func (m *mockRepo) ListConfigs(_ context.Context) ([]domain.TrainingConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.TrainingConfig
	for _, c := range m.configs {
		out = append(out, *c)
	}
	return out, nil
}

// mockRates returns fixed counts per domain name.
type mockRates struct {
	counts map[string]domain.MetricCounts
	errs   map[string]error
}

func (m *mockRates) WindowRates(_ context.Context, name string, hours int) (domain.ReputationRates, error) {
	if err := m.errs[name]; err != nil {
		return domain.ReputationRates{}, err
	}
	c := m.counts[name]
	r := domain.ReputationRates{WindowHours: hours, Sent: c.Sent, Delivered: c.Delivered,
		HardBounced: c.HardBounced, SoftBounced: c.SoftBounced, Complaints: c.Complaints}
	if c.Sent > 0 {
		r.BounceRate = float64(c.HardBounced+c.SoftBounced) / float64(c.Sent)
		r.DeliveryRate = float64(c.Delivered) / float64(c.Sent)
	}
	if c.Delivered > 0 {
		r.ComplaintRate = float64(c.Complaints) / float64(c.Delivered)
	}
	return r, nil
}

// fakeLocks hands out locks that fail to acquire for busy keys.
type fakeLocks struct {
	mu   sync.Mutex
	busy map[string]bool
}

func newFakeLocks() *fakeLocks { return &fakeLocks{busy: make(map[string]bool)} }

func (f *fakeLocks) For(key string) distlock.DistLock { return &fakeLock{f: f, key: key} }

type fakeLock struct {
	f   *fakeLocks
	key string
}

func (l *fakeLock) Acquire(context.Context) (bool, error) {
	l.f.mu.Lock()
	defer l.f.mu.Unlock()
	if l.f.busy[l.key] {
		return false, nil
	}
	l.f.busy[l.key] = true
	return true, nil
}

func (l *fakeLock) Release(context.Context) error {
	l.f.mu.Lock()
	defer l.f.mu.Unlock()
	delete(l.f.busy, l.key)
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

func testOptions() Options {
	return Options{
		StageCaps:            []int{50, 100, 250, 500, 1000},
		LookbackHours:        24,
		AdvanceBouncePct:     2.0,
		AdvanceComplaintPct:  0.5,
		RollbackBouncePct:    2.0,
		RollbackComplaintPct: 0.5,
		MinDwellHours:        24,
	}
}

func seedDomain(repo *mockRepo, id, name string, mode domain.TrainingMode, stage, rate, maxRate int, trainedAgo time.Duration) {
	trained := time.Now().UTC().Add(-trainedAgo)
	repo.domains[id] = &domain.Domain{
		ID: id, UserID: "u1", Name: name,
		MaxMsgRate: maxRate, EffectiveRate: rate,
		TrainingMode: mode, TrainingStage: stage,
		LastTrainedAt: &trained,
		CreatedAt:     time.Now().UTC().Add(-30 * 24 * time.Hour),
	}
}

func TestAutomaticAdvance(t *testing.T) {
	repo := newMockRepo()
	seedDomain(repo, "d1", "mail.sender.io", domain.TrainingAutomatic, 0, 50, 50000, 48*time.Hour)
	rates := &mockRates{counts: map[string]domain.MetricCounts{
		"mail.sender.io": {Sent: 1000, Delivered: 980, HardBounced: 5, Complaints: 1},
	}}
	bus := &captureBus{}
	e := NewEngine(repo, rates, newFakeLocks(), bus, testOptions())

	dec, err := e.AnalyzeDomain(context.Background(), "d1")
	if err != nil {
		t.Fatal(err)
	}
	if dec.Action != ActionAdvance || !dec.Applied {
		t.Fatalf("decision = %+v", dec)
	}
	if dec.ToStage != 1 || dec.ToRate != 100 {
		t.Errorf("advanced to stage %d cap %d, want stage 1 cap 100", dec.ToStage, dec.ToRate)
	}

	d, _ := repo.GetDomain(context.Background(), "d1")
	if d.TrainingStage != 1 || d.EffectiveRate != 100 {
		t.Errorf("domain = stage %d rate %d", d.TrainingStage, d.EffectiveRate)
	}
	if len(bus.events) != 1 || bus.events[0].Type != domain.EventStageAdvanced {
		t.Errorf("events = %+v", bus.events)
	}
}

func TestRollbackIgnoresDwell(t *testing.T) {
	repo := newMockRepo()
	// Trained five minutes ago, far inside the dwell window.
	seedDomain(repo, "d1", "mail.sender.io", domain.TrainingAutomatic, 1, 100, 50000, 5*time.Minute)
	rates := &mockRates{counts: map[string]domain.MetricCounts{
		"mail.sender.io": {Sent: 500, Delivered: 480, HardBounced: 20},
	}}
	bus := &captureBus{}
	e := NewEngine(repo, rates, newFakeLocks(), bus, testOptions())

	dec, err := e.AnalyzeDomain(context.Background(), "d1")
	if err != nil {
		t.Fatal(err)
	}
	if dec.Action != ActionRollback || !dec.Applied {
		t.Fatalf("decision = %+v", dec)
	}
	if dec.ToStage != 0 || dec.ToRate != 50 {
		t.Errorf("rolled back to stage %d cap %d, want stage 0 cap 50", dec.ToStage, dec.ToRate)
	}
	if dec.ToRate > dec.FromRate {
		t.Error("rollback must never raise the rate")
	}
	if len(bus.events) != 1 || bus.events[0].Type != domain.EventStageRolledBack {
		t.Errorf("events = %+v", bus.events)
	}
}

func TestRollbackAtFloorStaysAtFloor(t *testing.T) {
	repo := newMockRepo()
	seedDomain(repo, "d1", "mail.sender.io", domain.TrainingAutomatic, 0, 50, 50000, time.Hour)
	rates := &mockRates{counts: map[string]domain.MetricCounts{
		"mail.sender.io": {Sent: 100, Delivered: 80, HardBounced: 20},
	}}
	e := NewEngine(repo, rates, newFakeLocks(), nil, testOptions())

	dec, err := e.AnalyzeDomain(context.Background(), "d1")
	if err != nil {
		t.Fatal(err)
	}
	if dec.ToStage != 0 || dec.ToRate > 50 {
		t.Errorf("decision = %+v", dec)
	}
}

func TestDwellBlocksAdvance(t *testing.T) {
	repo := newMockRepo()
	seedDomain(repo, "d1", "mail.sender.io", domain.TrainingAutomatic, 0, 50, 50000, time.Hour)
	rates := &mockRates{counts: map[string]domain.MetricCounts{
		"mail.sender.io": {Sent: 1000, Delivered: 995},
	}}
	e := NewEngine(repo, rates, newFakeLocks(), nil, testOptions())

	dec, err := e.AnalyzeDomain(context.Background(), "d1")
	if err != nil {
		t.Fatal(err)
	}
	if dec.Action != ActionHold {
		t.Errorf("decision = %+v, want hold under dwell", dec)
	}
}

func TestNoTrafficHolds(t *testing.T) {
	repo := newMockRepo()
	seedDomain(repo, "d1", "mail.sender.io", domain.TrainingAutomatic, 0, 50, 50000, 48*time.Hour)
	e := NewEngine(repo, &mockRates{counts: map[string]domain.MetricCounts{}}, newFakeLocks(), nil, testOptions())

	dec, err := e.AnalyzeDomain(context.Background(), "d1")
	if err != nil {
		t.Fatal(err)
	}
	if dec.Action != ActionHold {
		t.Errorf("zero traffic must hold, got %+v", dec)
	}
}

func TestAdvanceClampsToMaxMsgRate(t *testing.T) {
	repo := newMockRepo()
	// Provider cap below the next stage cap of 250.
	seedDomain(repo, "d1", "mail.sender.io", domain.TrainingAutomatic, 1, 100, 200, 48*time.Hour)
	rates := &mockRates{counts: map[string]domain.MetricCounts{
		"mail.sender.io": {Sent: 1000, Delivered: 995},
	}}
	e := NewEngine(repo, rates, newFakeLocks(), nil, testOptions())

	dec, err := e.AnalyzeDomain(context.Background(), "d1")
	if err != nil {
		t.Fatal(err)
	}
	if dec.ToRate != 200 {
		t.Errorf("rate = %d, want clamp to 200", dec.ToRate)
	}
	d, _ := repo.GetDomain(context.Background(), "d1")
	if d.EffectiveRate > d.MaxMsgRate {
		t.Errorf("effective rate %d exceeds max %d", d.EffectiveRate, d.MaxMsgRate)
	}
}

func TestManualModeRecommendsThenApplies(t *testing.T) {
	repo := newMockRepo()
	seedDomain(repo, "d1", "mail.sender.io", domain.TrainingManual, 0, 50, 50000, 48*time.Hour)
	rates := &mockRates{counts: map[string]domain.MetricCounts{
		"mail.sender.io": {Sent: 1000, Delivered: 995},
	}}
	bus := &captureBus{}
	e := NewEngine(repo, rates, newFakeLocks(), bus, testOptions())
	ctx := context.Background()

	dec, err := e.AnalyzeDomain(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if dec.Action != ActionAdvance || dec.Applied {
		t.Fatalf("manual mode must recommend without applying: %+v", dec)
	}

	d, _ := repo.GetDomain(ctx, "d1")
	if d.TrainingStage != 0 || d.EffectiveRate != 50 {
		t.Fatalf("domain mutated before apply: stage %d rate %d", d.TrainingStage, d.EffectiveRate)
	}

	status, err := e.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if status[0].Pending == nil {
		t.Fatal("status should expose the pending recommendation")
	}

	applied, err := e.ApplyConfig(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if !applied.Changed || applied.AppliedRate != 100 || applied.Stage != 1 {
		t.Errorf("applied = %+v", applied)
	}
	if len(bus.events) != 1 {
		t.Errorf("events = %+v", bus.events)
	}
}

func TestBatchRunIsolatesFailures(t *testing.T) {
	repo := newMockRepo()
	seedDomain(repo, "d1", "good.io", domain.TrainingAutomatic, 0, 50, 50000, 48*time.Hour)
	seedDomain(repo, "d2", "broken.io", domain.TrainingAutomatic, 0, 50, 50000, 48*time.Hour)
	rates := &mockRates{
		counts: map[string]domain.MetricCounts{"good.io": {Sent: 1000, Delivered: 995}},
		errs:   map[string]error{"broken.io": fmt.Errorf("metrics store down")},
	}
	e := NewEngine(repo, rates, newFakeLocks(), nil, testOptions())

	report, err := e.RunSystem(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Domains != 2 {
		t.Errorf("domains = %d", report.Domains)
	}
	if report.Advanced != 1 {
		t.Errorf("advanced = %d, want 1", report.Advanced)
	}
	if len(report.Errors) != 1 || report.Errors["broken.io"] == "" {
		t.Errorf("errors = %v", report.Errors)
	}
}

func TestAnalysisSerializedPerDomain(t *testing.T) {
	repo := newMockRepo()
	seedDomain(repo, "d1", "mail.sender.io", domain.TrainingAutomatic, 0, 50, 50000, 48*time.Hour)
	locks := newFakeLocks()
	e := NewEngine(repo, &mockRates{counts: map[string]domain.MetricCounts{}}, locks, nil, testOptions())

	// Simulate a concurrent analysis holding the lock.
	locks.busy["training:domain:d1"] = true

	_, err := e.AnalyzeDomain(context.Background(), "d1")
	if err != ErrAnalysisInProgress {
		t.Errorf("err = %v, want ErrAnalysisInProgress", err)
	}
}

func TestApplySerializedPerDomain(t *testing.T) {
	repo := newMockRepo()
	seedDomain(repo, "d1", "mail.sender.io", domain.TrainingManual, 0, 50, 50000, 48*time.Hour)
	rates := &mockRates{counts: map[string]domain.MetricCounts{
		"mail.sender.io": {Sent: 1000, Delivered: 995},
	}}
	locks := newFakeLocks()
	e := NewEngine(repo, rates, locks, nil, testOptions())
	ctx := context.Background()

	if _, err := e.AnalyzeDomain(ctx, "d1"); err != nil {
		t.Fatal(err)
	}

	// Simulate a concurrent analysis holding the lock; the apply must
	// not touch the rate while it is held.
	locks.busy["training:domain:d1"] = true
	_, err := e.ApplyConfig(ctx, "d1")
	if err != ErrAnalysisInProgress {
		t.Fatalf("err = %v, want ErrAnalysisInProgress", err)
	}

	d, _ := repo.GetDomain(ctx, "d1")
	if d.TrainingStage != 0 || d.EffectiveRate != 50 {
		t.Errorf("domain mutated without the lock: stage %d rate %d", d.TrainingStage, d.EffectiveRate)
	}

	locks.busy = map[string]bool{}
	applied, err := e.ApplyConfig(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if !applied.Changed || applied.Stage != 1 || applied.AppliedRate != 100 {
		t.Errorf("applied = %+v", applied)
	}
}

func TestConcurrentAppliesConsumeRecommendationOnce(t *testing.T) {
	repo := newMockRepo()
	seedDomain(repo, "d1", "mail.sender.io", domain.TrainingManual, 0, 50, 50000, 48*time.Hour)
	rates := &mockRates{counts: map[string]domain.MetricCounts{
		"mail.sender.io": {Sent: 1000, Delivered: 995},
	}}
	bus := &captureBus{}
	e := NewEngine(repo, rates, newFakeLocks(), bus, testOptions())
	ctx := context.Background()

	if _, err := e.AnalyzeDomain(ctx, "d1"); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	results := make([]*Applied, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = e.ApplyConfig(ctx, "d1")
		}(i)
	}
	wg.Wait()

	changed := 0
	for i := range results {
		if errs[i] != nil {
			// The loser may find the lock held.
			if errs[i] != ErrAnalysisInProgress {
				t.Fatalf("apply %d: %v", i, errs[i])
			}
			continue
		}
		if results[i].Changed {
			changed++
		}
	}
	if changed != 1 {
		t.Fatalf("changed applies = %d, want exactly 1", changed)
	}

	d, _ := repo.GetDomain(ctx, "d1")
	if d.TrainingStage != 1 || d.EffectiveRate != 100 {
		t.Errorf("recommendation applied twice: stage %d rate %d", d.TrainingStage, d.EffectiveRate)
	}
	if len(bus.events) != 1 {
		t.Errorf("stage events = %d, want 1", len(bus.events))
	}
}

func TestRunForUserScopes(t *testing.T) {
	repo := newMockRepo()
	seedDomain(repo, "d1", "a.io", domain.TrainingAutomatic, 0, 50, 50000, 48*time.Hour)
	seedDomain(repo, "d2", "b.io", domain.TrainingAutomatic, 0, 50, 50000, 48*time.Hour)
	repo.domains["d2"].UserID = "other"
	e := NewEngine(repo, &mockRates{counts: map[string]domain.MetricCounts{}}, newFakeLocks(), nil, testOptions())

	report, err := e.RunForUser(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if report.Domains != 1 {
		t.Errorf("domains = %d, want 1", report.Domains)
	}
}

func TestRunObservesCancellation(t *testing.T) {
	repo := newMockRepo()
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("d%d", i)
		seedDomain(repo, id, id+".io", domain.TrainingAutomatic, 0, 50, 50000, 48*time.Hour)
	}
	e := NewEngine(repo, &mockRates{counts: map[string]domain.MetricCounts{}}, newFakeLocks(), nil, testOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := e.RunSystem(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !report.Cancelled {
		t.Error("report should be marked cancelled")
	}
	if len(report.Decisions) != 0 {
		t.Errorf("no domain should have been analyzed, got %d", len(report.Decisions))
	}
}

func TestGetStatistics(t *testing.T) {
	repo := newMockRepo()
	seedDomain(repo, "d1", "a.io", domain.TrainingAutomatic, 2, 250, 50000, 48*time.Hour)
	seedDomain(repo, "d2", "b.io", domain.TrainingManual, 0, 50, 50000, 48*time.Hour)
	e := NewEngine(repo, &mockRates{counts: map[string]domain.MetricCounts{}}, newFakeLocks(), nil, testOptions())

	stats, err := e.GetStatistics(context.Background(), "d1")
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalDomains != 2 || stats.ByStage[2] != 1 || stats.ByMode["manual"] != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.Domain == nil || stats.Domain.StageCap != 250 {
		t.Errorf("domain detail = %+v", stats.Domain)
	}
}

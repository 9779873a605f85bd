package campaign

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ignite/repguard/internal/dispatch"
	"github.com/ignite/repguard/internal/domain"
)

type fakeDomains struct{ d *domain.Domain }

func (f *fakeDomains) GetDomain(context.Context, string) (*domain.Domain, error) {
	return f.d, nil
}

// fakeGate grants a fixed budget and suppresses listed addresses.
type fakeGate struct {
	budget     int
	suppressed map[string]bool
}

func (g *fakeGate) Allow(_ context.Context, _ *domain.Domain, rcpt string) (dispatch.Decision, error) {
	if g.suppressed[rcpt] {
		return dispatch.Decision{Reason: dispatch.ReasonSuppressed}, nil
	}
	if g.budget <= 0 {
		return dispatch.Decision{Reason: dispatch.ReasonRateLimited, RetryAfter: time.Hour}, nil
	}
	g.budget--
	return dispatch.Decision{Granted: true}, nil
}

// fakeSender fails listed addresses and can run a hook per send.
type fakeSender struct {
	failing map[string]bool
	onSend  func(rcpt string)
	sent    []string
}

func (s *fakeSender) Send(_ context.Context, _ *domain.Campaign, rcpt string) error {
	if s.onSend != nil {
		s.onSend(rcpt)
	}
	if s.failing[rcpt] {
		return errors.New("smtp 421")
	}
	s.sent = append(s.sent, rcpt)
	return nil
}

func runnerFixture(recipients []string, gate Gate, sender Sender) (*Runner, *Service, *mockRepo) {
	repo := newMockRepo()
	seedCampaign(repo, "c1", domain.CampaignDraft, recipients)
	svc := NewService(repo, nil, Options{})
	domains := &fakeDomains{d: &domain.Domain{ID: "d1", Name: "mail.sender.io", EffectiveRate: 1000, MaxMsgRate: 1000}}
	return NewRunner(svc, domains, gate, sender, 24*time.Hour), svc, repo
}

func TestRunnerDrainsAndCompletes(t *testing.T) {
	recipients := []string{"a@x.com", "b@x.com", "c@x.com"}
	sender := &fakeSender{}
	runner, svc, _ := runnerFixture(recipients, &fakeGate{budget: 100}, sender)
	ctx := context.Background()

	if _, err := svc.Start(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	res, err := runner.Run(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Sent != 3 || res.Failed != 0 {
		t.Errorf("result = %+v", res)
	}
	if res.Status != domain.CampaignCompleted {
		t.Errorf("status = %s, want completed", res.Status)
	}
	if len(sender.sent) != 3 {
		t.Errorf("sender saw %d sends", len(sender.sent))
	}
}

func TestRunnerSkipsSuppressedWithoutSending(t *testing.T) {
	recipients := []string{"blocked@x.com", "ok@x.com"}
	sender := &fakeSender{}
	gate := &fakeGate{budget: 100, suppressed: map[string]bool{"blocked@x.com": true}}
	runner, svc, _ := runnerFixture(recipients, gate, sender)
	ctx := context.Background()

	if _, err := svc.Start(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	res, err := runner.Run(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Suppressed != 1 || res.Sent != 1 {
		t.Errorf("result = %+v", res)
	}
	for _, rcpt := range sender.sent {
		if rcpt == "blocked@x.com" {
			t.Error("suppressed recipient must never reach the sender")
		}
	}
}

func TestRunnerDefersOnRateBudget(t *testing.T) {
	recipients := []string{"a@x.com", "b@x.com", "c@x.com"}
	runner, svc, repo := runnerFixture(recipients, &fakeGate{budget: 2}, &fakeSender{})
	ctx := context.Background()

	if _, err := svc.Start(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	res, err := runner.Run(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Deferred || res.RetryAfter <= 0 {
		t.Fatalf("result = %+v, want deferred", res)
	}
	if res.Sent != 2 {
		t.Errorf("sent = %d, want 2", res.Sent)
	}

	// The campaign stays sending and the remaining recipient stays pending.
	c, _ := repo.Get(ctx, "c1")
	if c.Status != domain.CampaignSending {
		t.Errorf("status = %s", c.Status)
	}
	pending, _ := repo.PendingRecipients(ctx, "c1", 10)
	if len(pending) != 1 {
		t.Errorf("pending = %v", pending)
	}
}

func TestRunnerObservesStopAtRecipientBoundary(t *testing.T) {
	recipients := []string{"a@x.com", "b@x.com", "c@x.com"}
	repo := newMockRepo()
	seedCampaign(repo, "c1", domain.CampaignDraft, recipients)
	svc := NewService(repo, nil, Options{})
	domains := &fakeDomains{d: &domain.Domain{ID: "d1", Name: "mail.sender.io", EffectiveRate: 1000, MaxMsgRate: 1000}}

	ctx := context.Background()
	sender := &fakeSender{}
	sender.onSend = func(string) {
		// Operator stops the campaign while a send is in flight. The
		// granted send completes; no further recipients are attempted.
		if len(sender.sent) == 0 {
			if _, err := svc.Stop(ctx, "c1"); err != nil {
				t.Error(err)
			}
		}
	}
	runner := NewRunner(svc, domains, &fakeGate{budget: 100}, sender, 24*time.Hour)

	if _, err := svc.Start(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	res, err := runner.Run(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Sent != 1 {
		t.Errorf("sent = %d, want 1 (the in-flight send)", res.Sent)
	}
	if res.Status != domain.CampaignCancelled {
		t.Errorf("status = %s", res.Status)
	}
}

func TestRunnerRejectsNonSendingCampaign(t *testing.T) {
	runner, _, _ := runnerFixture([]string{"a@x.com"}, &fakeGate{budget: 10}, &fakeSender{})
	if _, err := runner.Run(context.Background(), "c1"); err == nil {
		t.Error("running a draft campaign must fail")
	}
}

package bounce

import (
	"context"
	"errors"
	"testing"

	"github.com/ignite/repguard/internal/domain"
)

func validInput() CredentialInput {
	return CredentialInput{
		UserID:   "user-1",
		Protocol: domain.ProtocolIMAP,
		Host:     "mail.example.net",
		Port:     993,
		Username: "bounces@sender.io",
		Secret:   "mailbox-password",
		IsActive: true,
	}
}

func TestCredentialCreateSealsSecret(t *testing.T) {
	repo := newMockRepo()
	box := testBox(t)
	svc := NewCredentialService(repo, box, newFakeDialer())

	cred, err := svc.Create(context.Background(), validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if cred.ID == "" {
		t.Error("expected a generated id")
	}
	if cred.SecretEncrypted == "mailbox-password" {
		t.Error("secret stored in the clear")
	}
	plain, err := box.Open(cred.SecretEncrypted)
	if err != nil {
		t.Fatalf("Open sealed secret: %v", err)
	}
	if plain != "mailbox-password" {
		t.Errorf("round-trip = %q", plain)
	}
}

func TestCredentialValidation(t *testing.T) {
	svc := NewCredentialService(newMockRepo(), testBox(t), newFakeDialer())

	cases := map[string]func(*CredentialInput){
		"bad protocol":   func(in *CredentialInput) { in.Protocol = "smtp" },
		"missing host":   func(in *CredentialInput) { in.Host = " " },
		"port too large": func(in *CredentialInput) { in.Port = 70000 },
		"no username":    func(in *CredentialInput) { in.Username = "" },
		"no secret":      func(in *CredentialInput) { in.Secret = "" },
		"no user":        func(in *CredentialInput) { in.UserID = "" },
	}
	for name, mutate := range cases {
		in := validInput()
		mutate(&in)
		if _, err := svc.Create(context.Background(), in); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}

func TestCredentialSingleDefault(t *testing.T) {
	repo := newMockRepo()
	svc := NewCredentialService(repo, testBox(t), newFakeDialer())
	ctx := context.Background()

	first := validInput()
	first.IsDefault = true
	if _, err := svc.Create(ctx, first); err != nil {
		t.Fatalf("Create default: %v", err)
	}

	second := validInput()
	second.IsDefault = true
	if _, err := svc.Create(ctx, second); !errors.Is(err, ErrDefaultConflict) {
		t.Errorf("second default: got %v, want ErrDefaultConflict", err)
	}

	// Another user's default is unaffected.
	other := validInput()
	other.UserID = "user-2"
	other.IsDefault = true
	if _, err := svc.Create(ctx, other); err != nil {
		t.Errorf("other user's default: %v", err)
	}
}

func TestCredentialDomainScopedNeverDefault(t *testing.T) {
	svc := NewCredentialService(newMockRepo(), testBox(t), newFakeDialer())

	domainID := "dom-1"
	in := validInput()
	in.DomainID = &domainID
	in.IsDefault = true
	if _, err := svc.Create(context.Background(), in); !errors.Is(err, ErrDefaultConflict) {
		t.Errorf("got %v, want ErrDefaultConflict", err)
	}
}

func TestCredentialUpdateKeepsSecretWhenEmpty(t *testing.T) {
	repo := newMockRepo()
	box := testBox(t)
	svc := NewCredentialService(repo, box, newFakeDialer())
	ctx := context.Background()

	cred, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	sealed := cred.SecretEncrypted

	in := validInput()
	in.Secret = ""
	in.Host = "mail2.example.net"
	updated, err := svc.Update(ctx, cred.ID, in)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Host != "mail2.example.net" {
		t.Errorf("Host = %q", updated.Host)
	}
	if updated.SecretEncrypted != sealed {
		t.Error("an empty secret must keep the stored one")
	}

	in.Secret = "rotated-password"
	updated, err = svc.Update(ctx, cred.ID, in)
	if err != nil {
		t.Fatalf("Update with new secret: %v", err)
	}
	plain, err := box.Open(updated.SecretEncrypted)
	if err != nil || plain != "rotated-password" {
		t.Errorf("rotated secret round-trip = %q, %v", plain, err)
	}
}

func TestCredentialDeleteSoleDefaultRejected(t *testing.T) {
	repo := newMockRepo()
	svc := NewCredentialService(repo, testBox(t), newFakeDialer())
	ctx := context.Background()

	in := validInput()
	in.IsDefault = true
	def, err := svc.Create(ctx, in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	// A non-default sibling does not make the default deletable.
	if _, err := svc.Create(ctx, validInput()); err != nil {
		t.Fatalf("Create sibling: %v", err)
	}

	if err := svc.Delete(ctx, def.ID); !errors.Is(err, ErrDefaultConflict) {
		t.Fatalf("Delete sole default: got %v, want ErrDefaultConflict", err)
	}
	if _, err := svc.Get(ctx, def.ID); err != nil {
		t.Error("rejected delete must leave the credential intact")
	}
}

func TestCredentialDeleteNonDefault(t *testing.T) {
	repo := newMockRepo()
	svc := NewCredentialService(repo, testBox(t), newFakeDialer())
	ctx := context.Background()

	cred, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := svc.Delete(ctx, cred.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Get(ctx, cred.ID); !errors.Is(err, ErrCredentialNotFound) {
		t.Errorf("Get after delete: got %v, want ErrCredentialNotFound", err)
	}
}

func TestConnectionHandshakeOnly(t *testing.T) {
	repo := newMockRepo()
	box := testBox(t)
	dialer := newFakeDialer()
	svc := NewCredentialService(repo, box, dialer)
	ctx := context.Background()

	cred, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	mb := &fakeMailbox{messages: []RawMessage{{UID: "m1", Data: []byte(dsnHardMessage)}}}
	dialer.boxes[cred.ID] = mb

	res, err := svc.TestConnection(ctx, cred.ID)
	if err != nil {
		t.Fatalf("TestConnection: %v", err)
	}
	if !res.Success {
		t.Errorf("Success = false: %s", res.Message)
	}
	if mb.fetched {
		t.Error("a connection test must not fetch messages")
	}
	if !mb.closed {
		t.Error("a connection test must close the session")
	}
	if dialer.secrets[cred.ID] != "mailbox-password" {
		t.Errorf("dialed with %q, want the decrypted secret", dialer.secrets[cred.ID])
	}

	got, _ := svc.Get(ctx, cred.ID)
	if got.LastCheckedAt != nil || got.ProcessedCount != 0 {
		t.Error("a connection test must not mutate processed state")
	}
}

func TestConnectionFailure(t *testing.T) {
	repo := newMockRepo()
	dialer := newFakeDialer()
	svc := NewCredentialService(repo, testBox(t), dialer)
	ctx := context.Background()

	cred, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	dialer.dialErr[cred.ID] = errors.New("imap login: authentication failed")

	res, err := svc.TestConnection(ctx, cred.ID)
	if err != nil {
		t.Fatalf("TestConnection: %v", err)
	}
	if res.Success {
		t.Error("expected a failed result")
	}
	if res.Message == "" {
		t.Error("expected the dial error in the message")
	}
}

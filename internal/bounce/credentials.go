package bounce

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/repguard/internal/domain"
	"github.com/ignite/repguard/internal/pkg/secrets"
)

// CredentialService manages bounce mailbox credentials. It owns the
// default-credential invariants:
//
//   - at most one default credential with a nil domain per user
//   - a domain-scoped credential can never be the default
//   - the sole default cannot be deleted
type CredentialService struct {
	repo   Repository
	box    *secrets.Box
	dialer MailboxDialer
}

// NewCredentialService creates a credential service.
func NewCredentialService(repo Repository, box *secrets.Box, dialer MailboxDialer) *CredentialService {
	return &CredentialService{repo: repo, box: box, dialer: dialer}
}

// CredentialInput carries the fields for create and update.
type CredentialInput struct {
	UserID    string                 `json:"user_id"`
	DomainID  *string                `json:"domain_id"`
	Protocol  domain.MailboxProtocol `json:"protocol"`
	Host      string                 `json:"host"`
	Port      int                    `json:"port"`
	Username  string                 `json:"username"`
	Secret    string                 `json:"secret"`
	IsDefault bool                   `json:"is_default"`
	IsActive  bool                   `json:"is_active"`
}

func (in CredentialInput) validate() error {
	switch in.Protocol {
	case domain.ProtocolIMAP, domain.ProtocolPOP3:
	default:
		return fmt.Errorf("protocol must be imap or pop3")
	}
	if strings.TrimSpace(in.Host) == "" {
		return fmt.Errorf("host is required")
	}
	if in.Port <= 0 || in.Port > 65535 {
		return fmt.Errorf("port %d out of range", in.Port)
	}
	if in.Username == "" {
		return fmt.Errorf("username is required")
	}
	return nil
}

// Get returns a credential by id.
func (s *CredentialService) Get(ctx context.Context, id string) (*domain.BounceCredential, error) {
	return s.repo.GetCredential(ctx, id)
}

// List returns a user's credentials; an empty userID returns everyone's.
func (s *CredentialService) List(ctx context.Context, userID string) ([]domain.BounceCredential, error) {
	return s.repo.ListCredentials(ctx, userID)
}

// Create validates and persists a new credential.
func (s *CredentialService) Create(ctx context.Context, in CredentialInput) (*domain.BounceCredential, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if in.UserID == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	if in.Secret == "" {
		return nil, fmt.Errorf("secret is required")
	}
	if err := s.checkDefault(ctx, in.UserID, in.DomainID, in.IsDefault, ""); err != nil {
		return nil, err
	}

	sealed, err := s.box.Seal(in.Secret)
	if err != nil {
		return nil, fmt.Errorf("seal secret: %w", err)
	}

	now := time.Now().UTC()
	cred := &domain.BounceCredential{
		ID:              uuid.NewString(),
		UserID:          in.UserID,
		DomainID:        in.DomainID,
		Protocol:        in.Protocol,
		Host:            in.Host,
		Port:            in.Port,
		Username:        in.Username,
		SecretEncrypted: sealed,
		IsDefault:       in.IsDefault,
		IsActive:        in.IsActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.CreateCredential(ctx, cred); err != nil {
		return nil, err
	}
	return cred, nil
}

// Update modifies an existing credential. An empty Secret keeps the stored
// one.
func (s *CredentialService) Update(ctx context.Context, id string, in CredentialInput) (*domain.BounceCredential, error) {
	cred, err := s.repo.GetCredential(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	if err := s.checkDefault(ctx, cred.UserID, in.DomainID, in.IsDefault, cred.ID); err != nil {
		return nil, err
	}

	cred.DomainID = in.DomainID
	cred.Protocol = in.Protocol
	cred.Host = in.Host
	cred.Port = in.Port
	cred.Username = in.Username
	cred.IsDefault = in.IsDefault
	cred.IsActive = in.IsActive
	cred.UpdatedAt = time.Now().UTC()
	if in.Secret != "" {
		sealed, err := s.box.Seal(in.Secret)
		if err != nil {
			return nil, fmt.Errorf("seal secret: %w", err)
		}
		cred.SecretEncrypted = sealed
	}

	if err := s.repo.UpdateCredential(ctx, cred); err != nil {
		return nil, err
	}
	return cred, nil
}

// Delete removes a credential. Deleting the user's sole account-wide
// default is rejected with ErrDefaultConflict and changes nothing.
func (s *CredentialService) Delete(ctx context.Context, id string) error {
	cred, err := s.repo.GetCredential(ctx, id)
	if err != nil {
		return err
	}
	if cred.IsDefault && cred.DomainID == nil {
		others, err := s.repo.CountDefaults(ctx, cred.UserID, cred.ID)
		if err != nil {
			return err
		}
		if others == 0 {
			return fmt.Errorf("%w: cannot delete the sole default credential", ErrDefaultConflict)
		}
	}
	return s.repo.DeleteCredential(ctx, id)
}

// checkDefault enforces the default-credential invariants for a write.
func (s *CredentialService) checkDefault(ctx context.Context, userID string, domainID *string, isDefault bool, excludeID string) error {
	if !isDefault {
		return nil
	}
	if domainID != nil {
		return fmt.Errorf("%w: a domain-scoped credential cannot be the default", ErrDefaultConflict)
	}
	existing, err := s.repo.CountDefaults(ctx, userID, excludeID)
	if err != nil {
		return err
	}
	if existing > 0 {
		return fmt.Errorf("%w: user already has a default credential", ErrDefaultConflict)
	}
	return nil
}

// TestResult is the structured outcome of a connection test.
type TestResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// TestConnection performs the mailbox handshake only. It fetches nothing
// and mutates no processed state.
func (s *CredentialService) TestConnection(ctx context.Context, id string) (*TestResult, error) {
	cred, err := s.repo.GetCredential(ctx, id)
	if err != nil {
		return nil, err
	}
	secret, err := s.box.Open(cred.SecretEncrypted)
	if err != nil {
		return nil, fmt.Errorf("open credential secret: %w", err)
	}
	mb, err := s.dialer.Dial(ctx, cred, secret)
	if err != nil {
		return &TestResult{Success: false, Message: err.Error()}, nil
	}
	mb.Close()
	return &TestResult{Success: true, Message: "connection ok"}, nil
}

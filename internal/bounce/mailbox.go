package bounce

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/knadh/go-pop3"

	"github.com/ignite/repguard/internal/domain"
)

// RawMessage is one fetched mailbox message.
type RawMessage struct {
	UID        string
	Data       []byte
	ReceivedAt time.Time
}

// Mailbox is an open session against one bounce mailbox.
type Mailbox interface {
	// Fetch returns messages received after since, in mailbox order.
	// Protocols without server-side filtering return everything and rely
	// on the caller's dedup.
	Fetch(ctx context.Context, since time.Time) ([]RawMessage, error)
	Close() error
}

// MailboxDialer opens a session for a credential using its decrypted
// secret.
type MailboxDialer interface {
	Dial(ctx context.Context, cred *domain.BounceCredential, secret string) (Mailbox, error)
}

// Dialer opens mailbox sessions with a connect timeout.
type Dialer struct {
	timeout time.Duration
}

// NewDialer creates a dialer. Every connect and handshake is bounded by
// the given timeout so one stalled mailbox cannot block a worker forever.
func NewDialer(timeout time.Duration) *Dialer {
	return &Dialer{timeout: timeout}
}

// Dial opens a session for the credential using the decrypted secret.
func (d *Dialer) Dial(ctx context.Context, cred *domain.BounceCredential, secret string) (Mailbox, error) {
	switch cred.Protocol {
	case domain.ProtocolIMAP:
		return d.dialIMAP(ctx, cred, secret)
	case domain.ProtocolPOP3:
		return d.dialPOP3(cred, secret)
	default:
		return nil, fmt.Errorf("unsupported mailbox protocol %q", cred.Protocol)
	}
}

// --- IMAP ---

type imapMailbox struct {
	client *imapclient.Client
}

func (d *Dialer) dialIMAP(ctx context.Context, cred *domain.BounceCredential, secret string) (Mailbox, error) {
	addr := fmt.Sprintf("%s:%d", cred.Host, cred.Port)
	dialer := &net.Dialer{Timeout: d.timeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: cred.Host})
	if err != nil {
		return nil, fmt.Errorf("imap connect %s: %w", addr, err)
	}

	client := imapclient.New(conn, nil)
	if err := client.Login(cred.Username, secret).Wait(); err != nil {
		client.Close()
		return nil, fmt.Errorf("imap login %s: %w", cred.Username, err)
	}
	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		client.Close()
		return nil, fmt.Errorf("imap select INBOX: %w", err)
	}
	return &imapMailbox{client: client}, nil
}

func (m *imapMailbox) Fetch(ctx context.Context, since time.Time) ([]RawMessage, error) {
	// No Seen-based filtering: flagging messages before they are fully
	// processed would hide them from every later poll if the process
	// dies mid-batch. The since criterion plus the caller's hash dedup
	// cover re-reads instead.
	criteria := &imap.SearchCriteria{}
	if !since.IsZero() {
		criteria.Since = since
	}
	data, err := m.client.Search(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("imap search: %w", err)
	}
	nums := data.AllSeqNums()
	if len(nums) == 0 {
		return nil, nil
	}

	seqSet := imap.SeqSetNum(nums...)
	section := &imap.FetchItemBodySection{}
	fetched, err := m.client.Fetch(seqSet, &imap.FetchOptions{
		Envelope:    true,
		BodySection: []*imap.FetchItemBodySection{section},
	}).Collect()
	if err != nil {
		return nil, fmt.Errorf("imap fetch: %w", err)
	}

	messages := make([]RawMessage, 0, len(fetched))
	for _, buf := range fetched {
		raw := RawMessage{Data: buf.FindBodySection(section)}
		if buf.Envelope != nil {
			raw.UID = buf.Envelope.MessageID
			raw.ReceivedAt = buf.Envelope.Date
		}
		messages = append(messages, raw)
	}

	return messages, nil
}

func (m *imapMailbox) Close() error {
	defer m.client.Close()
	return m.client.Logout().Wait()
}

// --- POP3 ---

type pop3Mailbox struct {
	conn *pop3.Conn
}

func (d *Dialer) dialPOP3(cred *domain.BounceCredential, secret string) (Mailbox, error) {
	client := pop3.New(pop3.Opt{
		Host:        cred.Host,
		Port:        cred.Port,
		TLSEnabled:  true,
		DialTimeout: d.timeout,
	})
	conn, err := client.NewConn()
	if err != nil {
		return nil, fmt.Errorf("pop3 connect %s:%d: %w", cred.Host, cred.Port, err)
	}
	if err := conn.Auth(cred.Username, secret); err != nil {
		conn.Quit()
		return nil, fmt.Errorf("pop3 auth %s: %w", cred.Username, err)
	}
	return &pop3Mailbox{conn: conn}, nil
}

func (m *pop3Mailbox) Fetch(_ context.Context, _ time.Time) ([]RawMessage, error) {
	count, _, err := m.conn.Stat()
	if err != nil {
		return nil, fmt.Errorf("pop3 stat: %w", err)
	}

	var messages []RawMessage
	for id := 1; id <= count; id++ {
		buf, err := m.conn.RetrRaw(id)
		if err != nil {
			return messages, fmt.Errorf("pop3 retr %d: %w", id, err)
		}
		messages = append(messages, RawMessage{
			UID:        fmt.Sprintf("pop3-%d", id),
			Data:       buf.Bytes(),
			ReceivedAt: time.Now().UTC(),
		})
	}
	return messages, nil
}

func (m *pop3Mailbox) Close() error {
	return m.conn.Quit()
}

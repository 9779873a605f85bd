package bounce

import (
	"bufio"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-message"

	"github.com/ignite/repguard/internal/domain"
)

// Classifier turns raw mailbox messages into classified bounces. A message
// that is neither a bounce nor a complaint classifies to nil.
type Classifier struct{}

// NewClassifier returns a bounce classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

var (
	dsnStatusRegex = regexp.MustCompile(`\b([45])\.\d{1,3}\.\d{1,3}\b`)
	emailRegex     = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
)

// Phrases that identify a permanent failure when no DSN part is attached.
var hardPhrases = []string{
	"user unknown",
	"unknown user",
	"no such user",
	"mailbox not found",
	"does not exist",
	"invalid recipient",
	"address rejected",
}

// Phrases that identify a transient failure.
var softPhrases = []string{
	"mailbox full",
	"over quota",
	"quota exceeded",
	"try again later",
	"temporarily",
	"temporary failure",
	"connection timed out",
}

// Classify parses one raw message. Returns (nil, nil) when the message is
// not a bounce or complaint; parse failures on the MIME structure fall
// back to body heuristics rather than erroring.
func (c *Classifier) Classify(raw io.Reader, receivedAt time.Time) (*domain.ClassifiedBounce, error) {
	entity, err := message.Read(raw)
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, err
	}
	return c.ClassifyEntity(entity, receivedAt)
}

// ClassifyEntity classifies an already-parsed message entity.
func (c *Classifier) ClassifyEntity(entity *message.Entity, receivedAt time.Time) (*domain.ClassifiedBounce, error) {
	mediaType, params, _ := entity.Header.ContentType()

	bounce := &domain.ClassifiedBounce{
		MessageID:  strings.Trim(entity.Header.Get("Message-Id"), "<>"),
		ReceivedAt: receivedAt,
	}

	if mediaType == "multipart/report" {
		switch params["report-type"] {
		case "feedback-report":
			c.parseFeedbackReport(entity, bounce)
			if bounce.Recipient != "" {
				bounce.Complaint = true
				bounce.Type = domain.BounceOther
				return bounce, nil
			}
		case "delivery-status", "":
			if c.parseDeliveryStatus(entity, bounce) {
				return bounce, nil
			}
		}
	}

	// No structured report part. Fall back to header and body heuristics.
	if rcpt := entity.Header.Get("X-Failed-Recipients"); rcpt != "" {
		bounce.Recipient = domain.NormalizeEmail(strings.Split(rcpt, ",")[0])
	}

	body := readBody(entity)
	if bounce.Recipient == "" {
		if m := emailRegex.FindString(body); m != "" {
			bounce.Recipient = domain.NormalizeEmail(m)
		}
	}
	if bounce.Recipient == "" {
		return nil, nil
	}

	lower := strings.ToLower(body)
	if m := dsnStatusRegex.FindString(body); m != "" {
		bounce.DSNStatus = m
		bounce.Type = typeForStatus(m)
		return bounce, nil
	}
	for _, p := range hardPhrases {
		if strings.Contains(lower, p) {
			bounce.Type = domain.BounceHard
			bounce.Diagnostic = p
			return bounce, nil
		}
	}
	for _, p := range softPhrases {
		if strings.Contains(lower, p) {
			bounce.Type = domain.BounceSoft
			bounce.Diagnostic = p
			return bounce, nil
		}
	}

	// An address alone is not evidence of a bounce.
	return nil, nil
}

// parseDeliveryStatus walks the multipart parts for the
// message/delivery-status section and reads its per-recipient fields.
func (c *Classifier) parseDeliveryStatus(entity *message.Entity, bounce *domain.ClassifiedBounce) bool {
	mr := entity.MultipartReader()
	if mr == nil {
		return false
	}
	for {
		part, err := mr.NextPart()
		if err != nil {
			return false
		}
		t, _, _ := part.Header.ContentType()
		if t != "message/delivery-status" {
			continue
		}

		scanner := bufio.NewScanner(part.Body)
		for scanner.Scan() {
			name, value, ok := strings.Cut(scanner.Text(), ":")
			if !ok {
				continue
			}
			value = strings.TrimSpace(value)
			switch strings.ToLower(strings.TrimSpace(name)) {
			case "final-recipient", "original-recipient":
				// "rfc822; user@example.com"
				if _, addr, ok := strings.Cut(value, ";"); ok {
					value = addr
				}
				if bounce.Recipient == "" {
					bounce.Recipient = domain.NormalizeEmail(value)
				}
			case "status":
				bounce.DSNStatus = value
			case "diagnostic-code":
				bounce.Diagnostic = value
			}
		}

		if bounce.Recipient == "" {
			return false
		}
		bounce.Type = typeForStatus(bounce.DSNStatus)
		return true
	}
}

// parseFeedbackReport reads the ARF message/feedback-report part.
func (c *Classifier) parseFeedbackReport(entity *message.Entity, bounce *domain.ClassifiedBounce) {
	mr := entity.MultipartReader()
	if mr == nil {
		return
	}
	for {
		part, err := mr.NextPart()
		if err != nil {
			return
		}
		t, _, _ := part.Header.ContentType()
		if t != "message/feedback-report" {
			continue
		}
		scanner := bufio.NewScanner(part.Body)
		for scanner.Scan() {
			name, value, ok := strings.Cut(scanner.Text(), ":")
			if !ok {
				continue
			}
			if strings.EqualFold(strings.TrimSpace(name), "Original-Rcpt-To") {
				bounce.Recipient = domain.NormalizeEmail(value)
			}
		}
		return
	}
}

func typeForStatus(status string) domain.BounceType {
	switch {
	case strings.HasPrefix(status, "5"):
		return domain.BounceHard
	case strings.HasPrefix(status, "4"):
		return domain.BounceSoft
	default:
		return domain.BounceOther
	}
}

func readBody(entity *message.Entity) string {
	if mr := entity.MultipartReader(); mr != nil {
		var b strings.Builder
		for {
			part, err := mr.NextPart()
			if err != nil {
				break
			}
			t, _, _ := part.Header.ContentType()
			if t == "" || strings.HasPrefix(t, "text/") ||
				t == "message/delivery-status" || t == "message/rfc822" {
				io.Copy(&b, part.Body)
				b.WriteByte('\n')
			}
		}
		return b.String()
	}
	var b strings.Builder
	io.Copy(&b, entity.Body)
	return b.String()
}

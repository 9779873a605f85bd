package bounce

import (
	"strings"
	"testing"
	"time"

	"github.com/ignite/repguard/internal/domain"
)

func crlf(lines ...string) string {
	return strings.Join(lines, "\r\n") + "\r\n"
}

var dsnHardMessage = crlf(
	"From: MAILER-DAEMON@mx.example.net",
	"To: bounces@sender.io",
	"Subject: Undelivered Mail Returned to Sender",
	"Message-Id: <dsn-1@mx.example.net>",
	`Content-Type: multipart/report; report-type=delivery-status; boundary="BB"`,
	"",
	"--BB",
	"Content-Type: text/plain",
	"",
	"The following address failed permanently.",
	"--BB",
	"Content-Type: message/delivery-status",
	"",
	"Reporting-MTA: dns; mx.example.net",
	"",
	"Final-Recipient: rfc822; Dead.Letter@Example.COM",
	"Action: failed",
	"Status: 5.1.1",
	"Diagnostic-Code: smtp; 550 5.1.1 user unknown",
	"--BB--",
)

var arfComplaintMessage = crlf(
	"From: fbl@isp.example.net",
	"To: bounces@sender.io",
	"Subject: Abuse report",
	"Message-Id: <arf-1@isp.example.net>",
	`Content-Type: multipart/report; report-type=feedback-report; boundary="AR"`,
	"",
	"--AR",
	"Content-Type: text/plain",
	"",
	"This is an email abuse report.",
	"--AR",
	"Content-Type: message/feedback-report",
	"",
	"Feedback-Type: abuse",
	"User-Agent: FBL/1.0",
	"Original-Rcpt-To: complainer@example.com",
	"--AR--",
)

var softHeuristicMessage = crlf(
	"From: postmaster@mx.example.net",
	"To: bounces@sender.io",
	"Subject: Delivery delayed",
	"Content-Type: text/plain",
	"",
	"Delivery to full.inbox@example.com deferred: mailbox full, try again later.",
)

func TestClassifyDeliveryStatus(t *testing.T) {
	c := NewClassifier()
	now := time.Now().UTC()

	bounce, err := c.Classify(strings.NewReader(dsnHardMessage), now)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if bounce == nil {
		t.Fatal("expected a classified bounce")
	}
	if bounce.Recipient != "dead.letter@example.com" {
		t.Errorf("Recipient = %q, want dead.letter@example.com", bounce.Recipient)
	}
	if bounce.Type != domain.BounceHard {
		t.Errorf("Type = %q, want hard", bounce.Type)
	}
	if bounce.DSNStatus != "5.1.1" {
		t.Errorf("DSNStatus = %q, want 5.1.1", bounce.DSNStatus)
	}
	if bounce.Complaint {
		t.Error("a delivery-status report is not a complaint")
	}
	if bounce.MessageID != "dsn-1@mx.example.net" {
		t.Errorf("MessageID = %q", bounce.MessageID)
	}
}

func TestClassifyFeedbackReport(t *testing.T) {
	c := NewClassifier()

	bounce, err := c.Classify(strings.NewReader(arfComplaintMessage), time.Now())
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if bounce == nil {
		t.Fatal("expected a classified complaint")
	}
	if !bounce.Complaint {
		t.Error("expected Complaint to be set")
	}
	if bounce.Recipient != "complainer@example.com" {
		t.Errorf("Recipient = %q, want complainer@example.com", bounce.Recipient)
	}
}

func TestClassifyBodyHeuristics(t *testing.T) {
	c := NewClassifier()

	bounce, err := c.Classify(strings.NewReader(softHeuristicMessage), time.Now())
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if bounce == nil {
		t.Fatal("expected a classified bounce")
	}
	if bounce.Type != domain.BounceSoft {
		t.Errorf("Type = %q, want soft", bounce.Type)
	}
	if bounce.Recipient != "full.inbox@example.com" {
		t.Errorf("Recipient = %q, want full.inbox@example.com", bounce.Recipient)
	}
}

func TestClassifyFailedRecipientsHeader(t *testing.T) {
	msg := crlf(
		"From: mailer-daemon@mx.example.net",
		"To: bounces@sender.io",
		"X-Failed-Recipients: gone@example.com",
		"Subject: Mail delivery failed",
		"Content-Type: text/plain",
		"",
		"This message was created automatically. No such user here.",
	)
	bounce, err := NewClassifier().Classify(strings.NewReader(msg), time.Now())
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if bounce == nil {
		t.Fatal("expected a classified bounce")
	}
	if bounce.Recipient != "gone@example.com" {
		t.Errorf("Recipient = %q, want gone@example.com", bounce.Recipient)
	}
	if bounce.Type != domain.BounceHard {
		t.Errorf("Type = %q, want hard", bounce.Type)
	}
}

func TestClassifyNonBounce(t *testing.T) {
	msg := crlf(
		"From: newsletter@sender.io",
		"To: bounces@sender.io",
		"Subject: Weekly digest",
		"Content-Type: text/plain",
		"",
		"Hello reader@example.com, here is your weekly digest.",
	)
	bounce, err := NewClassifier().Classify(strings.NewReader(msg), time.Now())
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if bounce != nil {
		t.Fatalf("expected nil for non-bounce mail, got %+v", bounce)
	}
}

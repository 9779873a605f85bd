package ingest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// FBLReport is one complaint report from an ISP feedback loop dump.
type FBLReport struct {
	Rcpt         string
	Domain       string // reported sending domain
	FeedbackType string
	ReceivedAt   time.Time
}

// FBLParser reads feedback-loop dump files. ISP feedback arrives as ARF
// reports; the MTA flattens them into header blocks separated by blank
// lines:
//
//	Feedback-Type: abuse
//	Original-Rcpt-To: user@example.com
//	Reported-Domain: mail.sender.io
//	Received-Date: 2026-08-30 11:42:07
//
// A block without a recipient is malformed and skipped.
type FBLParser struct{}

// NewFBLParser returns a parser for feedback-loop dumps.
func NewFBLParser() *FBLParser {
	return &FBLParser{}
}

// ParseFile reads a feedback-loop dump from disk.
func (p *FBLParser) ParseFile(path string) ([]FBLReport, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("cannot open FBL file %s: %w", path, err)
	}
	defer f.Close()
	return p.ParseReader(f)
}

// ParseReader reads feedback reports from any io.Reader. Malformed blocks
// are skipped; the second return value counts them.
func (p *FBLParser) ParseReader(r io.Reader) ([]FBLReport, int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	var reports []FBLReport
	parseErrors := 0
	cur := make(map[string]string)

	flush := func() {
		if len(cur) == 0 {
			return
		}
		rep, err := reportFromBlock(cur)
		if err != nil {
			parseErrors++
		} else {
			reports = append(reports, rep)
		}
		cur = make(map[string]string)
	}

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			parseErrors++
			continue
		}
		cur[strings.ToLower(strings.TrimSpace(name))] = strings.TrimSpace(value)
	}
	flush()

	if err := scanner.Err(); err != nil {
		return reports, parseErrors, fmt.Errorf("error reading FBL data: %w", err)
	}

	return reports, parseErrors, nil
}

func reportFromBlock(block map[string]string) (FBLReport, error) {
	rcpt := strings.ToLower(block["original-rcpt-to"])
	if rcpt == "" {
		return FBLReport{}, fmt.Errorf("report has no recipient")
	}

	rep := FBLReport{
		Rcpt:         rcpt,
		Domain:       strings.ToLower(block["reported-domain"]),
		FeedbackType: block["feedback-type"],
	}
	if rep.FeedbackType == "" {
		rep.FeedbackType = "abuse"
	}
	if rep.Domain == "" {
		if idx := strings.LastIndex(rcpt, "@"); idx >= 0 {
			rep.Domain = rcpt[idx+1:]
		}
	}

	ts, err := time.Parse("2006-01-02 15:04:05", block["received-date"])
	if err != nil {
		ts = time.Now()
	}
	rep.ReceivedAt = ts.UTC()

	return rep, nil
}

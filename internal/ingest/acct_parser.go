package ingest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Event types found in the accounting stream.
const (
	eventDelivery = "d"
	eventBounce   = "b"
	eventFeedback = "f"
)

// AcctRecord is one parsed accounting line.
type AcctRecord struct {
	Type       string
	TimeLogged time.Time
	Rcpt       string
	Domain     string // sending domain (vmta column), falls back to rcpt domain
	DSNStatus  string
	BounceCat  string
}

// IsHardBounce reports whether the record is a permanent failure.
// 5.x.x DSN codes and the MTA's own "bad-mailbox"/"bad-domain"
// categories are treated as hard.
func (r AcctRecord) IsHardBounce() bool {
	if strings.HasPrefix(r.DSNStatus, "5") {
		return true
	}
	switch r.BounceCat {
	case "bad-mailbox", "bad-domain", "inactive-mailbox":
		return true
	}
	return false
}

// AcctParser reads MTA accounting files. The MTA writes one CSV record per
// delivery attempt, with an optional header comment naming the columns:
//
//	#type,timeLogged,orig,rcpt,dsnStatus,dsnDiag,bounceCat,vmta,jobId,...
//
// Files without a header are parsed positionally with the same column order.
type AcctParser struct {
	headerMap map[string]int // column name -> index
}

// NewAcctParser returns a parser. Call ParseFile or ParseReader to process records.
func NewAcctParser() *AcctParser {
	return &AcctParser{}
}

// ParseFile reads an accounting file from disk.
func (p *AcctParser) ParseFile(path string) ([]AcctRecord, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("cannot open accounting file %s: %w", path, err)
	}
	defer f.Close()
	return p.ParseReader(f)
}

// ParseReader reads accounting records from any io.Reader. Malformed lines
// are skipped; the second return value counts them.
func (p *AcctParser) ParseReader(r io.Reader) ([]AcctRecord, int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	var records []AcctRecord
	parseErrors := 0

	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, "#") {
			if strings.HasPrefix(line, "#type,") {
				p.parseHeader(line[1:]) // strip leading #
			}
			continue
		}

		if strings.TrimSpace(line) == "" {
			continue
		}

		rec, err := p.parseLine(line)
		if err != nil {
			parseErrors++
			continue
		}
		records = append(records, rec)
	}

	if err := scanner.Err(); err != nil {
		return records, parseErrors, fmt.Errorf("error reading accounting data: %w", err)
	}

	return records, parseErrors, nil
}

func (p *AcctParser) parseHeader(line string) {
	fields := strings.Split(line, ",")
	p.headerMap = make(map[string]int, len(fields))
	for i, f := range fields {
		p.headerMap[strings.TrimSpace(f)] = i
	}
}

func (p *AcctParser) field(fields []string, name string) string {
	if p.headerMap == nil {
		return ""
	}
	idx, ok := p.headerMap[name]
	if !ok || idx >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[idx])
}

func (p *AcctParser) parseLine(line string) (AcctRecord, error) {
	fields := strings.Split(line, ",")
	if len(fields) < 4 {
		return AcctRecord{}, fmt.Errorf("too few fields: %d", len(fields))
	}

	var rec AcctRecord
	if p.headerMap != nil {
		rec = AcctRecord{
			Type:      p.field(fields, "type"),
			Rcpt:      p.field(fields, "rcpt"),
			DSNStatus: p.field(fields, "dsnStatus"),
			BounceCat: p.field(fields, "bounceCat"),
			Domain:    strings.ToLower(p.field(fields, "vmta")),
		}
		rec.TimeLogged = parseAcctTime(p.field(fields, "timeLogged"))
	} else {
		rec = AcctRecord{
			Type:       strings.TrimSpace(fields[0]),
			TimeLogged: parseAcctTime(fields[1]),
			Rcpt:       strings.TrimSpace(fields[3]),
		}
		if len(fields) > 4 {
			rec.DSNStatus = strings.TrimSpace(fields[4])
		}
		if len(fields) > 6 {
			rec.BounceCat = strings.TrimSpace(fields[6])
		}
		if len(fields) > 7 {
			rec.Domain = strings.ToLower(strings.TrimSpace(fields[7]))
		}
	}

	switch rec.Type {
	case eventDelivery, eventBounce, eventFeedback:
	default:
		return AcctRecord{}, fmt.Errorf("unknown event type %q", rec.Type)
	}

	if rec.Domain == "" {
		if idx := strings.LastIndex(rec.Rcpt, "@"); idx >= 0 {
			rec.Domain = strings.ToLower(rec.Rcpt[idx+1:])
		}
	}
	if rec.Domain == "" {
		return AcctRecord{}, fmt.Errorf("record has no domain")
	}

	return rec, nil
}

func parseAcctTime(raw string) time.Time {
	ts, err := time.Parse("2006-01-02 15:04:05", strings.TrimSpace(raw))
	if err != nil {
		return time.Now().UTC()
	}
	return ts.UTC()
}

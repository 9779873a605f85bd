package ingest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// DiagSummary aggregates a free-text MTA diagnostic log.
type DiagSummary struct {
	File        string         `json:"file"`
	Lines       int            `json:"lines"`
	ParseErrors int            `json:"parse_errors"`
	ByLevel     map[string]int `json:"by_level"`
	ByCategory  map[string]int `json:"by_category"`
	Samples     []string       `json:"samples,omitempty"` // first few error lines
}

const maxDiagSamples = 10

// Diagnostic lines look like:
//
//	2026-08-30 11:42:07 ERROR smtp/out: connection refused by 203.0.113.9
var diagLineRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2} +([A-Z]+) +([a-z/_-]+):`)

// DiagParser summarizes MTA diagnostic logs. These are free-text and only
// loosely structured, so the parser counts rather than normalizes.
type DiagParser struct{}

// NewDiagParser returns a diagnostic log parser.
func NewDiagParser() *DiagParser {
	return &DiagParser{}
}

// ParseFile summarizes a diagnostic log from disk.
func (p *DiagParser) ParseFile(path string) (*DiagSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open diagnostic file %s: %w", path, err)
	}
	defer f.Close()

	sum, err := p.ParseReader(f)
	if sum != nil {
		sum.File = path
	}
	return sum, err
}

// ParseReader summarizes diagnostic lines from any io.Reader.
func (p *DiagParser) ParseReader(r io.Reader) (*DiagSummary, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	sum := &DiagSummary{
		ByLevel:    make(map[string]int),
		ByCategory: make(map[string]int),
	}

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		sum.Lines++

		m := diagLineRegex.FindStringSubmatch(line)
		if m == nil {
			sum.ParseErrors++
			continue
		}
		level, category := m[1], m[2]
		sum.ByLevel[level]++
		sum.ByCategory[category]++
		if level == "ERROR" && len(sum.Samples) < maxDiagSamples {
			sum.Samples = append(sum.Samples, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return sum, fmt.Errorf("error reading diagnostic data: %w", err)
	}

	return sum, nil
}

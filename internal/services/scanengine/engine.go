// Package scanengine applies the pattern library to an input line stream in
// a single forward pass, producing findings ordered by line number.
package scanengine

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/domain"
	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/patterns"
)

// maxLineBytes bounds a single line; anything longer is recorded as an
// unparseable finding rather than buffered without limit.
const maxLineBytes = 1 << 20

// Lines longer than the preview cap are truncated before they land in a
// finding so reports stay readable.
const linePreviewBytes = 2048

// Common/combined log format timestamp, e.g. [10/Oct/2024:13:55:36 +0000].
var tsPattern = regexp.MustCompile(`\[(\d{2}/[A-Za-z]{3}/\d{4}:\d{2}:\d{2}:\d{2} [+-]\d{4})\]`)

const tsLayout = "02/Jan/2006:15:04:05 -0700"

// Stats accounts for every input line exactly once:
// Matched lines are a subset of Scanned; Scanned + Unparseable + Empty = Total.
type Stats struct {
	Total       int `json:"total"`
	Scanned     int `json:"scanned"`
	Empty       int `json:"empty"`
	Unparseable int `json:"unparseable"`
	Findings    int `json:"findings"`
}

// Scan reads r line by line and evaluates every pattern against each line in
// ascending id order, calling emit for each finding. Lines are processed
// independently with no cross-line state, so the pass is O(lines x patterns)
// with no backtracking. Empty lines are skipped; invalid-UTF8 or over-long
// lines emit a finding of category unparseable instead of being dropped.
// Restartable only from the start of the stream.
func Scan(r io.Reader, pats []patterns.Pattern, emit func(domain.Finding) error) (Stats, error) {
	var stats Stats
	br := bufio.NewReaderSize(r, 64<<10)

	lineNo := 0
	for {
		line, tooLong, err := readLine(br)
		if err == io.EOF && line == "" {
			break
		}
		if err != nil && err != io.EOF {
			return stats, fmt.Errorf("read line %d: %w", lineNo+1, err)
		}

		lineNo++
		stats.Total++

		trimmed := strings.TrimSpace(line)
		if trimmed == "" && !tooLong {
			stats.Empty++
			if err == io.EOF {
				break
			}
			continue
		}

		if tooLong || !utf8.ValidString(trimmed) {
			stats.Unparseable++
			stats.Findings++
			f := domain.Finding{
				Category:   domain.CategoryUnparseable,
				Line:       preview(trimmed),
				LineNumber: lineNo,
			}
			if emitErr := emit(f); emitErr != nil {
				return stats, emitErr
			}
			if err == io.EOF {
				break
			}
			continue
		}

		stats.Scanned++
		ts := extractTimestamp(trimmed)
		for _, p := range pats {
			// One finding per (line, pattern) pair at most.
			if !p.Rule.MatchString(trimmed) {
				continue
			}
			stats.Findings++
			f := domain.Finding{
				PatternID:  p.ID,
				Category:   p.Category,
				Line:       preview(trimmed),
				LineNumber: lineNo,
				Timestamp:  ts,
			}
			if emitErr := emit(f); emitErr != nil {
				return stats, emitErr
			}
		}

		if err == io.EOF {
			break
		}
	}
	return stats, nil
}

// ScanAll collects the findings of a full scan into a slice.
func ScanAll(r io.Reader, pats []patterns.Pattern) ([]domain.Finding, Stats, error) {
	var findings []domain.Finding
	stats, err := Scan(r, pats, func(f domain.Finding) error {
		findings = append(findings, f)
		return nil
	})
	return findings, stats, err
}

// readLine reads up to the next newline. tooLong is set when the line
// exceeded maxLineBytes; the remainder of that line is discarded so the scan
// keeps its single forward pass.
func readLine(br *bufio.Reader) (line string, tooLong bool, err error) {
	var b strings.Builder
	for {
		chunk, readErr := br.ReadString('\n')
		if tooLong {
			// Draining an over-long line; drop the content.
		} else if b.Len()+len(chunk) > maxLineBytes {
			tooLong = true
			b.WriteString(chunk[:max(0, maxLineBytes-b.Len())])
		} else {
			b.WriteString(chunk)
		}
		if readErr != nil {
			return strings.TrimRight(b.String(), "\n"), tooLong, readErr
		}
		if strings.HasSuffix(chunk, "\n") {
			return strings.TrimRight(b.String(), "\n"), tooLong, nil
		}
	}
}

func preview(line string) string {
	if len(line) <= linePreviewBytes {
		return line
	}
	cut := line[:linePreviewBytes]
	// Trim only a rune split by the cut point, at most utf8.UTFMax bytes;
	// invalid bytes earlier in the line stay in the preview.
	for i := 0; i < utf8.UTFMax && len(cut) > 0; i++ {
		if utf8.RuneStart(cut[len(cut)-1]) {
			if r, size := utf8.DecodeLastRuneInString(cut); r == utf8.RuneError && size <= 1 {
				cut = cut[:len(cut)-1]
			}
			break
		}
		cut = cut[:len(cut)-1]
	}
	return cut
}

func extractTimestamp(line string) *time.Time {
	m := tsPattern.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	ts, err := time.Parse(tsLayout, m[1])
	if err != nil {
		return nil
	}
	return &ts
}

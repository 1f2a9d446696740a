package antivirus

import (
	"context"
	"strings"

	"golang.org/x/text/cases"
)

// DefaultPatterns is the built-in heuristic list. It is a last line of
// defense and far weaker than signature or cloud scanning.
var DefaultPatterns = []string{
	// script injection
	"<script>alert(",
	"<script",
	"javascript:",
	"document.cookie",
	// dynamic code execution
	"eval(",
	"new Function(",
	"setTimeout(\"",
	// php execution
	"<?php",
	"shell_exec(",
	"system(",
	"passthru(",
	"exec(",
	"proc_open(",
	"popen(",
	// obfuscation / decoding
	"base64_decode(",
	"gzinflate(",
	"str_rot13(",
	"fromCharCode(",
	"atob(",
}

type foldedPattern struct {
	original string
	folded   string
}

// PatternScanner matches decoded text against known dangerous substrings.
// It never returns a ScanError.
type PatternScanner struct {
	patterns []foldedPattern
}

var _ Scanner = (*PatternScanner)(nil)

// NewPatternScanner creates a heuristic scanner. An empty list falls back to DefaultPatterns.
func NewPatternScanner(patterns []string) *PatternScanner {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}

	folder := cases.Fold()
	ps := &PatternScanner{patterns: make([]foldedPattern, 0, len(patterns))}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		ps.patterns = append(ps.patterns, foldedPattern{original: p, folded: folder.String(p)})
	}
	return ps
}

func (p *PatternScanner) Name() string {
	return PatternScannerName
}

// Patterns returns the configured patterns in match order
func (p *PatternScanner) Patterns() []string {
	out := make([]string, len(p.patterns))
	for i, fp := range p.patterns {
		out[i] = fp.original
	}
	return out
}

// Scan decodes data as best-effort UTF-8 and reports the first pattern found
func (p *PatternScanner) Scan(ctx context.Context, filename string, data []byte) Verdict {
	text := cases.Fold().String(strings.ToValidUTF8(string(data), "\uFFFD"))

	for _, fp := range p.patterns {
		if strings.Contains(text, fp.folded) {
			return Infected{
				VerdictMeta: newMeta(p.Name()),
				Reason:      ReasonPatternMatch,
				Pattern:     fp.original,
			}
		}
	}

	return Clean{VerdictMeta: newMeta(p.Name())}
}

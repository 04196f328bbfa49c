package format

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	seqPadRe = regexp.MustCompile(`\{SEQ(\d+)\}`)
	tokenRe  = regexp.MustCompile(`\{(YYYY|YY|MM|DD|SEQ\d*)\}`)
)

const DefaultInvoiceNumberTemplate = "{YYYY}-{MM}-{SEQ4}"

// FormatInvoiceNumber renders template for issuedAt and sequence seq.
// It is pure: no store access and no clock.
func FormatInvoiceNumber(template string, issuedAt time.Time, seq int64) (string, error) {
	if template == "" {
		return "", fmt.Errorf("invoice number template is empty")
	}
	if seq <= 0 {
		return "", fmt.Errorf("invalid invoice sequence: %d", seq)
	}

	out := template

	out = strings.ReplaceAll(out, "{YYYY}", issuedAt.Format("2006"))
	out = strings.ReplaceAll(out, "{YY}", issuedAt.Format("06"))
	out = strings.ReplaceAll(out, "{MM}", issuedAt.Format("01"))
	out = strings.ReplaceAll(out, "{DD}", issuedAt.Format("02"))

	out = strings.ReplaceAll(out, "{SEQ}", strconv.FormatInt(seq, 10))

	out = seqPadRe.ReplaceAllStringFunc(out, func(m string) string {
		match := seqPadRe.FindStringSubmatch(m)
		if len(match) != 2 {
			return m
		}
		width, err := strconv.Atoi(match[1])
		if err != nil || width <= 0 {
			return m
		}
		return fmt.Sprintf("%0*d", width, seq)
	})

	if strings.Contains(out, "{") || strings.Contains(out, "}") {
		return "", fmt.Errorf("unresolved token in invoice format: %s", out)
	}

	return out, nil
}

// YearPrefix is the fixed leading part of every number the template yields
// in issuedAt's year, e.g. "2024-" for "{YYYY}-{MM}-{SEQ4}". It stops at the
// first token that varies within a year.
func YearPrefix(template string, issuedAt time.Time) string {
	var b strings.Builder
	rest := template
	for {
		loc := tokenRe.FindStringIndex(rest)
		if loc == nil {
			b.WriteString(rest)
			return b.String()
		}
		b.WriteString(rest[:loc[0]])
		switch rest[loc[0]:loc[1]] {
		case "{YYYY}":
			b.WriteString(issuedAt.Format("2006"))
		case "{YY}":
			b.WriteString(issuedAt.Format("06"))
		default:
			return b.String()
		}
		rest = rest[loc[1]:]
	}
}

// SequenceMatcher extracts the sequence from numbers produced by a template
// for one calendar year.
type SequenceMatcher struct {
	re *regexp.Regexp
}

func NewSequenceMatcher(template string, issuedAt time.Time) (*SequenceMatcher, error) {
	var b strings.Builder
	b.WriteString("^")
	rest := template
	seqSeen := false
	for {
		loc := tokenRe.FindStringIndex(rest)
		if loc == nil {
			b.WriteString(regexp.QuoteMeta(rest))
			break
		}
		b.WriteString(regexp.QuoteMeta(rest[:loc[0]]))
		token := rest[loc[0]:loc[1]]
		switch {
		case token == "{YYYY}":
			b.WriteString(issuedAt.Format("2006"))
		case token == "{YY}":
			b.WriteString(issuedAt.Format("06"))
		case token == "{MM}", token == "{DD}":
			b.WriteString(`\d{2}`)
		case strings.HasPrefix(token, "{SEQ"):
			if seqSeen {
				b.WriteString(`\d+`)
			} else {
				b.WriteString(`(\d+)`)
				seqSeen = true
			}
		}
		rest = rest[loc[1]:]
	}
	b.WriteString("$")
	if !seqSeen {
		return nil, fmt.Errorf("invoice number template has no sequence token: %s", template)
	}

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, err
	}
	return &SequenceMatcher{re: re}, nil
}

// Sequence returns the sequence encoded in number, or false when number was
// not produced by the template in that year.
func (m *SequenceMatcher) Sequence(number string) (int64, bool) {
	match := m.re.FindStringSubmatch(strings.TrimSpace(number))
	if len(match) != 2 {
		return 0, false
	}
	seq, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil || seq <= 0 {
		return 0, false
	}
	return seq, true
}

// NextSequence is one more than the highest sequence among numbers.
func (m *SequenceMatcher) NextSequence(numbers []string) int64 {
	var highest int64
	for _, n := range numbers {
		if seq, ok := m.Sequence(n); ok && seq > highest {
			highest = seq
		}
	}
	return highest + 1
}

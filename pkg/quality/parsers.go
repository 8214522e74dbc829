package quality

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	blackReformat  = regexp.MustCompile(`^would reformat (.+)$`)
	blackError     = regexp.MustCompile(`^error: cannot format (.+?): (.*)$`)
	blackSummary   = regexp.MustCompile(`^(All done!|Oh no!|\d+ files? would be (reformatted|left unchanged)|\d+ files? (would )?fail(ed)? to reformat)`)
	flake8Line     = regexp.MustCompile(`^(.+?):(\d+):(\d+): ([A-Z]+\d+) (.*)$`)
	mypyLine       = regexp.MustCompile(`^(.+?):(\d+):(?:(\d+):)? (error|warning|note): (.*)$`)
	mypySummary    = regexp.MustCompile(`^(Found \d+ errors? in \d+ files?|Success: no issues found)`)
	pydocstyleLine = regexp.MustCompile(`^(.+?):(\d+): ([A-Z]+\d+):? (.*)$`)
	pydocstyleHead = regexp.MustCompile(`^(.+?):(\d+) (.*):$`)
	pydocstyleBody = regexp.MustCompile(`^\s+([A-Z]+\d+): (.*)$`)
)

// parseBlack handles `black --check` output: "would reformat <path>" marks
// a file, "error: cannot format <path>: <reason>" records a failure.
// Summary lines are recognized and skipped.
func parseBlack(l *Ledger, plugin string, lines *lineScanner) bool {
	line := strings.TrimSpace(lines.Text())
	if m := blackReformat.FindStringSubmatch(line); m != nil {
		l.Set(plugin, m[1], FormatFinding{WouldReformat: true})
		return true
	}
	if m := blackError.FindStringSubmatch(line); m != nil {
		l.Set(plugin, m[1], FormatFinding{Error: m[2]})
		return true
	}
	return blackSummary.MatchString(line)
}

// parseFlake8 handles "path:line:col: CODE message".
func parseFlake8(l *Ledger, plugin string, lines *lineScanner) bool {
	m := flake8Line.FindStringSubmatch(lines.Text())
	if m == nil {
		return false
	}
	l.AddIssue(plugin, m[1], Issue{
		Line:    atoi(m[2]),
		Column:  atoi(m[3]),
		Code:    m[4],
		Message: m[5],
	})
	return true
}

// parseMypy handles "path:line: error: message", with an optional column
// and the warning and note severities. The closing summary is skipped.
func parseMypy(l *Ledger, plugin string, lines *lineScanner) bool {
	text := lines.Text()
	if mypySummary.MatchString(text) {
		return true
	}
	m := mypyLine.FindStringSubmatch(text)
	if m == nil {
		return false
	}
	issue := Issue{
		Line:     atoi(m[2]),
		Severity: m[4],
		Message:  m[5],
	}
	if m[3] != "" {
		issue.Column = atoi(m[3])
	}
	// mypy appends the error code as "  [code]"
	if i := strings.LastIndex(issue.Message, "  ["); i >= 0 && strings.HasSuffix(issue.Message, "]") {
		issue.Code = issue.Message[i+3 : len(issue.Message)-1]
		issue.Message = issue.Message[:i]
	}
	l.AddIssue(plugin, m[1], issue)
	return true
}

// parsePydocstyle handles the one-line form "path:line: CODE: message" and
// the two-line form pydocstyle prints by default:
//
//	path:line in public method `name`:
//	        CODE: message
func parsePydocstyle(l *Ledger, plugin string, lines *lineScanner) bool {
	text := lines.Text()
	if m := pydocstyleLine.FindStringSubmatch(text); m != nil {
		l.AddIssue(plugin, m[1], Issue{Line: atoi(m[2]), Code: m[3], Message: m[4]})
		return true
	}
	head := pydocstyleHead.FindStringSubmatch(text)
	if head == nil {
		return false
	}
	next, ok := lines.Peek()
	if !ok {
		return false
	}
	body := pydocstyleBody.FindStringSubmatch(next)
	if body == nil {
		return false
	}
	lines.Skip()
	l.AddIssue(plugin, head[1], Issue{
		Line:    atoi(head[2]),
		Code:    body[1],
		Message: body[2] + " (" + head[3] + ")",
	})
	return true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

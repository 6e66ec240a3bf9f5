// Package directive finds and strips the control markers an interviewer
// reply can carry, such as [END_INTERVIEW] and [CODING_TASK].
package directive

import (
	"regexp"
	"strings"
)

// Markers the interviewer prompt asks the model to emit.
const (
	EndInterviewMarker = "[END_INTERVIEW]"
	CodingTaskMarker   = "[CODING_TASK]"
)

var (
	markerPattern = regexp.MustCompile(`(?i)\[\s*(END[_ ]INTERVIEW|CODING[_ ]TASK)\s*\]`)
	spacePattern  = regexp.MustCompile(`[ \t]+`)
	// a space stranded before punctuation once a marker in the middle of a sentence is removed
	punctGap = regexp.MustCompile(` +([.,!?;:])`)
)

// Directives are the out-of-band signals found in one reply.
type Directives struct {
	EndInterview bool `json:"endInterview"`
	CodingTask   bool `json:"codingTask"`
}

// Merge returns the union of two directive sets.
func (d Directives) Merge(o Directives) Directives {
	return Directives{
		EndInterview: d.EndInterview || o.EndInterview,
		CodingTask:   d.CodingTask || o.CodingTask,
	}
}

func (d Directives) Any() bool { return d.EndInterview || d.CodingTask }

// Extract scans raw for markers and returns the text with every marker
// removed. Punctuation and line breaks are otherwise left as they were.
func Extract(raw string) (string, Directives) {
	var d Directives
	for _, m := range markerPattern.FindAllStringSubmatch(raw, -1) {
		name := strings.ToUpper(strings.ReplaceAll(m[1], " ", "_"))
		switch name {
		case "END_INTERVIEW":
			d.EndInterview = true
		case "CODING_TASK":
			d.CodingTask = true
		}
	}
	if !d.Any() {
		return strings.TrimSpace(raw), d
	}

	text := markerPattern.ReplaceAllString(raw, " ")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		line = spacePattern.ReplaceAllString(line, " ")
		line = punctGap.ReplaceAllString(line, "$1")
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), d
}

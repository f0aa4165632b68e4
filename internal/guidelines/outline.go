package guidelines

import (
	"strings"
)

// Section is one heading of a markdown document and the text under it.
type Section struct {
	Level   int
	Heading string
	// Raw is the heading line as written, e.g. "## 🎯 Project Overview".
	Raw  string
	Body string
}

// Text renders the section the way it appears in the source document.
func (s Section) Text() string {
	body := strings.TrimRight(s.Body, "\n")
	if body == "" {
		return s.Raw
	}
	return s.Raw + "\n" + body
}

// Outline is the ordered list of sections of a document.
type Outline struct {
	Sections []Section
}

// ParseOutline splits a markdown document on ATX headings. A section's body
// runs until the next heading of the same or a higher level; deeper
// headings stay inside the body. Headings inside fenced code blocks are
// ignored.
func ParseOutline(text string) Outline {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	type heading struct {
		line  int
		level int
		title string
	}
	var headings []heading
	inFence := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		if level, title, ok := parseHeading(line); ok {
			headings = append(headings, heading{line: i, level: level, title: title})
		}
	}

	outline := Outline{Sections: make([]Section, 0, len(headings))}
	for idx, h := range headings {
		end := len(lines)
		for _, next := range headings[idx+1:] {
			if next.level <= h.level {
				end = next.line
				break
			}
		}
		body := strings.Join(lines[h.line+1:end], "\n")
		outline.Sections = append(outline.Sections, Section{
			Level:   h.level,
			Heading: h.title,
			Raw:     strings.TrimRight(lines[h.line], " \t"),
			Body:    strings.Trim(body, "\n"),
		})
	}
	return outline
}

// Find returns the first section whose heading contains any of markers,
// compared case-insensitively.
func (o Outline) Find(markers ...string) (Section, bool) {
	for _, section := range o.Sections {
		heading := strings.ToLower(section.Heading)
		for _, marker := range markers {
			marker = strings.ToLower(strings.TrimSpace(marker))
			if marker != "" && strings.Contains(heading, marker) {
				return section, true
			}
		}
	}
	return Section{}, false
}

func parseHeading(line string) (int, string, bool) {
	// Up to three leading spaces are allowed before an ATX heading.
	trimmed := strings.TrimLeft(line, " ")
	if len(line)-len(trimmed) > 3 {
		return 0, "", false
	}
	level := 0
	for level < len(trimmed) && trimmed[level] == '#' {
		level++
	}
	if level == 0 || level > 6 {
		return 0, "", false
	}
	rest := trimmed[level:]
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		return 0, "", false
	}
	title := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(rest), "#"))
	return level, title, true
}

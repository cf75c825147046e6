package services

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

func formatPrompt(transcript string) string {
	return `Re-render this transcript into a structured form. Rules:
- Keep every word exactly as spoken; only add structural markers.
- Start with a chapter header line: "## <short chapter name>".
- Insert an absolute timestamp in the form [HH:MM:SS.mmm] roughly every 10 to
  30 seconds of speech, at natural breaks between sentences.
- Insert a new "## " chapter header whenever the topic changes.
Return only the formatted transcript.

Transcript:
` + transcript
}

func titlePrompt(formatted string) string {
	return `Write a title for this transcript. At most 60 characters, plain
words, no quotes and no trailing punctuation. Return only the title.

Transcript:
` + formatted
}

func summaryPrompt(formatted, note, style string) string {
	var sb strings.Builder
	sb.WriteString("Summarize this transcript as short markdown: a few narrative sentences, then bullet points for key items.\n")
	if style != "" {
		sb.WriteString("Style instructions: " + style + "\n")
	}
	if note != "" {
		sb.WriteString("Fold in the author's note where it is relevant:\n" + note + "\n")
	}
	sb.WriteString("\nTranscript:\n" + formatted)
	return sb.String()
}

func taskPrompt(formatted string) string {
	return `List the actionable tasks mentioned in this transcript, one per
line, no numbering or commentary. If there are none, reply exactly:
"No tasks identified".

Transcript:
` + formatted
}

var chapterLine = regexp.MustCompile(`(?m)^##\s+(.+)$`)

// ensureLeadingChapter guarantees the mandatory chapter header at the top of
// a formatted transcript.
func ensureLeadingChapter(formatted string) string {
	trimmed := strings.TrimSpace(formatted)
	if strings.HasPrefix(trimmed, "## ") {
		return trimmed
	}
	return "## Recording\n" + trimmed
}

func parseChapters(formatted string) pq.StringArray {
	matches := chapterLine.FindAllStringSubmatch(formatted, -1)
	out := make(pq.StringArray, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimSpace(m[1]))
	}
	return out
}

var titleStrip = regexp.MustCompile(`["'.,:;!?*#]+`)

// normalizeTitle trims model decoration down to a short punctuation-light
// label of at most 60 characters.
func normalizeTitle(raw string) string {
	title := strings.TrimSpace(raw)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = title[:i]
	}
	title = titleStrip.ReplaceAllString(title, "")
	title = strings.Join(strings.Fields(title), " ")
	if len(title) > 60 {
		cut := title[:60]
		if i := strings.LastIndexByte(cut, ' '); i > 0 {
			cut = cut[:i]
		}
		title = strings.TrimSpace(cut)
	}
	return title
}

// docBlock is one block of the note editor's rich-text document.
type docBlock struct {
	Type    string   `json:"type"` // heading|paragraph|bullet_list
	Level   int      `json:"level,omitempty"`
	Content string   `json:"content,omitempty"`
	Items   []string `json:"items,omitempty"`
}

var headingLine = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)

// markupToDoc normalizes lightweight markdown output into the block-structured
// rich-text document the note editor stores.
func markupToDoc(markup string) datatypes.JSON {
	var blocks []docBlock
	var bullets []string
	var para []string

	flushPara := func() {
		if len(para) > 0 {
			blocks = append(blocks, docBlock{Type: "paragraph", Content: strings.Join(para, " ")})
			para = nil
		}
	}
	flushBullets := func() {
		if len(bullets) > 0 {
			blocks = append(blocks, docBlock{Type: "bullet_list", Items: bullets})
			bullets = nil
		}
	}

	for _, line := range strings.Split(markup, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			flushPara()
			flushBullets()
		case headingLine.MatchString(line):
			flushPara()
			flushBullets()
			m := headingLine.FindStringSubmatch(line)
			blocks = append(blocks, docBlock{Type: "heading", Level: len(m[1]), Content: strings.TrimSpace(m[2])})
		case strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* "):
			flushPara()
			bullets = append(bullets, strings.TrimSpace(line[2:]))
		default:
			flushBullets()
			para = append(para, line)
		}
	}
	flushPara()
	flushBullets()

	raw, err := json.Marshal(map[string]any{"blocks": blocks})
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

package timedtext

import (
	"encoding/xml"
	"fmt"
	"io"
	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/services/lyrics"
	"math"
	"sort"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// =============================================================================
// TTML XML STRUCTURES
// =============================================================================

type ttmlDocument struct {
	XMLName xml.Name `xml:"tt"`
	Timing  string   `xml:"timing,attr"`
	Lang    string   `xml:"lang,attr"`
	Head    ttmlHead `xml:"head"`
	Body    ttmlBody `xml:"body"`
}

type ttmlHead struct {
	Metadata ttmlMetadata `xml:"metadata"`
}

type ttmlMetadata struct {
	Agents []ttmlAgent     `xml:"agent"`
	ITunes ttmlITunesBlock `xml:"iTunesMetadata"`
}

type ttmlAgent struct {
	ID   string `xml:"id,attr"`
	Type string `xml:"type,attr"`
}

type ttmlITunesBlock struct {
	Translations     []ttmlSideDocument `xml:"translations>translation"`
	Transliterations []ttmlSideDocument `xml:"transliterations>transliteration"`
}

// ttmlSideDocument is a translation or transliteration keyed by line label.
type ttmlSideDocument struct {
	Lang  string     `xml:"lang,attr"`
	Texts []ttmlNode `xml:"text"`
}

type ttmlBody struct {
	Divs []ttmlDiv `xml:"div"`
}

type ttmlDiv struct {
	SongPart   string     `xml:"songPart,attr"`
	Paragraphs []ttmlNode `xml:"p"`
}

// ttmlNode is a <p>, <span> or <text> element. Mixed content is kept in
// document order so the whitespace between spans survives.
type ttmlNode struct {
	Begin    string
	End      string
	Role     string
	Key      string
	Agent    string
	For      string
	Children []ttmlChild
}

type ttmlChild struct {
	Text string
	Span *ttmlNode
}

// UnmarshalXML decodes attributes and ordered mixed content.
func (n *ttmlNode) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for _, attr := range start.Attr {
		switch attr.Name.Local {
		case "begin":
			n.Begin = attr.Value
		case "end":
			n.End = attr.Value
		case "role":
			n.Role = attr.Value
		case "key":
			n.Key = attr.Value
		case "agent":
			n.Agent = attr.Value
		case "for":
			n.For = attr.Value
		}
	}

	for {
		tok, err := d.Token()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		switch t := tok.(type) {
		case xml.CharData:
			n.Children = append(n.Children, ttmlChild{Text: string(t)})
		case xml.StartElement:
			switch t.Name.Local {
			case "span":
				child := &ttmlNode{}
				if err := d.DecodeElement(child, &t); err != nil {
					return err
				}
				n.Children = append(n.Children, ttmlChild{Span: child})
			case "br":
				n.Children = append(n.Children, ttmlChild{Text: " "})
				if err := d.Skip(); err != nil {
					return err
				}
			default:
				if err := d.Skip(); err != nil {
					return err
				}
			}
		case xml.EndElement:
			return nil
		}
	}
}

func (n *ttmlNode) hasSpans() bool {
	for _, c := range n.Children {
		if c.Span != nil {
			return true
		}
	}
	return false
}

// plainText concatenates all text below the node.
func (n *ttmlNode) plainText() string {
	var b strings.Builder
	n.writeText(&b)
	return b.String()
}

func (n *ttmlNode) writeText(b *strings.Builder) {
	for _, c := range n.Children {
		if c.Span != nil {
			c.Span.writeText(b)
			continue
		}
		b.WriteString(c.Text)
	}
}

// =============================================================================
// PARSING
// =============================================================================

// ParseTTML parses a timed-text document. Paragraphs with spans become
// word-synced lines; translations and transliterations from the head metadata
// attach to the paragraph with the matching key. A missing paragraph end is
// inferred like an LRC line duration.
func ParseTTML(content string, songDurationMs int64) (*lyrics.Document, error) {
	log.Debugf("%s Parsing TTML content (length: %d bytes)", logcolors.LogTTMLParser, len(content))

	var tt ttmlDocument
	if err := xml.Unmarshal([]byte(content), &tt); err != nil {
		log.Warnf("%s Failed to unmarshal XML: %v", logcolors.LogTTMLParser, err)
		return nil, fmt.Errorf("failed to parse TTML XML: %w", err)
	}

	unsynced := strings.EqualFold(tt.Timing, "none")

	doc := &lyrics.Document{Language: tt.Lang}
	keys := make(map[string]int)
	index := 0

	for _, div := range tt.Body.Divs {
		for _, para := range div.Paragraphs {
			index++
			line, ok := paragraphToLine(&para, unsynced)
			if !ok {
				continue
			}
			key := para.Key
			if key == "" {
				key = "L" + strconv.Itoa(index)
			}
			keys[key] = len(doc.Lines)
			doc.Lines = append(doc.Lines, line)
		}
	}

	if len(doc.Lines) == 0 {
		return doc, ErrNoLines
	}

	attachTranslations(doc, keys, tt.Head.Metadata.ITunes.Translations)
	attachTransliterations(doc, keys, tt.Head.Metadata.ITunes.Transliterations)

	if !unsynced {
		doc.SortLines()
		doc.BackfillDurations(songDurationMs)
		for i := range doc.Lines {
			clampParts(&doc.Lines[i])
		}
	}

	log.Debugf("%s Parsed %d lines (%s, %d agents)", logcolors.LogTTMLParser,
		len(doc.Lines), doc.SyncGranularity(), len(tt.Head.Metadata.Agents))
	return doc, nil
}

func paragraphToLine(para *ttmlNode, unsynced bool) (lyrics.Line, bool) {
	line := lyrics.Line{Agent: para.Agent}

	if !unsynced {
		begin, err := parseClock(para.Begin)
		if err != nil {
			log.Warnf("%s Skipping paragraph with invalid begin %q: %v", logcolors.LogTTMLParser, para.Begin, err)
			return line, false
		}
		line.StartTimeMs = begin
		if para.End != "" {
			if end, err := parseClock(para.End); err == nil && end > begin {
				line.DurationMs = end - begin
			}
		}
	}

	if unsynced || !para.hasSpans() {
		line.Text = collapseSpace(para.plainText())
		return line, line.Text != ""
	}

	c := partCollector{cursor: line.StartTimeMs}
	c.collect(para, para.Role == "x-bg")
	line.Parts = c.sorted()
	line.Text = strings.TrimSpace(c.text.String())
	if line.DurationMs == 0 {
		for _, part := range line.Parts {
			if end := part.EndTimeMs(); end-line.StartTimeMs > line.DurationMs {
				line.DurationMs = end - line.StartTimeMs
			}
		}
	}
	return line, line.Text != ""
}

// partCollector walks span trees in document order. Text between spans becomes
// a zero-duration part at the end of the previous span. Background spans
// trail the main vocal in the markup but overlap it in time, so callers take
// the parts through sorted.
type partCollector struct {
	parts  []lyrics.Part
	text   strings.Builder
	cursor int64
}

func (c *partCollector) collect(node *ttmlNode, background bool) {
	for _, child := range node.Children {
		if child.Span == nil {
			if child.Text == "" {
				continue
			}
			text := child.Text
			if strings.TrimSpace(text) == "" {
				text = " "
			}
			if len(c.parts) == 0 && strings.TrimSpace(text) == "" {
				continue
			}
			c.parts = append(c.parts, lyrics.Part{
				StartTimeMs:  c.cursor,
				Text:         text,
				IsBackground: background,
			})
			c.text.WriteString(text)
			continue
		}

		span := child.Span
		bg := background || span.Role == "x-bg"
		if span.hasSpans() {
			c.collect(span, bg)
			continue
		}

		text := span.plainText()
		if text == "" {
			continue
		}
		begin, errBegin := parseClock(span.Begin)
		end, errEnd := parseClock(span.End)
		if errBegin != nil {
			begin = c.cursor
		}
		if errEnd != nil || end < begin {
			end = begin
		}
		c.parts = append(c.parts, lyrics.Part{
			StartTimeMs:  begin,
			DurationMs:   end - begin,
			Text:         text,
			IsBackground: bg,
		})
		c.text.WriteString(text)
		c.cursor = end
	}
}

// sorted returns the parts ordered by start. Ties keep document order.
func (c *partCollector) sorted() []lyrics.Part {
	sort.SliceStable(c.parts, func(i, j int) bool {
		return c.parts[i].StartTimeMs < c.parts[j].StartTimeMs
	})
	return c.parts
}

func attachTranslations(doc *lyrics.Document, keys map[string]int, translations []ttmlSideDocument) {
	for _, tr := range translations {
		for i := range tr.Texts {
			idx, ok := keys[tr.Texts[i].For]
			if !ok {
				continue
			}
			text := collapseSpace(tr.Texts[i].plainText())
			if text == "" {
				continue
			}
			doc.Lines[idx].Translation = &lyrics.Translation{Text: text, Lang: tr.Lang}
		}
	}
}

// attachTransliterations sets the plain romanization and, when the side
// document is itself span-timed, the timed romanization parts.
func attachTransliterations(doc *lyrics.Document, keys map[string]int, transliterations []ttmlSideDocument) {
	for _, tl := range transliterations {
		for i := range tl.Texts {
			node := &tl.Texts[i]
			idx, ok := keys[node.For]
			if !ok {
				continue
			}
			line := &doc.Lines[idx]
			line.Romanization = collapseSpace(node.plainText())
			if node.hasSpans() {
				c := partCollector{cursor: line.StartTimeMs}
				c.collect(node, false)
				line.TimedRomanization = c.sorted()
			}
		}
	}
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// parseClock parses a TTML time expression to milliseconds. Accepted forms
// are h:mm:ss.fff, mm:ss.fff, ss.fff and offsets with an s or ms suffix.
func parseClock(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty time expression")
	}

	if strings.HasSuffix(value, "ms") {
		ms, err := strconv.ParseFloat(strings.TrimSuffix(value, "ms"), 64)
		if err != nil {
			return 0, err
		}
		return int64(math.Round(ms)), nil
	}
	value = strings.TrimSuffix(value, "s")

	parts := strings.Split(value, ":")
	var hours, minutes, seconds float64
	var err error

	switch len(parts) {
	case 1:
		seconds, err = strconv.ParseFloat(parts[0], 64)
	case 2:
		if minutes, err = strconv.ParseFloat(parts[0], 64); err == nil {
			seconds, err = strconv.ParseFloat(parts[1], 64)
		}
	case 3:
		if hours, err = strconv.ParseFloat(parts[0], 64); err == nil {
			if minutes, err = strconv.ParseFloat(parts[1], 64); err == nil {
				seconds, err = strconv.ParseFloat(parts[2], 64)
			}
		}
	default:
		return 0, fmt.Errorf("invalid time format: %s", value)
	}
	if err != nil {
		return 0, fmt.Errorf("invalid time format %s: %w", value, err)
	}

	total := hours*3600 + minutes*60 + seconds
	if total < 0 {
		return 0, fmt.Errorf("negative time: %s", value)
	}
	return int64(math.Round(total * 1000)), nil
}

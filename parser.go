package xmlvalidate

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/agentflare-ai/go-xmldom"
	"github.com/dustin/go-humanize"
	"github.com/grafana/regexp"
	"github.com/pkg/errors"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Parser turns document bytes into a DOM. Well-formedness errors are
// returned as problems, never as errors: a nil document always comes with
// at least one problem.
type Parser interface {
	Parse(content []byte) (xmldom.Document, []Problem)
}

// TolerantParser is the Parser used by the command. It keeps no state
// between calls, so problems of one document never show up in the next.
type TolerantParser struct {
	// MaxSize rejects larger documents when positive
	MaxSize int64
}

var (
	declaration     = regexp.MustCompile(`^\s*<\?xml[^>]*?\?>`)
	declaredCharset = regexp.MustCompile(`(encoding\s*=\s*)(["'])([A-Za-z][A-Za-z0-9._:-]*)(["'])`)

	// markup whose content is not scanned for entity references
	opaqueMarkup      = regexp.MustCompile(`(?s)<!--.*?-->|<!\[CDATA\[.*?\]\]>|<\?.*?\?>|<!DOCTYPE[^\[>]*(?:\[.*?\])?[^>]*>`)
	entityReference   = regexp.MustCompile(`&([A-Za-z_:][-A-Za-z0-9._:]*);`)
	entityDeclaration = regexp.MustCompile(`<!ENTITY\s+([A-Za-z_:][-A-Za-z0-9._:]*)\s`)
)

// predefinedEntities are the entities every XML document knows
var predefinedEntities = map[string]bool{"amp": true, "lt": true, "gt": true, "quot": true, "apos": true}

// Parse implements Parser
func (p TolerantParser) Parse(content []byte) (xmldom.Document, []Problem) {
	if p.MaxSize > 0 && int64(len(content)) > p.MaxSize {
		return nil, []Problem{{Message: fmt.Sprintf("Document of %s exceeds the maximum size of %s",
			humanize.IBytes(uint64(len(content))), humanize.IBytes(uint64(p.MaxSize)))}}
	}

	content, problem := toUTF8(content)
	if problem != nil {
		return nil, []Problem{*problem}
	}
	problems, content, declared := undefinedEntities(content)
	if problem := wellFormed(content, declared); problem != nil {
		problems = append(problems, *problem)
	}
	if len(problems) > 0 {
		sort.SliceStable(problems, func(i, j int) bool { return problems[i].Line < problems[j].Line })
		return nil, problems
	}

	doc, err := xmldom.NewDecoderWithOptions(bytes.NewReader(content), &xmldom.DecoderOptions{
		Strict: true,
		Entity: declared,
	}).Decode()
	if err != nil {
		return nil, []Problem{{Message: err.Error()}}
	}
	if doc == nil || doc.DocumentElement() == nil {
		return nil, []Problem{{Line: 1, Message: "Document is empty"}}
	}
	return doc, nil
}

// toUTF8 removes a byte order mark and transcodes documents whose XML
// declaration names another encoding. The declaration is rewritten to
// UTF-8 so later passes read the converted bytes as they are.
func toUTF8(content []byte) ([]byte, *Problem) {
	decoded := hasBOM(content)
	if decoded {
		out, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), content)
		if err != nil {
			return nil, &Problem{Line: 1, Message: "Document is not valid UTF-16 or UTF-8"}
		}
		content = out
	}

	decl := declaration.Find(content)
	if decl == nil {
		return content, nil
	}
	m := declaredCharset.FindSubmatchIndex(decl)
	if m == nil {
		return content, nil
	}
	name := string(decl[m[6]:m[7]])
	switch strings.ToLower(name) {
	case "utf-8", "utf8", "us-ascii", "ascii":
		return content, nil
	}
	if decoded {
		return rewriteCharset(content, m[6], m[7]), nil
	}

	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, &Problem{Line: 1, Message: fmt.Sprintf("Unsupported encoding %s", name)}
	}
	out, _, err := transform.Bytes(enc.NewDecoder(), content)
	if err != nil {
		return nil, &Problem{Line: 1, Message: fmt.Sprintf("Input is not proper %s", name)}
	}

	// the declaration is ASCII in every encoding it could be found in, so
	// its offsets are unchanged
	return rewriteCharset(out, m[6], m[7]), nil
}

func rewriteCharset(content []byte, start, end int) []byte {
	out := make([]byte, 0, len(content))
	out = append(out, content[:start]...)
	out = append(out, "UTF-8"...)
	return append(out, content[end:]...)
}

func hasBOM(content []byte) bool {
	return bytes.HasPrefix(content, []byte{0xEF, 0xBB, 0xBF}) ||
		bytes.HasPrefix(content, []byte{0xFE, 0xFF}) ||
		bytes.HasPrefix(content, []byte{0xFF, 0xFE})
}

// undefinedEntities reports every reference to an entity that is neither
// predefined nor declared in the internal subset, and returns the content
// with those references removed so the structural scan can go on past them.
// Line numbers are unaffected, no newline is ever removed. The declared
// entities are returned for the structural scan.
func undefinedEntities(content []byte) ([]Problem, []byte, map[string]string) {
	masked := append([]byte(nil), content...)
	declared := map[string]string{}
	for _, loc := range opaqueMarkup.FindAllIndex(content, -1) {
		for _, m := range entityDeclaration.FindAllSubmatch(content[loc[0]:loc[1]], -1) {
			declared[string(m[1])] = ""
		}
		for i := loc[0]; i < loc[1]; i++ {
			if masked[i] != '\n' {
				masked[i] = ' '
			}
		}
	}

	var (
		problems []Problem
		out      []byte
		last     int
	)
	for _, m := range entityReference.FindAllSubmatchIndex(masked, -1) {
		name := string(masked[m[2]:m[3]])
		if _, ok := declared[name]; ok || predefinedEntities[name] {
			continue
		}
		problems = append(problems, Problem{
			Line:    1 + bytes.Count(content[:m[0]], []byte("\n")),
			Message: fmt.Sprintf("Entity '%s' not defined", name),
		})
		out = append(out, content[last:m[0]]...)
		last = m[1]
	}
	if problems == nil {
		return nil, content, declared
	}
	return problems, append(out, content[last:]...), declared
}

// wellFormed scans the whole document and reports its first structural
// well-formedness error. Those errors are fatal, the scan stops there.
func wellFormed(content []byte, entities map[string]string) *Problem {
	d := xml.NewDecoder(bytes.NewReader(content))
	d.Strict = true
	d.Entity = entities

	depth, roots := 0, 0
	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			var syntax *xml.SyntaxError
			if errors.As(err, &syntax) {
				return &Problem{Line: syntax.Line, Message: syntax.Msg}
			}
			line, _ := d.InputPos()
			return &Problem{Line: line, Message: err.Error()}
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 && roots > 0 {
				line, _ := d.InputPos()
				return &Problem{Line: line, Message: "Extra content at the end of the document"}
			}
			if depth == 0 {
				roots++
			}
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			if depth > 0 || len(bytes.TrimSpace(t)) == 0 {
				continue
			}
			line, _ := d.InputPos()
			if roots > 0 {
				return &Problem{Line: line, Message: "Extra content at the end of the document"}
			}
			return &Problem{Line: line, Message: "Start tag expected, '<' not found"}
		}
	}

	if roots == 0 {
		if len(bytes.TrimSpace(content)) == 0 {
			return &Problem{Line: 1, Message: "Document is empty"}
		}
		line, _ := d.InputPos()
		return &Problem{Line: line, Message: "Start tag expected, '<' not found"}
	}
	return nil
}

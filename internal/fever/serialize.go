package fever

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Format selects the response encoding.
type Format int

const (
	FormatJSON Format = iota
	FormatXML
)

// ContentType returns the HTTP content type for f.
func (f Format) ContentType() string {
	if f == FormatXML {
		return "text/xml"
	}
	return "application/json"
}

func (f Format) String() string {
	if f == FormatXML {
		return "xml"
	}
	return "json"
}

// Serialize renders the envelope in the requested format.
func Serialize(e *Envelope, f Format) ([]byte, error) {
	tree := e.Tree()
	if f == FormatXML {
		return EncodeXML(tree), nil
	}
	return EncodeJSON(tree)
}

// MarshalJSON implements json.Marshaler.
func (n Node) MarshalJSON() ([]byte, error) {
	return EncodeJSON(n)
}

// EncodeJSON encodes maps as objects in key insertion order and lists as arrays.
func EncodeJSON(n Node) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, n); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, n Node) error {
	switch n.kind {
	case MapKind:
		buf.WriteByte('{')
		for i, k := range n.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := writeJSON(buf, n.values[k]); err != nil {
				return fmt.Errorf("encode %q: %w", k, err)
			}
		}
		buf.WriteByte('}')
	case ListKind:
		buf.WriteByte('[')
		for i, item := range n.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		b, err := json.Marshal(n.scalar)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	return nil
}

const xmlProlog = `<?xml version="1.0" encoding="utf-8"?>`

// EncodeXML wraps the tree in <response>. Map entries become elements named
// by their key. Each list item is wrapped in another element named like the
// list, so <items> holds one <items> per entry.
func EncodeXML(n Node) []byte {
	var buf bytes.Buffer
	buf.WriteString(xmlProlog)
	buf.WriteString("<response>")
	writeXML(&buf, "response", n)
	buf.WriteString("</response>")
	return stripControlChars(buf.Bytes())
}

// writeXML writes the content of the element named key holding n.
func writeXML(buf *bytes.Buffer, key string, n Node) {
	switch n.kind {
	case MapKind:
		for _, k := range n.keys {
			buf.WriteString("<" + k + ">")
			writeXML(buf, k, n.values[k])
			buf.WriteString("</" + k + ">")
		}
	case ListKind:
		for _, item := range n.items {
			buf.WriteString("<" + key + ">")
			writeXML(buf, key, item)
			buf.WriteString("</" + key + ">")
		}
	default:
		writeXMLText(buf, scalarText(n.scalar))
	}
}

func scalarText(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case int64:
		return strconv.FormatInt(s, 10)
	default:
		return fmt.Sprint(s)
	}
}

var xmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

// writeXMLText emits s raw unless escaping would change it, in which case
// it goes into a CDATA section.
func writeXMLText(buf *bytes.Buffer, s string) {
	if xmlEscaper.Replace(s) == s {
		buf.WriteString(s)
		return
	}
	buf.WriteString("<![CDATA[")
	buf.WriteString(strings.ReplaceAll(s, "]]>", "]]]]><![CDATA[>"))
	buf.WriteString("]]>")
}

// stripControlChars drops bytes 0x00-0x1F and 0x7F.
func stripControlChars(b []byte) []byte {
	out := b[:0]
	for _, c := range b {
		if c < 0x20 || c == 0x7f {
			continue
		}
		out = append(out, c)
	}
	return out
}

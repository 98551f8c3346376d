package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"strconv"
	"strings"

	chromahtml "github.com/alecthomas/chroma/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
)

// DefaultModelLabel is shown in the model-attribution line when the server doesn't name its model.
const DefaultModelLabel = "Ollama"

// MessageView is the template-ready form of a Message. Only the fields relevant to the message's
// variant are filled.
type MessageView struct {
	ID          string
	Sender      Sender
	SenderLabel string
	Time        string
	Variant     Variant

	// Lines would be filled if Variant is VariantText.
	Lines []string

	// ModelInfo, SQL, SQLHTML, Explanation, Table and NoData would be filled if Variant is VariantResponse.
	ModelInfo   string
	SQL         string
	SQLHTML     template.HTML
	Explanation string
	Table       *TableView
	NoData      bool

	// ErrorText would be filled if Variant is VariantError.
	ErrorText string
}

// TableView is a rendered result set. Headers are positional, derived from the first row's width.
type TableView struct {
	Headers  []string
	Rows     [][]string
	RowCount int
}

var sqlMarkdown = goldmark.New(
	goldmark.WithExtensions(
		highlighting.NewHighlighting(
			highlighting.WithStyle("github"),
			highlighting.WithFormatOptions(chromahtml.TabWidth(2)),
		),
	),
)

// RenderMessage renders a message into its view form. It has no side effects; the output depends only
// on the message.
func RenderMessage(msg Message) (MessageView, error) {
	view := MessageView{
		ID:          msg.ID,
		Sender:      msg.Sender,
		SenderLabel: senderLabel(msg.Sender),
		Time:        msg.Timestamp.Format("15:04"),
		Variant:     msg.Variant,
	}

	switch msg.Variant {
	case VariantResponse:
		p := msg.Payload
		if p == nil {
			p = &Payload{}
		}
		view.ModelInfo = p.ModelInfo
		if view.ModelInfo == "" {
			view.ModelInfo = DefaultModelLabel
		}
		if p.SQL != "" {
			sqlHTML, err := HighlightSQL(p.SQL)
			if err != nil {
				return MessageView{}, err
			}
			view.SQL = p.SQL
			view.SQLHTML = sqlHTML
		}
		view.Explanation = p.Explanation
		if p.Table != nil {
			if len(p.Table) == 0 {
				view.NoData = true
			} else {
				view.Table = renderTable(p.Table)
			}
		}
	case VariantError:
		view.ErrorText = msg.Text
	default:
		view.Lines = strings.Split(msg.Text, "\n")
	}

	return view, nil
}

func senderLabel(s Sender) string {
	if s == SenderUser {
		return "👤 You"
	}
	return "🤖 SQL Assistant"
}

func renderTable(rows [][]any) *TableView {
	headers := make([]string, len(rows[0]))
	for i := range headers {
		headers[i] = fmt.Sprintf("Column %d", i+1)
	}

	cells := make([][]string, len(rows))
	for i, row := range rows {
		cells[i] = make([]string, len(row))
		for j, cell := range row {
			cells[i][j] = FormatCell(cell)
		}
	}

	return &TableView{
		Headers:  headers,
		Rows:     cells,
		RowCount: len(rows),
	}
}

// FormatCell renders a single result cell. Literal quote characters are stripped from string cells.
func FormatCell(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return strings.ReplaceAll(c, `"`, "")
	case json.Number:
		return c.String()
	case bool:
		return strconv.FormatBool(c)
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64)
	case int:
		return strconv.Itoa(c)
	case int64:
		return strconv.FormatInt(c, 10)
	}

	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// HighlightSQL renders sql as a syntax-highlighted, HTML-escaped code block.
func HighlightSQL(sql string) (template.HTML, error) {
	sql = strings.TrimSpace(sql)
	fence := strings.Repeat("`", max(3, longestBacktickRun(sql)+1))

	var src strings.Builder
	src.WriteString(fence)
	src.WriteString("sql\n")
	src.WriteString(sql)
	src.WriteString("\n")
	src.WriteString(fence)
	src.WriteString("\n")

	var buf bytes.Buffer
	if err := sqlMarkdown.Convert([]byte(src.String()), &buf); err != nil {
		return "", fmt.Errorf("failed to highlight sql: %w", err)
	}
	// goldmark escapes code block content, so the output is safe to embed.
	return template.HTML(buf.String()), nil
}

func longestBacktickRun(s string) int {
	longest, current := 0, 0
	for _, r := range s {
		if r != '`' {
			current = 0
			continue
		}
		current++
		longest = max(longest, current)
	}
	return longest
}

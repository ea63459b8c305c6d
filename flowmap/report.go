package flowmap

import (
	"bytes"
	"fmt"
	"html/template"
	"unicode/utf8"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

// reportValueLen truncates step values in reports.
const reportValueLen = 30

type reportRow struct {
	N        int
	Action   StepAction
	Target   string
	Selector string
	Value    string
}

type reportVisit struct {
	Index     int
	Heading   string
	StartedAt int64
	EndedAt   int64
	Rows      []reportRow
}

type reportPage struct {
	TopURL string
	Visits []reportVisit
}

type reportData struct {
	Meta    Meta
	Options int
	Pages   []reportPage
}

var reportTmpl = template.Must(template.New("report").Parse(`<html><body>
<h1>FlowMap</h1>
<p>Source: {{.Meta.Source}} v{{.Meta.Version}}{{if .Meta.RawFile}} from {{.Meta.RawFile}}{{end}}. Option catalogs: {{.Options}}.</p>
{{range .Pages}}<h2>{{.TopURL}}</h2>
{{range .Visits}}<h3>Visit {{.Index}}{{if .Heading}}: {{.Heading}}{{end}}</h3>
<table>
<thead><tr><th>#</th><th>action</th><th>target</th><th>selector</th><th>value</th></tr></thead>
<tbody>
{{range .Rows}}<tr><td>{{.N}}</td><td>{{.Action}}</td><td>{{.Target}}</td><td>{{.Selector}}</td><td>{{.Value}}</td></tr>
{{end}}</tbody>
</table>
{{end}}{{end}}</body></html>
`))

func buildReport(fm *FlowMap) reportData {
	data := reportData{Meta: fm.Meta, Options: len(fm.SelectOptionsStore)}
	for _, p := range fm.Pages {
		rp := reportPage{TopURL: p.TopURL}
		for _, v := range p.Visits {
			byKey := make(map[string]Element, len(v.Elements))
			for _, el := range v.Elements {
				byKey[el.Key] = el
			}
			rv := reportVisit{Index: v.VisitIndex, Heading: v.Heading, StartedAt: v.StartedAt, EndedAt: v.EndedAt}
			for i, s := range v.Steps {
				row := reportRow{N: i + 1, Action: s.Action, Value: stepValue(s)}
				switch {
				case s.Action == StepNavigate:
					row.Target = s.URL
				case s.Action == StepSubmit:
					row.Target = s.FormAction
				default:
					el := byKey[s.Element]
					row.Target = el.Label
					if row.Target == "" {
						row.Target = el.Key
					}
					row.Selector = el.Selector
				}
				rv.Rows = append(rv.Rows, row)
			}
			rp.Visits = append(rp.Visits, rv)
		}
		data.Pages = append(data.Pages, rp)
	}
	return data
}

func stepValue(s Step) string {
	var v string
	switch {
	case s.Action == StepSelect && s.Label != "":
		v = s.Label
	case s.Value != nil:
		v = *s.Value
	case s.Checked != nil:
		v = fmt.Sprint(*s.Checked)
	case s.Action == StepUpload:
		v = fmt.Sprintf("%d file(s)", s.FileCount)
	}
	if utf8.RuneCountInString(v) > reportValueLen {
		r := []rune(v)
		v = string(r[:reportValueLen-1]) + "…"
	}
	return v
}

// RenderHTML renders the human-readable step report.
func RenderHTML(fm *FlowMap) (string, error) {
	var buf bytes.Buffer
	if err := reportTmpl.Execute(&buf, buildReport(fm)); err != nil {
		return "", fmt.Errorf("flowmap: render html: %w", err)
	}
	return buf.String(), nil
}

// RenderMarkdown renders the step report as Markdown.
func RenderMarkdown(fm *FlowMap) (string, error) {
	page, err := RenderHTML(fm)
	if err != nil {
		return "", err
	}
	conv := converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
	md, err := conv.ConvertString(page)
	if err != nil {
		return "", fmt.Errorf("flowmap: render markdown: %w", err)
	}
	return md, nil
}

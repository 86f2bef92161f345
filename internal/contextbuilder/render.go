package contextbuilder

import (
	"strings"
	"text/template"

	"gradebook/internal/logger"
)

// Sections holds the rendered fragments of the digest.
type Sections struct {
	SymbolHistory    string
	ConditionHistory string
}

const digestTemplate = `# Trade history digest
{{if .SymbolHistory}}{{.SymbolHistory}}{{end}}{{if .ConditionHistory}}{{.ConditionHistory}}{{end}}`

var compiledDigestTemplate = template.Must(template.New("trade_digest").Parse(digestTemplate))

// RenderDigest assembles the fragments into the final text block.
func RenderDigest(sections Sections) string {
	var b strings.Builder
	if err := compiledDigestTemplate.Execute(&b, sections); err != nil {
		logger.Warnf("context: digest render failed: %v", err)
		return fallbackDigest(sections)
	}
	return b.String()
}

func fallbackDigest(sections Sections) string {
	var b strings.Builder
	b.WriteString("# Trade history digest\n")
	if s := strings.TrimSpace(sections.SymbolHistory); s != "" {
		b.WriteString(s)
		b.WriteString("\n")
	}
	if s := strings.TrimSpace(sections.ConditionHistory); s != "" {
		b.WriteString(s)
		b.WriteString("\n")
	}
	return b.String()
}

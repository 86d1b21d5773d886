package archive

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/JakeFAU/seo-brief-automator/internal/brief"
)

var pageTemplate = template.Must(template.New("brief").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>SEO Brief: {{.FocusKeyword}}</title>
<style>
body { font-family: Arial, sans-serif; line-height: 1.6; margin: 40px; }
.header { background: #f4f4f4; padding: 20px; border-radius: 5px; margin-bottom: 30px; }
.stats { display: flex; justify-content: space-around; text-align: center; margin: 20px 0; }
.stat { background: #e3f2fd; padding: 15px; border-radius: 5px; flex: 1; margin: 0 10px; }
.custom-list, .custom-list-ol { padding-left: 20px; }
.custom-list-item { margin-bottom: 8px; }
</style>
</head>
<body>
<div class="header">
<h1>SEO Content Brief</h1>
<p><strong>Keyword:</strong> {{.FocusKeyword}}</p>
<p><strong>Target Audience:</strong> {{.BuyerPersona}}</p>
<p><strong>Content Type:</strong> {{.TopicTheme}}</p>
<p><strong>Content ID:</strong> {{.ContentID}}</p>
<p><strong>Generated:</strong> {{.Generated}}</p>
</div>
<div class="stats">
<div class="stat"><h3>Articles Analyzed</h3><p>{{.ArticlesFound}}</p></div>
</div>
<div class="section">
{{.Body}}
</div>
</body>
</html>
`))

type pageData struct {
	FocusKeyword  string
	TopicTheme    string
	BuyerPersona  string
	ContentID     string
	Generated     string
	ArticlesFound int
	Body          template.HTML
}

func renderPage(record brief.CombinedRecord) ([]byte, error) {
	data := pageData{
		FocusKeyword:  record.FocusKeyword,
		TopicTheme:    record.TopicTheme,
		BuyerPersona:  record.BuyerPersona,
		ContentID:     record.ContentID,
		Generated:     record.GeneratedAt.Format("2006-01-02 15:04:05 MST"),
		ArticlesFound: record.SERPAnalysis.ArticlesFound,
	}
	if record.FinalBrief != nil {
		// html_output is produced by the markdown renderer, not user input.
		data.Body = template.HTML(record.FinalBrief.HTMLOutput) // #nosec G203
	}
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render brief page: %w", err)
	}
	return buf.Bytes(), nil
}

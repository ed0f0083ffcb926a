package notify

// fallbackTemplate renders when no custom template is configured. html/
// template auto-escapes every interpolated field, satisfying the
// dynamic-text-must-be-escaped rule for titles, summaries, sources, and any
// other text drawn from an InformationUnit.
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>AI Digest - {{.Date}}</title></head>
<body style="font-family:sans-serif;max-width:720px;margin:0 auto;">
  <h1>AI Digest &mdash; {{.Date}}</h1>
  <p style="color:#666;">
    {{.Totals.Fetched}} fetched &middot; {{.Totals.Analyzed}} analyzed &middot; {{.Totals.Filtered}} filtered
  </p>

  {{if .DailySummary}}
  <p>{{.DailySummary}}</p>
  {{end}}

  {{if .TopPicks}}
  <h2>Top Picks</h2>
  <ul>
    {{range .TopPicks}}
    <li>
      <strong>{{.Title}}</strong> <span style="color:#888;">({{.L3Root}}, score {{printf "%.1f" .ValueScore}})</span>
      <p>{{.Summary}}</p>
      {{if .KeyInsights}}
      <ul>
        {{range .KeyInsights}}<li>{{.}}</li>{{end}}
      </ul>
      {{end}}
      {{if .Sources}}
      <p style="color:#888;font-size:0.9em;">
        Sources: {{range $i, $s := .Sources}}{{if $i}}, {{end}}{{$s}}{{end}}
      </p>
      {{end}}
    </li>
    {{end}}
  </ul>
  {{end}}

  {{if .QuickReads}}
  <h2>Quick Reads</h2>
  <ul>
    {{range .QuickReads}}
    <li><strong>{{.Title}}</strong> &mdash; {{.Summary}}</li>
    {{end}}
  </ul>
  {{end}}

  <img src="cid:trend_chart" alt="trend chart" style="max-width:100%;">
</body>
</html>
`

package http

import (
	"html/template"
	"net/http"

	"go.uber.org/zap"
)

const indexTemplateText = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Anemia Classification</title>
</head>
<body>
<h1>Anemia Classification</h1>
{{if not .ModelLoaded}}<p class="degraded">Model not loaded: predictions are unavailable.</p>{{end}}
<form id="predict-form" method="post" action="/predict">
<table>
<tr><th>Parameter</th><th>Value</th><th>Normal range</th></tr>
{{range .Parameters}}
<tr>
<td><label for="{{.Name}}">{{.Name}}</label></td>
<td><input id="{{.Name}}" name="{{.Name}}" type="text"></td>
<td>{{if .HasRange}}{{.Low}} &ndash; {{.High}} {{.Unit}}{{end}}</td>
</tr>
{{end}}
</table>
<button type="submit">Predict</button>
</form>
<p>API: POST /predict with a JSON body of parameter values.</p>
</body>
</html>`

var indexTemplate = template.Must(template.New("index").Parse(indexTemplateText))

type indexParameter struct {
	Name     string
	HasRange bool
	Low      float64
	High     float64
	Unit     string
}

func (s *Service) handleIndex(w http.ResponseWriter, r *http.Request) {
	parameters := make([]indexParameter, 0, len(s.meta.Features))
	for _, name := range s.meta.Features {
		parameter := indexParameter{Name: name}
		if bounds, ok := s.meta.ReferenceRanges[name]; ok {
			parameter.HasRange = true
			parameter.Low = bounds[0]
			parameter.High = bounds[1]
			parameter.Unit = s.meta.Units[name]
		}
		parameters = append(parameters, parameter)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := indexTemplate.Execute(w, map[string]interface{}{
		"Parameters":  parameters,
		"ModelLoaded": s.ModelLoaded(),
	})
	if err != nil {
		s.logger.Error("render index failed", zap.Error(err))
	}
}

package server

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/rs/zerolog/log"
)

//go:embed static/index.html
var staticFS embed.FS

var indexTmpl = template.Must(template.ParseFS(staticFS, "static/index.html"))

// indexData fills the dashboard template.
type indexData struct {
	Version  string
	Linkage  string
	Selector string
	Watching string
}

// serveIndex renders the dashboard with the configured defaults.
func (s *Service) serveIndex(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	data := indexData{
		Version:  s.version,
		Linkage:  s.config.Linkage,
		Selector: s.config.PipelineOptions().Selector.String(),
		Watching: s.watching,
	}
	s.mu.Unlock()

	var buf bytes.Buffer
	if err := indexTmpl.Execute(&buf, data); err != nil {
		log.Error().Err(err).Msg("Rendering dashboard failed")
		http.Error(w, "dashboard unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	_, _ = w.Write(buf.Bytes())
}

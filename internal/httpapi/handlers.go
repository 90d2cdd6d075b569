package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mediagate/mediagate/internal/backend"
	"github.com/mediagate/mediagate/internal/logstore"
	"github.com/mediagate/mediagate/internal/platform"
	"github.com/mediagate/mediagate/internal/relay"
	"github.com/mediagate/mediagate/internal/types"
)

const healthProbeTimeout = 10 * time.Second

type formatsRequest struct {
	URL string `json:"url"`
}

type formatsResponse struct {
	Title     string              `json:"title"`
	Thumbnail string              `json:"thumbnail"`
	Duration  float64             `json:"duration"`
	Platform  string              `json:"platform"`
	Formats   []types.MediaFormat `json:"formats"`
	Message   string              `json:"message,omitempty"`
}

func (s *Server) handleFormats(w http.ResponseWriter, r *http.Request) {
	var body formatsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.URL == "" {
		writeError(w, http.StatusBadRequest, codeMissingParams, "body must carry a url")
		return
	}

	src, err := platform.Classify(body.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidURL, "url is not an absolute http(s) address")
		return
	}

	meta, err := s.orch.Metadata(r.Context(), types.ExtractionRequest{
		URL:       src,
		Operation: types.OpMetadata,
	})
	if err != nil {
		s.writeExtractionError(w, err, false)
		return
	}

	resp := formatsResponse{
		Title:     meta.Title,
		Thumbnail: meta.ThumbnailURL,
		Duration:  meta.DurationSec,
		Platform:  meta.Platform,
		Formats:   meta.Formats,
	}
	if !meta.HasFormats() {
		resp.Message = "no downloadable formats found"
	}
	writeJSON(w, http.StatusOK, resp)
}

type downloadRequest struct {
	URL    string `json:"url"`
	Format string `json:"format"`
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	var body downloadRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.URL == "" || body.Format == "" {
		writeError(w, http.StatusBadRequest, codeMissingParams, "body must carry url and format")
		return
	}

	src, err := platform.Classify(body.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidURL, "url is not an absolute http(s) address")
		return
	}

	direct, err := s.orch.Resolve(r.Context(), types.ExtractionRequest{
		URL:       src,
		Format:    body.Format,
		Operation: types.OpResolve,
	})
	if err != nil {
		s.writeExtractionError(w, err, true)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"downloadUrl": direct})
}

// streamWriter defers the Content-Type decision until the first body byte,
// when an upstream source already knows the real media type.
type streamWriter struct {
	http.ResponseWriter
	upstream *relay.UpstreamSource
	wrote    bool
}

func (sw *streamWriter) Write(p []byte) (int, error) {
	if !sw.wrote {
		sw.wrote = true
		if sw.upstream != nil {
			if ct := sw.upstream.ContentType(); ct != "" {
				sw.Header().Set("Content-Type", ct)
			}
			if n := sw.upstream.ContentLength(); n > 0 {
				sw.Header().Set("Content-Length", strconv.FormatInt(n, 10))
			}
		}
	}
	return sw.ResponseWriter.Write(p)
}

func (sw *streamWriter) Flush() {
	if f, ok := sw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	release, ok := s.acquireStreamSlot()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, codeServerBusy, "streaming capacity reached, retry later")
		return
	}
	defer release()

	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		writeError(w, http.StatusBadRequest, codeMissingParams, "url query parameter required")
		return
	}
	src, err := platform.Classify(rawURL)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidURL, "url is not an absolute http(s) address")
		return
	}
	format := r.URL.Query().Get("format")

	// Prefer relaying the resolved direct URL; a merged selector has no
	// single direct URL, and a failed resolve falls back to piping the
	// extractor's stdout.
	var source relay.Source
	var upstream *relay.UpstreamSource
	if !strings.Contains(format, "+") {
		direct, err := s.orch.Resolve(r.Context(), types.ExtractionRequest{
			URL:       src,
			Format:    format,
			Operation: types.OpResolve,
		})
		if err == nil {
			upstream = &relay.UpstreamSource{URL: direct, Client: s.upstream}
			source = upstream
		} else if r.Context().Err() != nil {
			return
		}
	}
	if source == nil {
		streamReq := types.ExtractionRequest{URL: src, Format: format, Operation: types.OpStream}
		source = &relay.ProcessSource{
			Start: func(ctx context.Context) (*backend.Process, error) { return s.orch.StartStream(ctx, streamReq) },
		}
		w.Header().Set("Content-Type", "video/mp4")
	}

	session := relay.NewSession(source, s.hub, s.log)
	w.Header().Set("X-Session-Id", session.ID)

	out := &streamWriter{ResponseWriter: w, upstream: upstream}
	if err := session.Run(r.Context(), out); err != nil && session.State() == relay.StateFailed && !out.wrote {
		s.writeExtractionError(w, err, false)
	}
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	release, ok := s.acquireStreamSlot()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, codeServerBusy, "streaming capacity reached, retry later")
		return
	}
	defer release()

	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		writeError(w, http.StatusBadRequest, codeMissingParams, "url query parameter required")
		return
	}
	src, err := platform.Classify(rawURL)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidURL, "url is not an absolute http(s) address")
		return
	}
	target := r.URL.Query().Get("format")
	if target == "" {
		target = "mp3"
	}

	req := types.ExtractionRequest{URL: src, Format: "bestaudio/best", Operation: types.OpConvert}
	source := &relay.ProcessSource{
		Start: func(ctx context.Context) (*backend.Process, error) { return s.orch.StartConversion(ctx, req, target) },
	}

	session := relay.NewSession(source, s.hub, s.log)
	w.Header().Set("X-Session-Id", session.ID)
	w.Header().Set("Content-Type", convertContentType(target))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "audio."+target))

	out := &streamWriter{ResponseWriter: w}
	if err := session.Run(r.Context(), out); err != nil && session.State() == relay.StateFailed && !out.wrote {
		s.writeExtractionError(w, err, false)
	}
}

func convertContentType(target string) string {
	switch target {
	case "mp3":
		return "audio/mpeg"
	case "m4a", "aac":
		return "audio/mp4"
	}
	return "application/octet-stream"
}

type healthResponse struct {
	Status         string `json:"status"`
	BackendVersion string `json:"backend_version,omitempty"`
	ResponseTimeMS int64  `json:"response_time_ms"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	LogsCount      int    `json:"logs_count"`
	LastError      string `json:"last_error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	start := s.now()
	resp := healthResponse{
		Status:        "ok",
		UptimeSeconds: int64(s.now().Sub(s.started).Seconds()),
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
	defer cancel()
	version, err := s.orch.Version(ctx)
	if err != nil {
		resp.Status = "degraded"
	} else {
		resp.BackendVersion = version
	}
	resp.ResponseTimeMS = time.Since(start).Milliseconds()

	if s.logs != nil {
		resp.LogsCount = s.logs.Len()
		if e, ok := s.logs.LastError(); ok {
			resp.LastError = e.Message
		}
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		writeJSON(w, http.StatusOK, map[string]any{"count": 0, "entries": []logstore.Entry{}})
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	level := r.URL.Query().Get("type")
	if level == "" {
		level = r.URL.Query().Get("level")
	}
	entries := s.logs.Query(limit, level, r.URL.Query().Get("search"))
	writeJSON(w, http.StatusOK, map[string]any{"count": len(entries), "entries": entries})
}

func (s *Server) handleLogsFile(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		http.NotFound(w, r)
		return
	}
	raw, err := s.logs.FileContents()
	if err != nil || raw == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write(raw)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"uptime_seconds": int64(s.now().Sub(s.started).Seconds()),
	}
	if s.logs != nil {
		resp["logs"] = s.logs.Summarize()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleProgress streams a session's progress events as server-sent
// events until the terminal event arrives or the client leaves.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, codeMissingParams, "session query parameter required")
		return
	}
	if s.hub == nil {
		http.NotFound(w, r)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, codeProcessingError, "streaming unsupported")
		return
	}

	ch, cancel := s.hub.Subscribe(sessionID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
			if ev.Stage.Terminal() {
				return
			}
		}
	}
}

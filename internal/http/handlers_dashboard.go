package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"khorcha/internal/engine"
	"khorcha/internal/feed"
	applog "khorcha/internal/log"
)

// handleDashboard computes one dashboard from the user's current records.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.Snapshot(r.Context(), s.userID(r))
	if err != nil {
		s.log(r).ErrorContext(r.Context(), "Failed to load snapshot", "error", err)
		ErrorFrom(err).Write(w)
		return
	}
	d := engine.Compute(snap.Records, ParseParams(r.URL.Query()), s.now())
	NewJSONResponse().Body(d).Write(w)
}

// handleStream keeps a dashboard live over server-sent events. Each record
// change produces one "dashboard" event; a slow client only gets the latest.
// The first event, "session", carries the stream id used by the
// /api/stream/{id} endpoints to change the view in place.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		ErrorResponse(http.StatusInternalServerError, "streaming unsupported").Write(w)
		return
	}
	ctx := r.Context()
	userID := s.userID(r)
	logger := s.log(r)

	box := feed.NewMailbox()
	session := feed.NewSession(ParseParams(r.URL.Query()), box.Put,
		feed.WithClock(s.now),
		feed.WithLogger(logger.WithComponent(applog.ComponentFeed)))
	defer session.Close()

	if err := session.Attach(ctx, s.service, userID); err != nil {
		logger.ErrorContext(ctx, "Failed to attach stream", applog.FieldUserID, userID, "error", err)
		ErrorFrom(err).Write(w)
		return
	}

	atomic.AddInt64(&s.liveStreams, 1)
	defer atomic.AddInt64(&s.liveStreams, -1)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	streamID := s.streams.add(userID, session)
	defer s.streams.remove(streamID)

	id := uint64(1)
	if err := writeEvent(w, id, "session", map[string]string{"id": streamID}); err != nil {
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closing:
			return
		case d := <-box.C():
			id++
			if err := writeEvent(w, id, "dashboard", d); err != nil {
				logger.DebugContext(ctx, "Stream write failed", "error", err)
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, id uint64, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", strconv.FormatUint(id, 10), event, data)
	return err
}

// handleExport downloads the filtered current-month records as CSV.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.Snapshot(r.Context(), s.userID(r))
	if err != nil {
		s.log(r).ErrorContext(r.Context(), "Failed to load snapshot", "error", err)
		ErrorFrom(err).Write(w)
		return
	}
	now := s.now()
	params := ParseParams(r.URL.Query())
	records := engine.CurrentMonth(engine.Filter(snap.Records, params.Search, params.Category), now)

	body, err := engine.ExportCSV(records)
	if err != nil {
		ErrorFrom(err).Write(w)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", engine.ExportFilename(now)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

package http

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"khorcha/internal/feed"
)

// liveStream is one open dashboard stream, addressable by id so the client
// can change its view without reconnecting.
type liveStream struct {
	userID  string
	session *feed.Session
}

type streamRegistry struct {
	mu      sync.Mutex
	streams map[string]liveStream
}

func newStreamRegistry() *streamRegistry {
	return &streamRegistry{streams: make(map[string]liveStream)}
}

func (sr *streamRegistry) add(userID string, session *feed.Session) string {
	id := uuid.NewString()
	sr.mu.Lock()
	sr.streams[id] = liveStream{userID: userID, session: session}
	sr.mu.Unlock()
	return id
}

func (sr *streamRegistry) remove(id string) {
	sr.mu.Lock()
	delete(sr.streams, id)
	sr.mu.Unlock()
}

// get returns the session of stream id if it belongs to userID.
func (sr *streamRegistry) get(id, userID string) (*feed.Session, bool) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	ls, ok := sr.streams[id]
	if !ok || ls.userID != userID {
		return nil, false
	}
	return ls.session, true
}

func (s *Server) streamSession(w http.ResponseWriter, r *http.Request) (*feed.Session, bool) {
	session, ok := s.streams.get(r.PathValue("id"), s.userID(r))
	if !ok {
		NotFoundError("stream not found").Write(w)
	}
	return session, ok
}

// handleStreamParams replaces the view of an open stream. It takes the same
// query parameters as GET /api/stream.
func (s *Server) handleStreamParams(w http.ResponseWriter, r *http.Request) {
	session, ok := s.streamSession(w, r)
	if !ok {
		return
	}
	session.SetParams(ParseParams(r.URL.Query()))
	w.WriteHeader(http.StatusNoContent)
}

// handleStreamPage moves one list of an open stream to another page. Without
// a month the current-month list moves.
func (s *Server) handleStreamPage(w http.ResponseWriter, r *http.Request) {
	session, ok := s.streamSession(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	page, err := strconv.Atoi(strings.TrimSpace(q.Get("page")))
	if err != nil || page < 1 {
		BadRequestError("page must be a positive number").Write(w)
		return
	}
	month := strings.TrimSpace(q.Get("month"))
	if month != "" {
		if _, err := time.Parse("2006-01", month); err != nil {
			BadRequestError("month must be YYYY-MM").Write(w)
			return
		}
	}
	session.GoToPage(month, page)
	w.WriteHeader(http.StatusNoContent)
}

// handleStreamClear drops the search and category filters of an open stream.
func (s *Server) handleStreamClear(w http.ResponseWriter, r *http.Request) {
	session, ok := s.streamSession(w, r)
	if !ok {
		return
	}
	session.ClearFilters()
	w.WriteHeader(http.StatusNoContent)
}

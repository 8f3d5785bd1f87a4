package http

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.ready(r.Context()); err != nil {
		s.log(r).WarnContext(r.Context(), "Readiness check failed", "error", err)
		ErrorResponse(http.StatusServiceUnavailable, "store unavailable").Write(w)
		return
	}
	NewJSONResponse().Body(map[string]string{"status": "ready"}).Write(w)
}

// handleMetrics writes plain-text counters, one "name value" pair per line.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	tm := s.traceMiddleware.GetMetrics()
	rl := s.rateLimiter.GetMetrics()
	sec := s.securityDetector.GetMetrics()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "khorcha_uptime_seconds %d\n", int64(s.now().Sub(s.startedAt)/time.Second))
	fmt.Fprintf(w, "khorcha_requests_total %d\n", tm.TotalRequests)
	fmt.Fprintf(w, "khorcha_last_response_time_microseconds %d\n", tm.LastResponseTimeUsec)
	fmt.Fprintf(w, "khorcha_rate_limit_hits_total %d\n", rl.TotalHits)
	fmt.Fprintf(w, "khorcha_rate_limit_clients %d\n", rl.ClientCount)
	fmt.Fprintf(w, "khorcha_suspicious_requests_total %d\n", sec.SuspiciousRequests)
	fmt.Fprintf(w, "khorcha_live_streams %d\n", atomic.LoadInt64(&s.liveStreams))
	fmt.Fprintf(w, "khorcha_commands_total %d\n", atomic.LoadInt64(&s.commands))
}

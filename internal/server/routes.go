package server

import "net/http"

// Handler returns the relay's HTTP routes: the health check and device
// websocket at "/", the websocket at "/ws", the test console at "/test" and,
// when enabled, the Prometheus endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/test", s.handleTestPage)
	if s.metrics != nil {
		mux.Handle(s.cfg.Metrics.Path, s.metrics.Handler())
	}
	return mux
}

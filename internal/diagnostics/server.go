// Package diagnostics exposes a running Controller over HTTP: per-channel
// stats and a deadlock dump, in the gorilla/mux style the corpus's
// monitoring package uses for its simulation control endpoints.
package diagnostics

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"

	"github.com/gorilla/mux"
)

// controller is the subset of *dramsim.Controller the server depends on. It
// is an interface, not a direct dependency, so this package never imports
// the root module and so it can be exercised against a fake in tests.
type controller interface {
	SummaryText() string
	ChannelStats(name string) (string, bool)
	PrintDeadlock(w io.Writer)
}

// Server serves a Controller's live diagnostics over HTTP.
type Server struct {
	ctrl       controller
	portNumber int
}

// NewServer creates a Server for ctrl.
func NewServer(ctrl controller) *Server {
	return &Server{ctrl: ctrl}
}

// WithPortNumber sets the port the server listens on; 0 (the default) picks
// a random free port, matching the corpus's monitoring server convention.
func (s *Server) WithPortNumber(port int) *Server {
	if port < 0 {
		fmt.Fprintf(os.Stderr, "port number %d is not allowed, using a random port instead\n", port)
		port = 0
	}

	s.portNumber = port

	return s
}

// Start launches the HTTP server in the background and returns the address
// it is listening on.
func (s *Server) Start() (string, error) {
	r := mux.NewRouter()
	r.HandleFunc("/summary", s.summary)
	r.HandleFunc("/stats/{channel}", s.channelStats)
	r.HandleFunc("/deadlock", s.deadlock)

	listener, err := net.Listen("tcp", ":"+strconv.Itoa(s.portNumber))
	if err != nil {
		return "", err
	}

	addr := listener.Addr().String()

	go func() {
		_ = http.Serve(listener, r)
	}()

	return addr, nil
}

func (s *Server) summary(w http.ResponseWriter, _ *http.Request) {
	fmt.Fprint(w, s.ctrl.SummaryText())
}

func (s *Server) channelStats(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["channel"]

	stats, ok := s.ctrl.ChannelStats(name)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, "no such channel: %s\n", name)

		return
	}

	fmt.Fprint(w, stats)
}

func (s *Server) deadlock(w http.ResponseWriter, _ *http.Request) {
	var buf bytes.Buffer
	s.ctrl.PrintDeadlock(&buf)
	w.Write(buf.Bytes())
}

// Package protocol implements the line-delimited JSON request/response
// transport used over stdin/stdout: one JSON object per line in each
// direction, one goroutine per request so a slow tool call never blocks
// others already in flight.
package protocol

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/websoft9/sshmux/internal/errs"
)

// Request is one decoded line from the client.
type Request struct {
	ID   string          `json:"id"`
	Tool string          `json:"tool"`
	Args json.RawMessage `json:"args"`
}

// Response is one encoded line sent back to the client.
type Response struct {
	ID     string `json:"id"`
	OK     bool   `json:"ok"`
	Result any    `json:"result,omitempty"`
	Error  *wireError `json:"error,omitempty"`
}

type wireError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Host    string `json:"host,omitempty"`
}

// Handler dispatches one decoded request and returns its result or error.
type Handler func(ctx context.Context, tool string, args map[string]any) (any, *errs.Error)

// Server reads newline-delimited JSON requests from r and writes responses
// to w, one goroutine per request so long-running tool calls don't
// serialize behind each other.
type Server struct {
	r       *bufio.Scanner
	w       io.Writer
	writeMu sync.Mutex
	handler Handler
	log     zerolog.Logger
}

// NewServer builds a Server reading from r and writing to w.
func NewServer(r io.Reader, w io.Writer, handler Handler, log zerolog.Logger) *Server {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &Server{r: scanner, w: w, handler: handler, log: log.With().Str("component", "protocol").Logger()}
}

// Serve reads request lines until r is exhausted, dispatching each one in
// its own goroutine. It returns when input ends. ctx is handed to every
// handler; cancelling it does not stop the read loop.
func (s *Server) Serve(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for s.r.Scan() {
		line := s.r.Bytes()
		if len(line) == 0 {
			continue
		}
		buf := make([]byte, len(line))
		copy(buf, line)

		var req Request
		if err := json.Unmarshal(buf, &req); err != nil {
			// No id could be recovered from unparsable JSON: log and drop
			// rather than guess at a correlation id.
			s.log.Warn().Err(err).Msg("dropping malformed request line")
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleOne(ctx, req)
		}()
	}
	return s.r.Err()
}

func (s *Server) handleOne(ctx context.Context, req Request) {
	var args map[string]any
	if len(req.Args) > 0 {
		if err := json.Unmarshal(req.Args, &args); err != nil {
			s.write(Response{
				ID: req.ID, OK: false,
				Error: &wireError{Kind: string(errs.KindConfigError), Message: "args is not a JSON object"},
			})
			return
		}
	}

	result, callErr := s.handler(ctx, req.Tool, args)
	if callErr != nil {
		s.write(Response{
			ID: req.ID, OK: false,
			Error: &wireError{Kind: string(callErr.Kind), Message: callErr.Message, Host: callErr.Host},
		})
		return
	}
	s.write(Response{ID: req.ID, OK: true, Result: result})
}

func (s *Server) write(resp Response) {
	encoded, err := json.Marshal(resp)
	if err != nil {
		s.log.Error().Err(err).Str("id", resp.ID).Msg("failed to marshal response")
		return
	}
	encoded = append(encoded, '\n')

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.w.Write(encoded); err != nil {
		s.log.Error().Err(err).Str("id", resp.ID).Msg("failed to write response")
	}
}

package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/websoft9/sshmux/internal/errs"
)

func TestServeEchoesResultForKnownTool(t *testing.T) {
	in := strings.NewReader(`{"id":"1","tool":"echo","args":{"msg":"hi"}}` + "\n")
	var out bytes.Buffer
	var mu sync.Mutex
	var gotTool string

	handler := func(ctx context.Context, tool string, args map[string]any) (any, *errs.Error) {
		mu.Lock()
		gotTool = tool
		mu.Unlock()
		return args["msg"], nil
	}

	s := NewServer(in, &out, handler, zerolog.Nop())
	if err := s.Serve(context.Background()); err != nil {
		t.Fatal(err)
	}

	if gotTool != "echo" {
		t.Errorf("got tool=%q", gotTool)
	}

	var resp Response
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp); err != nil {
		t.Fatalf("unparsable response: %v (%s)", err, out.String())
	}
	if !resp.OK || resp.ID != "1" || resp.Result != "hi" {
		t.Errorf("got resp=%+v", resp)
	}
}

func TestServeWritesErrorEnvelopeOnToolFailure(t *testing.T) {
	in := strings.NewReader(`{"id":"2","tool":"boom","args":{}}` + "\n")
	var out bytes.Buffer

	handler := func(ctx context.Context, tool string, args map[string]any) (any, *errs.Error) {
		return nil, errs.New(errs.KindSafetyBlocked, "nope")
	}

	s := NewServer(in, &out, handler, zerolog.Nop())
	if err := s.Serve(context.Background()); err != nil {
		t.Fatal(err)
	}

	var resp Response
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp); err != nil {
		t.Fatalf("unparsable response: %v", err)
	}
	if resp.OK || resp.Error == nil || resp.Error.Kind != "SafetyBlocked" {
		t.Errorf("got resp=%+v", resp)
	}
}

func TestServeDropsMalformedLineAndContinues(t *testing.T) {
	in := strings.NewReader("not json\n" + `{"id":"3","tool":"echo","args":{}}` + "\n")
	var out bytes.Buffer

	handler := func(ctx context.Context, tool string, args map[string]any) (any, *errs.Error) {
		return "ok", nil
	}

	s := NewServer(in, &out, handler, zerolog.Nop())
	if err := s.Serve(context.Background()); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected exactly one response line, got %d: %q", len(lines), out.String())
	}
}

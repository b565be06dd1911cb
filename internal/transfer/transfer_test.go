package transfer

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestValidateRemotePathRejectsTraversal(t *testing.T) {
	cases := []struct {
		path string
		ok   bool
	}{
		{"/home/user/file.txt", true},
		{"relative/path.txt", true},
		{"../etc/passwd", false},
		{"/home/../etc/passwd", false},
		{"", false},
	}
	for _, c := range cases {
		if got := ValidateRemotePath(c.path); got != c.ok {
			t.Errorf("ValidateRemotePath(%q) = %v, want %v", c.path, got, c.ok)
		}
	}
}

func TestCopyChunkedCopiesAllBytes(t *testing.T) {
	src := strings.Repeat("x", 100000)
	var dst bytes.Buffer
	n, err := copyChunked(context.Background(), &dst, strings.NewReader(src), 4096)
	if err != nil {
		t.Fatal(err)
	}
	if n != int64(len(src)) {
		t.Errorf("got %d bytes, want %d", n, len(src))
	}
	if dst.String() != src {
		t.Error("copied content does not match source")
	}
}

func TestCopyChunkedRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var dst bytes.Buffer
	_, err := copyChunked(ctx, &dst, strings.NewReader("data"), 4096)
	if err == nil {
		t.Fatal("expected error on cancelled context")
	}
}

func TestFirstHexTokenParsesMd5sumOutput(t *testing.T) {
	out := "d41d8cd98f00b204e9800998ecf8427e  /tmp/file.txt\n"
	if got := firstHexToken(out); got != "d41d8cd98f00b204e9800998ecf8427e" {
		t.Errorf("got %q", got)
	}
}

func TestFirstHexTokenParsesOpensslOutput(t *testing.T) {
	out := "MD5(/tmp/file.txt)= d41d8cd98f00b204e9800998ecf8427e\n"
	if got := firstHexToken(out); got != "d41d8cd98f00b204e9800998ecf8427e" {
		t.Errorf("got %q", got)
	}
}

func TestFirstHexTokenRejectsUnparsable(t *testing.T) {
	if got := firstHexToken("command not found\n"); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

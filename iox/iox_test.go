package iox

import (
	"errors"
	"strings"
	"testing"
)

type spyCloser struct{ closed bool }

func (s *spyCloser) Close() error { s.closed = true; return errors.New("ignored") }

func TestDiscardClose(t *testing.T) {
	s := &spyCloser{}
	DiscardClose(s)
	if !s.closed {
		t.Fatal("Close was not called")
	}
}

func TestCloseFunc(t *testing.T) {
	s := &spyCloser{}
	fn := CloseFunc(s)
	if s.closed {
		t.Fatal("Close called before invoking returned func")
	}
	fn()
	if !s.closed {
		t.Fatal("Close was not called")
	}
}

func TestDiscardErr(t *testing.T) {
	called := false
	DiscardErr(func() error {
		called = true
		return errors.New("ignored")
	})
	if !called {
		t.Fatal("fn was not called")
	}
}

type spyReadCloser struct {
	r      *strings.Reader
	closed bool
}

func (s *spyReadCloser) Read(p []byte) (int, error) { return s.r.Read(p) }
func (s *spyReadCloser) Close() error               { s.closed = true; return nil }

func TestDrainClose(t *testing.T) {
	s := &spyReadCloser{r: strings.NewReader("unread body")}
	DrainClose(s)
	if !s.closed {
		t.Fatal("Close was not called")
	}
	if s.r.Len() != 0 {
		t.Fatalf("body not drained, %d bytes left", s.r.Len())
	}
}

package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestFirstValid_FirstGoodResponseWins(t *testing.T) {
	slowStarted := make(chan struct{}, 1)
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slowStarted <- struct{}{}
		select {
		case <-r.Context().Done():
			return
		case <-time.After(5 * time.Second):
		}
		fmt.Fprint(w, "slow")
	}))
	defer slow.Close()
	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "fast")
	}))
	defer fast.Close()

	c := New(10 * time.Second)
	body, winner, err := c.FirstValid(context.Background(), []string{slow.URL, fast.URL}, nil)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if string(body) != "fast" || winner != fast.URL {
		t.Fatalf("winner=%q body=%q", winner, body)
	}
}

func TestFirstValid_InvalidResponsesAreSkipped(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>error</html>")
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data")
	}))
	defer good.Close()

	valid := func(status int, body []byte) error {
		if len(body) > 0 && body[0] == '<' {
			return errors.New("html page")
		}
		return nil
	}
	c := New(5 * time.Second)
	body, _, err := c.FirstValid(context.Background(), []string{bad.URL, good.URL}, valid)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if string(body) != "data" {
		t.Fatalf("body=%q", body)
	}
}

func TestFirstValid_AllFail_ReturnsValidationError(t *testing.T) {
	sentinel := errors.New("limited")
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, "limit marker")
	}))
	defer srv.Close()

	c := New(5 * time.Second)
	_, _, err := c.FirstValid(context.Background(), []string{srv.URL, srv.URL}, func(int, []byte) error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("err=%v, want sentinel", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("hits=%d", hits.Load())
	}
}

func TestFirstValid_NoEndpoints(t *testing.T) {
	c := New(time.Second)
	_, _, err := c.FirstValid(context.Background(), nil, nil)
	if !errors.Is(err, ErrNoEndpoints) {
		t.Fatalf("err=%v", err)
	}
}

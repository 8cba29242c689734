// Copyright 2021 The streamx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package engine

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogama/streamx/failure"
	"github.com/gogama/streamx/internal/testserver"
	"github.com/gogama/streamx/request"
)

var servers *testserver.Servers

func TestMain(m *testing.M) {
	servers = testserver.Start()
	code := m.Run()
	servers.Close()
	os.Exit(code)
}

func newTestEngine(t *testing.T) *HTTP {
	e, err := New(Options{
		Transport: servers.Transport(),
		HTTP2:     true,
		Logger:    testr.New(t),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

// drive runs p to completion on e, following every redirect and
// reading the body with a buffer of the given size.
func drive(t *testing.T, e Engine, p *request.Plan, bufSize int) ([]Event, string) {
	events := make(chan Event, 1024)
	req := e.Start(p, func(ev Event) { events <- ev })
	buf := make([]byte, bufSize)
	var evs []Event
	var body strings.Builder
	for {
		select {
		case ev := <-events:
			evs = append(evs, ev)
			switch ev.Kind {
			case Redirect:
				req.FollowRedirect()
			case ResponseStarted:
				req.Read(buf)
			case ReadCompleted:
				body.Write(buf[:ev.N])
				req.Read(buf)
			default:
				require.True(t, ev.Kind.Terminal())
				return evs, body.String()
			}
		case <-time.After(10 * time.Second):
			require.FailNow(t, "timed out waiting for engine event")
		}
	}
}

func kinds(evs []Event) []EventKind {
	ks := make([]EventKind, len(evs))
	for i := range evs {
		ks[i] = evs[i].Kind
	}
	return ks
}

func TestHTTP_Start(t *testing.T) {
	e := newTestEngine(t)
	for _, server := range servers.All() {
		t.Run(servers.Name(server), func(t *testing.T) {
			t.Run("single chunk", func(t *testing.T) {
				p, err := request.NewPlan("GET", testserver.Text("hello").URL(server), nil)
				require.NoError(t, err)
				evs, body := drive(t, e, p, 1024)
				assert.Equal(t, "hello", body)
				assert.Equal(t, []EventKind{ResponseStarted, ReadCompleted, Succeeded}, kinds(evs))
				info := evs[len(evs)-1].Info
				require.NotNil(t, info)
				assert.Equal(t, 200, info.StatusCode)
				assert.Equal(t, int64(5), info.ReceivedBytes)
				assert.Len(t, info.URLChain, 1)
				if server == servers.HTTP2 {
					assert.Equal(t, "HTTP/2.0", info.Proto)
				} else {
					assert.Equal(t, "HTTP/1.1", info.Proto)
				}
			})
			t.Run("small buffer", func(t *testing.T) {
				p, err := request.NewPlan("GET", testserver.Text("hel", "lo").URL(server), nil)
				require.NoError(t, err)
				evs, body := drive(t, e, p, 1)
				assert.Equal(t, "hello", body)
				var reads int
				for _, ev := range evs {
					if ev.Kind == ReadCompleted {
						reads++
						assert.Equal(t, 1, ev.N)
					}
				}
				assert.Equal(t, 5, reads)
			})
			t.Run("empty body", func(t *testing.T) {
				p, err := request.NewPlan("GET", testserver.Text().URL(server), nil)
				require.NoError(t, err)
				evs, body := drive(t, e, p, 16)
				assert.Equal(t, "", body)
				assert.Equal(t, []EventKind{ResponseStarted, Succeeded}, kinds(evs))
			})
			t.Run("error status", func(t *testing.T) {
				i := testserver.Text("nope")
				i.StatusCode = http.StatusServiceUnavailable
				p, err := request.NewPlan("GET", i.URL(server), nil)
				require.NoError(t, err)
				evs, body := drive(t, e, p, 16)
				assert.Equal(t, "nope", body)
				assert.Equal(t, Succeeded, evs[len(evs)-1].Kind)
				assert.Equal(t, 503, evs[len(evs)-1].Info.StatusCode)
			})
		})
	}
}

func TestHTTP_Redirect(t *testing.T) {
	e := newTestEngine(t)
	for _, server := range servers.All() {
		t.Run(servers.Name(server), func(t *testing.T) {
			t.Run("chain", func(t *testing.T) {
				i := testserver.Redirect(http.StatusFound,
					testserver.Redirect(http.StatusMovedPermanently,
						testserver.Text("landed")))
				p, err := request.NewPlan("GET", i.URL(server), nil)
				require.NoError(t, err)
				evs, body := drive(t, e, p, 64)
				assert.Equal(t, "landed", body)
				assert.Equal(t, []EventKind{Redirect, Redirect, ResponseStarted, ReadCompleted, Succeeded}, kinds(evs))
				assert.True(t, strings.HasPrefix(evs[0].Location, server.URL+"/?do="))
				assert.Equal(t, http.StatusFound, evs[0].Info.StatusCode)
				final := evs[len(evs)-1].Info
				assert.Len(t, final.URLChain, 3)
				assert.Equal(t, evs[1].Location, final.URL)
			})
			t.Run("303 switches to GET", func(t *testing.T) {
				i := testserver.Redirect(http.StatusSeeOther, &testserver.Instruction{Echo: true})
				p, err := request.NewPlan("POST", i.URL(server), "payload")
				require.NoError(t, err)
				_, body := drive(t, e, p, 64)
				assert.Equal(t, "GET ", body)
			})
			t.Run("307 preserves method and body", func(t *testing.T) {
				i := testserver.Redirect(http.StatusTemporaryRedirect, &testserver.Instruction{Echo: true})
				p, err := request.NewPlan("POST", i.URL(server), "payload")
				require.NoError(t, err)
				_, body := drive(t, e, p, 64)
				assert.Equal(t, "POST payload", body)
			})
			t.Run("redirect without location", func(t *testing.T) {
				p, err := request.NewPlan("GET", (&testserver.Instruction{StatusCode: http.StatusFound}).URL(server), nil)
				require.NoError(t, err)
				evs, _ := drive(t, e, p, 64)
				assert.Equal(t, []EventKind{ResponseStarted, Succeeded}, kinds(evs))
				assert.Equal(t, http.StatusFound, evs[0].Info.StatusCode)
			})
		})
	}
}

func TestHTTP_Cancel(t *testing.T) {
	e := newTestEngine(t)
	t.Run("before headers", func(t *testing.T) {
		i := &testserver.Instruction{HeaderPause: 5 * time.Second}
		p, err := request.NewPlan("GET", i.URL(servers.HTTP), nil)
		require.NoError(t, err)
		events := make(chan Event, 16)
		req := e.Start(p, func(ev Event) { events <- ev })
		req.Cancel()
		req.Cancel()
		select {
		case ev := <-events:
			assert.Equal(t, Canceled, ev.Kind)
			assert.NoError(t, ev.Err)
		case <-time.After(5 * time.Second):
			require.FailNow(t, "no event after Cancel")
		}
	})
	t.Run("while reading", func(t *testing.T) {
		i := &testserver.Instruction{Body: []testserver.Chunk{
			{Data: []byte("a")},
			{Pause: 5 * time.Second, Data: []byte("b")},
		}}
		p, err := request.NewPlan("GET", i.URL(servers.HTTP2), nil)
		require.NoError(t, err)
		events := make(chan Event, 16)
		req := e.Start(p, func(ev Event) { events <- ev })
		buf := make([]byte, 1)
		ev := <-events
		require.Equal(t, ResponseStarted, ev.Kind)
		req.Read(buf)
		ev = <-events
		require.Equal(t, ReadCompleted, ev.Kind)
		req.Read(buf)
		req.Cancel()
		select {
		case ev = <-events:
			assert.Equal(t, Canceled, ev.Kind)
			require.NotNil(t, ev.Info)
			assert.Equal(t, 200, ev.Info.StatusCode)
		case <-time.After(5 * time.Second):
			require.FailNow(t, "no event after Cancel")
		}
	})
}

func TestHTTP_PlanContext(t *testing.T) {
	e := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	i := &testserver.Instruction{HeaderPause: 5 * time.Second}
	p, err := request.NewPlanWithContext(ctx, "GET", i.URL(servers.HTTPS), nil)
	require.NoError(t, err)
	events := make(chan Event, 16)
	e.Start(p, func(ev Event) { events <- ev })
	cancel()
	select {
	case ev := <-events:
		assert.Equal(t, Failed, ev.Kind)
		assert.ErrorIs(t, ev.Err, context.Canceled)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "no event after context cancel")
	}
}

func TestHTTP_ConnectionRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	e := newTestEngine(t)
	p, err := request.NewPlan("GET", "http://"+addr+"/", nil)
	require.NoError(t, err)
	evs, _ := drive(t, e, p, 16)
	require.Len(t, evs, 1)
	assert.Equal(t, Failed, evs[0].Kind)
	assert.Nil(t, evs[0].Info)
	assert.Equal(t, failure.ConnRefused, failure.Classify(evs[0].Err))
}

func TestHTTP_Close(t *testing.T) {
	e := newTestEngine(t)
	assert.NoError(t, e.Close())
	assert.NoError(t, e.Close())
	p, err := request.NewPlan("GET", testserver.Text("x").URL(servers.HTTP), nil)
	require.NoError(t, err)
	evs, _ := drive(t, e, p, 16)
	require.Len(t, evs, 1)
	assert.Equal(t, Failed, evs[0].Kind)
	assert.True(t, errors.Is(evs[0].Err, ErrClosed))
}

func TestHTTP_StartNilSink(t *testing.T) {
	e := newTestEngine(t)
	p, err := request.NewPlan("GET", "http://127.0.0.1/", nil)
	require.NoError(t, err)
	assert.PanicsWithValue(t, "streamx/engine: nil sink", func() { e.Start(p, nil) })
}

func TestHTTP_ReadWhileReadPending(t *testing.T) {
	e := newTestEngine(t)
	i := &testserver.Instruction{HeaderPause: 5 * time.Second}
	p, err := request.NewPlan("GET", i.URL(servers.HTTP), nil)
	require.NoError(t, err)
	req := e.Start(p, func(Event) {})
	defer req.Cancel()
	req.Read(make([]byte, 1))
	assert.PanicsWithValue(t, "streamx/engine: operation already pending", func() {
		req.Read(make([]byte, 1))
	})
}

func TestNew(t *testing.T) {
	t.Run("default transport", func(t *testing.T) {
		e, err := New(Options{})
		require.NoError(t, err)
		assert.NotNil(t, e.client.Transport)
		assert.NotSame(t, http.DefaultTransport, e.client.Transport)
	})
	t.Run("HTTP/2 needs *http.Transport", func(t *testing.T) {
		_, err := New(Options{Transport: roundTripperFunc(nil), HTTP2: true})
		assert.EqualError(t, err, "streamx/engine: HTTP/2 requires *http.Transport, not engine.roundTripperFunc")
	})
	t.Run("HTTP/2 twice", func(t *testing.T) {
		tr := servers.Transport()
		_, err := New(Options{Transport: tr, HTTP2: true})
		require.NoError(t, err)
		_, err = New(Options{Transport: tr, HTTP2: true})
		assert.Error(t, err)
	})
	t.Run("Default", func(t *testing.T) {
		assert.Same(t, Default(), Default())
	})
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func TestEventKind(t *testing.T) {
	testCases := []struct {
		kind     EventKind
		name     string
		terminal bool
	}{
		{Redirect, "Redirect", false},
		{ResponseStarted, "ResponseStarted", false},
		{ReadCompleted, "ReadCompleted", false},
		{Succeeded, "Succeeded", true},
		{Failed, "Failed", true},
		{Canceled, "Canceled", true},
		{EventKind(-1), "EventKind(?)", false},
		{EventKind(99), "EventKind(?)", false},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			assert.Equal(t, testCase.name, testCase.kind.String())
			assert.Equal(t, testCase.terminal, testCase.kind.Terminal())
		})
	}
}

func TestRedirectRequest(t *testing.T) {
	prev, err := http.NewRequest("POST", "http://a.example/x", strings.NewReader("b"))
	require.NoError(t, err)
	prev.Header.Set("Authorization", "secret")
	prev.Header.Set("Content-Type", "text/plain")
	prev.Header.Set("X-Keep", "1")

	t.Run("same host 302", func(t *testing.T) {
		loc, _ := prev.URL.Parse("/y")
		next := redirectRequest(context.Background(), prev, http.StatusFound, loc, []byte("b"))
		assert.Equal(t, "GET", next.Method)
		assert.Nil(t, next.Body)
		assert.Equal(t, "secret", next.Header.Get("Authorization"))
		assert.Empty(t, next.Header.Get("Content-Type"))
		assert.Equal(t, "1", next.Header.Get("X-Keep"))
	})
	t.Run("other host 308", func(t *testing.T) {
		loc, _ := prev.URL.Parse("http://b.example/z")
		next := redirectRequest(context.Background(), prev, http.StatusPermanentRedirect, loc, []byte("b"))
		assert.Equal(t, "POST", next.Method)
		assert.Equal(t, int64(1), next.ContentLength)
		assert.NotNil(t, next.GetBody)
		assert.Empty(t, next.Header.Get("Authorization"))
		assert.Equal(t, "text/plain", next.Header.Get("Content-Type"))
		assert.Equal(t, "b.example", next.Host)
	})
}

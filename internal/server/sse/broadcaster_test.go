package sse

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/thebtf/procluster/pkg/models"
)

// BroadcasterSuite is a test suite for Broadcaster operations.
type BroadcasterSuite struct {
	suite.Suite
	broadcaster *Broadcaster
}

func (s *BroadcasterSuite) SetupTest() {
	s.broadcaster = NewBroadcaster()
}

func TestBroadcasterSuite(t *testing.T) {
	suite.Run(t, new(BroadcasterSuite))
}

// mockResponseWriter implements http.ResponseWriter and http.Flusher for testing.
type mockResponseWriter struct {
	header http.Header
	body   []byte
	mu     sync.Mutex
}

func newMockResponseWriter() *mockResponseWriter {
	return &mockResponseWriter{header: make(http.Header)}
}

func (m *mockResponseWriter) Header() http.Header { return m.header }
func (m *mockResponseWriter) WriteHeader(int)     {}
func (m *mockResponseWriter) Flush()              {}

func (m *mockResponseWriter) Write(data []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.body = append(m.body, data...)
	return len(data), nil
}

func (m *mockResponseWriter) GetBody() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.body)
}

// nonFlusher lacks http.Flusher.
type nonFlusher struct{ http.ResponseWriter }

func (s *BroadcasterSuite) TestAddRemoveClient() {
	w := newMockResponseWriter()

	client, err := s.broadcaster.AddClient(w)
	s.Require().NoError(err)
	s.NotEmpty(client.ID)
	s.Equal(1, s.broadcaster.ClientCount())

	s.broadcaster.RemoveClient(client)
	s.Equal(0, s.broadcaster.ClientCount())

	select {
	case <-client.Done:
	default:
		s.Fail("Done channel should be closed")
	}
}

func (s *BroadcasterSuite) TestAddClientRequiresFlusher() {
	_, err := s.broadcaster.AddClient(nonFlusher{})
	s.Error(err)
	s.Equal(0, s.broadcaster.ClientCount())
}

func (s *BroadcasterSuite) TestPublishRunEvent() {
	writers := make([]*mockResponseWriter, 3)
	for i := range writers {
		writers[i] = newMockResponseWriter()
		_, err := s.broadcaster.AddClient(writers[i])
		s.Require().NoError(err)
	}

	id := s.broadcaster.Publish(Event{
		Type:   EventRun,
		Source: "procs.csv",
		Run:    &models.RunSummary{ID: "run-1", Procedures: 3, Clusters: 2},
		Labels: map[string]int{"P1": 0},
	})
	s.Equal(uint64(1), id)

	for i, w := range writers {
		body := w.GetBody()
		s.True(strings.HasPrefix(body, "id: 1\nevent: run\ndata: {"), "client %d got %q", i, body)
		s.Contains(body, `"id":"run-1"`)
		s.Contains(body, `"source":"procs.csv"`)
		s.True(strings.HasSuffix(body, "}\n\n"))
	}
}

func (s *BroadcasterSuite) TestPublishIDsIncrease() {
	w := newMockResponseWriter()
	_, err := s.broadcaster.AddClient(w)
	s.Require().NoError(err)

	s.Equal(uint64(1), s.broadcaster.Publish(Event{Type: EventError, Error: "first"}))
	s.Equal(uint64(2), s.broadcaster.Publish(Event{Type: EventRun}))
	s.Equal(uint64(3), s.broadcaster.Publish(Event{Type: EventError, Error: "third"}))

	body := w.GetBody()
	s.Less(strings.Index(body, "id: 1\n"), strings.Index(body, "id: 2\n"))
	s.Less(strings.Index(body, "id: 2\n"), strings.Index(body, "id: 3\n"))
}

func (s *BroadcasterSuite) TestPublishNoClients() {
	// Should not panic, and the run is still remembered
	s.broadcaster.Publish(Event{Type: EventRun, Source: "a.csv"})
	s.Require().NotNil(s.broadcaster.lastRun)
	s.Equal(uint64(1), s.broadcaster.lastRun.id)
}

func (s *BroadcasterSuite) TestAddClientReplay() {
	first, replay, err := s.broadcaster.addClient(newMockResponseWriter(), 0)
	s.Require().NoError(err)
	first.mu.Unlock()
	s.Nil(replay, "nothing published yet")

	s.broadcaster.Publish(Event{Type: EventRun, Source: "a.csv"})
	s.broadcaster.Publish(Event{Type: EventError, Error: "later failure"})

	tests := []struct {
		name       string
		seen       uint64
		wantReplay bool
	}{
		{name: "new client", seen: 0, wantReplay: true},
		{name: "saw the run", seen: 1, wantReplay: false},
		{name: "saw everything", seen: 2, wantReplay: false},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			client, replay, err := s.broadcaster.addClient(newMockResponseWriter(), tt.seen)
			s.Require().NoError(err)
			client.mu.Unlock()
			if !tt.wantReplay {
				s.Nil(replay)
				return
			}
			s.Require().NotNil(replay)
			s.Equal(uint64(1), replay.id)
			s.Contains(replay.text, `"source":"a.csv"`)
		})
	}
}

func TestFormatMessage(t *testing.T) {
	msg, err := formatMessage(0, "", map[string]int{"count": 42})
	require.NoError(t, err)
	assert.Equal(t, "data: {\"count\":42}\n\n", msg)

	msg, err = formatMessage(7, EventError, Event{Type: EventError, Error: "bad input"})
	require.NoError(t, err)
	assert.Equal(t, "id: 7\nevent: error\ndata: {\"type\":\"error\",\"error\":\"bad input\"}\n\n", msg)

	_, err = formatMessage(1, "", make(chan int))
	assert.Error(t, err)
}

func TestLastEventID(t *testing.T) {
	tests := []struct {
		header string
		want   uint64
	}{
		{header: "", want: 0},
		{header: "12", want: 12},
		{header: " 3 ", want: 3},
		{header: "abc", want: 0},
		{header: "-1", want: 0},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/api/events", nil)
		if tt.header != "" {
			r.Header.Set("Last-Event-ID", tt.header)
		}
		assert.Equal(t, tt.want, lastEventID(r), "header %q", tt.header)
	}
}

// TestWriteTimeout tests the write timeout constant.
func TestWriteTimeout(t *testing.T) {
	assert.Equal(t, 2*time.Second, WriteTimeout)
}

// readFrame reads one SSE frame up to its blank line.
func readFrame(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	var sb strings.Builder
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if line == "\n" {
			return sb.String()
		}
		sb.WriteString(line)
	}
}

// TestHandleSSE connects a real client and reads the greeting, the replayed
// run and one live event.
func TestHandleSSE(t *testing.T) {
	b := NewBroadcaster()
	b.Publish(Event{Type: EventRun, Source: "before.csv"})

	srv := httptest.NewServer(http.HandlerFunc(b.HandleSSE))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	greeting := readFrame(t, reader)
	assert.True(t, strings.HasPrefix(greeting, "event: connected\n"), greeting)
	assert.Contains(t, greeting, `"clientId":"client-1"`)

	replayed := readFrame(t, reader)
	assert.True(t, strings.HasPrefix(replayed, "id: 1\nevent: run\n"), replayed)
	assert.Contains(t, replayed, `"source":"before.csv"`)

	require.Eventually(t, func() bool { return b.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	b.Publish(Event{Type: EventError, Error: "boom"})
	assert.Equal(t, "id: 2\nevent: error\ndata: {\"type\":\"error\",\"error\":\"boom\"}\n", readFrame(t, reader))

	cancel()
	require.Eventually(t, func() bool { return b.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

// TestHandleSSEResumes checks that a client resuming after the latest run
// does not get it again.
func TestHandleSSEResumes(t *testing.T) {
	b := NewBroadcaster()
	b.Publish(Event{Type: EventRun, Source: "seen.csv"})

	srv := httptest.NewServer(http.HandlerFunc(b.HandleSSE))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("Last-Event-ID", "1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	assert.True(t, strings.HasPrefix(readFrame(t, reader), "event: connected\n"))

	require.Eventually(t, func() bool { return b.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	b.Publish(Event{Type: EventRun, Source: "new.csv"})
	next := readFrame(t, reader)
	assert.True(t, strings.HasPrefix(next, "id: 2\n"), next)
	assert.Contains(t, next, `"source":"new.csv"`)
}

// TestConcurrentPublish tests concurrent publishing.
func TestConcurrentPublish(t *testing.T) {
	b := NewBroadcaster()
	writers := make([]*mockResponseWriter, 10)
	for i := range writers {
		writers[i] = newMockResponseWriter()
		_, err := b.AddClient(writers[i])
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Publish(Event{Type: EventRun})
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, b.ClientCount())
	for _, w := range writers {
		assert.Equal(t, 100, strings.Count(w.GetBody(), "event: run\n"))
	}
	assert.Equal(t, uint64(100), b.lastRun.id)
}

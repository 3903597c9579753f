package httpapi

import (
	"bufio"
	"context"
	"net/http"
	"strings"
	"testing"
	"time"
)

func readSSEEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var name, data string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && name != "":
			return name, data
		}
	}
}

func TestStreamFiltersByVisibility(t *testing.T) {
	api := newTestAPI(t)
	admin := api.obtainToken("a1", "admin")
	worker := api.obtainToken("w1", "worker")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, api.baseURL+"/v1/stream", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", worker["Authorization"])
	resp, err := api.client.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type: %s", ct)
	}

	deadline := time.Now().Add(2 * time.Second)
	for api.stream.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// The worker must not see w2's event, only its own.
	start, end := slot(4, 9, time.Hour)
	created := api.post("/v1/events", meetingBody("w2", start, end), admin)
	expectStatus(t, created, http.StatusCreated)
	created.Body.Close()
	created = api.post("/v1/events", meetingBody("w1", start, end), admin)
	expectStatus(t, created, http.StatusCreated)
	created.Body.Close()

	name, data := readSSEEvent(t, bufio.NewReader(resp.Body))
	if name != "event.created" {
		t.Fatalf("unexpected event name: %s", name)
	}
	if !strings.Contains(data, `"w1"`) || strings.Contains(data, `"w2"`) {
		t.Fatalf("unexpected payload: %s", data)
	}
}

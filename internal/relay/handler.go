package relay

import (
	"bufio"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// keepAliveInterval spaces comment lines that keep idle proxies from
	// closing the stream.
	keepAliveInterval = 25 * time.Second
	// reconnectDelay is the retry hint sent to EventSource clients.
	reconnectDelay = 3 * time.Second
)

// SSEHandler streams broker events as text/event-stream. Clients narrow the
// stream with ?feeds=a,b and resume with a Last-Event-ID header (or the
// lastEventId query parameter, for clients that cannot set headers).
func SSEHandler(broker *Broker) http.HandlerFunc {
	return sseHandler(broker, keepAliveInterval)
}

func sseHandler(broker *Broker, keepAlive time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		lastID := r.Header.Get("Last-Event-ID")
		if lastID == "" {
			lastID = r.URL.Query().Get("lastEventId")
		}
		id, ch, backlog := broker.Resume(lastID, parseFeeds(r.URL.Query().Get("feeds"))...)
		defer broker.Unsubscribe(id)

		h := w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)

		bw := bufio.NewWriter(w)
		send := func() bool {
			if err := bw.Flush(); err != nil {
				return false
			}
			flusher.Flush()
			return true
		}

		bw.WriteString("retry: " + strconv.FormatInt(reconnectDelay.Milliseconds(), 10) + "\n\n")
		for _, evt := range backlog {
			writeEvent(bw, evt)
		}
		if !send() {
			return
		}

		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()
		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
				bw.WriteString(": keep-alive\n\n")
			case evt, ok := <-ch:
				if !ok {
					return
				}
				writeEvent(bw, evt)
			}
			if !send() {
				return
			}
		}
	}
}

func parseFeeds(q string) []string {
	var feeds []string
	for _, f := range strings.Split(q, ",") {
		if f = strings.TrimSpace(f); f != "" {
			feeds = append(feeds, f)
		}
	}
	return feeds
}

// writeEvent frames evt. Payload lines each get their own data field so a
// newline in the payload cannot end the event early.
func writeEvent(bw *bufio.Writer, evt Event) {
	if evt.ID != "" {
		bw.WriteString("id: " + evt.ID + "\n")
	}
	bw.WriteString("event: " + evt.Feed + "\n")
	for _, line := range strings.Split(evt.Payload, "\n") {
		bw.WriteString("data: " + line + "\n")
	}
	bw.WriteString("\n")
}

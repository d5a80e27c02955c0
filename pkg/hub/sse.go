package hub

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// sseTransport receives on a Server-Sent Events stream and sends with POST
// requests to the same URL.
type sseTransport struct {
	target string
	client *http.Client
	header http.Header

	body    io.ReadCloser
	scanner *bufio.Scanner
	cancel  context.CancelFunc
	once    sync.Once
}

func dialSSE(ctx context.Context, target string, header http.Header, client *http.Client) (*sseTransport, error) {
	// The stream outlives ctx, which only bounds the dial.
	streamCtx, cancel := context.WithCancel(context.Background())
	stop := context.AfterFunc(ctx, cancel)

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, target, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stream request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	// A separate client with no timeout for streaming.
	streamClient := &http.Client{Transport: client.Transport, Jar: client.Jar}
	resp, err := streamClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to connect to stream: %w", err)
	}
	if !stop() {
		resp.Body.Close()
		cancel()
		return nil, ctx.Err()
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("stream returned status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	return &sseTransport{
		target:  target,
		client:  client,
		header:  header,
		body:    resp.Body,
		scanner: scanner,
		cancel:  cancel,
	}, nil
}

func (t *sseTransport) Name() string { return negotiatedSSE }

// Receive returns the data of the next event.
func (t *sseTransport) Receive() ([]byte, error) {
	var data []byte
	for t.scanner.Scan() {
		line := t.scanner.Text()
		switch {
		case line == "":
			if len(data) > 0 {
				return data, nil
			}
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		case strings.HasPrefix(line, "data:"):
			chunk := strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")
			if len(data) > 0 {
				data = append(data, '\n')
			}
			data = append(data, chunk...)
		}
	}
	if err := t.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (t *sseTransport) Send(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.target, bytes.NewReader(data))
	if err != nil {
		return err
	}
	for k, v := range t.header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "text/plain;charset=UTF-8")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("send returned status %d", resp.StatusCode)
	}
	return nil
}

// Close ends the stream and tells the server the connection is gone.
func (t *sseTransport) Close() error {
	t.once.Do(func() {
		t.cancel()
		t.body.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if req, err := http.NewRequestWithContext(ctx, http.MethodDelete, t.target, nil); err == nil {
			for k, v := range t.header {
				req.Header[k] = v
			}
			if resp, err := t.client.Do(req); err == nil {
				resp.Body.Close()
			}
		}
	})
	return nil
}

// Package remote reads a container over HTTP range requests so it can be
// unpacked without downloading it first.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// ErrRangeUnsupported is returned when the server ignores Range headers.
var ErrRangeUnsupported = errors.New("remote: server does not support range requests")

// Source is an io.ReaderAt over a remote object. Reads are pinned to the
// validators seen when the source was opened, so a replaced object fails
// instead of yielding a mix of two versions.
type Source struct {
	ctx          context.Context
	url          string
	client       *http.Client
	header       http.Header
	size         int64
	etag         string
	lastModified string
}

// Option configures a Source.
type Option func(*Source)

// WithClient sets the HTTP client. A nil client means http.DefaultClient.
func WithClient(c *http.Client) Option {
	return func(s *Source) { s.client = c }
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(s *Source) { s.header.Add(key, value) }
}

// IsURL reports whether arg names an http or https location.
func IsURL(arg string) bool {
	u, err := url.Parse(arg)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Open probes rawURL and returns a Source for it. ctx bounds every request
// made through the Source.
func Open(ctx context.Context, rawURL string, opts ...Option) (*Source, error) {
	s := &Source{
		ctx:    ctx,
		url:    rawURL,
		client: http.DefaultClient,
		header: make(http.Header),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = http.DefaultClient
	}
	if err := s.probe(); err != nil {
		return nil, err
	}
	return s, nil
}

// Size returns the length of the remote object.
func (s *Source) Size() int64 { return s.size }

// URL returns the location the source reads from.
func (s *Source) URL() string { return s.url }

// ReadAt fetches len(p) bytes at off with a single range request.
func (s *Source) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("remote: read at %d: negative offset", off)
	}
	if len(p) == 0 {
		return 0, nil
	}
	if off >= s.size {
		return 0, io.EOF
	}
	want := int64(len(p))
	if want > s.size-off {
		want = s.size - off
	}

	resp, err := s.get(off, off+want-1)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode == http.StatusOK {
		// The body is the whole object; do not read it.
		_ = resp.Body.Close()
		return 0, ErrRangeUnsupported
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusPartialContent:
	case http.StatusRequestedRangeNotSatisfiable:
		return 0, io.EOF
	case http.StatusPreconditionFailed:
		return 0, fmt.Errorf("remote: %s changed while reading", s.url)
	default:
		return 0, fmt.Errorf("remote: range request: %s", resp.Status)
	}

	n, err := io.ReadFull(resp.Body, p[:want])
	if err != nil {
		return n, fmt.Errorf("remote: read body: %w", err)
	}
	if want < int64(len(p)) {
		return n, io.EOF
	}
	return n, nil
}

// probe learns the size and validators from a one-byte range request.
// Empty objects answer with 200 and no body, or with 416 and "bytes */0".
func (s *Source) probe() error {
	resp, err := s.get(0, 0)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusOK {
		// An empty object needs no ranges. Anything longer is the whole
		// object, which is not read.
		_ = resp.Body.Close()
		if resp.ContentLength != 0 {
			return ErrRangeUnsupported
		}
		s.etag = resp.Header.Get("ETag")
		s.lastModified = resp.Header.Get("Last-Modified")
		return nil
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusPartialContent:
	case http.StatusRequestedRangeNotSatisfiable:
		// Empty objects cannot satisfy bytes=0-0.
		size, err := parseContentRange(resp.Header.Get("Content-Range"))
		if err != nil || size != 0 {
			return fmt.Errorf("remote: probe %s: %s", s.url, resp.Status)
		}
		return nil
	default:
		return fmt.Errorf("remote: probe %s: %s", s.url, resp.Status)
	}

	size, err := parseContentRange(resp.Header.Get("Content-Range"))
	if err != nil {
		return err
	}
	s.size = size
	s.etag = resp.Header.Get("ETag")
	s.lastModified = resp.Header.Get("Last-Modified")
	return nil
}

func (s *Source) get(first, last int64) (*http.Response, error) {
	req, err := http.NewRequestWithContext(s.ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("remote: %w", err)
	}
	for k, vs := range s.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", first, last))
	// Transparent gzip would break byte offsets.
	req.Header.Set("Accept-Encoding", "identity")
	if s.etag != "" {
		req.Header.Set("If-Match", s.etag)
	} else if s.lastModified != "" {
		req.Header.Set("If-Unmodified-Since", s.lastModified)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote: %w", err)
	}
	return resp, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

// parseContentRange returns the complete length from a Content-Range value
// such as "bytes 0-0/1234" or "bytes */0".
func parseContentRange(v string) (int64, error) {
	v = strings.TrimSpace(v)
	rest, ok := strings.CutPrefix(v, "bytes ")
	if !ok {
		return 0, fmt.Errorf("remote: invalid Content-Range %q", v)
	}
	_, total, ok := strings.Cut(rest, "/")
	if !ok || total == "*" {
		return 0, fmt.Errorf("remote: invalid Content-Range %q", v)
	}
	size, err := strconv.ParseInt(total, 10, 64)
	if err != nil || size < 0 {
		return 0, fmt.Errorf("remote: invalid Content-Range %q", v)
	}
	return size, nil
}

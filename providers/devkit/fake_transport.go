package devkit

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// Route is a scripted platform response. Responses for the same route are
// served in order and the last one repeats.
type Route struct {
	Method      string
	Host        string
	Path        string
	StatusCode  int
	Body        string
	ContentType string
	Err         error
}

type RecordedRequest struct {
	Method string
	URL    *url.URL
	Header http.Header
	Body   string
}

// Form parses a recorded x-www-form-urlencoded body.
func (r RecordedRequest) Form() url.Values {
	values, _ := url.ParseQuery(r.Body)
	return values
}

// FakeHTTP answers platform calls from scripted routes. It satisfies both
// transport.HTTPDoer and http.RoundTripper so it can back an *http.Client.
type FakeHTTP struct {
	mu       sync.Mutex
	routes   map[string][]Route
	served   map[string]int
	requests []RecordedRequest
}

func NewFakeHTTP(routes ...Route) *FakeHTTP {
	fake := &FakeHTTP{
		routes: map[string][]Route{},
		served: map[string]int{},
	}
	for _, route := range routes {
		fake.Add(route)
	}
	return fake
}

func (f *FakeHTTP) Add(route Route) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := routeKey(route.Method, route.Host, route.Path)
	f.routes[key] = append(f.routes[key], route)
}

func (f *FakeHTTP) Client() *http.Client {
	return &http.Client{Transport: f}
}

func (f *FakeHTTP) Do(req *http.Request) (*http.Response, error) {
	return f.RoundTrip(req)
}

func (f *FakeHTTP) RoundTrip(req *http.Request) (*http.Response, error) {
	if f == nil {
		return nil, fmt.Errorf("devkit: fake http is nil")
	}
	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
		_ = req.Body.Close()
	}
	recordedURL := *req.URL

	f.mu.Lock()
	f.requests = append(f.requests, RecordedRequest{
		Method: req.Method,
		URL:    &recordedURL,
		Header: req.Header.Clone(),
		Body:   string(body),
	})
	key := routeKey(req.Method, req.URL.Host, req.URL.Path)
	scripts := f.routes[key]
	index := f.served[key]
	f.served[key] = index + 1
	f.mu.Unlock()

	if len(scripts) == 0 {
		return response(req, http.StatusNotFound, `{"error":"no route for `+key+`"}`, "application/json"), nil
	}
	if index >= len(scripts) {
		index = len(scripts) - 1
	}
	script := scripts[index]
	if script.Err != nil {
		return nil, script.Err
	}
	status := script.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	contentType := script.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	return response(req, status, script.Body, contentType), nil
}

func (f *FakeHTTP) Requests() []RecordedRequest {
	if f == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RecordedRequest(nil), f.requests...)
}

// Last returns the most recent request to host and path.
func (f *FakeHTTP) Last(host, path string) (RecordedRequest, bool) {
	requests := f.Requests()
	for i := len(requests) - 1; i >= 0; i-- {
		if requests[i].URL.Host == host && requests[i].URL.Path == path {
			return requests[i], true
		}
	}
	return RecordedRequest{}, false
}

func response(req *http.Request, status int, body string, contentType string) *http.Response {
	return &http.Response{
		StatusCode:    status,
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": []string{contentType}},
		Body:          io.NopCloser(bytes.NewReader([]byte(body))),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

func routeKey(method, host, path string) string {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodGet
	}
	return method + " " + strings.ToLower(strings.TrimSpace(host)) + path
}

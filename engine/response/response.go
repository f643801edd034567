package response

import (
	"context"
	"fmt"
	"net/http"
	"sync"
)

// Response is the result of one container execution.
type Response struct {
	mu          sync.RWMutex
	status      int
	headers     http.Header
	content     []byte
	redirect    string
	contentType string
	outputType  string
}

// New creates an empty 200 response for the given output type.
func New(outputType *OutputType) *Response {
	r := &Response{status: http.StatusOK, headers: make(http.Header)}
	if outputType != nil {
		r.outputType = outputType.Name
		r.contentType = outputType.ContentType
	}
	return r
}

// Status returns the HTTP status code.
func (r *Response) Status() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// SetStatus sets the HTTP status code.
func (r *Response) SetStatus(code int) error {
	if code < 100 || code > 599 {
		return fmt.Errorf("invalid HTTP status %d", code)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = code
	return nil
}

// Header returns the header map.
func (r *Response) Header() http.Header {
	return r.headers
}

// SetHeader replaces a header value.
func (r *Response) SetHeader(name, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.headers.Set(name, value)
}

// Content returns the response body.
func (r *Response) Content() []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.content
}

// SetContent replaces the response body.
func (r *Response) SetContent(b []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.content = b
}

// AppendContent appends to the response body.
func (r *Response) AppendContent(b []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.content = append(r.content, b...)
}

// ContentType returns the Content-Type of the body.
func (r *Response) ContentType() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.contentType
}

// SetContentType overrides the Content-Type derived from the output type.
func (r *Response) SetContentType(ct string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contentType = ct
}

// OutputTypeName returns the name of the output type the response was
// produced for.
func (r *Response) OutputTypeName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.outputType
}

// SetOutputType switches the response to another output type and its
// content type.
func (r *Response) SetOutputType(ot *OutputType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputType = ot.Name
	r.contentType = ot.ContentType
}

// Redirect returns the redirect target, if any.
func (r *Response) Redirect() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.redirect, r.redirect != ""
}

// SetRedirect turns the response into an HTTP redirect.
func (r *Response) SetRedirect(location string, code int) error {
	if code == 0 {
		code = http.StatusFound
	}
	if code < 300 || code > 399 {
		return fmt.Errorf("invalid redirect status %d", code)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.redirect = location
	r.status = code
	r.headers.Set("Location", location)
	return nil
}

// Clear resets body, redirect and status.
func (r *Response) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.content = nil
	r.redirect = ""
	r.status = http.StatusOK
	r.headers = make(http.Header)
}

// Renderer turns a template and its attributes into content.
type Renderer interface {
	Render(ctx context.Context, template string, attributes map[string]any) ([]byte, error)
}

// OutputType describes one format a view can render, e.g. html or json.
type OutputType struct {
	Name        string
	ContentType string
	Renderer    Renderer
}

// Render renders template through the output type's renderer.
func (o *OutputType) Render(ctx context.Context, template string, attributes map[string]any) ([]byte, error) {
	if o.Renderer == nil {
		return nil, fmt.Errorf("output type %q has no renderer", o.Name)
	}
	return o.Renderer.Render(ctx, template, attributes)
}

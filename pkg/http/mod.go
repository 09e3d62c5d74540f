package http

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/bascanada/logexplorer/pkg/log"
	"github.com/bascanada/logexplorer/pkg/ty"
	jsoniter "github.com/json-iterator/go"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Auth interface {
	Login(req *http.Request) error
}

type CookieAuth struct {
	Cookie string
}

func (c CookieAuth) Login(req *http.Request) error {
	req.Header.Set("Cookie", c.Cookie)
	return nil
}

// HeaderAuth sets fixed headers (like Authorization) on each request.
type HeaderAuth struct {
	Headers ty.MS
}

func (h HeaderAuth) Login(req *http.Request) error {
	for k, v := range h.Headers {
		req.Header.Set(k, v)
	}
	return nil
}

// BasicAuth sends user and password with every request.
type BasicAuth struct {
	User     string
	Password string
}

func (b BasicAuth) Login(req *http.Request) error {
	if b.User == "" {
		return fmt.Errorf("basic auth: empty user")
	}
	req.SetBasicAuth(b.User, b.Password)
	return nil
}

// StatusError is returned for responses with a status of 400 or more.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Code, strings.TrimSpace(e.Body))
}

type HttpClient struct {
	client  http.Client
	url     string
	auth    Auth
	headers ty.MS
}

// Debug controls whether verbose HTTP-level debug logs are emitted. Tests and
// production code can toggle this to avoid leaking secrets into logs.
var Debug = false

// SetDebug sets the package debug flag.
func SetDebug(d bool) {
	Debug = d
}

// DebugEnabled returns whether HTTP debug logging is enabled.
func DebugEnabled() bool {
	return Debug
}

// acceptEncoding lists the codings decode understands.
const acceptEncoding = "zstd, gzip"

func (c HttpClient) do(ctx context.Context, method, path string, query ty.MS, body io.Reader, contentType string) (*http.Response, error) {
	u := c.url + path
	if len(query) > 0 {
		q := url.Values{}
		for k, v := range query {
			q.Add(k, v)
		}
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept-Encoding", acceptEncoding)

	if c.auth != nil {
		if err = c.auth.Login(req); err != nil {
			return nil, fmt.Errorf("auth: %w", err)
		}
	}
	if Debug {
		log.Debug("[%s] %s", method, u)
		log.Debug("[%s-HEADERS] %s", method, maskHeaderMap(req.Header))
	}

	res, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if err := decode(res); err != nil {
		res.Body.Close()
		return nil, err
	}
	if res.StatusCode >= 400 {
		defer res.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
		log.Warn("error %d %s", res.StatusCode, string(b))
		return nil, &StatusError{Code: res.StatusCode, Body: string(b)}
	}
	return res, nil
}

// decode swaps a compressed body for its decompressed stream.
func decode(res *http.Response) error {
	enc := strings.ToLower(strings.TrimSpace(res.Header.Get("Content-Encoding")))
	switch enc {
	case "", "identity":
		return nil
	case "gzip":
		zr, err := gzip.NewReader(res.Body)
		if err != nil {
			return fmt.Errorf("gzip body: %w", err)
		}
		res.Body = readCloser{Reader: zr, orig: res.Body, release: func() { zr.Close() }}
	case "zstd":
		zr, err := zstd.NewReader(res.Body)
		if err != nil {
			return fmt.Errorf("zstd body: %w", err)
		}
		res.Body = readCloser{Reader: zr, orig: res.Body, release: zr.Close}
	default:
		return fmt.Errorf("unsupported content encoding %q", enc)
	}
	res.Header.Del("Content-Encoding")
	res.ContentLength = -1
	return nil
}

type readCloser struct {
	io.Reader
	orig    io.Closer
	release func()
}

func (r readCloser) Close() error {
	r.release()
	return r.orig.Close()
}

func (c HttpClient) readJSON(res *http.Response, responseData any) error {
	defer res.Body.Close()
	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	if Debug && len(resBody) > 0 {
		s := string(resBody)
		if len(s) > 2000 {
			s = s[:2000] + "...TRUNCATED"
		}
		log.Trace("[RAW] %s", s)
	}
	if responseData == nil {
		return nil
	}
	return json.Unmarshal(resBody, responseData)
}

// PostJson encodes body and decodes the response into responseData.
func (c HttpClient) PostJson(ctx context.Context, path string, body any, responseData any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return err
	}
	if Debug {
		log.Debug("[POST-BODY] %s", strings.TrimSpace(buf.String()))
	}
	res, err := c.do(ctx, http.MethodPost, path, nil, &buf, "application/json")
	if err != nil {
		return err
	}
	return c.readJSON(res, responseData)
}

// PostData sends a form-encoded body.
func (c HttpClient) PostData(ctx context.Context, path string, body ty.MS, responseData any) error {
	values := url.Values{}
	for k, v := range body {
		values.Add(k, v)
	}
	res, err := c.do(ctx, http.MethodPost, path, nil, strings.NewReader(values.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return err
	}
	return c.readJSON(res, responseData)
}

// Get decodes the JSON answer of a GET request.
func (c HttpClient) Get(ctx context.Context, path string, queryParams ty.MS, responseData any) error {
	res, err := c.do(ctx, http.MethodGet, path, queryParams, nil, "")
	if err != nil {
		return err
	}
	return c.readJSON(res, responseData)
}

// Stream opens a GET request and hands back the decoded body with its
// content type. The caller closes the body; cancelling ctx aborts it.
func (c HttpClient) Stream(ctx context.Context, path string, queryParams ty.MS, accept string) (io.ReadCloser, string, error) {
	c.headers = ty.MergeM(ty.MS{}, c.headers)
	if accept != "" {
		c.headers["Accept"] = accept
	}
	res, err := c.do(ctx, http.MethodGet, path, queryParams, nil, "")
	if err != nil {
		return nil, "", err
	}
	return res.Body, res.Header.Get("Content-Type"), nil
}

// GetClient builds a client for url. Extra headers are sent on every
// request.
func GetClient(url string, auth Auth, headers ty.MS) HttpClient {
	// Normalize URL: if scheme is missing, default to https. Also remove
	// any trailing slash to avoid double slashes when appending paths.
	if url != "" {
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			url = "https://" + url
		}
		for strings.HasSuffix(url, "/") {
			url = strings.TrimSuffix(url, "/")
		}
	}

	return HttpClient{
		client:  getSpaceClient(),
		url:     url,
		auth:    auth,
		headers: headers,
	}
}

func getSpaceClient() http.Client {
	switch v := http.DefaultTransport.(type) {
	case (*http.Transport):
		customTransport := v.Clone()
		customTransport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		return http.Client{Transport: customTransport}
	default:
		return http.Client{}
	}
}

// maskHeaderMap returns a string representation of headers with sensitive
// values redacted (keeps first 4 chars for debugging).
func maskHeaderMap(h http.Header) string {
	redacted := []string{}
	for k, vals := range h {
		v := ""
		if len(vals) > 0 {
			val := vals[0]
			switch strings.ToLower(k) {
			case "authorization", "cookie", "x-p-token", "x-auth-token":
				if len(val) > 4 {
					v = val[:4] + "...REDACTED"
				} else {
					v = "REDACTED"
				}
			default:
				v = val
			}
		}
		redacted = append(redacted, fmt.Sprintf("%s: %s", k, v))
	}
	return strings.Join(redacted, "; ")
}

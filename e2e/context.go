package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

// TestContext carries one scenario's HTTP client and last response. The
// client keeps cookies like a browser would.
type TestContext struct {
	baseURL    string
	client     *http.Client
	lastStatus int
	lastBody   []byte
	lastHeader http.Header
	emails     map[string]string
	run        string
}

func NewTestContext(baseURL string) *TestContext {
	tc := &TestContext{baseURL: strings.TrimRight(baseURL, "/")}
	tc.Reset()
	return tc
}

// Reset starts a fresh browser session.
func (tc *TestContext) Reset() {
	jar, _ := cookiejar.New(nil)
	tc.client = &http.Client{Jar: jar, Timeout: 10 * time.Second}
	tc.lastStatus = 0
	tc.lastBody = nil
	tc.lastHeader = nil
	tc.emails = map[string]string{}
	tc.run = fmt.Sprintf("%d", time.Now().UnixNano())
}

// EmailFor maps a scenario alias onto an address unique to this run.
func (tc *TestContext) EmailFor(alias string) string {
	if e, ok := tc.emails[alias]; ok {
		return e
	}
	e := fmt.Sprintf("%s+%s@e2e.parkspot.test", alias, tc.run)
	tc.emails[alias] = e
	return e
}

func (tc *TestContext) POST(path string, body any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(http.MethodPost, tc.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return tc.do(req)
}

func (tc *TestContext) GET(path string, headers map[string]string) error {
	req, err := http.NewRequest(http.MethodGet, tc.baseURL+path, nil)
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return tc.do(req)
}

func (tc *TestContext) do(req *http.Request) error {
	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	tc.lastBody, err = io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	tc.lastStatus = resp.StatusCode
	tc.lastHeader = resp.Header
	return nil
}

func (tc *TestContext) GetLastResponseStatus() int {
	return tc.lastStatus
}

func (tc *TestContext) GetLastResponseBody() []byte {
	return tc.lastBody
}

func (tc *TestContext) GetLastResponseHeader(name string) string {
	return tc.lastHeader.Get(name)
}

// GetResponseField reads a dotted path such as "user.id" from the last JSON body.
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var body any
	if err := json.Unmarshal(tc.lastBody, &body); err != nil {
		return nil, fmt.Errorf("response is not JSON: %w", err)
	}
	cur := body
	for _, part := range strings.Split(field, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("field %q not found", field)
		}
		if cur, ok = m[part]; !ok {
			return nil, fmt.Errorf("field %q not found", field)
		}
	}
	return cur, nil
}

// HasCookie reports whether the jar holds a cookie for the gateway.
func (tc *TestContext) HasCookie(name string) bool {
	u, err := url.Parse(tc.baseURL)
	if err != nil {
		return false
	}
	for _, c := range tc.client.Jar.Cookies(u) {
		if c.Name == name && c.Value != "" {
			return true
		}
	}
	return false
}

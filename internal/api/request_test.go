package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"testing"
)

func newTestBuilder(t *testing.T, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithTransport(TransportFunc(func(*http.Request) (*http.Response, error) {
		t.Fatal("transport should not be called")
		return nil, nil
	}))}, opts...)
	c, err := New(opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

// readForm parses a multipart body back into fields and files.
func readForm(t *testing.T, body Body) (map[string][]string, map[string]string) {
	t.Helper()
	_, params, err := mime.ParseMediaType(body.ContentType())
	if err != nil {
		t.Fatalf("ParseMediaType: %v", err)
	}
	reader := multipart.NewReader(bytes.NewReader(body.Bytes()), params["boundary"])
	fields := map[string][]string{}
	files := map[string]string{}
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("NextPart: %v", err)
		}
		data, _ := io.ReadAll(part)
		if part.FileName() != "" {
			files[part.FormName()+":"+part.FileName()] = string(data)
			continue
		}
		fields[part.FormName()] = append(fields[part.FormName()], string(data))
	}
	return fields, files
}

func TestBuild_JSONBody(t *testing.T) {
	c := newTestBuilder(t)

	d, err := c.Build("post", EncodingJSON, "https://api.example.com/items", map[string]string{"name": "x"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if d.Method != http.MethodPost {
		t.Errorf("Expected method POST, got %s", d.Method)
	}
	if d.Body == nil || d.Body.Encoding() != EncodingJSON {
		t.Fatalf("Expected JSON body, got %#v", d.Body)
	}
	if string(d.Body.Bytes()) != `{"name":"x"}` {
		t.Errorf("Expected body {\"name\":\"x\"}, got %s", d.Body.Bytes())
	}
	if got := d.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Expected Content-Type application/json, got %s", got)
	}
	if got := d.Accept(); got != "application/json" {
		t.Errorf("Expected Accept application/json, got %s", got)
	}
	if d.Handle == nil {
		t.Error("Expected a fresh handle")
	}
}

func TestBuild_NoBody(t *testing.T) {
	c := newTestBuilder(t)

	d, err := c.Build(http.MethodGet, EncodingJSON, "https://api.example.com/items", nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if d.Body != nil {
		t.Errorf("Expected no body, got %#v", d.Body)
	}
	if d.Header.Get("Content-Type") != "" {
		t.Errorf("Expected no Content-Type without a body, got %s", d.Header.Get("Content-Type"))
	}
}

func TestBuild_FormBody(t *testing.T) {
	c := newTestBuilder(t)

	body := Form{
		Fields: url.Values{"b": {"2"}, "a": {"1", "3"}},
		Files:  []FormFile{{Field: "upload", Name: "notes.txt", Content: []byte("hello")}},
	}
	d, err := c.Build(http.MethodPut, EncodingForm, "https://api.example.com/items/1", body)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if d.Body.Encoding() != EncodingForm {
		t.Fatalf("Expected form body, got %v", d.Body.Encoding())
	}
	if !strings.HasPrefix(d.Header.Get("Content-Type"), "multipart/form-data; boundary=") {
		t.Errorf("Expected multipart Content-Type, got %s", d.Header.Get("Content-Type"))
	}
	if bytes.HasPrefix(d.Body.Bytes(), []byte("{")) {
		t.Error("form body should never be JSON")
	}

	fields, files := readForm(t, d.Body)
	if strings.Join(fields["a"], ",") != "1,3" || strings.Join(fields["b"], ",") != "2" {
		t.Errorf("unexpected fields: %v", fields)
	}
	if files["upload:notes.txt"] != "hello" {
		t.Errorf("unexpected files: %v", files)
	}
}

func TestEncodeJSON_TypedNilIsAbsent(t *testing.T) {
	var m map[string]any
	var p *struct{ A int }
	var raw json.RawMessage
	for _, in := range []any{nil, m, p, raw, []string(nil)} {
		body, err := EncodeJSON(in)
		if err != nil {
			t.Errorf("EncodeJSON(%T) error = %v", in, err)
		}
		if body != nil {
			t.Errorf("EncodeJSON(%T) = %q, want no body", in, body.Bytes())
		}
	}
}

func TestEncodeForm_Inputs(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  map[string]string
	}{
		{"map string", map[string]string{"q": "go"}, map[string]string{"q": "go"}},
		{"url values", url.Values{"q": {"go"}}, map[string]string{"q": "go"}},
		{"map slice", map[string][]string{"q": {"go"}}, map[string]string{"q": "go"}},
		{"map any scalars", map[string]any{"n": 3, "ok": true, "f": 1.5, "s": "x", "skip": nil},
			map[string]string{"n": "3", "ok": "true", "f": "1.5", "s": "x"}},
		{"form pointer", &Form{Fields: url.Values{"q": {"go"}}}, map[string]string{"q": "go"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := EncodeForm(tt.input)
			if err != nil {
				t.Fatalf("EncodeForm: %v", err)
			}
			fields, _ := readForm(t, body)
			if len(fields) != len(tt.want) {
				t.Errorf("got %d fields, want %d: %v", len(fields), len(tt.want), fields)
			}
			for k, v := range tt.want {
				if len(fields[k]) != 1 || fields[k][0] != v {
					t.Errorf("field %s = %v, want %s", k, fields[k], v)
				}
			}
		})
	}
}

func TestEncodeForm_FileFromMap(t *testing.T) {
	body, err := EncodeForm(map[string]any{"doc": FormFile{Name: "a.txt", Content: []byte("A")}})
	if err != nil {
		t.Fatalf("EncodeForm: %v", err)
	}
	_, files := readForm(t, body)
	if files["doc:a.txt"] != "A" {
		t.Errorf("expected file under map key, got %v", files)
	}
}

func TestEncodeForm_Invalid(t *testing.T) {
	inputs := []any{
		[]int{1, 2},
		map[string]any{"nested": map[string]any{"a": 1}},
		Form{Files: []FormFile{{Name: "orphan.txt"}}},
	}
	for _, in := range inputs {
		_, err := EncodeForm(in)
		var ibe *InvalidBodyError
		if !errors.As(err, &ibe) {
			t.Errorf("EncodeForm(%T) error = %v, want InvalidBodyError", in, err)
			continue
		}
		if ibe.Encoding != EncodingForm {
			t.Errorf("Expected form encoding in error, got %v", ibe.Encoding)
		}
	}
}

type cyclic struct {
	Name string  `json:"name"`
	Next *cyclic `json:"next"`
}

func TestBuild_InvalidJSONBody(t *testing.T) {
	c := newTestBuilder(t)

	loop := &cyclic{Name: "a"}
	loop.Next = loop

	inputs := []any{
		loop,
		map[string]any{"ch": make(chan int)},
		func() {},
		[]byte("{not json"),
	}
	for _, in := range inputs {
		_, err := c.Build(http.MethodPost, EncodingJSON, "https://api.example.com/items", in)
		if !IsInvalidBody(err) {
			t.Errorf("Build(%T) error = %v, want InvalidBodyError", in, err)
		}
	}
}

func TestBuild_RawJSONPassesThrough(t *testing.T) {
	c := newTestBuilder(t)

	d, err := c.Build(http.MethodPost, EncodingJSON, "https://api.example.com/items", []byte(`{"b":2, "a":1}`))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if string(d.Body.Bytes()) != `{"b":2, "a":1}` {
		t.Errorf("raw JSON should be sent verbatim, got %s", d.Body.Bytes())
	}
}

func TestBuild_UnsupportedMethod(t *testing.T) {
	c := newTestBuilder(t)

	for _, m := range []string{"PATCH", "HEAD", "OPTIONS", ""} {
		_, err := c.Build(m, EncodingJSON, "https://api.example.com", nil)
		if !errors.Is(err, ErrUnsupportedMethod) {
			t.Errorf("Build(%q) error = %v, want ErrUnsupportedMethod", m, err)
		}
	}
}

func TestBuild_InvalidURL(t *testing.T) {
	rejected := errors.New("private address")
	c := newTestBuilder(t, WithURLValidator(func(u string) error {
		if strings.Contains(u, "10.0.0.1") {
			return rejected
		}
		return nil
	}))

	if _, err := c.Build(http.MethodGet, EncodingJSON, "  ", nil); !errors.Is(err, ErrInvalidURL) {
		t.Errorf("empty URL error = %v, want ErrInvalidURL", err)
	}
	if _, err := c.Build(http.MethodGet, EncodingJSON, "http://[::1", nil); !errors.Is(err, ErrInvalidURL) {
		t.Errorf("unparsable URL error = %v, want ErrInvalidURL", err)
	}
	_, err := c.Build(http.MethodGet, EncodingJSON, "http://10.0.0.1/x", nil)
	if !errors.Is(err, ErrInvalidURL) || !errors.Is(err, rejected) {
		t.Errorf("validator error = %v, want ErrInvalidURL wrapping validator error", err)
	}
}

func TestBuild_HeaderMerge(t *testing.T) {
	c := newTestBuilder(t,
		WithBaseHeader("X-Client", "base"),
		WithBaseHeader("X-Tenant", "acme"),
		WithUserAgent("ajax-test"),
	)

	d, err := c.Build(http.MethodPost, EncodingJSON, "https://api.example.com/items", map[string]int{"a": 1},
		WithHeader("x-client", "override"),
		WithHeaders(http.Header{"X-Extra": {"1", "2"}}),
		WithAccept("text/plain"),
	)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if got := d.Header.Get("X-Client"); got != "override" {
		t.Errorf("override should win, got %s", got)
	}
	if got := d.Header.Values("X-Client"); len(got) != 1 {
		t.Errorf("override should replace, not append: %v", got)
	}
	if got := d.Header.Get("X-Tenant"); got != "acme" {
		t.Errorf("base header should survive, got %s", got)
	}
	if got := d.Header.Values("X-Extra"); len(got) != 2 {
		t.Errorf("expected both X-Extra values, got %v", got)
	}
	if got := d.Accept(); got != "text/plain" {
		t.Errorf("Accept override = %s, want text/plain", got)
	}
	if got := d.Header.Get("User-Agent"); got != "ajax-test" {
		t.Errorf("User-Agent = %s, want ajax-test", got)
	}
}

func TestBuild_BaseHeadersNotShared(t *testing.T) {
	c := newTestBuilder(t, WithBaseHeader("X-Client", "base"))

	d1, _ := c.Build(http.MethodGet, EncodingJSON, "https://api.example.com", nil)
	d1.Header.Set("X-Client", "mutated")

	d2, _ := c.Build(http.MethodGet, EncodingJSON, "https://api.example.com", nil)
	if got := d2.Header.Get("X-Client"); got != "base" {
		t.Errorf("mutating one descriptor leaked into the next: %s", got)
	}
}

func TestBuild_HandleAndReferrer(t *testing.T) {
	c := newTestBuilder(t)
	h := NewHandle()

	d, err := c.Build(http.MethodGet, EncodingJSON, "https://api.example.com", nil, WithHandle(h), WithReferrer("/dashboard"))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if d.Handle != h {
		t.Error("expected caller handle to be attached")
	}
	if d.Referrer() != "/dashboard" {
		t.Errorf("Referrer = %q, want /dashboard", d.Referrer())
	}

	other, _ := c.Build(http.MethodGet, EncodingJSON, "https://api.example.com", nil)
	if other.Handle == h || other.Handle == nil {
		t.Error("calls without a handle should each get a fresh one")
	}
}

func TestEncodingString(t *testing.T) {
	if EncodingJSON.String() != "json" || EncodingForm.String() != "form" {
		t.Errorf("unexpected names: %s %s", EncodingJSON, EncodingForm)
	}
	if Encoding(9).String() != "encoding(9)" {
		t.Errorf("unexpected name for unknown encoding: %s", Encoding(9))
	}
}

package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Encoding selects how a request body is serialized.
type Encoding int

const (
	// EncodingJSON serializes the body as JSON text.
	EncodingJSON Encoding = iota
	// EncodingForm serializes the body as multipart/form-data.
	EncodingForm
)

func (e Encoding) String() string {
	switch e {
	case EncodingJSON:
		return "json"
	case EncodingForm:
		return "form"
	default:
		return "encoding(" + strconv.Itoa(int(e)) + ")"
	}
}

const mediaTypeJSON = "application/json"

// Body is an encoded request body. It is either JSON or multipart form
// data, never both; the only implementations live in this package.
type Body interface {
	Encoding() Encoding
	ContentType() string
	Bytes() []byte
	isBody()
}

type jsonBody struct {
	data []byte
}

func (b *jsonBody) Encoding() Encoding  { return EncodingJSON }
func (b *jsonBody) ContentType() string { return mediaTypeJSON }
func (b *jsonBody) Bytes() []byte       { return b.data }
func (b *jsonBody) isBody()             {}

type formBody struct {
	data        []byte
	contentType string
}

func (b *formBody) Encoding() Encoding  { return EncodingForm }
func (b *formBody) ContentType() string { return b.contentType }
func (b *formBody) Bytes() []byte       { return b.data }
func (b *formBody) isBody()             {}

// FormFile is a file part of a multipart form body.
type FormFile struct {
	Field   string
	Name    string
	Content []byte
}

// Form is a multipart form body with plain fields and file parts.
type Form struct {
	Fields url.Values
	Files  []FormFile
}

// EncodeJSON encodes v as a JSON body. A nil v means no body, and so does a
// nil map, slice or pointer. json.RawMessage and []byte values are sent
// verbatim when they hold valid JSON.
func EncodeJSON(v any) (Body, error) {
	if isNilValue(v) {
		return nil, nil
	}
	switch val := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return rawJSON(val)
	case []byte:
		return rawJSON(val)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, &InvalidBodyError{Encoding: EncodingJSON, Err: err}
	}
	return &jsonBody{data: data}, nil
}

func isNilValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Pointer:
		return rv.IsNil()
	}
	return false
}

func rawJSON(data []byte) (Body, error) {
	if !json.Valid(data) {
		return nil, &InvalidBodyError{Encoding: EncodingJSON, Err: fmt.Errorf("raw body is not valid JSON")}
	}
	return &jsonBody{data: bytes.Clone(data)}, nil
}

// EncodeForm encodes v as a multipart form body. A nil v means no body.
//
// Accepted inputs are Form, *Form, url.Values, map[string]string,
// map[string][]string and map[string]any holding scalars, []string or
// FormFile values. Fields are written in key order.
func EncodeForm(v any) (Body, error) {
	var form Form
	switch val := v.(type) {
	case nil:
		return nil, nil
	case Form:
		form = val
	case *Form:
		if val == nil {
			return nil, nil
		}
		form = *val
	case url.Values:
		form.Fields = val
	case map[string]string:
		form.Fields = url.Values{}
		for k, s := range val {
			form.Fields.Set(k, s)
		}
	case map[string][]string:
		form.Fields = url.Values(val)
	case map[string]any:
		f, err := formFromMap(val)
		if err != nil {
			return nil, err
		}
		form = f
	default:
		return nil, &InvalidBodyError{Encoding: EncodingForm, Err: fmt.Errorf("unsupported form body type %T", v)}
	}
	return writeForm(form)
}

func formFromMap(m map[string]any) (Form, error) {
	form := Form{Fields: url.Values{}}
	for key, raw := range m {
		switch val := raw.(type) {
		case nil:
			continue
		case string:
			form.Fields.Add(key, val)
		case []string:
			for _, s := range val {
				form.Fields.Add(key, s)
			}
		case bool:
			form.Fields.Add(key, strconv.FormatBool(val))
		case int:
			form.Fields.Add(key, strconv.Itoa(val))
		case int64:
			form.Fields.Add(key, strconv.FormatInt(val, 10))
		case float64:
			form.Fields.Add(key, strconv.FormatFloat(val, 'f', -1, 64))
		case json.Number:
			form.Fields.Add(key, val.String())
		case FormFile:
			if val.Field == "" {
				val.Field = key
			}
			form.Files = append(form.Files, val)
		default:
			return Form{}, &InvalidBodyError{
				Encoding: EncodingForm,
				Err:      fmt.Errorf("field %q: unsupported form value type %T", key, raw),
			}
		}
	}
	return form, nil
}

func writeForm(form Form) (Body, error) {
	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)

	keys := make([]string, 0, len(form.Fields))
	for k := range form.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		for _, value := range form.Fields[key] {
			if err := writer.WriteField(key, value); err != nil {
				return nil, &InvalidBodyError{Encoding: EncodingForm, Err: fmt.Errorf("failed to write field %s: %w", key, err)}
			}
		}
	}

	for _, file := range form.Files {
		if file.Field == "" {
			return nil, &InvalidBodyError{Encoding: EncodingForm, Err: fmt.Errorf("file %q has no field name", file.Name)}
		}
		part, err := writer.CreateFormFile(file.Field, file.Name)
		if err != nil {
			return nil, &InvalidBodyError{Encoding: EncodingForm, Err: fmt.Errorf("failed to create form file %s: %w", file.Name, err)}
		}
		if _, err := part.Write(file.Content); err != nil {
			return nil, &InvalidBodyError{Encoding: EncodingForm, Err: fmt.Errorf("failed to write file content %s: %w", file.Name, err)}
		}
	}

	if err := writer.Close(); err != nil {
		return nil, &InvalidBodyError{Encoding: EncodingForm, Err: fmt.Errorf("failed to close multipart writer: %w", err)}
	}
	return &formBody{data: buf.Bytes(), contentType: writer.FormDataContentType()}, nil
}

// Descriptor is a transport-ready request. Build returns a fresh one per
// call; Inject returns a decorated copy instead of mutating it.
type Descriptor struct {
	Method string
	URL    string
	Header http.Header
	Body   Body
	Handle *Handle

	referrer string
	origin   string
}

// Clone returns a copy that shares no mutable state with d.
// The handle is shared: it identifies the request, not its contents.
func (d *Descriptor) Clone() *Descriptor {
	out := *d
	out.Header = d.Header.Clone()
	if out.Header == nil {
		out.Header = http.Header{}
	}
	return &out
}

// Accept returns the declared response media type.
func (d *Descriptor) Accept() string {
	return d.Header.Get("Accept")
}

// Referrer returns the caller's current location passed with WithReferrer.
func (d *Descriptor) Referrer() string {
	return d.referrer
}

// DisplayURL returns the URL as the caller wrote it, before any credential
// was appended to it. Logs and errors use this form.
func (d *Descriptor) DisplayURL() string {
	if d.origin != "" {
		return d.origin
	}
	return d.URL
}

type callOptions struct {
	header   http.Header
	handle   *Handle
	referrer string
}

// CallOption customizes a single request.
type CallOption func(*callOptions)

// WithHeader sets a header for this call, replacing any base value.
func WithHeader(key, value string) CallOption {
	return func(o *callOptions) {
		o.header.Set(key, value)
	}
}

// WithHeaders merges h onto the base headers; keys in h win.
func WithHeaders(h http.Header) CallOption {
	return func(o *callOptions) {
		for key, values := range h {
			o.header.Del(key)
			for _, v := range values {
				o.header.Add(key, v)
			}
		}
	}
}

// WithAccept overrides the default application/json Accept header.
func WithAccept(mediaType string) CallOption {
	return WithHeader("Accept", mediaType)
}

// WithHandle attaches a caller-owned cancellation handle.
func WithHandle(h *Handle) CallOption {
	return func(o *callOptions) {
		o.handle = h
	}
}

// WithReferrer records the caller's current path. It is passed to the
// unauthorized navigator so the application can return there afterwards.
func WithReferrer(path string) CallOption {
	return func(o *callOptions) {
		o.referrer = path
	}
}

// buildDescriptor assembles a descriptor from the client-level settings and
// the call arguments. It performs no I/O.
func buildDescriptor(cfg *Config, method string, enc Encoding, rawURL string, body any, opts []CallOption) (*Descriptor, error) {
	method = strings.ToUpper(strings.TrimSpace(method))
	if !supportedMethod(method) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
	}
	if err := checkURL(cfg, rawURL); err != nil {
		return nil, err
	}

	var (
		encoded Body
		err     error
	)
	switch enc {
	case EncodingJSON:
		encoded, err = EncodeJSON(body)
	case EncodingForm:
		encoded, err = EncodeForm(body)
	default:
		return nil, &InvalidBodyError{Encoding: enc, Err: fmt.Errorf("unknown encoding")}
	}
	if err != nil {
		return nil, err
	}

	call := callOptions{header: http.Header{}}
	for _, opt := range opts {
		if opt != nil {
			opt(&call)
		}
	}

	header := http.Header{}
	header.Set("Accept", mediaTypeJSON)
	for key, values := range cfg.Header {
		header[http.CanonicalHeaderKey(key)] = append([]string(nil), values...)
	}
	if cfg.UserAgent != "" {
		header.Set("User-Agent", cfg.UserAgent)
	}
	if encoded != nil {
		header.Set("Content-Type", encoded.ContentType())
	}
	for key, values := range call.header {
		header[key] = values
	}

	handle := call.handle
	if handle == nil {
		handle = NewHandle()
	}

	return &Descriptor{
		Method:   method,
		URL:      rawURL,
		Header:   header,
		Body:     encoded,
		Handle:   handle,
		referrer: call.referrer,
		origin:   rawURL,
	}, nil
}

func supportedMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
		return true
	default:
		return false
	}
}

func checkURL(cfg *Config, rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return fmt.Errorf("%w: empty URL", ErrInvalidURL)
	}
	if _, err := url.Parse(rawURL); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if cfg.ValidateURL != nil {
		if err := cfg.ValidateURL(rawURL); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidURL, err)
		}
	}
	return nil
}

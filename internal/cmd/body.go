package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/acto-dev/ajax/internal/api"
	"github.com/acto-dev/ajax/internal/iocontext"
	"github.com/acto-dev/ajax/internal/validation"
)

// bodyOptions are the request body flags shared by the verb commands.
type bodyOptions struct {
	data      string
	input     string
	fields    []string
	rawFields []string
	files     []string
	form      bool
}

func (b *bodyOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&b.data, "body", "d", "", "Inline JSON body")
	cmd.Flags().StringVarP(&b.input, "input", "i", "", "Read the JSON body from a file ('-' for stdin)")
	cmd.Flags().StringArrayVarP(&b.fields, "field", "f", nil, "Add a string field key=value (repeatable)")
	cmd.Flags().StringArrayVarP(&b.rawFields, "raw-field", "F", nil, "Add a JSON field key=<json> (repeatable)")
	cmd.Flags().StringArrayVar(&b.files, "file", nil, "Add a file part field=@path (implies --form)")
	cmd.Flags().BoolVar(&b.form, "form", false, "Send the fields as multipart/form-data")
}

// build returns the body and its encoding. A nil body means none was given.
func (b *bodyOptions) build(streams *iocontext.IO) (any, api.Encoding, error) {
	if b.form || len(b.files) > 0 {
		if b.data != "" || b.input != "" || len(b.rawFields) > 0 {
			return nil, api.EncodingForm, errors.New("--form cannot be used with --body, --input or --raw-field")
		}
		form, err := buildFormBody(streams, b.fields, b.files)
		return form, api.EncodingForm, err
	}
	body, err := b.buildJSON(streams)
	return body, api.EncodingJSON, err
}

func (b *bodyOptions) buildJSON(streams *iocontext.IO) (any, error) {
	if b.data != "" && b.input != "" {
		return nil, errors.New("--body cannot be used with --input")
	}

	raw := b.data
	source := "--body"
	if b.input != "" {
		data, err := streams.ReadSource(b.input)
		if err != nil {
			return nil, fmt.Errorf("failed to read input: %w", err)
		}
		raw = string(data)
		source = "input"
	}
	if raw != "" {
		if err := validation.ValidateJSONPayload(raw); err != nil {
			return nil, err
		}
		// A bare document is sent as given, arrays and scalars included.
		if len(b.fields) == 0 && len(b.rawFields) == 0 {
			return json.RawMessage(raw), nil
		}
	}
	return buildRequestBody(b.fields, b.rawFields, raw, source)
}

// buildRequestBody merges fields over an optional JSON object. It returns an
// untyped nil when there is nothing to send.
func buildRequestBody(fields, rawFields []string, base, source string) (any, error) {
	body := make(map[string]any)

	if base != "" {
		if err := json.Unmarshal([]byte(base), &body); err != nil {
			return nil, fmt.Errorf("failed to parse %s JSON as an object: %w", source, err)
		}
	}

	for _, field := range fields {
		key, value, err := parseField(field)
		if err != nil {
			return nil, err
		}
		body[key] = value
	}

	for _, field := range rawFields {
		key, value, err := parseRawField(field)
		if err != nil {
			return nil, err
		}
		body[key] = value
	}

	if len(body) == 0 {
		return nil, nil
	}
	return body, nil
}

func buildFormBody(streams *iocontext.IO, fields, files []string) (any, error) {
	if len(fields) == 0 && len(files) == 0 {
		return nil, nil
	}
	form := api.Form{Fields: url.Values{}}
	for _, field := range fields {
		key, value, err := parseField(field)
		if err != nil {
			return nil, err
		}
		form.Fields.Add(key, value)
	}
	for _, part := range files {
		file, err := parseFilePart(streams, part)
		if err != nil {
			return nil, err
		}
		form.Files = append(form.Files, file)
	}
	return form, nil
}

// parseFilePart reads a field=@path file part. The part name is the base of path.
func parseFilePart(streams *iocontext.IO, part string) (api.FormFile, error) {
	field, path, ok := strings.Cut(part, "=")
	if !ok || field == "" || !strings.HasPrefix(path, "@") || len(path) < 2 {
		return api.FormFile{}, fmt.Errorf("invalid file format %q: must be field=@path", part)
	}
	path = path[1:]
	content, err := streams.ReadSource(path)
	if err != nil {
		return api.FormFile{}, err
	}
	name := filepath.Base(path)
	if path == "-" {
		name = field
	}
	return api.FormFile{Field: field, Name: name, Content: content}, nil
}

// parseField parses a key=value field where value is a string
func parseField(field string) (string, string, error) {
	key, value, ok := strings.Cut(field, "=")
	if !ok || key == "" {
		return "", "", fmt.Errorf("invalid field format %q: must be key=value", field)
	}
	return key, value, nil
}

// parseRawField parses a key=value field where value is JSON
func parseRawField(field string) (string, any, error) {
	key, raw, ok := strings.Cut(field, "=")
	if !ok || key == "" {
		return "", nil, fmt.Errorf("invalid raw field format %q: must be key=value", field)
	}

	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return "", nil, fmt.Errorf("invalid JSON in raw field %q: %w", key, err)
	}
	return key, value, nil
}

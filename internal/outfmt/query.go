package outfmt

import (
	"context"
	"encoding/json"
	"io"

	"github.com/acto-dev/ajax/internal/filter"
)

type queryKey struct{}

// WithQuery adds a jq query to the context
func WithQuery(ctx context.Context, query string) context.Context {
	return context.WithValue(ctx, queryKey{}, query)
}

// GetQuery retrieves the jq query from context
func GetQuery(ctx context.Context) string {
	if q, ok := ctx.Value(queryKey{}).(string); ok {
		return q
	}
	return ""
}

// WriteJSONFiltered writes v as JSON after applying query, if any.
func WriteJSONFiltered(w io.Writer, v any, query string, compact bool) error {
	filtered, err := ApplyQuery(v, query)
	if err != nil {
		return err
	}
	return WriteJSON(w, filtered, compact)
}

// ApplyQuery runs query over v and returns the filtered value.
// v is round-tripped through JSON so struct tags decide the field names.
func ApplyQuery(v any, query string) (any, error) {
	if query == "" {
		return v, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return filter.ApplyFromJSON(data, query)
}

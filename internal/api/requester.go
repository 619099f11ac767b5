package api

import "context"

// Builder assembles descriptors without sending anything.
//
// Dry-run previews depend on Builder alone so they can never dispatch.
type Builder interface {
	// Build returns a descriptor without credentials.
	Build(method string, enc Encoding, rawURL string, body any, opts ...CallOption) (*Descriptor, error)

	// Prepare returns a descriptor with the client's credential injected.
	Prepare(method string, enc Encoding, rawURL string, body any, opts ...CallOption) (*Descriptor, error)
}

// Dispatcher sends prepared descriptors.
type Dispatcher interface {
	Do(ctx context.Context, d *Descriptor) (*Response, error)
}

// Requester combines Builder and Dispatcher with the one-shot Send used by
// most call sites. Commands depend on it rather than on *Client so tests
// can substitute a fake.
type Requester interface {
	Builder
	Dispatcher
	Send(ctx context.Context, method string, enc Encoding, rawURL string, body any, opts ...CallOption) (*Response, error)
}

package ports

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// PayloadKind discriminates the content-type-dependent result of a request.
type PayloadKind int

const (
	// PayloadJSON means the response declared a JSON content type and the
	// body is available as a raw JSON document.
	PayloadJSON PayloadKind = iota
	// PayloadText means the response declared a textual content type.
	PayloadText
	// PayloadRaw means anything else; the caller owns the response body.
	PayloadRaw
)

// Payload is the tagged union returned by a successful request. Exactly one
// of JSON, Text or Raw is populated, selected by Kind.
type Payload struct {
	Kind PayloadKind
	JSON json.RawMessage
	Text string
	Raw  *http.Response
}

// Decode unmarshals a JSON payload into v. It fails on non-JSON payloads.
func (p Payload) Decode(v any) error {
	if p.Kind != PayloadJSON {
		return fmt.Errorf("payload is not JSON (kind %d)", p.Kind)
	}
	return json.Unmarshal(p.JSON, v)
}

// RESTClient issues requests against the time-reporting API and normalizes
// success and error shapes. Non-2xx responses surface as *domain.HTTPError.
type RESTClient interface {
	Do(ctx context.Context, method, path string, body any) (Payload, error)
}

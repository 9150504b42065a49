package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Request describes one logical call to the backend.
type Request struct {
	Method string
	// Path is relative to the base URL and already escaped.
	Path   string
	Query  url.Values

	// Body is encoded as JSON. Ignored when RawBody is set.
	Body any
	// RawBody is sent unchanged with ContentType, e.g. a multipart upload.
	RawBody     []byte
	ContentType string

	// Header holds extra headers. Authorization is always managed by the client.
	Header http.Header

	// Public requests carry no bearer token and a 401 is reported as a logical failure.
	Public bool

	// ReturnTo is passed to the login entry point as the redirect target if the
	// session expires during this request.
	ReturnTo string
}

// payload is the encoded body of a request, replayable for the retry.
type payload struct {
	data        []byte
	contentType string
}

func (r *Request) encode() (payload, error) {
	if r.RawBody != nil {
		return payload{data: r.RawBody, contentType: r.ContentType}, nil
	}
	if r.Body == nil {
		return payload{}, nil
	}

	data, err := json.Marshal(r.Body)
	if err != nil {
		return payload{}, fmt.Errorf("encoding request body: %w", err)
	}
	return payload{data: data, contentType: "application/json"}, nil
}

func (p payload) reader() *bytes.Reader {
	return bytes.NewReader(p.data)
}

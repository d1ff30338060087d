package rag

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/ragd/internal/errdefs"
)

// DefaultTopK is used when a query does not set top_k.
const DefaultTopK = 5

// IngestRequest asks for one document to be indexed.
type IngestRequest struct {
	PDFPath string `json:"pdf_path"`
	// SourceID defaults to PDFPath.
	SourceID string `json:"source_id,omitempty"`
}

// Normalize validates the request and fills defaults.
func (r IngestRequest) Normalize() (IngestRequest, error) {
	r.PDFPath = strings.TrimSpace(r.PDFPath)
	r.SourceID = strings.TrimSpace(r.SourceID)
	if r.PDFPath == "" {
		return r, errdefs.Configf("pdf_path", "required")
	}
	if r.SourceID == "" {
		r.SourceID = r.PDFPath
	}
	return r, nil
}

// QueryRequest asks a question against the collection.
type QueryRequest struct {
	Question string `json:"question"`
	// TopK is nil when unset. JSON input may be a number or a numeric string.
	TopK *int `json:"top_k,omitempty"`
}

// NewQueryRequest builds a request with an explicit top_k.
func NewQueryRequest(question string, topK int) QueryRequest {
	return QueryRequest{Question: question, TopK: &topK}
}

// UnmarshalJSON accepts top_k as an integer, a numeric string or null.
// Anything else is a ConfigurationError.
func (r *QueryRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		Question string          `json:"question"`
		TopK     json.RawMessage `json:"top_k"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	topK, err := parseTopK(raw.TopK)
	if err != nil {
		return err
	}
	r.Question = raw.Question
	r.TopK = topK
	return nil
}

func parseTopK(raw json.RawMessage) (*int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var s string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, errdefs.Configf("top_k", "invalid value %s", raw)
		}
	} else {
		s = string(raw)
	}
	k, err := ParseTopK(s)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// ParseTopK parses a top_k value given as text. Integral floats such as
// "3.0" are accepted.
func ParseTopK(s string) (int, error) {
	s = strings.TrimSpace(s)
	if k, err := strconv.Atoi(s); err == nil {
		return k, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, errdefs.Configf("top_k", "must be an integer, got %q", s)
	}
	return int(f), nil
}

// Normalize validates the request and fills defaults.
func (r QueryRequest) Normalize() (QueryRequest, error) {
	r.Question = strings.TrimSpace(r.Question)
	if r.Question == "" {
		return r, errdefs.Configf("question", "required")
	}
	k := DefaultTopK
	if r.TopK != nil {
		k = *r.TopK
	}
	if k < 1 {
		return r, errdefs.Configf("top_k", "must be a positive integer, got %d", k)
	}
	r.TopK = &k
	return r, nil
}

// Limit returns top_k, or DefaultTopK when unset.
func (r QueryRequest) Limit() int {
	if r.TopK == nil {
		return DefaultTopK
	}
	return *r.TopK
}

// Package http provides the REST API and the server-rendered form interface.
//
// This file normalises JSON and form-encoded request bodies into a
// core.BillInput so both transports feed the same validation path.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"ubillity/internal/core"
)

// MaxBodyBytes bounds the size of a request body.
const MaxBodyBytes = 1 << 20

var (
	ErrBodyTooLarge = errors.New("request body too large")
	ErrNotAnObject  = errors.New("JSON body must be an object")
)

// RequestBodyParser handles different content types for request body parsing.
// The body is read once; JSON objects and urlencoded forms are both supported.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]interface{}
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	if r.Body == nil {
		return p
	}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
	if p.err == nil && len(p.body) > MaxBodyBytes {
		p.err = ErrBodyTooLarge
	}
	return p
}

// Parse decodes the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	trimmed := bytes.TrimSpace(p.body)
	if len(trimmed) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if p.looksLikeJSON(trimmed) {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		var v interface{}
		if err := dec.Decode(&v); err != nil {
			p.err = fmt.Errorf("decode JSON body: %w", err)
			return p.err
		}
		obj, ok := v.(map[string]interface{})
		if !ok {
			p.err = ErrNotAnObject
			return p.err
		}
		p.jsonData = obj
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(trimmed))
	return p.err
}

func (p *RequestBodyParser) looksLikeJSON(body []byte) bool {
	if mt, _, err := mime.ParseMediaType(p.contentType); err == nil {
		switch {
		case mt == "application/json", strings.HasSuffix(mt, "+json"):
			return true
		case mt == "application/x-www-form-urlencoded":
			return false
		}
	}
	return body[0] == '{' || body[0] == '['
}

// Lookup returns a value and whether the key was supplied at all.
// A JSON null is reported as present and empty.
func (p *RequestBodyParser) Lookup(key string) (string, bool, error) {
	if p.jsonData != nil {
		val, ok := p.jsonData[key]
		if !ok {
			return "", false, nil
		}
		s, err := stringValue(val)
		if err != nil {
			return "", true, err
		}
		return sanitizeInput(s), true, nil
	}
	if p.formData != nil {
		if _, ok := p.formData[key]; !ok {
			return "", false, nil
		}
		return sanitizeInput(p.formData.Get(key)), true, nil
	}
	return "", false, nil
}

// Get returns a trimmed value, or an empty string when absent.
func (p *RequestBodyParser) Get(key string) string {
	v, _, _ := p.Lookup(key)
	return v
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// BillInput collects the bill fields present in the body. Read-only fields
// such as id and recurrence_id are ignored.
func (p *RequestBodyParser) BillInput() (core.BillInput, error) {
	var in core.BillInput
	verr := &core.ValidationError{}

	targets := []struct {
		field string
		dst   **string
	}{
		{core.FieldName, &in.Name},
		{core.FieldDescription, &in.Description},
		{core.FieldAmount, &in.Amount},
		{core.FieldType, &in.Type},
		{core.FieldCategory, &in.Category},
		{core.FieldDueDate, &in.DueDate},
		{core.FieldReconciled, &in.Reconciled},
		{core.FieldRecurrence, &in.Recurrence},
	}
	for _, t := range targets {
		if t.field != core.FieldReconciled && p.isJSONBool(t.field) {
			if verr.Fields == nil {
				verr.Fields = make(map[string]string)
			}
			verr.Fields[t.field] = boolMessage(t.field)
			continue
		}
		v, ok, err := p.Lookup(t.field)
		if err != nil {
			if verr.Fields == nil {
				verr.Fields = make(map[string]string)
			}
			verr.Fields[t.field] = "Not a valid value."
			continue
		}
		if ok {
			*t.dst = &v
		}
	}
	if len(verr.Fields) > 0 {
		return core.BillInput{}, verr
	}
	return in, nil
}

func (p *RequestBodyParser) isJSONBool(key string) bool {
	_, ok := p.jsonData[key].(bool)
	return ok
}

// boolMessage is the field error for a JSON boolean sent to a non-boolean field.
func boolMessage(field string) string {
	switch field {
	case core.FieldAmount:
		return core.MsgInvalidNumber
	case core.FieldDueDate:
		return core.MsgInvalidDate
	default:
		return core.MsgInvalidString
	}
}

var errNotScalar = errors.New("value must be a string, number or boolean")

// stringValue converts a decoded JSON scalar to its string form.
func stringValue(v interface{}) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case json.Number:
		return val.String(), nil
	case bool:
		return strconv.FormatBool(val), nil
	default:
		return "", errNotScalar
	}
}

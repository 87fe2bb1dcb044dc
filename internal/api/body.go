package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
)

const contentTypeJSON = "application/json"

// Form is a multipart/form-data body. Build it with NewForm.
type Form struct {
	fields []formField
	files  []formFile
}

type formField struct{ name, value string }

type formFile struct {
	field, filename string
	content         []byte
}

func NewForm() *Form { return &Form{} }

// Field appends a text part.
func (f *Form) Field(name, value string) *Form {
	f.fields = append(f.fields, formField{name, value})
	return f
}

// File appends a file part.
func (f *Form) File(field, filename string, content []byte) *Form {
	f.files = append(f.files, formFile{field, filename, content})
	return f
}

// payload is an encoded body. It is built once per call so a retry after
// renewal sends identical bytes.
type payload struct {
	data        []byte
	contentType string
}

func (p *payload) reader() *bytes.Reader {
	if p == nil {
		return bytes.NewReader(nil)
	}
	return bytes.NewReader(p.data)
}

func (f *Form) encode() (*payload, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, field := range f.fields {
		if err := w.WriteField(field.name, field.value); err != nil {
			return nil, fmt.Errorf("write form field %s: %w", field.name, err)
		}
	}
	for _, file := range f.files {
		part, err := w.CreateFormFile(file.field, file.filename)
		if err != nil {
			return nil, fmt.Errorf("create form file %s: %w", file.field, err)
		}
		if _, err := part.Write(file.content); err != nil {
			return nil, fmt.Errorf("write form file %s: %w", file.field, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close form: %w", err)
	}
	return &payload{data: buf.Bytes(), contentType: w.FormDataContentType()}, nil
}

func encodeBody(body any) (*payload, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case *Form:
		if b == nil {
			return nil, nil
		}
		return b.encode()
	case json.RawMessage:
		return &payload{data: b, contentType: contentTypeJSON}, nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, err
		}
		return &payload{data: data, contentType: contentTypeJSON}, nil
	}
}

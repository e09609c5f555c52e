package usecase

import (
	"bytes"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
)

// Envelope is a pushed payload plus its detected format.
type Envelope struct {
	Payload []byte
	Ext     string
}

// SniffEnvelope extracts the payload from the push request body.
// Providers push either multipart/form-data with an "xml" or "json"
// field (file or value), application/x-www-form-urlencoded with a
// body starting "xml="/"json=", or raw JSON. An unrecognized envelope
// yields an empty payload, which is not an error at this layer.
func SniffEnvelope(r *http.Request) Envelope {
	contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch {
	case strings.HasPrefix(contentType, "multipart/"):
		return sniffMultipart(r)
	case contentType == "application/x-www-form-urlencoded":
		return sniffURLEncoded(r)
	default:
		return sniffRaw(r)
	}
}

func sniffMultipart(r *http.Request) Envelope {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return Envelope{}
	}
	for _, field := range []struct{ name, ext string }{
		{"xml", ".xml"},
		{"json", ".json"},
	} {
		if values := r.MultipartForm.Value[field.name]; len(values) > 0 && values[0] != "" {
			return Envelope{Payload: []byte(values[0]), Ext: field.ext}
		}
		if files := r.MultipartForm.File[field.name]; len(files) > 0 {
			f, err := files[0].Open()
			if err != nil {
				continue
			}
			content, err := io.ReadAll(f)
			f.Close()
			if err == nil && len(content) > 0 {
				return Envelope{Payload: content, Ext: field.ext}
			}
		}
	}
	return Envelope{}
}

func sniffURLEncoded(r *http.Request) Envelope {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return Envelope{}
	}
	text := string(body)
	for _, field := range []struct{ prefix, ext string }{
		{"xml=", ".xml"},
		{"json=", ".json"},
	} {
		if strings.HasPrefix(text, field.prefix) {
			payload, err := url.QueryUnescape(strings.TrimPrefix(text, field.prefix))
			if err != nil {
				return Envelope{}
			}
			return Envelope{Payload: []byte(payload), Ext: field.ext}
		}
	}
	return Envelope{}
}

func sniffRaw(r *http.Request) Envelope {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return Envelope{}
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return Envelope{}
	}
	if bytes.HasPrefix(trimmed, []byte("{")) || bytes.HasPrefix(trimmed, []byte("[")) {
		return Envelope{Payload: trimmed, Ext: ".json"}
	}
	if bytes.HasPrefix(trimmed, []byte("<")) {
		return Envelope{Payload: trimmed, Ext: ".xml"}
	}
	return Envelope{}
}

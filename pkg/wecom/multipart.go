package wecom

import (
	"bytes"
	"regexp"
)

// FormFile is one uploaded file extracted from a multipart body
type FormFile struct {
	Field    string
	Filename string
	MimeType string
	Data     []byte
}

// FormData is the result of parsing a legacy multipart/form-data body
type FormData struct {
	Fields map[string]string
	Files  []FormFile
}

var (
	dispositionRe = regexp.MustCompile(`(?i)Content-Disposition: form-data; name="([^"]+)"(?:; filename="([^"]+)")?`)
	contentTypeRe = regexp.MustCompile(`(?i)Content-Type: ([^\r\n]+)`)
)

const defaultPartMimeType = "application/octet-stream"

// ParseMultipart scans a multipart/form-data body for boundary markers and
// splits it into text fields and file parts. A part is a file only when its
// Content-Disposition carries a filename. A body without any boundary match
// yields an empty result, not an error; callers treat empty fields as a
// validation failure upstream.
func ParseMultipart(body []byte, boundary string) FormData {
	result := FormData{Fields: make(map[string]string)}
	marker := []byte("--" + boundary)

	start := bytes.Index(body, marker)
	if start == -1 {
		return result
	}
	start += len(marker)
	start = skipCRLF(body, start)

	var parts [][]byte
	for {
		next := bytes.Index(body[start:], marker)
		if next == -1 {
			break
		}
		next += start

		// Strip the CRLF framing the boundary.
		end := next
		if end >= 2 && body[end-2] == '\r' && body[end-1] == '\n' {
			end -= 2
		}
		parts = append(parts, body[start:end])

		start = next + len(marker)
		// A trailing "--" terminates the stream.
		if start+1 < len(body) && body[start] == '-' && body[start+1] == '-' {
			break
		}
		start = skipCRLF(body, start)
	}

	for _, part := range parts {
		headerEnd := bytes.Index(part, []byte("\r\n\r\n"))
		if headerEnd == -1 {
			continue
		}

		headers := string(part[:headerEnd])
		payload := part[headerEnd+4:]

		disposition := dispositionRe.FindStringSubmatch(headers)
		if disposition == nil {
			continue
		}

		name, filename := disposition[1], disposition[2]
		if filename == "" {
			result.Fields[name] = string(payload)
			continue
		}

		mimeType := defaultPartMimeType
		if ct := contentTypeRe.FindStringSubmatch(headers); ct != nil {
			mimeType = ct[1]
		}
		result.Files = append(result.Files, FormFile{
			Field:    name,
			Filename: filename,
			MimeType: mimeType,
			Data:     payload,
		})
	}

	return result
}

func skipCRLF(body []byte, i int) int {
	if i+1 < len(body) && body[i] == '\r' && body[i+1] == '\n' {
		return i + 2
	}
	return i
}

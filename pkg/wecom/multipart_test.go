package wecom

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildMultipartBody(boundary string, parts ...string) []byte {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString("--" + boundary + "\r\n")
		b.WriteString(p)
	}
	b.WriteString("--" + boundary + "--\r\n")
	return []byte(b.String())
}

func TestParseMultipartFieldsAndFiles(t *testing.T) {
	body := buildMultipartBody("XYZ",
		"Content-Disposition: form-data; name=\"email\"\r\n\r\nzhangsan@example.com\r\n",
		"Content-Disposition: form-data; name=\"sync\"\r\n\r\ntrue\r\n",
		"Content-Disposition: form-data; name=\"attachment\"; filename=\"report.pdf\"\r\nContent-Type: application/pdf\r\n\r\n%PDF-1.4 binary\x00data\r\n",
	)

	result := ParseMultipart(body, "XYZ")

	assert.Equal(t, "zhangsan@example.com", result.Fields["email"])
	assert.Equal(t, "true", result.Fields["sync"])

	require.Len(t, result.Files, 1)
	f := result.Files[0]
	assert.Equal(t, "attachment", f.Field)
	assert.Equal(t, "report.pdf", f.Filename)
	assert.Equal(t, "application/pdf", f.MimeType)
	assert.Equal(t, []byte("%PDF-1.4 binary\x00data"), f.Data)
}

func TestParseMultipartFileWithoutContentType(t *testing.T) {
	body := buildMultipartBody("b1",
		"Content-Disposition: form-data; name=\"file\"; filename=\"x.bin\"\r\n\r\npayload\r\n",
	)

	result := ParseMultipart(body, "b1")

	require.Len(t, result.Files, 1)
	assert.Equal(t, defaultPartMimeType, result.Files[0].MimeType)
	assert.Equal(t, []byte("payload"), result.Files[0].Data)
}

func TestParseMultipartNoBoundaryMatch(t *testing.T) {
	result := ParseMultipart([]byte("random body with no markers"), "XYZ")

	assert.Empty(t, result.Fields)
	assert.Empty(t, result.Files)
}

func TestParseMultipartEmptyBody(t *testing.T) {
	result := ParseMultipart(nil, "XYZ")

	assert.Empty(t, result.Fields)
	assert.Empty(t, result.Files)
}

func TestParseMultipartPreservesBinaryData(t *testing.T) {
	payload := string([]byte{0x00, 0x01, 0xff, '\r', '\n', 0x7f})
	body := buildMultipartBody("bound",
		"Content-Disposition: form-data; name=\"blob\"; filename=\"b\"\r\nContent-Type: application/octet-stream\r\n\r\n"+payload+"\r\n",
	)

	result := ParseMultipart(body, "bound")

	require.Len(t, result.Files, 1)
	assert.Equal(t, []byte(payload), result.Files[0].Data)
}

func TestParseMultipartIgnoresPartWithoutDisposition(t *testing.T) {
	body := buildMultipartBody("b2",
		"Content-Type: text/plain\r\n\r\norphan part\r\n",
		"Content-Disposition: form-data; name=\"text\"\r\n\r\nkept\r\n",
	)

	result := ParseMultipart(body, "b2")

	assert.Equal(t, map[string]string{"text": "kept"}, result.Fields)
	assert.Empty(t, result.Files)
}

func TestParseMultipartCaseInsensitiveHeaders(t *testing.T) {
	body := buildMultipartBody("b3",
		"content-disposition: form-data; name=\"email\"\r\n\r\nli@corp.cn\r\n",
	)

	result := ParseMultipart(body, "b3")

	assert.Equal(t, "li@corp.cn", result.Fields["email"])
}

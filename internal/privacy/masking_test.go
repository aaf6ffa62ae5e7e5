package privacy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskRecipientID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want string
	}{
		{name: "plain user id", id: "zhangsan", want: "****gsan"},
		{name: "long user id", id: "user123456", want: "******3456"},
		{name: "id shorter than kept tail", id: "usr", want: "***"},
		{name: "single rune", id: "u", want: "*"},
		{name: "empty", id: "", want: ""},
		{name: "email keeps domain", id: "zhangsan@example.com", want: "****gsan@example.com"},
		{name: "short local part", id: "li@corp.cn", want: "**@corp.cn"},
		{name: "local part exactly tail length", id: "abcd@x.io", want: "****@x.io"},
		{name: "leading at is not an email", id: "@all", want: "****"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskRecipientID(tt.id))
		})
	}
}

func TestMaskCorpID(t *testing.T) {
	assert.Equal(t, "**************cdef", MaskCorpID("ww1234567890abcdef"))
	assert.Equal(t, "****", MaskCorpID("wwab"))
	assert.Equal(t, "", MaskCorpID(""))
}

func TestMaskMessageID(t *testing.T) {
	assert.Equal(t, "***********79710974", MaskMessageID("7095364380979710974"))
	assert.Equal(t, "********", MaskMessageID("shortmsg"))
	assert.Equal(t, "*********essageid", MaskMessageID("verylongmessageid"))
	assert.Equal(t, "", MaskMessageID(""))
}

func TestMaskToken(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  string
	}{
		{name: "empty", token: "", want: ""},
		{name: "short fully masked", token: "abc", want: "***"},
		{name: "boundary fully masked", token: "12345678", want: "********"},
		{name: "long keeps head and tail", token: "abcdefghijkl", want: "ab******ijkl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskToken(tt.token))
		})
	}
}

func TestMaskStringTailLengths(t *testing.T) {
	assert.Equal(t, "******world", maskString("hello world", 5))
	assert.Equal(t, "**st", maskString("test", 2))
	assert.Equal(t, "****", maskString("test", 4))
	assert.Equal(t, "****", maskString("test", 5), "keepLast beyond length masks everything")
	assert.Equal(t, "", maskString("", 3))
	assert.Equal(t, "*b", maskString("ab", 1))
}

func TestMaskSensitiveFields(t *testing.T) {
	got := MaskSensitiveFields(map[string]interface{}{
		"from":        "zhangsan@example.com",
		"corp_id":     "ww1234567890abcdef",
		"message_id":  "7095364380979710974",
		"token":       "abcdefghijkl",
		"other_field": "not_masked",
		"count":       42,
	})

	assert.Equal(t, "****gsan@example.com", got["from"])
	assert.Equal(t, "**************cdef", got["corp_id"])
	assert.Equal(t, "***********79710974", got["message_id"])
	assert.Equal(t, "ab******ijkl", got["token"])
	assert.Equal(t, "not_masked", got["other_field"], "unknown fields pass through")
	assert.Equal(t, 42, got["count"], "non-string values pass through")
}

func TestMaskSensitiveFieldsNil(t *testing.T) {
	assert.Nil(t, MaskSensitiveFields(nil))
}

func TestMaskSensitiveFieldsDoesNotMutateInput(t *testing.T) {
	in := map[string]interface{}{"from": "zhangsan"}
	_ = MaskSensitiveFields(in)
	assert.Equal(t, "zhangsan", in["from"])
}

func TestMaskSensitiveFieldsFieldNameVariants(t *testing.T) {
	got := MaskSensitiveFields(map[string]interface{}{
		"recipient":    "zhangsan",
		"recipient_id": "lisi",
		"to_user":      "wangwu",
		"from_user":    "zhaoliu",
		"corpId":       "wwabcdef12345678",
		"messageId":    "123456789012",
		"msg_id":       "987654321098",
		"access_token": "tok_abcdefghijkl",
		"corp_secret":  "sec_abcdefghijkl",
	})

	for key, value := range got {
		s, ok := value.(string)
		if assert.True(t, ok, "field %q should still be a string", key) {
			assert.True(t, strings.ContainsRune(s, '*'), "field %q should be masked, got %q", key, s)
		}
	}
}

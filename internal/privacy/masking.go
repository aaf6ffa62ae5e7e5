package privacy

import (
	"strings"
)

// MaskRecipientID masks a WeCom user id or email showing only the tail
// Example: "zhangsan@example.com" -> "****gsan@example.com", "zhangsan" -> "****gsan"
func MaskRecipientID(recipientID string) string {
	if recipientID == "" {
		return ""
	}

	// Email-style ids keep the domain visible
	if at := strings.Index(recipientID, "@"); at > 0 {
		local := recipientID[:at]
		domain := recipientID[at:]
		return maskString(local, 4) + domain
	}

	return maskString(recipientID, 4)
}

// MaskCorpID masks an enterprise corp id
// Example: "ww1234567890abcdef" -> "**************cdef"
func MaskCorpID(corpID string) string {
	if corpID == "" {
		return ""
	}
	return maskString(corpID, 4)
}

// MaskMessageID masks a platform message id while preserving the tail
// for cross-referencing logs
func MaskMessageID(messageID string) string {
	if messageID == "" {
		return ""
	}
	return maskString(messageID, 8)
}

// MaskToken masks a credential, never revealing any of it for short values
func MaskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 8 {
		return strings.Repeat("*", len(token))
	}
	return token[:2] + strings.Repeat("*", len(token)-6) + token[len(token)-4:]
}

// maskString masks a string showing only the last n characters
func maskString(s string, keepLast int) string {
	if s == "" {
		return ""
	}

	if len(s) <= keepLast {
		return strings.Repeat("*", len(s))
	}

	return strings.Repeat("*", len(s)-keepLast) + s[len(s)-keepLast:]
}

// MaskSensitiveFields applies appropriate masking to common logging fields
func MaskSensitiveFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}

	masked := make(map[string]interface{})
	for k, v := range fields {
		switch k {
		case "recipient", "recipient_id", "from", "to", "to_user", "from_user":
			if s, ok := v.(string); ok {
				masked[k] = MaskRecipientID(s)
			} else {
				masked[k] = v
			}
		case "corp_id", "corpId":
			if s, ok := v.(string); ok {
				masked[k] = MaskCorpID(s)
			} else {
				masked[k] = v
			}
		case "message_id", "messageId", "msg_id":
			if s, ok := v.(string); ok {
				masked[k] = MaskMessageID(s)
			} else {
				masked[k] = v
			}
		case "token", "access_token", "corp_secret":
			if s, ok := v.(string); ok {
				masked[k] = MaskToken(s)
			} else {
				masked[k] = v
			}
		default:
			masked[k] = v
		}
	}

	return masked
}

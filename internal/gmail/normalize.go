package gmail

import (
	"encoding/base64"
	"regexp"
	"strings"
	"time"

	gmail "google.golang.org/api/gmail/v1"
)

const previewLength = 420

var (
	trailingSpaceRE = regexp.MustCompile(`[ \t]+\n`)
	multiNewlineRE  = regexp.MustCompile(`\n{3,}`)
	whitespaceRE    = regexp.MustCompile(`\s+`)
	zeroWidthRE     = regexp.MustCompile("[\u200b-\u200f\ufeff]+")
)

// Normalize maps a raw provider message into the shape returned to callers.
// Missing headers get fallback values; an undecodable body degrades to the
// snippet rather than failing the message.
func Normalize(msg *gmail.Message) EmailMessage {
	var headers []*gmail.MessagePartHeader
	if msg.Payload != nil {
		headers = msg.Payload.Headers
	}

	rawBody := decodeBody(msg.Payload)
	normalizedBody := normalizeWhitespace(rawBody)
	normalizedSnippet := normalizeWhitespace(msg.Snippet)

	plainText := normalizedBody
	if plainText == "" {
		plainText = normalizedSnippet
	}
	previewSource := plainText
	if previewSource == "" {
		previewSource = msg.Snippet
	}

	internalDate := msg.InternalDate
	if internalDate == 0 {
		internalDate = time.Now().UnixMilli()
	}

	return EmailMessage{
		ID:            msg.Id,
		ThreadID:      msg.ThreadId,
		Subject:       headerOrDefault(headers, "Subject", "(No subject)"),
		From:          headerOrDefault(headers, "From", "Unknown sender"),
		To:            headerValue(headers, "To"),
		Snippet:       msg.Snippet,
		RawBody:       rawBody,
		PlainTextBody: plainText,
		Preview:       buildPreview(previewSource),
		Date:          headerValue(headers, "Date"),
		InternalDate:  internalDate,
		LabelIDs:      msg.LabelIds,
	}
}

// headerValue finds a header by case-insensitive exact name match.
func headerValue(headers []*gmail.MessagePartHeader, name string) string {
	for _, h := range headers {
		if h != nil && strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func headerOrDefault(headers []*gmail.MessagePartHeader, name, fallback string) string {
	if v := headerValue(headers, name); v != "" {
		return v
	}
	return fallback
}

// decodeBody picks the first available body candidate (direct body, then
// first text/html part, then first text/plain part, then first part at all)
// and base64url-decodes it. Decode failure yields an empty body.
func decodeBody(payload *gmail.MessagePart) string {
	if payload == nil {
		return ""
	}

	candidate := bodyData(payload)
	if candidate == "" {
		for _, mimeType := range []string{"text/html", "text/plain"} {
			for _, part := range payload.Parts {
				if part != nil && part.MimeType == mimeType {
					candidate = bodyData(part)
					break
				}
			}
			if candidate != "" {
				break
			}
		}
	}
	if candidate == "" && len(payload.Parts) > 0 {
		candidate = bodyData(payload.Parts[0])
	}
	if candidate == "" {
		return ""
	}

	decoded, err := decodeBase64URL(candidate)
	if err != nil {
		return ""
	}
	return string(decoded)
}

func bodyData(part *gmail.MessagePart) string {
	if part == nil || part.Body == nil {
		return ""
	}
	return part.Body.Data
}

// decodeBase64URL decodes Gmail body data, which is RFC 4648 base64url with
// or without padding depending on the producer.
func decodeBase64URL(data string) ([]byte, error) {
	if decoded, err := base64.URLEncoding.DecodeString(data); err == nil {
		return decoded, nil
	}
	if decoded, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return decoded, nil
	}
	return base64.StdEncoding.DecodeString(data)
}

// normalizeWhitespace cleans decoded text: CRLF to LF, non-breaking spaces
// to plain spaces, zero-width characters stripped, trailing spaces trimmed
// before newlines, runs of three or more newlines collapsed to two.
func normalizeWhitespace(s string) string {
	if s == "" {
		return ""
	}
	s = zeroWidthRE.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = trailingSpaceRE.ReplaceAllString(s, "\n")
	s = multiNewlineRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// buildPreview collapses all whitespace to single spaces and truncates to
// the preview length at a rune boundary.
func buildPreview(s string) string {
	s = strings.TrimSpace(whitespaceRE.ReplaceAllString(s, " "))
	runes := []rune(s)
	if len(runes) > previewLength {
		return string(runes[:previewLength])
	}
	return s
}

package gmail

import "github.com/swipemail/swipemail/internal/sanitize"

// EmailMessage is the normalized view of a provider message returned to
// callers. It is immutable once constructed and discarded after the request.
type EmailMessage struct {
	ID      string `json:"id"`
	ThreadID string `json:"threadId"`
	Subject string `json:"subject"`
	From    string `json:"from"`
	To      string `json:"to"`

	// Snippet is the provider-supplied short preview, verbatim.
	Snippet string `json:"snippet"`

	// RawBody is the decoded message body, not yet sanitized. It must never
	// be rendered without passing through the sanitizer.
	RawBody string `json:"rawBody"`

	// PlainTextBody is the whitespace-normalized body with the snippet as
	// fallback.
	PlainTextBody string `json:"plainTextBody"`

	// Preview is the whitespace-collapsed body truncated to 420 characters.
	Preview string `json:"preview"`

	// Date is the raw Date header string.
	Date string `json:"date"`

	// InternalDate is the provider's epoch-millisecond receive time, used
	// as the sort key.
	InternalDate int64 `json:"internalDate"`

	LabelIDs []string `json:"labelIds"`

	// DisplayBody is the XSS-safe rendering of the body, attached at the
	// display boundary rather than during normalization.
	DisplayBody *sanitize.BodyView `json:"displayBody,omitempty"`
}

// ListResult is one page of normalized messages plus the provider's opaque
// continuation token, forwarded unchanged.
type ListResult struct {
	Emails        []EmailMessage `json:"emails"`
	NextPageToken string         `json:"nextPageToken,omitempty"`

	// Dropped counts detail fetches that failed on this page. Not part of
	// the wire format.
	Dropped int `json:"-"`
}

// Label is a curated provider label.
type Label struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	DisplayName string `json:"displayName"`
}

// Package gmail is the mail-provider proxy layer. It offers:
//   - A per-request client authorized with the session's bearer access token
//   - Message listing with concurrent per-message detail fetches that
//     tolerate partial failures
//   - Normalization of raw provider payloads into the shape returned to
//     callers (header fallbacks, body decoding, previews)
//   - Label curation (visibility filtering, display names, ordering)
//   - The triage mutations: mark-read, archive, star
//
// The client is a pure transport shim over the Gmail API: one HTTP attempt
// per call, no retries, no backoff. The caller decides whether a 401/403
// means "needs reauth" or something transient.
package gmail

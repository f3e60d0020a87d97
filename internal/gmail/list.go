package gmail

import (
	"context"
	"net/http"
	"sort"
	"sync"

	gmail "google.golang.org/api/gmail/v1"

	"github.com/swipemail/swipemail/internal/apperr"
	"github.com/swipemail/swipemail/internal/logging"
)

const (
	defaultMaxResults = 50
	maxPageSize       = 100
)

// metadataHeaders is the fixed header allow-list requested with each detail
// fetch.
var metadataHeaders = []string{"Subject", "From", "To", "Date"}

// ListOptions control a message listing.
type ListOptions struct {
	// LabelID filters by exactly this label. When empty, the inbox view is
	// used instead.
	LabelID string

	// MaxResults is clamped to [1,100]; zero means 50.
	MaxResults int64

	// PageToken is the provider's continuation token from a previous page,
	// forwarded verbatim.
	PageToken string

	// UnreadOnly restricts the inbox view to unread messages. Nil means
	// true. Ignored when LabelID is set.
	UnreadOnly *bool
}

// ListMessages lists message identifiers, fetches each message's details
// concurrently, and returns the normalized set sorted by internal date
// descending. Individual detail-fetch failures are dropped as long as at
// least one succeeds; only a total failure surfaces as an error.
func (c *Client) ListMessages(ctx context.Context, opts ListOptions) (*ListResult, error) {
	call := c.svc.Messages.List("me").MaxResults(clampMaxResults(opts.MaxResults))

	if opts.LabelID != "" {
		call.LabelIds(opts.LabelID)
	} else {
		unreadOnly := true
		if opts.UnreadOnly != nil {
			unreadOnly = *opts.UnreadOnly
		}
		labelIDs := []string{"INBOX"}
		if unreadOnly {
			labelIDs = append(labelIDs, "UNREAD")
		}
		// Promotions are excluded with a query predicate rather than a
		// label filter so they stay reachable via an explicit LabelID.
		call.LabelIds(labelIDs...).Q("-category:promotions")
	}
	if opts.PageToken != "" {
		call.PageToken(opts.PageToken)
	}

	listRes, err := call.Context(ctx).Do()
	if err != nil {
		return nil, mapError(err)
	}
	if len(listRes.Messages) == 0 {
		return &ListResult{Emails: []EmailMessage{}, NextPageToken: listRes.NextPageToken}, nil
	}

	// Fan out one detail fetch per identifier. Results land in an indexed
	// slice so list order survives for the stable-sort tiebreak; the
	// goroutines share no state beyond their own slot.
	type fetchResult struct {
		msg *gmail.Message
		err error
	}
	results := make([]fetchResult, len(listRes.Messages))
	var wg sync.WaitGroup
	for i, ref := range listRes.Messages {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			msg, err := c.svc.Messages.Get("me", id).
				Format("full").
				MetadataHeaders(metadataHeaders...).
				Context(ctx).Do()
			results[i] = fetchResult{msg: msg, err: err}
		}(i, ref.Id)
	}
	wg.Wait()

	emails := make([]EmailMessage, 0, len(results))
	dropped := 0
	for _, res := range results {
		if res.err != nil {
			dropped++
			continue
		}
		emails = append(emails, Normalize(res.msg))
	}
	if len(emails) == 0 {
		return nil, apperr.ProviderAPI(http.StatusInternalServerError, "failed to load messages")
	}
	if dropped > 0 {
		c.logger.Warn("dropped messages with failed detail fetches",
			logging.Operation("gmail.list"),
			"dropped", dropped,
			"total", len(results))
	}

	sort.SliceStable(emails, func(i, j int) bool {
		return emails[i].InternalDate > emails[j].InternalDate
	})

	return &ListResult{Emails: emails, NextPageToken: listRes.NextPageToken, Dropped: dropped}, nil
}

func clampMaxResults(n int64) int64 {
	if n == 0 {
		return defaultMaxResults
	}
	if n < 1 {
		return 1
	}
	if n > maxPageSize {
		return maxPageSize
	}
	return n
}

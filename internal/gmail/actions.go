package gmail

import (
	"context"

	gmail "google.golang.org/api/gmail/v1"
)

// MarkRead removes the UNREAD label from a message.
func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	return c.modify(ctx, messageID, &gmail.ModifyMessageRequest{
		RemoveLabelIds: []string{"UNREAD"},
	})
}

// Archive removes the INBOX label from a message.
func (c *Client) Archive(ctx context.Context, messageID string) error {
	return c.modify(ctx, messageID, &gmail.ModifyMessageRequest{
		RemoveLabelIds: []string{"INBOX"},
	})
}

// Star adds the STARRED label to a message.
func (c *Client) Star(ctx context.Context, messageID string) error {
	return c.modify(ctx, messageID, &gmail.ModifyMessageRequest{
		AddLabelIds: []string{"STARRED"},
	})
}

func (c *Client) modify(ctx context.Context, messageID string, req *gmail.ModifyMessageRequest) error {
	if _, err := c.svc.Messages.Modify("me", messageID, req).Context(ctx).Do(); err != nil {
		return mapError(err)
	}
	return nil
}

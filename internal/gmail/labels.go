package gmail

import (
	"context"
	"sort"

	gmail "google.golang.org/api/gmail/v1"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// hiddenSystemLabels are system labels never offered as triage filters, even
// when the provider marks them visible.
var hiddenSystemLabels = map[string]bool{
	"CHAT":                   true,
	"DRAFT":                  true,
	"SENT":                   true,
	"SPAM":                   true,
	"TRASH":                  true,
	"INBOX":                  true,
	"STARRED":                true,
	"UNREAD":                 true,
	"YELLOW_STAR":            true,
	"CATEGORY_PERSONAL":      true,
	"CATEGORY_SOCIAL":        true,
	"CATEGORY_UPDATES":       true,
	"CATEGORY_FORUMS":        true,
	"CATEGORY_PURCHASES":     true,
	"CATEGORY_FINANCE":       true,
	"CATEGORY_TRAVEL":        true,
	"CATEGORY_NOTIFICATIONS": true,
	"CATEGORY_PRIMARY":       true,
}

// systemLabelNames maps well-known system label identifiers to the display
// names shown in label filters.
var systemLabelNames = map[string]string{
	"INBOX":               "Inbox",
	"STARRED":             "Starred",
	"IMPORTANT":           "Important",
	"UNREAD":              "Unread",
	"SNOOZED":             "Snoozed",
	"CATEGORY_PRIMARY":    "Primary",
	"CATEGORY_PROMOTIONS": "Promotions",
	"CATEGORY_SOCIAL":     "Social",
	"CATEGORY_UPDATES":    "Updates",
	"CATEGORY_FORUMS":     "Forums",
}

// alwaysInclude force-includes labels that are otherwise hidden system
// labels. Promotions are excluded from the default inbox view, so the UI
// needs the label available as an explicit filter.
var alwaysInclude = map[string]bool{
	"CATEGORY_PROMOTIONS": true,
}

// ListLabels fetches the user's labels and returns the curated set.
func (c *Client) ListLabels(ctx context.Context) ([]Label, error) {
	res, err := c.svc.Labels.List("me").Context(ctx).Do()
	if err != nil {
		return nil, mapError(err)
	}
	return CurateLabels(res.Labels), nil
}

// CurateLabels filters out hidden labels, remaps system display names, and
// orders the result: system labels first, then user labels, each group in
// locale-aware display-name order.
func CurateLabels(raw []*gmail.Label) []Label {
	labels := make([]Label, 0, len(raw))
	for _, l := range raw {
		if l == nil || !includeLabel(l) {
			continue
		}
		labels = append(labels, Label{
			ID:          l.Id,
			Name:        l.Name,
			Type:        l.Type,
			DisplayName: displayName(l),
		})
	}

	coll := collate.New(language.English, collate.IgnoreCase)
	sort.SliceStable(labels, func(i, j int) bool {
		if labels[i].Type != labels[j].Type {
			return labels[i].Type == "system"
		}
		return coll.CompareString(labels[i].DisplayName, labels[j].DisplayName) < 0
	})
	return labels
}

func includeLabel(l *gmail.Label) bool {
	if l.Type == "user" {
		return true
	}
	if alwaysInclude[l.Id] {
		return true
	}
	return !hiddenSystemLabels[l.Id] && l.LabelListVisibility != "labelHide"
}

func displayName(l *gmail.Label) string {
	if l.Type == "system" {
		if name, ok := systemLabelNames[l.Id]; ok {
			return name
		}
	}
	if l.Name != "" {
		return l.Name
	}
	return l.Id
}

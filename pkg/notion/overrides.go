package notion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// Override is one curator-entered field correction.
type Override struct {
	PageID    string
	MuseumKey string
	Field     string
	Value     string
	EditedAt  time.Time
}

// QueryAll fetches all pages from a Notion database, handling pagination.
// It prefetches page N+1 in a goroutine while the caller's page N is being
// processed.
func QueryAll(ctx context.Context, c Client, dbID string, filter *notionapi.DatabaseQueryRequest) ([]notionapi.Page, error) {
	var all []notionapi.Page

	req := &notionapi.DatabaseQueryRequest{}
	if filter != nil {
		req.Filter = filter.Filter
		req.Sorts = filter.Sorts
		req.PageSize = filter.PageSize
	}

	type prefetchResult struct {
		resp *notionapi.DatabaseQueryResponse
		err  error
	}
	var prefetchCh <-chan prefetchResult

	for {
		var resp *notionapi.DatabaseQueryResponse
		var err error

		if prefetchCh != nil {
			result := <-prefetchCh
			resp, err = result.resp, result.err
		} else {
			resp, err = c.QueryDatabase(ctx, dbID, req)
		}
		if err != nil {
			return nil, eris.Wrap(err, "notion: query all page")
		}

		all = append(all, resp.Results...)

		if !resp.HasMore {
			break
		}

		nextReq := &notionapi.DatabaseQueryRequest{
			StartCursor: resp.NextCursor,
		}
		if filter != nil {
			nextReq.Filter = filter.Filter
			nextReq.Sorts = filter.Sorts
			nextReq.PageSize = filter.PageSize
		}

		ch := make(chan prefetchResult, 1)
		prefetchCh = ch
		go func() {
			r, e := c.QueryDatabase(ctx, dbID, nextReq)
			ch <- prefetchResult{resp: r, err: e}
		}()
	}

	return all, nil
}

// QueryPendingOverrides fetches all override rows not yet marked applied.
func QueryPendingOverrides(ctx context.Context, c Client, dbID string) ([]Override, error) {
	filter := &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: "Applied",
			Checkbox: &notionapi.CheckboxFilterCondition{
				Equals: false,
			},
		},
	}
	pages, err := QueryAll(ctx, c, dbID, filter)
	if err != nil {
		return nil, eris.Wrap(err, "notion: query pending overrides")
	}
	return ParseOverrides(pages), nil
}

// ParseOverrides extracts override rows from database pages. Rows missing a
// museum key or field name are dropped.
func ParseOverrides(pages []notionapi.Page) []Override {
	var out []Override
	for _, p := range pages {
		o := Override{
			PageID:    string(p.ID),
			MuseumKey: titleText(p.Properties["Museum Key"]),
			Field:     selectName(p.Properties["Field"]),
			Value:     richText(p.Properties["Value"]),
			EditedAt:  p.LastEditedTime,
		}
		if o.MuseumKey == "" || o.Field == "" {
			continue
		}
		out = append(out, o)
	}
	return out
}

// MarkApplied sets the Applied checkbox on an override row.
func MarkApplied(ctx context.Context, c Client, pageID string) error {
	_, err := c.UpdatePage(ctx, pageID, &notionapi.PageUpdateRequest{
		Properties: notionapi.Properties{
			"Applied": notionapi.CheckboxProperty{Checkbox: true},
		},
	})
	return eris.Wrapf(err, "notion: mark override %s applied", pageID)
}

// Signature summarizes a set of overrides for skip detection: the count and
// the newest edit time.
func Signature(overrides []Override) string {
	var newest time.Time
	for _, o := range overrides {
		if o.EditedAt.After(newest) {
			newest = o.EditedAt
		}
	}
	return fmt.Sprintf("n:%d:edited:%d", len(overrides), newest.Unix())
}

func titleText(prop notionapi.Property) string {
	tp, ok := prop.(*notionapi.TitleProperty)
	if !ok {
		return ""
	}
	var sb strings.Builder
	for _, rt := range tp.Title {
		sb.WriteString(rt.PlainText)
	}
	return strings.TrimSpace(sb.String())
}

func richText(prop notionapi.Property) string {
	rp, ok := prop.(*notionapi.RichTextProperty)
	if !ok {
		return ""
	}
	var sb strings.Builder
	for _, rt := range rp.RichText {
		sb.WriteString(rt.PlainText)
	}
	return strings.TrimSpace(sb.String())
}

func selectName(prop notionapi.Property) string {
	sp, ok := prop.(*notionapi.SelectProperty)
	if !ok {
		return ""
	}
	return sp.Select.Name
}

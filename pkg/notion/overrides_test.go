package notion

import (
	"context"
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	pages        [][]notionapi.Page
	queryCalls   int
	updatedPages []string
}

func (f *fakeClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	idx := f.queryCalls
	f.queryCalls++
	resp := &notionapi.DatabaseQueryResponse{Results: f.pages[idx]}
	if idx < len(f.pages)-1 {
		resp.HasMore = true
		resp.NextCursor = notionapi.Cursor("next")
	}
	return resp, nil
}

func (f *fakeClient) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	f.updatedPages = append(f.updatedPages, pageID)
	return &notionapi.Page{}, nil
}

func overridePage(id, museumKey, field, value string, edited time.Time) notionapi.Page {
	return notionapi.Page{
		ID:             notionapi.ObjectID(id),
		LastEditedTime: edited,
		Properties: notionapi.Properties{
			"Museum Key": &notionapi.TitleProperty{
				Title: []notionapi.RichText{{PlainText: museumKey}},
			},
			"Field": &notionapi.SelectProperty{
				Select: notionapi.Option{Name: field},
			},
			"Value": &notionapi.RichTextProperty{
				RichText: []notionapi.RichText{{PlainText: value}},
			},
		},
	}
}

func TestQueryAll_Paginates(t *testing.T) {
	edited := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	fc := &fakeClient{pages: [][]notionapi.Page{
		{overridePage("p1", "mo-stl-artmuseum", "phone", "314-721-0072", edited)},
		{overridePage("p2", "ny-nyc-moma", "website", "https://www.moma.org/", edited)},
	}}

	pages, err := QueryAll(context.Background(), fc, "db1", nil)
	require.NoError(t, err)
	assert.Len(t, pages, 2)
	assert.Equal(t, 2, fc.queryCalls)
}

func TestParseOverrides(t *testing.T) {
	edited := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	pages := []notionapi.Page{
		overridePage("p1", "mo-stl-artmuseum", "phone", "314-721-0072", edited),
		overridePage("p2", "", "phone", "555", edited),  // no key: dropped
		overridePage("p3", "ny-nyc-moma", "", "x", edited), // no field: dropped
	}

	overrides := ParseOverrides(pages)
	require.Len(t, overrides, 1)
	assert.Equal(t, "p1", overrides[0].PageID)
	assert.Equal(t, "mo-stl-artmuseum", overrides[0].MuseumKey)
	assert.Equal(t, "phone", overrides[0].Field)
	assert.Equal(t, "314-721-0072", overrides[0].Value)
	assert.Equal(t, edited, overrides[0].EditedAt)
}

func TestMarkApplied(t *testing.T) {
	fc := &fakeClient{pages: [][]notionapi.Page{{}}}
	require.NoError(t, MarkApplied(context.Background(), fc, "p1"))
	assert.Equal(t, []string{"p1"}, fc.updatedPages)
}

func TestSignature(t *testing.T) {
	older := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	overrides := []Override{
		{MuseumKey: "a", Field: "phone", EditedAt: older},
		{MuseumKey: "b", Field: "website", EditedAt: newer},
	}

	sig := Signature(overrides)
	assert.Contains(t, sig, "n:2")
	assert.NotEqual(t, sig, Signature(overrides[:1]))
	assert.Equal(t, sig, Signature(overrides), "deterministic")
}

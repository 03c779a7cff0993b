package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Judgment holds the model's qualitative assessment of one museum. All
// ratings are 1-5 except ReputationTier which runs 0-4 (0 = world class).
type Judgment struct {
	ArtStrength         *int   `json:"art_strength"`
	HistoryStrength     *int   `json:"history_strength"`
	HistoricalContext   *int   `json:"historical_context"`
	CollectionStrength  *int   `json:"collection_strength"`
	CuratorialAuthority *int   `json:"curatorial_authority"`
	ReputationTier      *int   `json:"reputation_tier"`
	Description         string `json:"description"`
}

const judgmentSystemPrompt = `You are a museum researcher assessing museums for a travel dataset.
Rate the museum on these axes, each an integer 1-5 (5 = exceptional):
art_strength, history_strength, historical_context, collection_strength, curatorial_authority.
Also assign reputation_tier, an integer 0-4 (0 = world class, 4 = little known),
and write a two-sentence description.
Use null for any axis you cannot assess from the facts given.
Respond with a single JSON object and nothing else.`

// MuseumFacts is the context handed to the model for one museum.
type MuseumFacts struct {
	Name        string
	City        string
	State       string
	MuseumType  string
	FoundedYear *int
	Website     string
	Collections []string
}

func (f MuseumFacts) prompt() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Museum: %s\n", f.Name)
	if f.City != "" {
		fmt.Fprintf(&sb, "Location: %s, %s\n", f.City, f.State)
	}
	if f.MuseumType != "" {
		fmt.Fprintf(&sb, "Type: %s\n", f.MuseumType)
	}
	if f.FoundedYear != nil {
		fmt.Fprintf(&sb, "Founded: %d\n", *f.FoundedYear)
	}
	if f.Website != "" {
		fmt.Fprintf(&sb, "Website: %s\n", f.Website)
	}
	if len(f.Collections) > 0 {
		fmt.Fprintf(&sb, "Collections: %s\n", strings.Join(f.Collections, ", "))
	}
	return sb.String()
}

// Judge asks the model to assess a museum and parses the JSON verdict. The
// returned usage lets the caller meter spend.
func Judge(ctx context.Context, c Client, model string, facts MuseumFacts) (*Judgment, TokenUsage, error) {
	resp, err := c.CreateMessage(ctx, MessageRequest{
		Model:     model,
		MaxTokens: 1024,
		System: []SystemBlock{
			{Text: judgmentSystemPrompt, CacheControl: &CacheControl{TTL: "1h"}},
		},
		Messages: []Message{
			{Role: "user", Content: facts.prompt()},
		},
	})
	if err != nil {
		return nil, TokenUsage{}, eris.Wrapf(err, "anthropic: judge %s", facts.Name)
	}

	j, err := ParseJudgment(resp.Text())
	if err != nil {
		return nil, resp.Usage, eris.Wrapf(err, "anthropic: parse judgment for %s", facts.Name)
	}
	return j, resp.Usage, nil
}

// ParseJudgment extracts the JSON object from a model response, tolerating
// markdown fences and surrounding prose.
func ParseJudgment(text string) (*Judgment, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, eris.Errorf("no JSON object in response: %q", truncate(text, 120))
	}

	var j Judgment
	if err := json.Unmarshal([]byte(text[start:end+1]), &j); err != nil {
		return nil, eris.Wrap(err, "unmarshal judgment")
	}

	for name, v := range map[string]*int{
		"art_strength":         j.ArtStrength,
		"history_strength":     j.HistoryStrength,
		"historical_context":   j.HistoricalContext,
		"collection_strength":  j.CollectionStrength,
		"curatorial_authority": j.CuratorialAuthority,
	} {
		if v != nil && (*v < 1 || *v > 5) {
			return nil, eris.Errorf("judgment %s out of range: %d", name, *v)
		}
	}
	if j.ReputationTier != nil && (*j.ReputationTier < 0 || *j.ReputationTier > 4) {
		return nil, eris.Errorf("judgment reputation_tier out of range: %d", *j.ReputationTier)
	}

	return &j, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

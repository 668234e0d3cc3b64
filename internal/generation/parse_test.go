package generation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON(t *testing.T) {
	type pair struct {
		A int `json:"a"`
	}
	fallback := pair{A: -1}

	tests := []struct {
		name string
		in   string
		want pair
		ok   bool
	}{
		{"plain", `{"a":1}`, pair{A: 1}, true},
		{"fenced", "```json\n{\"a\":2}\n```", pair{A: 2}, true},
		{"bare fence", "```\n{\"a\":3}\n```", pair{A: 3}, true},
		{"chatter", "Sure! Here you go: {\"a\":4} Hope it helps.", pair{A: 4}, true},
		{"prose", "I cannot answer that.", fallback, false},
		{"broken", `{"a":`, fallback, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseJSON(tt.in, fallback)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseJSONArray(t *testing.T) {
	got, ok := ParseJSON("```json\n[{\"style\":\"funny\",\"caption\":\"lol\",\"hashtags\":[\"#x\"]}]\n```", []CaptionOption(nil))
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "funny", got[0].Style)
	assert.Equal(t, []string{"#x"}, got[0].Hashtags)
}

func TestHelpersFallBack(t *testing.T) {
	ctx := context.Background()
	const raw = "This meme is fine, I guess."
	api := &fakeAPI{replies: []fakeReply{{status: 200, body: chatBody(raw)}}}
	c := newTestClient(t, api, 0)

	crit, err := c.CritiqueMeme(ctx, "a cat", "cats rule", "adoption")
	require.NoError(t, err)
	assert.Equal(t, 7.0, crit.Scores["overall"])
	assert.Equal(t, []string{"Creative approach"}, crit.Strengths)
	assert.Equal(t, []string{raw}, crit.Improvements)
	assert.Equal(t, "cats rule", crit.RevisedCaption)
	assert.Empty(t, crit.Concerns)

	caps, err := c.CaptionOptions(ctx, "adoption")
	require.NoError(t, err)
	assert.Equal(t, []CaptionOption{{Style: "general", Caption: raw, Hashtags: []string{}}}, caps)

	plan, err := c.BrainstormFeatures(ctx, "todo app", "")
	require.NoError(t, err)
	assert.Equal(t, []string{raw}, plan.TechnicalNotes)
	assert.Empty(t, plan.MustHave)

	review, err := c.AnalyzeCode(ctx, "<html></html>")
	require.NoError(t, err)
	assert.Equal(t, 7.0, review.Score)
	assert.Equal(t, []string{raw}, review.Suggestions)

	tips, err := c.DetectionTips(ctx, "a portrait", "portrait")
	require.NoError(t, err)
	assert.Equal(t, []DetectionTip{{Tip: raw}}, tips)
}

func TestCritiqueMemeParsesReply(t *testing.T) {
	reply := "```json\n" + `{"scores":{"overall":8.5,"shareability":9},"strengths":["bold"],` +
		`"improvements":[],"concerns":["could offend"],"revisedCaption":"better","imageEditSuggestions":["crop"]}` + "\n```"
	api := &fakeAPI{replies: []fakeReply{{status: 200, body: chatBody(reply)}}}
	c := newTestClient(t, api, 0)

	crit, err := c.CritiqueMeme(context.Background(), "a cat", "cats rule", "adoption")
	require.NoError(t, err)
	assert.Equal(t, 8.5, crit.Scores["overall"])
	assert.Equal(t, []string{"could offend"}, crit.Concerns)
	assert.Equal(t, "better", crit.RevisedCaption)
	assert.EqualValues(t, 1500, api.last()["max_tokens"])
}

package generation

import (
	"context"
	"fmt"
)

type MemeCritique struct {
	Scores               map[string]float64 `json:"scores"`
	Strengths            []string           `json:"strengths"`
	Improvements         []string           `json:"improvements"`
	Concerns             []string           `json:"concerns"`
	RevisedCaption       string             `json:"revisedCaption"`
	ImageEditSuggestions []string           `json:"imageEditSuggestions"`
}

const critiqueSystem = `You review memes made for community advocacy.
Score each of these from 1 to 10: messageEffectiveness, emotionalImpact,
shareability, technicalQuality, accessibility, plus an overall score.
List strengths, improvements and any risk of misreading, offense or
misinformation as concerns. Suggest a better caption and image edits.

Reply with JSON only:
{"scores": {"messageEffectiveness": 0, "emotionalImpact": 0, "shareability": 0,
 "technicalQuality": 0, "accessibility": 0, "overall": 0},
 "strengths": [], "improvements": [], "concerns": [],
 "revisedCaption": "", "imageEditSuggestions": []}`

// CritiqueMeme scores a meme. Unparseable replies degrade to a single
// improvement holding the raw text.
func (c *Client) CritiqueMeme(ctx context.Context, imageDescription, caption, issue string) (MemeCritique, error) {
	prompt := fmt.Sprintf("ISSUE: %s\nCAPTION: %q\nIMAGE: %s", issue, caption, imageDescription)
	reply, err := c.Complete(ctx, prompt, Options{System: critiqueSystem, MaxTokens: 1500})
	if err != nil {
		return MemeCritique{}, err
	}

	out, _ := ParseJSON(reply, MemeCritique{
		Scores:               map[string]float64{"overall": 7},
		Strengths:            []string{"Creative approach"},
		Improvements:         []string{reply},
		Concerns:             []string{},
		RevisedCaption:       caption,
		ImageEditSuggestions: []string{},
	})
	return out, nil
}

type CaptionOption struct {
	Style    string   `json:"style"`
	Caption  string   `json:"caption"`
	Hashtags []string `json:"hashtags"`
}

const captionSystem = `You write advocacy meme captions. Give five options, one
each in these styles: funny, emotional, shocking, relatable, call-to-action.

Reply with a JSON array only:
[{"style": "funny", "caption": "", "hashtags": []}]`

func (c *Client) CaptionOptions(ctx context.Context, issue string) ([]CaptionOption, error) {
	reply, err := c.Complete(ctx, "Write captions about: "+issue, Options{System: captionSystem})
	if err != nil {
		return nil, err
	}

	out, _ := ParseJSON(reply, []CaptionOption{{Style: "general", Caption: reply, Hashtags: []string{}}})
	return out, nil
}

type Feature struct {
	Feature     string `json:"feature"`
	Description string `json:"description"`
	Complexity  string `json:"complexity,omitempty"`
}

type FeaturePlan struct {
	MustHave       []Feature `json:"mustHave"`
	NiceToHave     []Feature `json:"niceToHave"`
	FutureIdeas    []Feature `json:"futureIdeas"`
	TechnicalNotes []string  `json:"technicalNotes"`
}

const defaultConstraints = "Must be buildable in 30 minutes as a single HTML file"

const brainstormSystem = `You help plan a small app. Sort candidate features by
priority and say how hard each is.

Reply with JSON only:
{"mustHave": [{"feature": "", "description": "", "complexity": "low"}],
 "niceToHave": [], "futureIdeas": [], "technicalNotes": []}`

func (c *Client) BrainstormFeatures(ctx context.Context, problem, constraints string) (FeaturePlan, error) {
	if constraints == "" {
		constraints = defaultConstraints
	}
	prompt := fmt.Sprintf("Problem: %s\nConstraints: %s", problem, constraints)
	reply, err := c.Complete(ctx, prompt, Options{System: brainstormSystem, MaxTokens: 1500})
	if err != nil {
		return FeaturePlan{}, err
	}

	out, _ := ParseJSON(reply, FeaturePlan{
		MustHave:       []Feature{},
		NiceToHave:     []Feature{},
		FutureIdeas:    []Feature{},
		TechnicalNotes: []string{reply},
	})
	return out, nil
}

type CodeIssue struct {
	Severity string `json:"severity"`
	Issue    string `json:"issue"`
	Fix      string `json:"fix"`
}

type CodeReview struct {
	Score       float64     `json:"score"`
	Strengths   []string    `json:"strengths"`
	Issues      []CodeIssue `json:"issues"`
	Suggestions []string    `json:"suggestions"`
	NextSteps   []string    `json:"nextSteps"`
}

const analyzeSystem = `You review a single-file HTML app. Score it from 1 to 10
and list strengths, issues with severity (high, medium, low) and a fix,
suggestions and next steps.

Reply with JSON only:
{"score": 0, "strengths": [], "issues": [{"severity": "", "issue": "", "fix": ""}],
 "suggestions": [], "nextSteps": []}`

func (c *Client) AnalyzeCode(ctx context.Context, code string) (CodeReview, error) {
	reply, err := c.Complete(ctx, "```html\n"+code+"\n```", Options{System: analyzeSystem})
	if err != nil {
		return CodeReview{}, err
	}

	out, _ := ParseJSON(reply, CodeReview{
		Score:       7,
		Strengths:   []string{},
		Issues:      []CodeIssue{},
		Suggestions: []string{reply},
		NextSteps:   []string{},
	})
	return out, nil
}

type DetectionTip struct {
	Tip        string `json:"tip"`
	Reason     string `json:"reason"`
	HowToCheck string `json:"howToCheck"`
}

const tipsSystem = `You teach people to spot AI-generated images. For each tip
say what to look for, why image models get it wrong and how to check.

Reply with a JSON array only:
[{"tip": "", "reason": "", "howToCheck": ""}]`

// DetectionTips returns five tips for telling generated images of the given
// category apart from real ones.
func (c *Client) DetectionTips(ctx context.Context, imageDescription, category string) ([]DetectionTip, error) {
	prompt := fmt.Sprintf("Five tips for spotting AI-generated %s images like: %s", category, imageDescription)
	reply, err := c.Complete(ctx, prompt, Options{System: tipsSystem})
	if err != nil {
		return nil, err
	}

	out, _ := ParseJSON(reply, []DetectionTip{{Tip: reply}})
	return out, nil
}

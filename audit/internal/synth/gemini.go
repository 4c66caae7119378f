package synth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/tidwall/gjson"
	"google.golang.org/genai"
)

// GeminiConfig configures the AI synthesizer.
type GeminiConfig struct {
	APIKey string
	Model  string // default: gemini-2.0-flash
	// MaxPromptChars caps the markdown page excerpt. Default: 12000.
	MaxPromptChars int
	Logger         *slog.Logger
}

func (c *GeminiConfig) defaults() {
	if c.Model == "" {
		c.Model = "gemini-2.0-flash"
	}
	if c.MaxPromptChars <= 0 {
		c.MaxPromptChars = 12_000
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Gemini asks the model for prioritized tickets. The page HTML is converted
// to markdown for the prompt; the model must answer JSON. Unparseable
// tickets are skipped and reported via ErrPartial.
type Gemini struct {
	cfg    GeminiConfig
	client *genai.Client
	md     *converter.Converter
}

// NewGemini creates the AI synthesizer.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	cfg.defaults()
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("synth: gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("synth: create genai client: %w", err)
	}
	return &Gemini{
		cfg:    cfg,
		client: client,
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
	}, nil
}

func (g *Gemini) Synthesize(ctx context.Context, in Input) ([]Ticket, error) {
	prompt, err := g.buildPrompt(in)
	if err != nil {
		return nil, fmt.Errorf("synth: build prompt: %w", err)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.Model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
	)
	if err != nil {
		return nil, fmt.Errorf("synth: generate: %w", err)
	}

	raw := resp.Text()
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("synth: model returned empty response")
	}
	return parseTickets(raw, in)
}

func (g *Gemini) buildPrompt(in Input) (string, error) {
	factsJSON, err := json.Marshal(in.Facts)
	if err != nil {
		return "", err
	}

	var evidenceIDs []string
	for _, e := range in.Evidence {
		evidenceIDs = append(evidenceIDs, e.ID)
	}

	page := ""
	if len(in.HTML) > 0 {
		md, err := g.md.ConvertString(string(in.HTML))
		if err == nil {
			page = md
		}
	}
	if len(page) > g.cfg.MaxPromptChars {
		page = page[:g.cfg.MaxPromptChars]
	}

	var b strings.Builder
	b.WriteString("You audit e-commerce product pages. Produce prioritized, actionable tickets.\n")
	fmt.Fprintf(&b, "Page: %s (locale %s). Overall score %d/100.\n", in.NormalizedURL, in.Locale, in.Score.Total)
	fmt.Fprintf(&b, "Category scores: ")
	for _, c := range in.Score.Categories {
		fmt.Fprintf(&b, "%s=%d ", c.Name, c.Score)
	}
	fmt.Fprintf(&b, "\nExtracted facts: %s\n", factsJSON)
	fmt.Fprintf(&b, "Available evidence IDs: %s\n", strings.Join(evidenceIDs, ", "))
	b.WriteString("\nAnswer JSON only: {\"tickets\":[{\"title\":...,\"detail\":...,\"priority\":\"p1|p2|p3\",\"category\":...,\"evidence_ids\":[...]}]}\n")
	b.WriteString("Reference only evidence IDs from the list above. 3 to 8 tickets, worst problems first.\n")
	if page != "" {
		b.WriteString("\nPage content (markdown):\n")
		b.WriteString(page)
	}
	return b.String(), nil
}

// parseTickets extracts tickets from the model's JSON. Tolerant: invalid
// entries are dropped, unknown evidence references are stripped, and a
// non-empty remainder is returned with ErrPartial when anything was dropped.
func parseTickets(raw string, in Input) ([]Ticket, error) {
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("synth: model answer is not valid JSON")
	}

	known := make(map[string]bool, len(in.Evidence))
	for _, e := range in.Evidence {
		known[e.ID] = true
	}

	var out []Ticket
	dropped := 0
	gjson.Get(raw, "tickets").ForEach(func(_, item gjson.Result) bool {
		title := strings.TrimSpace(item.Get("title").String())
		if title == "" {
			dropped++
			return true
		}
		priority := item.Get("priority").String()
		switch priority {
		case PriorityHigh, PriorityMedium, PriorityLow:
		default:
			priority = PriorityMedium
		}

		var refs []string
		item.Get("evidence_ids").ForEach(func(_, id gjson.Result) bool {
			if known[id.String()] {
				refs = append(refs, id.String())
			}
			return true
		})

		out = append(out, Ticket{
			ID:          fmt.Sprintf("tk_ai_%03d", len(out)+1),
			Title:       title,
			Detail:      strings.TrimSpace(item.Get("detail").String()),
			Priority:    priority,
			Category:    item.Get("category").String(),
			EvidenceIDs: refs,
		})
		return true
	})

	if len(out) == 0 {
		return nil, fmt.Errorf("synth: no usable tickets in model answer")
	}
	if dropped > 0 {
		return out, fmt.Errorf("%w: dropped %d of %d entries", ErrPartial, dropped, dropped+len(out))
	}
	return out, nil
}

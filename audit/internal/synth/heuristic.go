package synth

import (
	"context"
	"fmt"

	"github.com/hazyhaar/storeaudit/audit/internal/evidence"
	"github.com/hazyhaar/storeaudit/audit/internal/score"
)

// ticketTemplate maps one failed scoring rule to an actionable finding.
type ticketTemplate struct {
	title    string
	detail   string
	priority string
}

var ruleTickets = map[string]ticketTemplate{
	"price_visible":           {"Show the price", "No price was detected on the page. Buyers abandon pages where the price requires effort to find.", PriorityHigh},
	"add_to_cart_present":     {"Add a visible add-to-cart control", "No add-to-cart or buy button was detected. The primary conversion action must be present and obvious.", PriorityHigh},
	"availability_stated":     {"State stock availability", "The page does not say whether the product is available. State it explicitly near the buy button.", PriorityMedium},
	"in_stock":                {"Product reads as out of stock", "Availability was detected but reads as out of stock. Offer a restock notification or alternatives.", PriorityMedium},
	"reviews_present":         {"Surface customer reviews", "No review or rating widget was detected. Social proof is a primary trust signal on product pages.", PriorityMedium},
	"reviews_substantial":     {"Grow the review base", "Fewer than 10 reviews were detected. Prompt recent buyers for reviews.", PriorityLow},
	"return_policy_linked":    {"Link the return policy", "No return policy link was detected. Buyers check returns before committing.", PriorityMedium},
	"contact_reachable":       {"Make contact reachable", "No contact link was detected. An unreachable merchant reads as untrustworthy.", PriorityLow},
	"privacy_policy_linked":   {"Link a privacy policy", "No privacy policy link was detected.", PriorityLow},
	"title_present":           {"Set a product title", "The page has no title element.", PriorityHigh},
	"title_descriptive":       {"Improve the title length", "The title is outside the 20-120 character range that works in search results and tabs.", PriorityLow},
	"description_substantial": {"Expand the product description", "The detected description is under 80 characters. Describe material, sizing, and use.", PriorityMedium},
	"multiple_images":         {"Add more product images", "Fewer than two product images were detected.", PriorityMedium},
	"images_have_alt_text":    {"Add alt text to product images", "Some product images lack alt text, hurting accessibility and image search.", PriorityLow},
	"structured_data_product": {"Add schema.org Product markup", "No ld+json Product entity was detected. Structured data powers rich results.", PriorityMedium},
	"https":                   {"Serve the page over HTTPS", "The product page is not served over HTTPS.", PriorityHigh},
	"status_ok":               {"Fix the page status", "The page did not answer with a 2xx status.", PriorityHigh},
	"canonical_url":           {"Declare a canonical URL", "No canonical link was detected; variants risk splitting ranking signals.", PriorityLow},
	"meta_description":        {"Write a meta description", "No meta description was detected.", PriorityLow},
	"mobile_viewport_meta":    {"Add a mobile viewport meta tag", "No viewport meta tag was detected; the page will render desktop-sized on phones.", PriorityMedium},
}

// Heuristic derives tickets directly from failed scoring rules. Fully
// deterministic: same score result and evidence in, same tickets out.
type Heuristic struct{}

func (Heuristic) Synthesize(_ context.Context, in Input) ([]Ticket, error) {
	factIDs, shotIDs := referenceIDs(in.Evidence)

	var out []Ticket
	for _, cat := range in.Score.Categories {
		for _, ruleName := range cat.Failed {
			tpl, ok := ruleTickets[ruleName]
			if !ok {
				continue
			}
			refs := factIDs
			if cat.Name == score.CategoryConversion || cat.Name == score.CategoryContent {
				refs = append(append([]string{}, factIDs...), shotIDs...)
			}
			out = append(out, Ticket{
				ID:          fmt.Sprintf("tk_%s", ruleName),
				Title:       tpl.title,
				Detail:      tpl.detail,
				Priority:    tpl.priority,
				Category:    cat.Name,
				EvidenceIDs: refs,
			})
		}
	}
	return out, nil
}

// referenceIDs splits evidence into the fact-summary refs every ticket
// cites and the screenshot refs visual tickets cite.
func referenceIDs(evs []evidence.Evidence) (factIDs, shotIDs []string) {
	for _, e := range evs {
		switch e.Kind {
		case evidence.KindFactSummary:
			factIDs = append(factIDs, e.ID)
		case evidence.KindScreenshot:
			shotIDs = append(shotIDs, e.ID)
		}
	}
	return factIDs, shotIDs
}

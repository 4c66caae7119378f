// Package facts extracts structural facts from a captured product page.
//
// Facts are a closed, typed set: one struct per detector category, boolean
// and small scalar fields only. The scoring engine and evidence builder
// consume these structs exhaustively; there is no open-ended property bag.
// A zero Facts value means "nothing detected" and is always safe to score.
package facts

// Facts is everything the detectors extracted from one page capture.
type Facts struct {
	Commerce  CommerceFacts  `json:"commerce"`
	Trust     TrustFacts     `json:"trust"`
	Content   ContentFacts   `json:"content"`
	Technical TechnicalFacts `json:"technical"`
}

// CommerceFacts cover the buy path: price, purchase control, availability.
type CommerceFacts struct {
	HasPrice        bool   `json:"has_price"`
	PriceText       string `json:"price_text,omitempty"`
	HasAddToCart    bool   `json:"has_add_to_cart"`
	HasAvailability bool   `json:"has_availability"`
	OutOfStock      bool   `json:"out_of_stock"`
}

// TrustFacts cover signals a buyer uses to judge the storefront.
type TrustFacts struct {
	HasReviewWidget  bool `json:"has_review_widget"`
	ReviewCount      int  `json:"review_count"`
	HasReturnPolicy  bool `json:"has_return_policy"`
	HasContactLink   bool `json:"has_contact_link"`
	HasPrivacyPolicy bool `json:"has_privacy_policy"`
}

// ContentFacts cover the product presentation itself.
type ContentFacts struct {
	Title             string `json:"title,omitempty"`
	TitleLength       int    `json:"title_length"`
	DescriptionLength int    `json:"description_length"`
	ImageCount        int    `json:"image_count"`
	ImagesWithAlt     int    `json:"images_with_alt"`
	HasStructuredData bool   `json:"has_structured_data"`
}

// TechnicalFacts cover page hygiene visible without a browser.
type TechnicalFacts struct {
	HTTPS              bool `json:"https"`
	StatusOK           bool `json:"status_ok"`
	HasCanonical       bool `json:"has_canonical"`
	HasMetaDescription bool `json:"has_meta_description"`
	HasViewportMeta    bool `json:"has_viewport_meta"`
	HTMLBytes          int  `json:"html_bytes"`
}

// Empty reports whether nothing at all was detected. An empty Facts from a
// capture with no screenshots means the page was effectively unreachable.
func (f *Facts) Empty() bool {
	return !f.Commerce.HasPrice && !f.Commerce.HasAddToCart &&
		f.Content.Title == "" && f.Content.ImageCount == 0 &&
		f.Content.DescriptionLength == 0 && !f.Content.HasStructuredData &&
		f.Technical.HTMLBytes == 0
}

package facts

import "testing"

const productHTML = `<!DOCTYPE html>
<html><head>
<title>Trail Runner Pro | Alpine Shop</title>
<meta name="description" content="Lightweight trail running shoe.">
<meta name="viewport" content="width=device-width, initial-scale=1">
<link rel="canonical" href="https://shop.example.com/p/trail-runner-pro">
<script type="application/ld+json">
{"@context":"https://schema.org","@type":"Product","name":"Trail Runner Pro",
 "offers":{"@type":"Offer","price":"129.95","priceCurrency":"EUR","availability":"https://schema.org/InStock"}}
</script>
</head><body>
<div class="product-price"><span>€129.95</span></div>
<button class="cta">Add to cart</button>
<div class="product-description">A lightweight shoe built for alpine trails with a grippy outsole and a breathable upper for long days out.</div>
<img src="/img/1.jpg" alt="Trail Runner Pro side view">
<img src="/img/2.jpg">
<div class="review-stars">4.6 out of 5 (128 reviews)</div>
<footer>
<a href="/returns">Return policy</a>
<a href="/contact">Contact us</a>
<a href="/privacy">Privacy</a>
</footer>
</body></html>`

func TestExtract_FullProductPage(t *testing.T) {
	// WHAT: A well-formed product page lights up every detector category.
	f := Extract(Input{HTML: []byte(productHTML), PageURL: "https://shop.example.com/p/trail-runner-pro", StatusCode: 200})

	if !f.Commerce.HasPrice {
		t.Error("price not detected")
	}
	if !f.Commerce.HasAddToCart {
		t.Error("add-to-cart not detected")
	}
	if !f.Commerce.HasAvailability || f.Commerce.OutOfStock {
		t.Errorf("availability = %v, out of stock = %v", f.Commerce.HasAvailability, f.Commerce.OutOfStock)
	}
	if !f.Trust.HasReviewWidget || f.Trust.ReviewCount != 128 {
		t.Errorf("reviews: widget=%v count=%d", f.Trust.HasReviewWidget, f.Trust.ReviewCount)
	}
	if !f.Trust.HasReturnPolicy || !f.Trust.HasContactLink || !f.Trust.HasPrivacyPolicy {
		t.Errorf("trust links: %+v", f.Trust)
	}
	if f.Content.Title == "" || f.Content.TitleLength == 0 {
		t.Errorf("title: %+v", f.Content)
	}
	if f.Content.ImageCount != 2 || f.Content.ImagesWithAlt != 1 {
		t.Errorf("images: count=%d alt=%d", f.Content.ImageCount, f.Content.ImagesWithAlt)
	}
	if !f.Content.HasStructuredData {
		t.Error("ld+json Product not detected")
	}
	if f.Content.DescriptionLength < 50 {
		t.Errorf("description length = %d", f.Content.DescriptionLength)
	}
	if !f.Technical.HTTPS || !f.Technical.StatusOK || !f.Technical.HasCanonical ||
		!f.Technical.HasMetaDescription || !f.Technical.HasViewportMeta {
		t.Errorf("technical: %+v", f.Technical)
	}
}

func TestExtract_Deterministic(t *testing.T) {
	// WHAT: Two extractions over the same bytes produce identical facts.
	// WHY: Facts feed content-addressed scoring; extraction must be pure.
	in := Input{HTML: []byte(productHTML), PageURL: "https://shop.example.com/p/x", StatusCode: 200}
	a := Extract(in)
	b := Extract(in)
	if *a != *b {
		t.Errorf("extraction not deterministic:\n%+v\n%+v", a, b)
	}
}

func TestExtract_EmptyInput(t *testing.T) {
	// WHAT: Empty HTML yields empty facts, never a panic or error.
	// WHY: The capture stage can legally hand over nothing (blocked page).
	f := Extract(Input{PageURL: "https://shop.example.com/p/x"})
	if !f.Empty() {
		t.Errorf("empty input produced facts: %+v", f)
	}
	if !f.Technical.HTTPS {
		t.Error("HTTPS fact should still derive from the URL")
	}
}

func TestExtract_OutOfStock(t *testing.T) {
	// WHAT: An out-of-stock banner sets availability with OutOfStock=true.
	html := `<html><body><div class="price">$10</div><p>Currently out of stock</p></body></html>`
	f := Extract(Input{HTML: []byte(html), PageURL: "http://shop.example.com/p/x", StatusCode: 200})
	if !f.Commerce.HasAvailability || !f.Commerce.OutOfStock {
		t.Errorf("commerce: %+v", f.Commerce)
	}
	if f.Technical.HTTPS {
		t.Error("http URL flagged as HTTPS")
	}
}

func TestExtract_StatusFact(t *testing.T) {
	// WHAT: Only a real 2xx status satisfies the status fact; error
	// pages and captures with no recorded response (StatusCode 0) never
	// do.
	// WHY: The status rule is worth points. A capture path that cannot
	// observe the response must leave the fact unsatisfied, not assume
	// success.
	html := `<html><body><div class="price">$10</div></body></html>`
	for _, tc := range []struct {
		status int
		want   bool
	}{
		{200, true},
		{204, true},
		{0, false},
		{404, false},
		{500, false},
	} {
		f := Extract(Input{HTML: []byte(html), PageURL: "https://s.example.com/p", StatusCode: tc.status})
		if f.Technical.StatusOK != tc.want {
			t.Errorf("status %d: StatusOK = %v, want %v", tc.status, f.Technical.StatusOK, tc.want)
		}
	}
}

func TestExtract_StructuredDataGraphForm(t *testing.T) {
	// WHAT: @graph-wrapped Product entities are recognized.
	html := `<html><head><script type="application/ld+json">
	{"@context":"https://schema.org","@graph":[{"@type":"WebSite"},{"@type":"Product","name":"X"}]}
	</script></head><body></body></html>`
	f := Extract(Input{HTML: []byte(html), PageURL: "https://s.example.com/p", StatusCode: 200})
	if !f.Content.HasStructuredData {
		t.Error("@graph Product not detected")
	}
}

func TestExtract_MalformedHTML(t *testing.T) {
	// WHAT: Broken markup extracts what the tolerant parser recovers.
	html := `<html><body><div class="price">€5<button>Add to cart</div>`
	f := Extract(Input{HTML: []byte(html), PageURL: "https://s.example.com/p", StatusCode: 200})
	if !f.Commerce.HasPrice || !f.Commerce.HasAddToCart {
		t.Errorf("commerce: %+v", f.Commerce)
	}
}

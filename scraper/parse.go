package scraper

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"realtor_scraper/models"
)

const (
	cardSelector       = ".cardCon"
	cardLinkSelector   = ".listingDetailsLink"
	priceSelector      = "div#listingPriceValue"
	addressSelector    = "h1#listingAddress"
	agentSelector      = "span.realtorCardName"
	brokerSelector     = "div.officeCardName"
	directionsSelector = "#listingDirectionsBtn"
)

// Address is the parsed form of the two-line listing address block.
type Address struct {
	Street     string
	City       string
	State      string
	PostalCode string
}

// ParseCardLinks returns the detail links of every listing card in a results
// page, resolved against base. Cards without a link are counted in skipped.
func ParseCardLinks(content, base string) (links []string, skipped int, err error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, 0, fmt.Errorf("parse results page: %w", err)
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, 0, fmt.Errorf("parse base url: %w", err)
	}

	doc.Find(cardSelector).Each(func(_ int, card *goquery.Selection) {
		href, ok := card.Find(cardLinkSelector).First().Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" {
			skipped++
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			skipped++
			return
		}
		links = append(links, baseURL.ResolveReference(ref).String())
	})

	return links, skipped, nil
}

// ParseListing reads the detail fields out of a rendered listing page. Any
// missing element or malformed field fails the whole record.
func ParseListing(link, content string) (models.ListingRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return models.ListingRecord{}, newExtractError(models.FailureParse, StageReadFields, link, err)
	}

	price, err := requireText(doc, priceSelector)
	if err != nil {
		return models.ListingRecord{}, newExtractError(models.FailureMissingElement, StageReadFields, link, err)
	}
	addressBlock, err := requireText(doc, addressSelector)
	if err != nil {
		return models.ListingRecord{}, newExtractError(models.FailureMissingElement, StageReadFields, link, err)
	}
	address, err := ParseAddressBlock(addressBlock)
	if err != nil {
		return models.ListingRecord{}, newExtractError(models.FailureParse, StageParseAddress, link, err)
	}
	agent, err := requireText(doc, agentSelector)
	if err != nil {
		return models.ListingRecord{}, newExtractError(models.FailureMissingElement, StageReadFields, link, err)
	}
	broker, err := requireText(doc, brokerSelector)
	if err != nil {
		return models.ListingRecord{}, newExtractError(models.FailureMissingElement, StageReadFields, link, err)
	}

	directions := doc.Find(directionsSelector).First()
	href, ok := directions.Attr("href")
	if !ok {
		return models.ListingRecord{}, newExtractError(models.FailureMissingElement, StageReadFields, link,
			fmt.Errorf("%w: %s[href]", ErrMissingElement, directionsSelector))
	}
	lat, lng, err := ParseCoordinates(href)
	if err != nil {
		return models.ListingRecord{}, newExtractError(models.FailureParse, StageParseCoordinates, link, err)
	}

	return models.ListingRecord{
		Address:    strings.ToUpper(address.Street),
		City:       strings.ToUpper(address.City),
		State:      strings.ToUpper(address.State),
		PostalCode: strings.ToUpper(address.PostalCode),
		Agent:      strings.ToUpper(agent),
		Broker:     strings.ToUpper(broker),
		Price:      strings.ToUpper(price),
		Latitude:   lat,
		Longitude:  lng,
	}, nil
}

// ParseAddressBlock splits "STREET\nCITY (SUFFIX), STATE POSTAL". The
// parenthesised suffix and the postal code are optional. Only the text up to a
// second comma is read as state and postal code.
func ParseAddressBlock(block string) (Address, error) {
	lines := strings.Split(strings.TrimSpace(block), "\n")
	if len(lines) < 2 {
		return Address{}, fmt.Errorf("%w: address block has %d line(s): %q", ErrMalformedField, len(lines), block)
	}

	street := strings.TrimSpace(lines[0])
	locality := strings.TrimSpace(lines[1])

	parts := strings.Split(locality, ",")
	if len(parts) < 2 {
		return Address{}, fmt.Errorf("%w: no comma in %q", ErrMalformedField, locality)
	}

	city := strings.TrimSpace(parts[0])
	if cut, _, found := strings.Cut(city, " ("); found {
		city = cut
	}

	statePostal := strings.Fields(parts[1])
	if len(statePostal) == 0 {
		return Address{}, fmt.Errorf("%w: no province in %q", ErrMalformedField, locality)
	}

	return Address{
		Street:     street,
		City:       strings.TrimSpace(city),
		State:      statePostal[0],
		PostalCode: strings.Join(statePostal[1:], " "),
	}, nil
}

// ParseCoordinates pulls "lat,lng" out of the destination parameter of a
// directions link. An encoded comma (%2c) is accepted.
func ParseCoordinates(href string) (lat, lng string, err error) {
	idx := strings.LastIndex(href, "destination=")
	if idx < 0 {
		return "", "", fmt.Errorf("%w: no destination in %q", ErrMalformedField, href)
	}

	value := href[idx+len("destination="):]
	if cut, _, found := strings.Cut(value, "&"); found {
		value = cut
	}
	value = strings.ReplaceAll(value, "%2c", ",")
	value = strings.ReplaceAll(value, "%2C", ",")

	parts := strings.Split(value, ",")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("%w: destination %q is not lat,lng", ErrMalformedField, value)
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), nil
}

func requireText(doc *goquery.Document, selector string) (string, error) {
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return "", fmt.Errorf("%w: %s", ErrMissingElement, selector)
	}
	return renderedText(sel), nil
}

var blockElements = map[string]bool{
	"address": true, "article": true, "div": true, "h1": true, "h2": true, "h3": true,
	"h4": true, "h5": true, "h6": true, "li": true, "p": true, "section": true, "tr": true,
}

// renderedText approximates what a browser shows for an element: <br> and
// block children start new lines, runs of whitespace collapse, blank lines
// are dropped.
func renderedText(sel *goquery.Selection) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			switch {
			case n.Data == "br":
				b.WriteString("\n")
				return
			case n.Data == "script" || n.Data == "style":
				return
			case blockElements[n.Data]:
				b.WriteString("\n")
				defer b.WriteString("\n")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	var lines []string
	for _, line := range strings.Split(b.String(), "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

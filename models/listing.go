package models

// ListingRecord is one listing detail page reduced to the exported columns.
type ListingRecord struct {
	Address    string `json:"address"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Agent      string `json:"agent"`
	Broker     string `json:"broker"`
	Price      string `json:"price"`
	Latitude   string `json:"latitude"`
	Longitude  string `json:"longitude"`
}

// Columns is the spreadsheet header, in Row order.
var Columns = []string{
	"Address", "City", "State", "Postal Code", "Agent", "Broker", "Price", "Latitude", "Longitude",
}

func (r ListingRecord) Row() []string {
	return []string{
		r.Address, r.City, r.State, r.PostalCode, r.Agent, r.Broker, r.Price, r.Latitude, r.Longitude,
	}
}

// PageLinks holds the detail links harvested from one results page.
type PageLinks struct {
	Label string   `json:"label"`
	Links []string `json:"links"`
}

// LinkCheckpoint is the ordered result of harvesting one city.
type LinkCheckpoint struct {
	City  string      `json:"city"`
	Pages []PageLinks `json:"pages"`
}

// Links flattens the checkpoint in page order.
func (c LinkCheckpoint) Links() []string {
	var links []string
	for _, p := range c.Pages {
		links = append(links, p.Links...)
	}
	return links
}

type FailureKind string

const (
	FailureNavigation     FailureKind = "navigation"
	FailureBlocked        FailureKind = "blocked"
	FailureMissingElement FailureKind = "missing_element"
	FailureParse          FailureKind = "parse"
)

// ExtractionFailure records why a link produced no ListingRecord.
type ExtractionFailure struct {
	Link    string      `json:"link" db:"link"`
	Kind    FailureKind `json:"kind" db:"kind"`
	Stage   string      `json:"stage" db:"stage"`
	Message string      `json:"message" db:"message"`
}

package scraper

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Sentinel values applied when the source leaves a field blank.
const (
	DefaultCompany  = "Not specified"
	DefaultLocation = "Kigali, Rwanda"
	DefaultJobType  = "Full-time"
)

// DefaultDeadlineWindow is added to the posted date when no deadline can be read.
const DefaultDeadlineWindow = 30 * 24 * time.Hour

// Fragment is the raw markup of one listing card on an index page.
type Fragment struct {
	Selection *goquery.Selection
}

// Card is a listing as parsed from the source, with defaults already applied.
type Card struct {
	SourceURL        string
	Title            string
	Company          string
	Location         string
	JobType          string
	PostedDate       time.Time
	Deadline         time.Time
	Description      string
	Requirements     []string
	Responsibilities []string
	Category         string
	ExperienceLevel  string
	Salary           string

	// Raw date cell text, kept for diagnostics.
	PostedText   string
	DeadlineText string
}

// Adapter hides one job board's markup from the walker and reconciler.
type Adapter interface {
	// Source identifies the origin site on stored listings.
	Source() string
	// PageURL returns the absolute URL of a 1-based listing index page.
	PageURL(page int) string
	// ExtractCards selects every listing card on an index page.
	ExtractCards(doc *goquery.Document) []Fragment
	// HasNextPage reports whether the index page links to a following page.
	HasNextPage(doc *goquery.Document) bool
	// ParseFragment returns nil when the fragment is incomplete.
	ParseFragment(f Fragment, now time.Time) *Card
	// ParseDetail fills card fields found on its detail page.
	ParseDetail(doc *goquery.Document, card *Card)
}

// singleLine collapses all whitespace runs to one space.
func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// cleanWhitespace trims each line and drops empty ones.
func cleanWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	var cleaned []string
	for _, line := range lines {
		line = singleLine(line)
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

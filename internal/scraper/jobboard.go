package scraper

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/EVODENUBY/DYPSE-sub000/internal/dates"
)

// Job board constants. The source and its index path are fixed for this service.
const (
	JobBoardSource      = "jobinrwanda"
	JobBoardBaseURL     = "https://www.jobinrwanda.com"
	JobBoardListingPath = "/jobs/all"
)

// labelPrefix strips leading captions like "Deadline:" from date cells.
var labelPrefix = regexp.MustCompile(`^[A-Za-z][A-Za-z ]*:\s*`)

// Selectors are the CSS selectors the job board adapter reads.
type Selectors struct {
	Card     string
	Title    string
	Link     string
	Company  string
	Location string
	JobType  string
	Posted   string
	Deadline string
	NextPage string

	Description      string
	Requirements     string
	Responsibilities string
	Category         string
	ExperienceLevel  string
	Salary           string
}

// DefaultSelectors matches the job board's current markup.
func DefaultSelectors() Selectors {
	return Selectors{
		Card:     "div.job-item",
		Title:    ".job-title",
		Link:     ".job-title a[href]",
		Company:  ".job-company",
		Location: ".job-location",
		JobType:  ".job-type",
		Posted:   ".job-posted",
		Deadline: ".job-deadline",
		NextPage: "ul.pagination li.next a, a[rel='next']",

		Description:      ".job-description",
		Requirements:     ".job-requirements li",
		Responsibilities: ".job-responsibilities li",
		Category:         ".job-category",
		ExperienceLevel:  ".job-experience",
		Salary:           ".job-salary",
	}
}

// JobBoard is the Adapter for the job board.
type JobBoard struct {
	base        *url.URL
	listingPath string
	sel         Selectors
}

// NewJobBoard creates the adapter rooted at baseURL.
func NewJobBoard(baseURL string, sel Selectors) (*JobBoard, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid job board base URL %q", baseURL)
	}
	return &JobBoard{base: u, listingPath: JobBoardListingPath, sel: sel}, nil
}

// Source implements Adapter.
func (j *JobBoard) Source() string {
	return JobBoardSource
}

// PageURL implements Adapter.
func (j *JobBoard) PageURL(page int) string {
	u := j.base.ResolveReference(&url.URL{Path: j.listingPath})
	q := u.Query()
	q.Set("page", fmt.Sprint(page))
	u.RawQuery = q.Encode()
	return u.String()
}

// ExtractCards implements Adapter.
func (j *JobBoard) ExtractCards(doc *goquery.Document) []Fragment {
	var out []Fragment
	doc.Find(j.sel.Card).Each(func(_ int, s *goquery.Selection) {
		out = append(out, Fragment{Selection: s})
	})
	return out
}

// HasNextPage implements Adapter.
func (j *JobBoard) HasNextPage(doc *goquery.Document) bool {
	return doc.Find(j.sel.NextPage).Length() > 0
}

// ParseFragment implements Adapter.
func (j *JobBoard) ParseFragment(f Fragment, now time.Time) *Card {
	s := f.Selection
	if s == nil {
		return nil
	}

	href, ok := s.Find(j.sel.Link).First().Attr("href")
	href = strings.TrimSpace(href)
	if !ok || href == "" {
		return nil
	}
	link, err := j.resolve(href)
	if err != nil {
		return nil
	}

	title := singleLine(s.Find(j.sel.Title).First().Text())
	if title == "" {
		title = singleLine(s.Find(j.sel.Link).First().Text())
	}
	if title == "" {
		return nil
	}

	postedText := dateText(s, j.sel.Posted)
	posted, ok := dates.Normalize(postedText, now)
	if !ok {
		posted = now
	}
	deadlineText := dateText(s, j.sel.Deadline)
	deadline, ok := dates.Normalize(deadlineText, now)
	if !ok {
		deadline = posted.Add(DefaultDeadlineWindow)
	}

	return &Card{
		SourceURL:  link,
		Title:      title,
		Company:    orDefault(singleLine(s.Find(j.sel.Company).First().Text()), DefaultCompany),
		Location:   orDefault(singleLine(s.Find(j.sel.Location).First().Text()), DefaultLocation),
		JobType:    orDefault(singleLine(s.Find(j.sel.JobType).First().Text()), DefaultJobType),
		PostedDate: posted,
		Deadline:   deadline,

		PostedText:   postedText,
		DeadlineText: deadlineText,
	}
}

// ParseDetail implements Adapter. Fields missing from the page keep their values.
func (j *JobBoard) ParseDetail(doc *goquery.Document, card *Card) {
	if desc := cleanWhitespace(doc.Find(j.sel.Description).First().Text()); desc != "" {
		card.Description = desc
	}
	if reqs := listItems(doc.Selection, j.sel.Requirements); len(reqs) > 0 {
		card.Requirements = reqs
	}
	if resp := listItems(doc.Selection, j.sel.Responsibilities); len(resp) > 0 {
		card.Responsibilities = resp
	}
	if v := singleLine(doc.Find(j.sel.Category).First().Text()); v != "" {
		card.Category = v
	}
	if v := singleLine(doc.Find(j.sel.ExperienceLevel).First().Text()); v != "" {
		card.ExperienceLevel = v
	}
	if v := singleLine(doc.Find(j.sel.Salary).First().Text()); v != "" {
		card.Salary = v
	}
}

func (j *JobBoard) resolve(href string) (string, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	return j.base.ResolveReference(ref).String(), nil
}

func dateText(s *goquery.Selection, selector string) string {
	text := singleLine(s.Find(selector).First().Text())
	return labelPrefix.ReplaceAllString(text, "")
}

func listItems(s *goquery.Selection, selector string) []string {
	var items []string
	s.Find(selector).Each(func(_ int, li *goquery.Selection) {
		if text := singleLine(li.Text()); text != "" {
			items = append(items, text)
		}
	})
	return items
}

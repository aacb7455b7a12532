package db

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Listing is a stored job listing
type Listing struct {
	ID               uuid.UUID   `json:"id"`
	SourceURL        string      `json:"sourceUrl"`
	Title            string      `json:"title"`
	Company          string      `json:"company"`
	Location         string      `json:"location"`
	JobType          string      `json:"jobType"`
	PostedDate       time.Time   `json:"postedDate"`
	Deadline         time.Time   `json:"deadline"`
	Description      string      `json:"description"`
	Requirements     StringArray `json:"requirements"`
	Responsibilities StringArray `json:"responsibilities"`
	Category         string      `json:"category,omitempty"`
	ExperienceLevel  string      `json:"experienceLevel,omitempty"`
	Salary           string      `json:"salary,omitempty"`
	Source           string      `json:"source"`
	IsActive         bool        `json:"isActive"`
	LastFetched      time.Time   `json:"lastFetched"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}

// ListingInput holds the fields written on create and overwritten on update.
// Source is only used on create.
type ListingInput struct {
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
	Source           string
}

// Sort directions
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// DefaultSortBy is the sort field used when none is given
const DefaultSortBy = "postedDate"

// sortColumns maps API sort fields to columns. Anything else is rejected.
var sortColumns = map[string]string{
	"postedDate": "posted_date",
	"deadline":   "deadline",
	"createdAt":  "created_at",
	"updatedAt":  "updated_at",
	"title":      "title",
	"company":    "company",
	"location":   "location",
	"jobType":    "job_type",
}

// SortFields returns the accepted sort field names
func SortFields() []string {
	fields := make([]string, 0, len(sortColumns))
	for k := range sortColumns {
		fields = append(fields, k)
	}
	return fields
}

// ListingQuery contains filters for listing job listings.
// Empty filter slices are ignored; multiple values match any of them.
type ListingQuery struct {
	Search           string
	Locations        []string
	JobTypes         []string
	ExperienceLevels []string
	Categories       []string
	SortBy           string
	SortOrder        string
	Page             int
	Limit            int
}

// ListingPage is one page of query results
type ListingPage struct {
	Listings   []Listing
	Total      int
	Page       int
	Limit      int
	TotalPages int
}

// Facets are the distinct filter values among active listings
type Facets struct {
	Categories       []string `json:"categories"`
	JobTypes         []string `json:"jobTypes"`
	ExperienceLevels []string `json:"experienceLevels"`
	Locations        []string `json:"locations"`
}

// StringArray handles JSON string arrays stored in JSONB or TEXT columns
type StringArray []string

// Scan implements the Scanner interface for StringArray
func (a *StringArray) Scan(src interface{}) error {
	var source []byte
	switch v := src.(type) {
	case nil:
		*a = StringArray{}
		return nil
	case []byte:
		source = v
	case string:
		source = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into StringArray", src)
	}
	return json.Unmarshal(source, a)
}

// Value implements the Valuer interface for StringArray
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const listingColumns = `id, source_url, title, company, location, job_type, posted_date, deadline,
	description, requirements, responsibilities, category, experience_level, salary,
	source, is_active, last_fetched, created_at, updated_at`

// postgresSearchVector must match the expression of the GIN index.
const postgresSearchVector = `to_tsvector('english', title || ' ' || company || ' ' || description || ' ' || location)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner) (*Listing, error) {
	var l Listing
	var category, experienceLevel, salary sql.NullString
	err := row.Scan(
		&l.ID, &l.SourceURL, &l.Title, &l.Company, &l.Location, &l.JobType,
		&l.PostedDate, &l.Deadline, &l.Description, &l.Requirements, &l.Responsibilities,
		&category, &experienceLevel, &salary,
		&l.Source, &l.IsActive, &l.LastFetched, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	l.Category = category.String
	l.ExperienceLevel = experienceLevel.String
	l.Salary = salary.String
	return &l, nil
}

// GetListingByID retrieves a listing by ID. Returns nil when absent.
func (db *DB) GetListingByID(ctx context.Context, id uuid.UUID) (*Listing, error) {
	row := db.conn.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM job_listings WHERE id = %s`, listingColumns, db.bind(1)),
		id,
	)
	l, err := scanListing(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return l, nil
}

// GetListingBySourceURL retrieves a listing by its exact source URL. Returns nil when absent.
func (db *DB) GetListingBySourceURL(ctx context.Context, sourceURL string) (*Listing, error) {
	row := db.conn.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM job_listings WHERE source_url = %s`, listingColumns, db.bind(1)),
		sourceURL,
	)
	l, err := scanListing(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get listing by source url: %w", err)
	}
	return l, nil
}

// CreateListing inserts an active listing. If another writer inserted the same
// source URL first, that row is overwritten instead.
func (db *DB) CreateListing(ctx context.Context, input *ListingInput, fetchedAt time.Time) (*Listing, error) {
	fetchedAt = fetchedAt.UTC()
	args := []any{
		uuid.New(), input.SourceURL, input.Title, input.Company, input.Location, input.JobType,
		input.PostedDate.UTC(), input.Deadline.UTC(), input.Description,
		StringArray(input.Requirements), StringArray(input.Responsibilities),
		nullString(input.Category), nullString(input.ExperienceLevel), nullString(input.Salary),
		input.Source, true, fetchedAt, fetchedAt, fetchedAt,
	}

	query := fmt.Sprintf(
		`INSERT INTO job_listings (%s)
		 VALUES (%s)
		 ON CONFLICT (source_url) DO UPDATE SET
		     title = excluded.title,
		     company = excluded.company,
		     location = excluded.location,
		     job_type = excluded.job_type,
		     posted_date = excluded.posted_date,
		     deadline = excluded.deadline,
		     description = excluded.description,
		     requirements = excluded.requirements,
		     responsibilities = excluded.responsibilities,
		     category = excluded.category,
		     experience_level = excluded.experience_level,
		     salary = excluded.salary,
		     last_fetched = excluded.last_fetched,
		     updated_at = excluded.updated_at
		 RETURNING %s`,
		listingColumns, db.placeholders(len(args)), listingColumns,
	)

	l, err := scanListing(db.conn.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("failed to create listing: %w", err)
	}
	return l, nil
}

// UpdateListing overwrites the scraped fields of a listing and bumps last_fetched.
// Source, active flag and creation time are left untouched.
func (db *DB) UpdateListing(ctx context.Context, id uuid.UUID, input *ListingInput, fetchedAt time.Time) (*Listing, error) {
	fetchedAt = fetchedAt.UTC()
	sets := []string{
		"source_url", "title", "company", "location", "job_type", "posted_date", "deadline",
		"description", "requirements", "responsibilities", "category", "experience_level",
		"salary", "last_fetched", "updated_at",
	}
	args := []any{
		input.SourceURL, input.Title, input.Company, input.Location, input.JobType,
		input.PostedDate.UTC(), input.Deadline.UTC(), input.Description,
		StringArray(input.Requirements), StringArray(input.Responsibilities),
		nullString(input.Category), nullString(input.ExperienceLevel), nullString(input.Salary),
		fetchedAt, fetchedAt,
	}

	assignments := make([]string, len(sets))
	for i, col := range sets {
		assignments[i] = fmt.Sprintf("%s = %s", col, db.bind(i+1))
	}
	args = append(args, id)

	query := fmt.Sprintf(
		`UPDATE job_listings SET %s WHERE id = %s RETURNING %s`,
		strings.Join(assignments, ", "), db.bind(len(args)), listingColumns,
	)

	l, err := scanListing(db.conn.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("listing %s not found", id)
		}
		return nil, fmt.Errorf("failed to update listing: %w", err)
	}
	return l, nil
}

// SetListingActive flips the active flag of a listing
func (db *DB) SetListingActive(ctx context.Context, id uuid.UUID, active bool) error {
	res, err := db.conn.ExecContext(ctx,
		fmt.Sprintf(`UPDATE job_listings SET is_active = %s, updated_at = %s WHERE id = %s`,
			db.bind(1), db.bind(2), db.bind(3)),
		active, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to set listing active: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("listing %s not found", id)
	}
	return nil
}

// QueryListings lists active listings matching q, sorted and paginated
func (db *DB) QueryListings(ctx context.Context, q ListingQuery) (*ListingPage, error) {
	conditions := []string{"is_active = TRUE"}
	var args []any

	if search := strings.TrimSpace(q.Search); search != "" {
		if db.dialect == DialectPostgres {
			args = append(args, search)
			conditions = append(conditions, fmt.Sprintf(
				"%s @@ plainto_tsquery('english', %s)", postgresSearchVector, db.bind(len(args))))
		} else {
			pattern := "%" + strings.ToLower(search) + "%"
			var ors []string
			for _, col := range []string{"title", "company", "description", "location"} {
				args = append(args, pattern)
				ors = append(ors, fmt.Sprintf("LOWER(%s) LIKE %s", col, db.bind(len(args))))
			}
			conditions = append(conditions, "("+strings.Join(ors, " OR ")+")")
		}
	}

	for _, f := range []struct {
		column string
		values []string
	}{
		{"location", q.Locations},
		{"job_type", q.JobTypes},
		{"experience_level", q.ExperienceLevels},
		{"category", q.Categories},
	} {
		if len(f.values) == 0 {
			continue
		}
		binds := make([]string, len(f.values))
		for i, v := range f.values {
			args = append(args, v)
			binds[i] = db.bind(len(args))
		}
		conditions = append(conditions, fmt.Sprintf("%s IN (%s)", f.column, strings.Join(binds, ", ")))
	}

	whereClause := "WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := db.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM job_listings "+whereClause, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count listings: %w", err)
	}

	sortBy := q.SortBy
	if sortBy == "" {
		sortBy = DefaultSortBy
	}
	column, ok := sortColumns[sortBy]
	if !ok {
		return nil, fmt.Errorf("unsupported sort field %q", q.SortBy)
	}
	direction := "DESC"
	if strings.EqualFold(q.SortOrder, SortAsc) {
		direction = "ASC"
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	args = append(args, limit, (page-1)*limit)
	query := fmt.Sprintf(
		`SELECT %s FROM job_listings %s
		 ORDER BY %s %s, id ASC
		 LIMIT %s OFFSET %s`,
		listingColumns, whereClause, column, direction, db.bind(len(args)-1), db.bind(len(args)),
	)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	listings := []Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		listings = append(listings, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate listings: %w", err)
	}

	return &ListingPage{
		Listings:   listings,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	}, nil
}

// ListingFacets returns the distinct filter values among active listings
func (db *DB) ListingFacets(ctx context.Context) (*Facets, error) {
	var f Facets
	for _, target := range []struct {
		column string
		dest   *[]string
	}{
		{"category", &f.Categories},
		{"job_type", &f.JobTypes},
		{"experience_level", &f.ExperienceLevels},
		{"location", &f.Locations},
	} {
		values, err := db.distinct(ctx, target.column)
		if err != nil {
			return nil, err
		}
		*target.dest = values
	}
	return &f, nil
}

func (db *DB) distinct(ctx context.Context, column string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, fmt.Sprintf(
		`SELECT DISTINCT %[1]s FROM job_listings
		 WHERE is_active = TRUE AND %[1]s IS NOT NULL AND %[1]s <> ''`, column))
	if err != nil {
		return nil, fmt.Errorf("failed to list distinct %s: %w", column, err)
	}
	defer func() { _ = rows.Close() }()

	values := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", column, err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Strings(values)
	return values, nil
}

func (db *DB) placeholders(n int) string {
	binds := make([]string, n)
	for i := range binds {
		binds[i] = db.bind(i + 1)
	}
	return strings.Join(binds, ", ")
}

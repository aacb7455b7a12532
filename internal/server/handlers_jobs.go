package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/EVODENUBY/DYPSE-sub000/internal/db"
	"github.com/EVODENUBY/DYPSE-sub000/internal/server/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// listJobsParams are the validated scalar parameters of GET /jobs
type listJobsParams struct {
	Page      int    `validate:"min=1"`
	Limit     int    `validate:"min=1"`
	SortBy    string `validate:"oneof=postedDate deadline createdAt updatedAt title company location jobType"`
	SortOrder string `validate:"oneof=asc desc"`
}

// parseQueryInt parses a positive integer query parameter, returning def when absent
// and clamping to maxValue when maxValue > 0.
func parseQueryInt(r *http.Request, key string, def, maxValue int) (int, error) {
	valStr := strings.TrimSpace(r.URL.Query().Get(key))
	if valStr == "" {
		return def, nil
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val < 1 {
		return 0, &ErrValidation{Field: key, Message: "must be a positive integer"}
	}
	if maxValue > 0 && val > maxValue {
		return maxValue, nil
	}
	return val, nil
}

// queryList collects a filter given as repeated and/or comma-joined values.
func queryList(r *http.Request, key string) []string {
	var out []string
	for _, raw := range r.URL.Query()[key] {
		for _, v := range strings.Split(raw, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

func (s *Server) parseListQuery(r *http.Request) (db.ListingQuery, error) {
	page, err := parseQueryInt(r, "page", 1, 0)
	if err != nil {
		return db.ListingQuery{}, err
	}
	limit, err := parseQueryInt(r, "limit", defaultPageLimit, maxPageLimit)
	if err != nil {
		return db.ListingQuery{}, err
	}

	params := listJobsParams{
		Page:      page,
		Limit:     limit,
		SortBy:    r.URL.Query().Get("sortBy"),
		SortOrder: strings.ToLower(r.URL.Query().Get("sortOrder")),
	}
	if params.SortBy == "" {
		params.SortBy = db.DefaultSortBy
	}
	if params.SortOrder == "" {
		params.SortOrder = db.SortDesc
	}

	if err := s.validate.Struct(params); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			field := verrs[0].Field()
			switch field {
			case "SortBy":
				return db.ListingQuery{}, &ErrValidation{Field: "sortBy", Message: "must be one of " + strings.Join(db.SortFields(), ", ")}
			case "SortOrder":
				return db.ListingQuery{}, &ErrValidation{Field: "sortOrder", Message: "must be asc or desc"}
			}
			return db.ListingQuery{}, &ErrValidation{Field: field, Message: verrs[0].Tag()}
		}
		return db.ListingQuery{}, &ErrValidation{Field: "query", Message: err.Error()}
	}

	return db.ListingQuery{
		Search:           strings.TrimSpace(r.URL.Query().Get("search")),
		Locations:        queryList(r, "location"),
		JobTypes:         queryList(r, "jobType"),
		ExperienceLevels: queryList(r, "experienceLevel"),
		Categories:       queryList(r, "category"),
		SortBy:           params.SortBy,
		SortOrder:        params.SortOrder,
		Page:             params.Page,
		Limit:            params.Limit,
	}, nil
}

// handleListJobs returns one page of active listings with the available filter values
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	q, err := s.parseListQuery(r)
	if err != nil {
		s.errorFor(w, r, err)
		return
	}

	page, err := s.store.QueryListings(r.Context(), q)
	if err != nil {
		s.errorFor(w, r, err)
		return
	}
	facets, err := s.store.ListingFacets(r.Context())
	if err != nil {
		s.errorFor(w, r, err)
		return
	}

	jobs := page.Listings
	if jobs == nil {
		jobs = []db.Listing{}
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"jobs":    jobs,
			"filters": facets,
		},
		"pagination": map[string]int{
			"total":      page.Total,
			"page":       page.Page,
			"limit":      page.Limit,
			"totalPages": page.TotalPages,
		},
	})
}

// handleGetJob retrieves a listing by ID
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	idStr := r.PathValue("id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		s.errorFor(w, r, &ErrValidation{Field: "id", Message: "invalid job ID"})
		return
	}

	listing, err := s.store.GetListingByID(r.Context(), id)
	if err != nil {
		s.errorFor(w, r, err)
		return
	}
	if listing == nil {
		s.errorFor(w, r, &ErrListingNotFound{ID: idStr})
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{"success": true, "data": listing})
}

// handleTriggerScrape starts an ingestion run in the background
func (s *Server) handleTriggerScrape(w http.ResponseWriter, r *http.Request) {
	if !s.scrapes.TriggerNow() {
		s.errorFor(w, r, &ErrScrapeUnavailable{})
		return
	}

	userID, _ := middleware.GetUserID(r)
	s.logger.Info("scrape triggered", zap.Stringer("user_id", userID))

	s.jsonResponse(w, http.StatusAccepted, map[string]any{
		"success": true,
		"message": "Job scraping started",
	})
}

// handleScrapeStatus reports the schedule and the last run summary
func (s *Server) handleScrapeStatus(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    s.scrapes.Status(),
	})
}

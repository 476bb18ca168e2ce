package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rimdb/publication-dedup-service/internal/domain"
)

// Response types for JSON serialization.

type publicationResponse struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	SecondaryTitle   string     `json:"secondary_title,omitempty"`
	PublicationType  string     `json:"publication_type"`
	Status           string     `json:"status"`
	JournalTitle     string     `json:"journal_title,omitempty"`
	PublisherName    string     `json:"publisher_name,omitempty"`
	Volume           string     `json:"volume,omitempty"`
	Issue            string     `json:"issue,omitempty"`
	Edition          string     `json:"edition,omitempty"`
	PageRange        string     `json:"page_range,omitempty"`
	ISSN             string     `json:"issn,omitempty"`
	ISBN             string     `json:"isbn,omitempty"`
	DOI              string     `json:"doi,omitempty"`
	PublishedOn      *time.Time `json:"published_on,omitempty"`
	Visible          bool       `json:"visible"`
	DuplicateGroupID string     `json:"duplicate_group_id,omitempty"`
	Sources          []string   `json:"sources,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type duplicateGroupResponse struct {
	ID           string                `json:"id"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
	Publications []publicationResponse `json:"publications"`
}

type listDuplicateGroupsResponse struct {
	Groups []duplicateGroupResponse `json:"groups"`
	Limit  int                      `json:"limit"`
	Offset int                      `json:"offset"`
}

type rebuildResponse struct {
	Scanned  int   `json:"scanned"`
	Classes  int   `json:"classes"`
	Grouped  int   `json:"grouped"`
	Cleared  int   `json:"cleared"`
	Pruned   int64 `json:"pruned"`
	Failures int   `json:"failures"`
}

type mergeResponse struct {
	TargetID string `json:"target_id"`
	Merged   int    `json:"merged"`
}

type nonDuplicateGroupResponse struct {
	ID             string    `json:"id"`
	PublicationIDs []string  `json:"publication_ids"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Converter functions

func domainPublicationToResponse(p *domain.Publication) publicationResponse {
	resp := publicationResponse{
		ID:              p.ID.String(),
		Title:           p.Title,
		PublicationType: p.PublicationType,
		Status:          string(p.Status),
		JournalTitle:    p.PreferredJournalTitle(),
		Visible:         p.Visible,
		PublishedOn:     p.PublishedOn,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
	if p.SecondaryTitle != nil {
		resp.SecondaryTitle = *p.SecondaryTitle
	}
	if p.PublisherName != nil {
		resp.PublisherName = *p.PublisherName
	}
	if p.Volume != nil {
		resp.Volume = *p.Volume
	}
	if p.Issue != nil {
		resp.Issue = *p.Issue
	}
	if p.Edition != nil {
		resp.Edition = *p.Edition
	}
	if p.PageRange != nil {
		resp.PageRange = *p.PageRange
	}
	if p.ISSN != nil {
		resp.ISSN = *p.ISSN
	}
	if p.ISBN != nil {
		resp.ISBN = *p.ISBN
	}
	if p.DOI != nil {
		resp.DOI = *p.DOI
	}
	if p.DuplicateGroupID != nil {
		resp.DuplicateGroupID = p.DuplicateGroupID.String()
	}
	for _, imp := range p.Imports {
		resp.Sources = append(resp.Sources, string(imp.Source))
	}
	return resp
}

func domainGroupToResponse(g *domain.DuplicateGroup) duplicateGroupResponse {
	resp := duplicateGroupResponse{
		ID:           g.ID.String(),
		CreatedAt:    g.CreatedAt,
		UpdatedAt:    g.UpdatedAt,
		Publications: make([]publicationResponse, 0, len(g.Publications)),
	}
	for _, p := range g.Publications {
		resp.Publications = append(resp.Publications, domainPublicationToResponse(p))
	}
	return resp
}

func domainNonDuplicateGroupToResponse(g *domain.NonDuplicateGroup) nonDuplicateGroupResponse {
	resp := nonDuplicateGroupResponse{
		ID:             g.ID.String(),
		PublicationIDs: make([]string, 0, len(g.PublicationIDs)),
		CreatedAt:      g.CreatedAt,
		UpdatedAt:      g.UpdatedAt,
	}
	for _, id := range g.PublicationIDs {
		resp.PublicationIDs = append(resp.PublicationIDs, id.String())
	}
	return resp
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Best-effort; headers already sent.
		_ = err
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}

// writeDomainError maps a domain error to an HTTP status and writes it.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNonDuplicateMerge):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrGroupingInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

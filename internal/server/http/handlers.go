package httpserver

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/rimdb/publication-dedup-service/internal/events"
	"github.com/rimdb/publication-dedup-service/internal/observability"
)

// maxRequestBodySize bounds admin request bodies.
const maxRequestBodySize = 1 << 20 // 1 MB

var validate = validator.New()

// mergeRequest is the JSON request body for merging publications.
type mergeRequest struct {
	SourceIDs []uuid.UUID `json:"source_ids" validate:"required,min=1,dive,required"`
}

// createNonDuplicateGroupRequest is the JSON request body for recording a
// non-duplicate confirmation.
type createNonDuplicateGroupRequest struct {
	PublicationIDs []uuid.UUID `json:"publication_ids" validate:"required,min=2,dive,required"`
}

// rebuildDuplicateGroups handles POST /admin/v1/duplicate-groups/rebuild.
// The scan runs synchronously; a concurrent scan yields 409.
func (s *Server) rebuildDuplicateGroups(w http.ResponseWriter, r *http.Request) {
	res, err := s.grouper.GroupDuplicates(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if emitErr := s.emitter.GroupsRebuilt(r.Context(), events.GroupsRebuiltEvent{
		Scanned:     res.Scanned,
		Classes:     res.Classes,
		Grouped:     res.Grouped,
		Pruned:      res.Pruned,
		Failures:    res.Failures,
		CompletedAt: time.Now().UTC(),
	}); emitErr != nil {
		s.logger.Error().Err(emitErr).Msg("failed to publish rebuild event")
	}

	writeJSON(w, http.StatusOK, rebuildResponse{
		Scanned:  res.Scanned,
		Classes:  res.Classes,
		Grouped:  res.Grouped,
		Cleared:  res.Cleared,
		Pruned:   res.Pruned,
		Failures: res.Failures,
	})
}

// listDuplicateGroups handles GET /admin/v1/duplicate-groups.
func (s *Server) listDuplicateGroups(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	groups, err := s.grpRepo.ListGroups(r.Context(), limit, offset)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := listDuplicateGroupsResponse{
		Groups: make([]duplicateGroupResponse, 0, len(groups)),
		Limit:  limit,
		Offset: offset,
	}
	for _, g := range groups {
		resp.Groups = append(resp.Groups, domainGroupToResponse(g))
	}
	writeJSON(w, http.StatusOK, resp)
}

// getDuplicateGroup handles GET /admin/v1/duplicate-groups/{groupID}.
func (s *Server) getDuplicateGroup(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathUUID(w, r, "groupID")
	if !ok {
		return
	}

	group, err := s.grpRepo.GetGroup(r.Context(), groupID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domainGroupToResponse(group))
}

// getPublication handles GET /admin/v1/publications/{publicationID}.
func (s *Server) getPublication(w http.ResponseWriter, r *http.Request) {
	pubID, ok := pathUUID(w, r, "publicationID")
	if !ok {
		return
	}

	pub, err := s.pubRepo.GetByID(r.Context(), pubID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	doi := ""
	if pub.DOI != nil {
		doi = *pub.DOI
	}
	pubLogger := observability.WithPublicationContext(s.logger, pub.ID.String(), doi)
	pubLogger.Debug().Msg("publication fetched")

	writeJSON(w, http.StatusOK, domainPublicationToResponse(pub))
}

// mergePublications handles POST /admin/v1/publications/{publicationID}/merge.
// The path publication is the merge target; the body lists the sources.
func (s *Server) mergePublications(w http.ResponseWriter, r *http.Request) {
	targetID, ok := pathUUID(w, r, "publicationID")
	if !ok {
		return
	}

	var req mergeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := s.merger.Merge(r.Context(), targetID, req.SourceIDs); err != nil {
		writeDomainError(w, err)
		return
	}

	if emitErr := s.emitter.PublicationsMerged(r.Context(), events.PublicationsMergedEvent{
		TargetID:  targetID,
		SourceIDs: req.SourceIDs,
		MergedAt:  time.Now().UTC(),
	}); emitErr != nil {
		s.logger.Error().Err(emitErr).Msg("failed to publish merge event")
	}

	writeJSON(w, http.StatusOK, mergeResponse{
		TargetID: targetID.String(),
		Merged:   len(req.SourceIDs),
	})
}

// createNonDuplicateGroup handles POST /admin/v1/non-duplicate-groups.
func (s *Server) createNonDuplicateGroup(w http.ResponseWriter, r *http.Request) {
	var req createNonDuplicateGroupRequest
	if !decodeBody(w, r, &req) {
		return
	}

	group, err := s.registry.ConfirmNotDuplicates(r.Context(), req.PublicationIDs)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, domainNonDuplicateGroupToResponse(group))
}

// getNonDuplicateGroup handles GET /admin/v1/non-duplicate-groups/{groupID}.
func (s *Server) getNonDuplicateGroup(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathUUID(w, r, "groupID")
	if !ok {
		return
	}

	group, err := s.registry.Get(r.Context(), groupID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domainNonDuplicateGroupToResponse(group))
}

// deleteNonDuplicateGroup handles DELETE /admin/v1/non-duplicate-groups/{groupID}.
func (s *Server) deleteNonDuplicateGroup(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathUUID(w, r, "groupID")
	if !ok {
		return
	}

	if err := s.registry.Delete(r.Context(), groupID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeBody reads, unmarshals, and validates a JSON request body. Writes a
// 400 and returns false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return false
	}
	if err := validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// pathUUID parses a UUID path parameter. Writes a 400 and returns false when
// the parameter is missing or malformed.
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// queryInt parses an integer query parameter with a fallback.
func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

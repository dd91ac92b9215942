package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"github.com/kidney-match-server/internal/domain"
	"github.com/kidney-match-server/internal/kidneymatch"
	"github.com/kidney-match-server/internal/middleware"
	"github.com/kidney-match-server/internal/profile"
	"github.com/kidney-match-server/internal/service"
)

const maxMatchRecordPageSize = 100

// handleMatchDonors returns a scored page of available kidney donors.
func (s *Server) handleMatchDonors(c *gin.Context) {
	query := c.Request.URL.Query()

	page, err := s.deps.Matching.MatchDonors(c.Request.Context(), service.MatchQuery{
		UserID:      middleware.UserID(c),
		Overrides:   profile.PatientFromQuery(query),
		Location:    strings.TrimSpace(query.Get("location")),
		Page:        cast.ToInt(query.Get("page")),
		PerPage:     cast.ToInt(query.Get("per_page")),
		SortByScore: strings.EqualFold(query.Get("sort"), "score"),
		Path:        requestPath(c),
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

// handleBloodDonors returns the public blood bank listing.
func (s *Server) handleBloodDonors(c *gin.Context) {
	page, err := s.deps.Matching.ListBloodDonors(c.Request.Context(),
		strings.TrimSpace(c.Query("location")),
		cast.ToInt(c.Query("page")),
		cast.ToInt(c.Query("per_page")),
		requestPath(c),
	)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

type evaluateRequest struct {
	Donor   map[string]any `json:"donor"`
	Patient map[string]any `json:"patient"`
}

// handleEvaluate scores one ad-hoc donor and patient pair.
func (s *Server) handleEvaluate(c *gin.Context) {
	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err.Error())
		return
	}
	if req.Donor == nil || req.Patient == nil {
		s.badRequest(c, "both donor and patient objects are required")
		return
	}

	result := s.deps.Matching.Evaluate(c.Request.Context(), req.Donor, req.Patient)
	c.JSON(http.StatusOK, result)
}

type createMatchRequest struct {
	DonorID            int64              `json:"donor_id"`
	PatientID          int64              `json:"patient_id"`
	CompatibilityScore *int               `json:"compatibility_score"`
	Status             domain.MatchStatus `json:"status"`
	MatchedAt          *time.Time         `json:"matched_at"`
}

type updateMatchRequest struct {
	CompatibilityScore *int                `json:"compatibility_score"`
	Status             *domain.MatchStatus `json:"status"`
	MatchedAt          *time.Time          `json:"matched_at"`
}

func (s *Server) handleListMatches(c *gin.Context) {
	filter := kidneymatch.Filter{
		DonorID:   cast.ToInt64(c.Query("donor_id")),
		PatientID: cast.ToInt64(c.Query("patient_id")),
		Status:    domain.MatchStatus(strings.ToUpper(c.Query("status"))),
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		s.badRequest(c, "unknown status "+strconv.Quote(string(filter.Status)))
		return
	}

	paging := service.NormalizePaging(cast.ToInt(c.Query("page")), cast.ToInt(c.Query("per_page")),
		kidneymatch.DefaultPageSize, maxMatchRecordPageSize)

	ctx := c.Request.Context()
	total, err := s.deps.Matches.Count(ctx, filter)
	if err != nil {
		s.respondError(c, err)
		return
	}
	records, err := s.deps.Matches.List(ctx, filter, paging.PerPage, paging.Offset())
	if err != nil {
		s.respondError(c, err)
		return
	}

	s.deps.Metrics.IncrementMatchRecordOp("list")
	c.JSON(http.StatusOK, service.NewPage(records, int(total), paging, requestPath(c)))
}

func (s *Server) handleCreateMatch(c *gin.Context) {
	var req createMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err.Error())
		return
	}

	record := &domain.KidneyMatch{
		DonorID:            req.DonorID,
		PatientID:          req.PatientID,
		CompatibilityScore: req.CompatibilityScore,
		Status:             domain.MatchStatus(strings.ToUpper(string(req.Status))),
		MatchedAt:          req.MatchedAt,
	}
	if err := s.deps.Matches.Create(c.Request.Context(), record); err != nil {
		s.respondError(c, err)
		return
	}

	s.deps.Metrics.IncrementMatchRecordOp("create")
	s.logger.WithFields(logrus.Fields{
		"match_id":   record.ID,
		"donor_id":   record.DonorID,
		"patient_id": record.PatientID,
		"user_id":    middleware.UserID(c),
	}).Info("Kidney match recorded")

	c.JSON(http.StatusCreated, record)
}

func (s *Server) handleGetMatch(c *gin.Context) {
	id, ok := s.matchID(c)
	if !ok {
		return
	}

	record, err := s.deps.Matches.Get(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}

	s.deps.Metrics.IncrementMatchRecordOp("get")
	c.JSON(http.StatusOK, record)
}

func (s *Server) handleUpdateMatch(c *gin.Context) {
	id, ok := s.matchID(c)
	if !ok {
		return
	}

	var req updateMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err.Error())
		return
	}
	if req.Status != nil {
		status := domain.MatchStatus(strings.ToUpper(string(*req.Status)))
		req.Status = &status
	}

	record, err := s.deps.Matches.Update(c.Request.Context(), id, kidneymatch.Update{
		CompatibilityScore: req.CompatibilityScore,
		Status:             req.Status,
		MatchedAt:          req.MatchedAt,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	s.deps.Metrics.IncrementMatchRecordOp("update")
	c.JSON(http.StatusOK, record)
}

func (s *Server) handleDeleteMatch(c *gin.Context) {
	id, ok := s.matchID(c)
	if !ok {
		return
	}

	if err := s.deps.Matches.Delete(c.Request.Context(), id); err != nil {
		s.respondError(c, err)
		return
	}

	s.deps.Metrics.IncrementMatchRecordOp("delete")
	c.JSON(http.StatusOK, gin.H{"message": "Deleted"})
}

func (s *Server) matchID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		s.badRequest(c, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

// requestPath is the absolute request URL without its query string.
func requestPath(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil || strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host + c.Request.URL.Path
}

package server

import (
	"net/http"
	"strings"

	reportingdomain "github.com/baladiya/wastebilling/internal/reporting/domain"
	"github.com/gin-gonic/gin"
)

func (s *Server) CollectionSummary(c *gin.Context) {
	resp, err := s.reportingSvc.CollectionSummary(c.Request.Context(), reportingdomain.CollectionSummaryRequest{
		Period: strings.TrimSpace(c.Query("period")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ReceivablesAging(c *gin.Context) {
	asOf, err := parseOptionalTime("as_of", c.Query("as_of"), false)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.reportingSvc.ReceivablesAging(c.Request.Context(), reportingdomain.AgingRequest{
		AsOf: asOf,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

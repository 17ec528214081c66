package server

import (
	"net/http"
	"strings"

	invoicedomain "github.com/baladiya/wastebilling/internal/invoice/domain"
	"github.com/gin-gonic/gin"
)

type generateInvoicesRequest struct {
	Period     string `json:"period"`
	DueInDays  *int   `json:"due_in_days"`
	CustomerID string `json:"customer_id"`
}

func (s *Server) GenerateInvoices(c *gin.Context) {
	var req generateInvoicesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.invoiceSvc.GenerateForPeriod(c.Request.Context(), invoicedomain.GenerateRequest{
		Period:     strings.TrimSpace(req.Period),
		DueInDays:  req.DueInDays,
		CustomerID: strings.TrimSpace(req.CustomerID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type markOverdueRequest struct {
	AsOf string `json:"as_of"`
}

func (s *Server) MarkInvoicesOverdue(c *gin.Context) {
	var req markOverdueRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		AbortWithError(c, invalidRequestError())
		return
	}

	asOf := s.clock.Now()
	if parsed, err := parseOptionalTime("as_of", req.AsOf, false); err != nil {
		AbortWithError(c, err)
		return
	} else if parsed != nil {
		asOf = *parsed
	}

	swept, err := s.invoiceSvc.MarkOverdue(c.Request.Context(), asOf)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"swept": swept, "as_of": asOf}})
}

func (s *Server) ListInvoices(c *gin.Context) {
	var query struct {
		CustomerID string `form:"customer_id"`
		Status     string `form:"status"`
		Period     string `form:"period"`
		DueFrom    string `form:"due_from"`
		DueTo      string `form:"due_to"`
		Limit      int    `form:"limit"`
		Offset     int    `form:"offset"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	dueFrom, err := parseOptionalTime("due_from", query.DueFrom, false)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	dueTo, err := parseOptionalTime("due_to", query.DueTo, true)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.invoiceSvc.List(c.Request.Context(), invoicedomain.ListInvoiceRequest{
		CustomerID: strings.TrimSpace(query.CustomerID),
		Status:     strings.TrimSpace(query.Status),
		Period:     strings.TrimSpace(query.Period),
		DueFrom:    dueFrom,
		DueTo:      dueTo,
		Limit:      query.Limit,
		Offset:     query.Offset,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	inv, items, err := s.invoiceSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"invoice": inv, "items": items}})
}

type invoicePenaltyRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

func (s *Server) AddInvoicePenalty(c *gin.Context) {
	var req invoicePenaltyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.invoiceSvc.AddPenalty(c.Request.Context(), invoicedomain.AddPenaltyRequest{
		InvoiceID: strings.TrimSpace(c.Param("id")),
		Amount:    req.Amount,
		Reason:    strings.TrimSpace(req.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type invoiceReasonRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) WaiveInvoice(c *gin.Context) {
	var req invoiceReasonRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.invoiceSvc.Waive(c.Request.Context(), invoicedomain.WaiveRequest{
		InvoiceID: strings.TrimSpace(c.Param("id")),
		Reason:    strings.TrimSpace(req.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CancelInvoice(c *gin.Context) {
	var req invoiceReasonRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.invoiceSvc.Cancel(c.Request.Context(), invoicedomain.CancelRequest{
		InvoiceID: strings.TrimSpace(c.Param("id")),
		Reason:    strings.TrimSpace(req.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

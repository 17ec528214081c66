package server

import (
	"net/http"
	"strings"

	paymentdomain "github.com/baladiya/wastebilling/internal/payment/domain"
	"github.com/gin-gonic/gin"
)

type recordPaymentRequest struct {
	CustomerID string `json:"customer_id"`
	Amount     int64  `json:"amount"`
	Method     string `json:"method"`
	Reference  string `json:"reference"`
	Notes      string `json:"notes"`
	ReceivedAt string `json:"received_at"`
	ReceivedBy string `json:"received_by"`
}

func (s *Server) RecordPayment(c *gin.Context) {
	var req recordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	receivedAt, err := parseOptionalTime("received_at", req.ReceivedAt, false)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.paymentSvc.RecordPayment(c.Request.Context(), paymentdomain.RecordPaymentRequest{
		CustomerID: strings.TrimSpace(req.CustomerID),
		Amount:     req.Amount,
		Method:     strings.TrimSpace(req.Method),
		Reference:  strings.TrimSpace(req.Reference),
		Notes:      strings.TrimSpace(req.Notes),
		ReceivedAt: receivedAt,
		ReceivedBy: strings.TrimSpace(req.ReceivedBy),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) AllocatePayment(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	resp, err := s.paymentSvc.Allocate(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListPayments(c *gin.Context) {
	var query struct {
		CustomerID   string `form:"customer_id"`
		ReceivedFrom string `form:"received_from"`
		ReceivedTo   string `form:"received_to"`
		Limit        int    `form:"limit"`
		Offset       int    `form:"offset"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	receivedFrom, err := parseOptionalTime("received_from", query.ReceivedFrom, false)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	receivedTo, err := parseOptionalTime("received_to", query.ReceivedTo, true)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.paymentSvc.List(c.Request.Context(), paymentdomain.ListPaymentRequest{
		CustomerID:   strings.TrimSpace(query.CustomerID),
		ReceivedFrom: receivedFrom,
		ReceivedTo:   receivedTo,
		Limit:        query.Limit,
		Offset:       query.Offset,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetPaymentByID(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	payment, allocations, err := s.paymentSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"payment": payment, "allocations": allocations}})
}

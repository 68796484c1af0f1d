package http_api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/core-coin/coinstore/internal/models"
)

// TicketMessageRequest is the body of a ticket reply
type TicketMessageRequest struct {
	Message string `json:"message" binding:"required"`
}

// TicketStatusRequest is the body of an admin status change
type TicketStatusRequest struct {
	Status models.TicketStatus `json:"status" binding:"required"`
}

// TicketPriorityRequest is the body of an admin priority change
type TicketPriorityRequest struct {
	Priority models.TicketPriority `json:"priority" binding:"required"`
}

// TicketNotesRequest is the body of an admin notes change
type TicketNotesRequest struct {
	AdminNotes string `json:"adminNotes" binding:"required"`
}

func ticketFilter(c *gin.Context) models.TicketFilter {
	return models.TicketFilter{
		Status:   models.TicketStatus(c.Query("status")),
		Category: models.TicketCategory(c.Query("category")),
		Priority: models.TicketPriority(c.Query("priority")),
	}
}

func (s *HTTPServer) openTicket(c *gin.Context) {
	var req models.NewTicket
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	ticket, err := s.services.Support.Open(c.Request.Context(), req, actorFrom(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Support ticket created",
		"ticket":  ticket,
	})
}

func (s *HTTPServer) myTickets(c *gin.Context) {
	tickets, err := s.services.Support.ListForUser(c.Request.Context(), actorFrom(c).UserID, ticketFilter(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tickets)
}

func (s *HTTPServer) getTicket(c *gin.Context) {
	ticket, err := s.services.Support.Get(c.Request.Context(), c.Param("id"), actorFrom(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

func (s *HTTPServer) replyTicket(c *gin.Context) {
	var req TicketMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	ticket, err := s.services.Support.Reply(c.Request.Context(), c.Param("id"), actorFrom(c), req.Message)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "ticket": ticket})
}

func (s *HTTPServer) closeTicket(c *gin.Context) {
	ticket, err := s.services.Support.Close(c.Request.Context(), c.Param("id"), actorFrom(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Ticket closed", "ticket": ticket})
}

func (s *HTTPServer) allTickets(c *gin.Context) {
	tickets, err := s.services.Support.ListAll(c.Request.Context(), ticketFilter(c), actorFrom(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tickets)
}

func (s *HTTPServer) ticketStatistics(c *gin.Context) {
	stats, err := s.services.Support.Statistics(c.Request.Context(), actorFrom(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *HTTPServer) setTicketStatus(c *gin.Context) {
	var req TicketStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	s.ticketUpdated(c)(s.services.Support.SetStatus(c.Request.Context(), c.Param("id"), req.Status, actorFrom(c)))
}

func (s *HTTPServer) setTicketPriority(c *gin.Context) {
	var req TicketPriorityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	s.ticketUpdated(c)(s.services.Support.SetPriority(c.Request.Context(), c.Param("id"), req.Priority, actorFrom(c)))
}

func (s *HTTPServer) assignTicket(c *gin.Context) {
	s.ticketUpdated(c)(s.services.Support.Assign(c.Request.Context(), c.Param("id"), actorFrom(c)))
}

func (s *HTTPServer) setTicketNotes(c *gin.Context) {
	var req TicketNotesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	s.ticketUpdated(c)(s.services.Support.SetNotes(c.Request.Context(), c.Param("id"), req.AdminNotes, actorFrom(c)))
}

// ticketUpdated writes the response shared by the admin ticket edits.
func (s *HTTPServer) ticketUpdated(c *gin.Context) func(*models.SupportTicket, error) {
	return func(ticket *models.SupportTicket, err error) {
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Ticket updated", "ticket": ticket})
	}
}

package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"librarycatalog/internal/models"
	"librarycatalog/internal/services"
)

type CatalogHandler struct {
	catalog services.CatalogService
	lending services.LendingService
}

func RegisterRoutes(r *gin.Engine, catalog services.CatalogService, lending services.LendingService) {
	h := &CatalogHandler{catalog: catalog, lending: lending}

	r.GET("/sections", h.listSections)
	r.POST("/sections", h.createSection)
	r.GET("/sections/:id", h.getSection)
	r.PUT("/sections/:id", h.updateSection)
	r.DELETE("/sections/:id", h.deleteSection)

	r.GET("/books", h.listBooks)
	r.POST("/books", h.createBook)
	r.GET("/books/:id", h.getBook)
	r.PUT("/books/:id", h.updateBook)
	r.DELETE("/books/:id", h.deleteBook)

	r.POST("/books/:id/borrow", h.borrowBook)
	r.GET("/books/:id/records", h.listBookRecords)

	r.GET("/records", h.listRecords)
	r.GET("/records/:id", h.getRecord)
	r.DELETE("/records/:id", h.deleteRecord)
	r.POST("/records/:id/return", h.returnBook)
}

// writeError maps service errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	var vErr *services.ValidationError
	switch {
	case errors.As(err, &vErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": vErr.Error()})
	case errors.Is(err, services.ErrSectionNotFound),
		errors.Is(err, services.ErrBookNotFound),
		errors.Is(err, services.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrBookNotAvailable),
		errors.Is(err, services.ErrRecordAlreadyReturned),
		errors.Is(err, services.ErrSectionNotEmpty),
		errors.Is(err, services.ErrBookHasRecords):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

// ─── Response Views ───────────────────────────────────────────────────────────

// Views are composed here explicitly; entities hold ids only, so no
// serialization cycles are possible.

type bookView struct {
	models.Book
	Section *models.Section `json:"section,omitempty"`
}

func (h *CatalogHandler) bookWithSection(book *models.Book) bookView {
	view := bookView{Book: *book}
	if section, err := h.catalog.GetSection(book.SectionID); err == nil {
		view.Section = section
	}
	return view
}

type recordView struct {
	models.BorrowRecord
	// Overdue is derived at the boundary: an active record past its due
	// date. It is never stored and never transitions the status field.
	Overdue bool `json:"overdue"`
}

func newRecordView(record models.BorrowRecord) recordView {
	return recordView{
		BorrowRecord: record,
		Overdue:      record.Active() && time.Now().UTC().After(record.DueDate),
	}
}

func newRecordViews(records []models.BorrowRecord) []recordView {
	views := make([]recordView, 0, len(records))
	for _, record := range records {
		views = append(views, newRecordView(record))
	}
	return views
}

// ─── Sections ─────────────────────────────────────────────────────────────────

type sectionRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

func (h *CatalogHandler) listSections(c *gin.Context) {
	sections, err := h.catalog.ListSections()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sections)
}

func (h *CatalogHandler) createSection(c *gin.Context) {
	var req sectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	section, err := h.catalog.CreateSection(req.Name, req.Description)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, section)
}

func (h *CatalogHandler) getSection(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	section, err := h.catalog.GetSection(id)
	if err != nil {
		writeError(c, err)
		return
	}
	books, err := h.catalog.ListBooksBySection(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":          section.ID,
		"name":        section.Name,
		"description": section.Description,
		"books":       books,
	})
}

func (h *CatalogHandler) updateSection(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req sectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	section, err := h.catalog.UpdateSection(id, req.Name, req.Description)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, section)
}

func (h *CatalogHandler) deleteSection(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.catalog.DeleteSection(id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ─── Books ────────────────────────────────────────────────────────────────────

type bookRequest struct {
	Title     string `json:"title" binding:"required"`
	Author    string `json:"author" binding:"required"`
	ISBN      string `json:"isbn" binding:"required"`
	Category  string `json:"category"`
	SectionID string `json:"section_id" binding:"required,uuid"`
	RackID    string `json:"rack_id"`
}

func (r *bookRequest) toInput() (services.BookInput, error) {
	sectionID, err := uuid.Parse(r.SectionID)
	if err != nil {
		return services.BookInput{}, err
	}
	return services.BookInput{
		Title:     r.Title,
		Author:    r.Author,
		ISBN:      r.ISBN,
		Category:  r.Category,
		SectionID: sectionID,
		RackID:    r.RackID,
	}, nil
}

func (h *CatalogHandler) listBooks(c *gin.Context) {
	books, err := h.catalog.ListBooks()
	if err != nil {
		writeError(c, err)
		return
	}
	views := make([]bookView, 0, len(books))
	for i := range books {
		views = append(views, h.bookWithSection(&books[i]))
	}
	c.JSON(http.StatusOK, views)
}

func (h *CatalogHandler) createBook(c *gin.Context) {
	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	input, err := req.toInput()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid section id"})
		return
	}
	book, err := h.catalog.CreateBook(input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, book)
}

func (h *CatalogHandler) getBook(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	book, err := h.catalog.GetBook(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.bookWithSection(book))
}

func (h *CatalogHandler) updateBook(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	input, err := req.toInput()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid section id"})
		return
	}
	book, err := h.catalog.UpdateBook(id, input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (h *CatalogHandler) deleteBook(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.catalog.DeleteBook(id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ─── Lending ──────────────────────────────────────────────────────────────────

type borrowRequest struct {
	BorrowerName  string `json:"borrower_name" binding:"required"`
	BorrowerEmail string `json:"borrower_email" binding:"required,email"`
}

func (h *CatalogHandler) borrowBook(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req borrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	record, err := h.lending.BorrowBook(id, req.BorrowerName, req.BorrowerEmail)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newRecordView(*record))
}

func (h *CatalogHandler) returnBook(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.lending.ReturnBook(id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *CatalogHandler) listRecords(c *gin.Context) {
	records, err := h.lending.ListRecords()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRecordViews(records))
}

func (h *CatalogHandler) getRecord(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	record, err := h.lending.GetRecord(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRecordView(*record))
}

func (h *CatalogHandler) listBookRecords(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	records, err := h.lending.ListRecordsForBook(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRecordViews(records))
}

func (h *CatalogHandler) deleteRecord(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.lending.DeleteRecord(id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

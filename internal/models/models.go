package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RecordStatus string

const (
	RecordStatusBorrowed RecordStatus = "Borrowed"
	RecordStatusReturned RecordStatus = "Returned"
)

// Section groups books on the shelf floor. Books reference their section by
// id only; the section side carries no navigation slice so JSON stays
// cycle-free.
type Section struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"size:100;not null" json:"name"`
	Description string    `gorm:"size:200" json:"description,omitempty"`
}

func (s *Section) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

type Book struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Title     string    `gorm:"size:200;not null" json:"title"`
	Author    string    `gorm:"size:100;not null" json:"author"`
	ISBN      string    `gorm:"size:50;not null" json:"isbn"`
	Category  string    `gorm:"size:50" json:"category,omitempty"`
	SectionID uuid.UUID `gorm:"type:uuid;not null;index" json:"section_id"`
	Section   Section   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"-"`
	RackID    string    `gorm:"size:20" json:"rack_id"`
	// Available is mutated only by the lending service; false iff an
	// active BorrowRecord references this book.
	Available bool      `gorm:"not null;index" json:"available"`
	DateAdded time.Time `gorm:"not null" json:"date_added"`
}

func (b *Book) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

type BorrowRecord struct {
	ID            uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	BookID        uuid.UUID    `gorm:"type:uuid;not null;index" json:"book_id"`
	Book          Book         `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"-"`
	BorrowerName  string       `gorm:"size:100;not null" json:"borrower_name"`
	BorrowerEmail string       `gorm:"size:100;not null" json:"borrower_email"`
	BorrowDate    time.Time    `gorm:"not null" json:"borrow_date"`
	DueDate       time.Time    `gorm:"not null" json:"due_date"`
	ReturnDate    *time.Time   `json:"return_date"`
	Status        RecordStatus `gorm:"size:20;not null" json:"status"`
}

func (r *BorrowRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Active reports whether the record represents an outstanding loan.
func (r *BorrowRecord) Active() bool {
	return r.ReturnDate == nil
}

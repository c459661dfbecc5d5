package services

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"librarycatalog/internal/models"
	"librarycatalog/internal/repositories"
)

// CatalogService covers section and book data entry. It never touches
// Book.Available beyond the initial value on create; lending state belongs
// to LendingService.
type CatalogService interface {
	CreateSection(name, description string) (*models.Section, error)
	ListSections() ([]models.Section, error)
	GetSection(id uuid.UUID) (*models.Section, error)
	UpdateSection(id uuid.UUID, name, description string) (*models.Section, error)
	DeleteSection(id uuid.UUID) error

	CreateBook(input BookInput) (*models.Book, error)
	ListBooks() ([]models.Book, error)
	ListBooksBySection(sectionID uuid.UUID) ([]models.Book, error)
	GetBook(id uuid.UUID) (*models.Book, error)
	UpdateBook(id uuid.UUID, input BookInput) (*models.Book, error)
	DeleteBook(id uuid.UUID) error
}

// BookInput carries the caller-editable book fields.
type BookInput struct {
	Title     string
	Author    string
	ISBN      string
	Category  string
	SectionID uuid.UUID
	RackID    string
}

func (in *BookInput) validate() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Author = strings.TrimSpace(in.Author)
	in.ISBN = strings.TrimSpace(in.ISBN)
	if err := requireString("title", in.Title, 200); err != nil {
		return err
	}
	if err := requireString("author", in.Author, 100); err != nil {
		return err
	}
	if err := requireString("isbn", in.ISBN, 50); err != nil {
		return err
	}
	if err := optionalString("category", in.Category, 50); err != nil {
		return err
	}
	if err := optionalString("rack_id", in.RackID, 20); err != nil {
		return err
	}
	if in.SectionID == uuid.Nil {
		return &ValidationError{Field: "section_id", Reason: "must not be empty"}
	}
	return nil
}

type catalogService struct {
	db          *gorm.DB
	sectionRepo repositories.SectionRepository
	bookRepo    repositories.BookRepository
	recordRepo  repositories.BorrowRecordRepository
}

func NewCatalogService(
	db *gorm.DB,
	sectionRepo repositories.SectionRepository,
	bookRepo repositories.BookRepository,
	recordRepo repositories.BorrowRecordRepository,
) CatalogService {
	return &catalogService{
		db:          db,
		sectionRepo: sectionRepo,
		bookRepo:    bookRepo,
		recordRepo:  recordRepo,
	}
}

// ─── Sections ─────────────────────────────────────────────────────────────────

func (s *catalogService) CreateSection(name, description string) (*models.Section, error) {
	name = strings.TrimSpace(name)
	if err := requireString("name", name, 100); err != nil {
		return nil, err
	}
	if err := optionalString("description", description, 200); err != nil {
		return nil, err
	}

	section := &models.Section{Name: name, Description: description}
	if err := s.sectionRepo.Create(nil, section); err != nil {
		log.Printf("[ERROR] CreateSection: failed to create section %q: %v", name, err)
		return nil, err
	}
	log.Printf("[INFO] CreateSection: created section %q (id=%s)", name, section.ID)
	return section, nil
}

func (s *catalogService) ListSections() ([]models.Section, error) {
	return s.sectionRepo.List(nil)
}

func (s *catalogService) GetSection(id uuid.UUID) (*models.Section, error) {
	section, err := s.sectionRepo.GetByID(nil, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSectionNotFound
		}
		return nil, err
	}
	return section, nil
}

func (s *catalogService) UpdateSection(id uuid.UUID, name, description string) (*models.Section, error) {
	name = strings.TrimSpace(name)
	if err := requireString("name", name, 100); err != nil {
		return nil, err
	}
	if err := optionalString("description", description, 200); err != nil {
		return nil, err
	}

	section, err := s.GetSection(id)
	if err != nil {
		return nil, err
	}
	section.Name = name
	section.Description = description
	if err := s.sectionRepo.Update(nil, section); err != nil {
		log.Printf("[ERROR] UpdateSection: failed to update section %s: %v", id, err)
		return nil, err
	}
	return section, nil
}

// DeleteSection refuses to delete a section that still owns books.
func (s *catalogService) DeleteSection(id uuid.UUID) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.sectionRepo.GetByID(tx, id); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSectionNotFound
			}
			return err
		}
		count, err := s.bookRepo.CountBySection(tx, id)
		if err != nil {
			return err
		}
		if count > 0 {
			log.Printf("[WARN] DeleteSection: section %s still owns %d book(s)", id, count)
			return ErrSectionNotEmpty
		}
		return s.sectionRepo.Delete(tx, id)
	})
}

// ─── Books ────────────────────────────────────────────────────────────────────

func (s *catalogService) CreateBook(input BookInput) (*models.Book, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	if _, err := s.sectionRepo.GetByID(nil, input.SectionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSectionNotFound
		}
		return nil, err
	}

	book := &models.Book{
		Title:     input.Title,
		Author:    input.Author,
		ISBN:      input.ISBN,
		Category:  input.Category,
		SectionID: input.SectionID,
		RackID:    input.RackID,
		Available: true,
		DateAdded: time.Now().UTC(),
	}
	if err := s.bookRepo.Create(nil, book); err != nil {
		log.Printf("[ERROR] CreateBook: failed to create book %q: %v", input.Title, err)
		return nil, err
	}
	log.Printf("[INFO] CreateBook: created book %q (id=%s) in section %s", book.Title, book.ID, book.SectionID)
	return book, nil
}

func (s *catalogService) ListBooks() ([]models.Book, error) {
	return s.bookRepo.List(nil)
}

func (s *catalogService) ListBooksBySection(sectionID uuid.UUID) ([]models.Book, error) {
	if _, err := s.sectionRepo.GetByID(nil, sectionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSectionNotFound
		}
		return nil, err
	}
	return s.bookRepo.ListBySection(nil, sectionID)
}

func (s *catalogService) GetBook(id uuid.UUID) (*models.Book, error) {
	book, err := s.bookRepo.GetByID(nil, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, err
	}
	return book, nil
}

func (s *catalogService) UpdateBook(id uuid.UUID, input BookInput) (*models.Book, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	book, err := s.GetBook(id)
	if err != nil {
		return nil, err
	}
	if _, err := s.sectionRepo.GetByID(nil, input.SectionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSectionNotFound
		}
		return nil, err
	}

	book.Title = input.Title
	book.Author = input.Author
	book.ISBN = input.ISBN
	book.Category = input.Category
	book.SectionID = input.SectionID
	book.RackID = input.RackID
	if err := s.bookRepo.Update(nil, book); err != nil {
		log.Printf("[ERROR] UpdateBook: failed to update book %s: %v", id, err)
		return nil, err
	}
	return book, nil
}

// DeleteBook refuses to delete a book that any borrow record references,
// active or historical, keeping the lending audit trail intact.
func (s *catalogService) DeleteBook(id uuid.UUID) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.bookRepo.GetByID(tx, id); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookNotFound
			}
			return err
		}
		exists, err := s.recordRepo.ExistsForBook(tx, id)
		if err != nil {
			return err
		}
		if exists {
			log.Printf("[WARN] DeleteBook: book %s has borrow records, refusing delete", id)
			return ErrBookHasRecords
		}
		return s.bookRepo.Delete(tx, id)
	})
}

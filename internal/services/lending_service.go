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

const (
	// LoanPeriodDays is the fixed loan period: due date = borrow date + 14 days.
	LoanPeriodDays = 14

	// BorrowerFieldMaxLen bounds borrower name and email.
	BorrowerFieldMaxLen = 100
)

// LendingService is the borrow/return state machine. It is the only code
// path that mutates Book.Available, and every mutation pairs the
// availability flip with the matching ledger write inside one transaction.
type LendingService interface {
	BorrowBook(bookID uuid.UUID, borrowerName, borrowerEmail string) (*models.BorrowRecord, error)
	ReturnBook(recordID uuid.UUID) error
	DeleteRecord(recordID uuid.UUID) error

	GetRecord(recordID uuid.UUID) (*models.BorrowRecord, error)
	ListRecords() ([]models.BorrowRecord, error)
	ListRecordsForBook(bookID uuid.UUID) ([]models.BorrowRecord, error)
}

type lendingService struct {
	db         *gorm.DB
	bookRepo   repositories.BookRepository
	recordRepo repositories.BorrowRecordRepository
}

func NewLendingService(
	db *gorm.DB,
	bookRepo repositories.BookRepository,
	recordRepo repositories.BorrowRecordRepository,
) LendingService {
	return &lendingService{
		db:         db,
		bookRepo:   bookRepo,
		recordRepo: recordRepo,
	}
}

// BorrowBook transitions an available book to on-loan and opens a borrow
// record, all in one transaction.
//
// The guard is a conditional UPDATE (available=false WHERE available=true):
// of any number of concurrent borrows for the same book, exactly one claims
// the row and the rest see zero rows affected and fail with
// ErrBookNotAvailable. No two active records can therefore exist per book.
func (s *lendingService) BorrowBook(bookID uuid.UUID, borrowerName, borrowerEmail string) (*models.BorrowRecord, error) {
	borrowerName = strings.TrimSpace(borrowerName)
	borrowerEmail = strings.TrimSpace(borrowerEmail)
	if err := requireString("borrower_name", borrowerName, BorrowerFieldMaxLen); err != nil {
		return nil, err
	}
	if err := requireString("borrower_email", borrowerEmail, BorrowerFieldMaxLen); err != nil {
		return nil, err
	}

	var record *models.BorrowRecord

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.bookRepo.GetByID(tx, bookID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookNotFound
			}
			return err
		}

		claimed, err := s.bookRepo.ClaimAvailable(tx, bookID)
		if err != nil {
			log.Printf("[ERROR] BorrowBook: failed to claim book %s: %v", bookID, err)
			return err
		}
		if !claimed {
			log.Printf("[WARN] BorrowBook: book %s is not available", bookID)
			return ErrBookNotAvailable
		}

		now := time.Now().UTC()
		record = &models.BorrowRecord{
			BookID:        bookID,
			BorrowerName:  borrowerName,
			BorrowerEmail: borrowerEmail,
			BorrowDate:    now,
			DueDate:       now.AddDate(0, 0, LoanPeriodDays),
			Status:        models.RecordStatusBorrowed,
		}
		if err := s.recordRepo.Create(tx, record); err != nil {
			log.Printf("[ERROR] BorrowBook: failed to create borrow record for book %s: %v", bookID, err)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[INFO] BorrowBook: record %s created for book %s, due %s", record.ID, bookID, record.DueDate.Format("2006-01-02"))
	return record, nil
}

// ReturnBook closes an active borrow record and releases its book, in one
// transaction. Repeated returns of the same record fail with
// ErrRecordAlreadyReturned and mutate nothing.
func (s *lendingService) ReturnBook(recordID uuid.UUID) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		record, err := s.recordRepo.GetByID(tx, recordID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRecordNotFound
			}
			return err
		}
		if !record.Active() {
			log.Printf("[WARN] ReturnBook: record %s already returned at %s", recordID, record.ReturnDate)
			return ErrRecordAlreadyReturned
		}

		closed, err := s.recordRepo.MarkReturned(tx, recordID, time.Now().UTC())
		if err != nil {
			log.Printf("[ERROR] ReturnBook: failed to close record %s: %v", recordID, err)
			return err
		}
		if !closed {
			// A concurrent return won between our read and the update.
			return ErrRecordAlreadyReturned
		}

		if err := s.bookRepo.SetAvailable(tx, record.BookID, true); err != nil {
			log.Printf("[ERROR] ReturnBook: failed to release book %s: %v", record.BookID, err)
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Printf("[INFO] ReturnBook: record %s closed", recordID)
	return nil
}

// DeleteRecord is an administrative correction, not part of the normal
// workflow. Deleting an active record first releases the book, so a book is
// never left on loan with no record pointing at it.
func (s *lendingService) DeleteRecord(recordID uuid.UUID) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		record, err := s.recordRepo.GetByID(tx, recordID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRecordNotFound
			}
			return err
		}

		if record.Active() {
			log.Printf("[WARN] DeleteRecord: record %s is still active, releasing book %s", recordID, record.BookID)
			if err := s.bookRepo.SetAvailable(tx, record.BookID, true); err != nil {
				return err
			}
		}
		return s.recordRepo.Delete(tx, recordID)
	})
	if err != nil {
		return err
	}

	log.Printf("[INFO] DeleteRecord: record %s deleted", recordID)
	return nil
}

// ─── Queries ──────────────────────────────────────────────────────────────────

func (s *lendingService) GetRecord(recordID uuid.UUID) (*models.BorrowRecord, error) {
	record, err := s.recordRepo.GetByID(nil, recordID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return record, nil
}

func (s *lendingService) ListRecords() ([]models.BorrowRecord, error) {
	return s.recordRepo.List(nil)
}

func (s *lendingService) ListRecordsForBook(bookID uuid.UUID) ([]models.BorrowRecord, error) {
	if _, err := s.bookRepo.GetByID(nil, bookID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, err
	}
	return s.recordRepo.ListByBook(nil, bookID)
}

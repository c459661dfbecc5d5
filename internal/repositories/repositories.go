package repositories

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"librarycatalog/internal/models"
)

// All methods take an optional *gorm.DB so services can pass a transaction
// handle through; nil falls back to the repository's own connection.

type SectionRepository interface {
	Create(db *gorm.DB, section *models.Section) error
	List(db *gorm.DB) ([]models.Section, error)
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Section, error)
	Update(db *gorm.DB, section *models.Section) error
	Delete(db *gorm.DB, id uuid.UUID) error
}

type BookRepository interface {
	Create(db *gorm.DB, book *models.Book) error
	List(db *gorm.DB) ([]models.Book, error)
	ListBySection(db *gorm.DB, sectionID uuid.UUID) ([]models.Book, error)
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Book, error)
	Update(db *gorm.DB, book *models.Book) error
	Delete(db *gorm.DB, id uuid.UUID) error
	CountBySection(db *gorm.DB, sectionID uuid.UUID) (int64, error)

	// ClaimAvailable flips available to false only if it is currently
	// true, reporting whether this caller won the claim. The conditional
	// UPDATE is the serialization point for concurrent borrows.
	ClaimAvailable(db *gorm.DB, id uuid.UUID) (bool, error)
	SetAvailable(db *gorm.DB, id uuid.UUID, available bool) error
}

type BorrowRecordRepository interface {
	Create(db *gorm.DB, record *models.BorrowRecord) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.BorrowRecord, error)
	List(db *gorm.DB) ([]models.BorrowRecord, error)
	ListByBook(db *gorm.DB, bookID uuid.UUID) ([]models.BorrowRecord, error)
	// MarkReturned closes the record only if it is still open, reporting
	// whether this caller performed the close.
	MarkReturned(db *gorm.DB, id uuid.UUID, returnedAt time.Time) (bool, error)
	Delete(db *gorm.DB, id uuid.UUID) error
	ExistsForBook(db *gorm.DB, bookID uuid.UUID) (bool, error)
	ExistsActiveForBook(db *gorm.DB, bookID uuid.UUID) (bool, error)
}

// concrete implementations

type sectionRepository struct {
	db *gorm.DB
}

func NewSectionRepository(db *gorm.DB) SectionRepository {
	return &sectionRepository{db: db}
}

func (r *sectionRepository) Create(db *gorm.DB, section *models.Section) error {
	if db == nil {
		db = r.db
	}
	return db.Create(section).Error
}

func (r *sectionRepository) List(db *gorm.DB) ([]models.Section, error) {
	if db == nil {
		db = r.db
	}
	var sections []models.Section
	if err := db.Order("name").Find(&sections).Error; err != nil {
		return nil, err
	}
	return sections, nil
}

func (r *sectionRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Section, error) {
	if db == nil {
		db = r.db
	}
	var section models.Section
	if err := db.First(&section, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &section, nil
}

func (r *sectionRepository) Update(db *gorm.DB, section *models.Section) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Section{}).
		Where("id = ?", section.ID).
		Updates(map[string]interface{}{
			"name":        section.Name,
			"description": section.Description,
		}).Error
}

func (r *sectionRepository) Delete(db *gorm.DB, id uuid.UUID) error {
	if db == nil {
		db = r.db
	}
	return db.Delete(&models.Section{}, "id = ?", id).Error
}

type bookRepository struct {
	db *gorm.DB
}

func NewBookRepository(db *gorm.DB) BookRepository {
	return &bookRepository{db: db}
}

func (r *bookRepository) Create(db *gorm.DB, book *models.Book) error {
	if db == nil {
		db = r.db
	}
	return db.Create(book).Error
}

func (r *bookRepository) List(db *gorm.DB) ([]models.Book, error) {
	if db == nil {
		db = r.db
	}
	var books []models.Book
	if err := db.Order("title").Find(&books).Error; err != nil {
		return nil, err
	}
	return books, nil
}

func (r *bookRepository) ListBySection(db *gorm.DB, sectionID uuid.UUID) ([]models.Book, error) {
	if db == nil {
		db = r.db
	}
	var books []models.Book
	if err := db.Where("section_id = ?", sectionID).Order("title").Find(&books).Error; err != nil {
		return nil, err
	}
	return books, nil
}

func (r *bookRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Book, error) {
	if db == nil {
		db = r.db
	}
	var book models.Book
	if err := db.First(&book, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

func (r *bookRepository) Update(db *gorm.DB, book *models.Book) error {
	if db == nil {
		db = r.db
	}
	// Availability is deliberately excluded; only the lending service may
	// change it, via ClaimAvailable / SetAvailable.
	return db.Model(&models.Book{}).
		Where("id = ?", book.ID).
		Updates(map[string]interface{}{
			"title":      book.Title,
			"author":     book.Author,
			"isbn":       book.ISBN,
			"category":   book.Category,
			"section_id": book.SectionID,
			"rack_id":    book.RackID,
		}).Error
}

func (r *bookRepository) Delete(db *gorm.DB, id uuid.UUID) error {
	if db == nil {
		db = r.db
	}
	return db.Delete(&models.Book{}, "id = ?", id).Error
}

func (r *bookRepository) CountBySection(db *gorm.DB, sectionID uuid.UUID) (int64, error) {
	if db == nil {
		db = r.db
	}
	var count int64
	err := db.Model(&models.Book{}).
		Where("section_id = ?", sectionID).
		Count(&count).Error
	return count, err
}

func (r *bookRepository) ClaimAvailable(db *gorm.DB, id uuid.UUID) (bool, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Book{}).
		Where("id = ? AND available = ?", id, true).
		Update("available", false)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *bookRepository) SetAvailable(db *gorm.DB, id uuid.UUID, available bool) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Book{}).
		Where("id = ?", id).
		Update("available", available).
		Error
}

type borrowRecordRepository struct {
	db *gorm.DB
}

func NewBorrowRecordRepository(db *gorm.DB) BorrowRecordRepository {
	return &borrowRecordRepository{db: db}
}

func (r *borrowRecordRepository) Create(db *gorm.DB, record *models.BorrowRecord) error {
	if db == nil {
		db = r.db
	}
	return db.Create(record).Error
}

func (r *borrowRecordRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.BorrowRecord, error) {
	if db == nil {
		db = r.db
	}
	var record models.BorrowRecord
	if err := db.First(&record, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *borrowRecordRepository) List(db *gorm.DB) ([]models.BorrowRecord, error) {
	if db == nil {
		db = r.db
	}
	var records []models.BorrowRecord
	if err := db.Order("borrow_date DESC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *borrowRecordRepository) ListByBook(db *gorm.DB, bookID uuid.UUID) ([]models.BorrowRecord, error) {
	if db == nil {
		db = r.db
	}
	var records []models.BorrowRecord
	if err := db.Where("book_id = ?", bookID).
		Order("borrow_date DESC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *borrowRecordRepository) MarkReturned(db *gorm.DB, id uuid.UUID, returnedAt time.Time) (bool, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.BorrowRecord{}).
		Where("id = ? AND return_date IS NULL", id).
		Updates(map[string]interface{}{
			"return_date": returnedAt,
			"status":      models.RecordStatusReturned,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *borrowRecordRepository) Delete(db *gorm.DB, id uuid.UUID) error {
	if db == nil {
		db = r.db
	}
	return db.Delete(&models.BorrowRecord{}, "id = ?", id).Error
}

func (r *borrowRecordRepository) ExistsForBook(db *gorm.DB, bookID uuid.UUID) (bool, error) {
	if db == nil {
		db = r.db
	}
	var count int64
	err := db.Model(&models.BorrowRecord{}).
		Where("book_id = ?", bookID).
		Count(&count).Error
	return count > 0, err
}

func (r *borrowRecordRepository) ExistsActiveForBook(db *gorm.DB, bookID uuid.UUID) (bool, error) {
	if db == nil {
		db = r.db
	}
	var count int64
	err := db.Model(&models.BorrowRecord{}).
		Where("book_id = ? AND return_date IS NULL", bookID).
		Count(&count).Error
	return count > 0, err
}

package services

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"librarycatalog/internal/models"
	"librarycatalog/internal/repositories"
)

// testEnv wires the services over a temp-dir SQLite database. The
// _txlock=immediate DSN parameter makes write transactions take the write
// lock up front so concurrent borrow attempts queue instead of deadlocking.
type testEnv struct {
	db      *gorm.DB
	catalog CatalogService
	lending LendingService
	records repositories.BorrowRecordRepository
	books   repositories.BookRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	path := filepath.Join(t.TempDir(), "library.db")
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1&_txlock=immediate", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&models.Section{}, &models.Book{}, &models.BorrowRecord{}))

	sectionRepo := repositories.NewSectionRepository(db)
	bookRepo := repositories.NewBookRepository(db)
	recordRepo := repositories.NewBorrowRecordRepository(db)

	return &testEnv{
		db:      db,
		catalog: NewCatalogService(db, sectionRepo, bookRepo, recordRepo),
		lending: NewLendingService(db, bookRepo, recordRepo),
		records: recordRepo,
		books:   bookRepo,
	}
}

func (e *testEnv) createBook(t *testing.T) *models.Book {
	t.Helper()
	section, err := e.catalog.CreateSection("Fiction", "Fiction books collection")
	require.NoError(t, err)
	book, err := e.catalog.CreateBook(BookInput{
		Title:     "The Great Gatsby",
		Author:    "F. Scott Fitzgerald",
		ISBN:      "978-0743273565",
		Category:  "Classic",
		SectionID: section.ID,
		RackID:    "A1",
	})
	require.NoError(t, err)
	return book
}

// assertAvailabilityInvariant checks that the book is unavailable iff an
// active record references it.
func (e *testEnv) assertAvailabilityInvariant(t *testing.T, bookID uuid.UUID) {
	t.Helper()
	book, err := e.books.GetByID(nil, bookID)
	require.NoError(t, err)
	active, err := e.records.ExistsActiveForBook(nil, bookID)
	require.NoError(t, err)
	assert.Equal(t, !active, book.Available, "available flag out of sync with active records")
}

func TestBorrowBookCreatesActiveRecord(t *testing.T) {
	env := newTestEnv(t)
	book := env.createBook(t)

	record, err := env.lending.BorrowBook(book.ID, "Alice", "a@x.com")
	require.NoError(t, err)

	assert.Equal(t, models.RecordStatusBorrowed, record.Status)
	assert.Equal(t, "Alice", record.BorrowerName)
	assert.Equal(t, "a@x.com", record.BorrowerEmail)
	assert.Nil(t, record.ReturnDate)
	assert.True(t, record.DueDate.Equal(record.BorrowDate.AddDate(0, 0, LoanPeriodDays)),
		"due date must be borrow date + %d days", LoanPeriodDays)

	updated, err := env.books.GetByID(nil, book.ID)
	require.NoError(t, err)
	assert.False(t, updated.Available)

	env.assertAvailabilityInvariant(t, book.ID)
}

func TestBorrowBookNotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.lending.BorrowBook(uuid.New(), "Alice", "a@x.com")
	assert.ErrorIs(t, err, ErrBookNotFound)
}

func TestBorrowBookValidation(t *testing.T) {
	env := newTestEnv(t)
	book := env.createBook(t)

	cases := []struct {
		name  string
		field string
		bName string
		email string
	}{
		{"empty name", "borrower_name", "", "a@x.com"},
		{"blank name", "borrower_name", "   ", "a@x.com"},
		{"empty email", "borrower_email", "Alice", ""},
		{"name too long", "borrower_name", strings.Repeat("a", 101), "a@x.com"},
		{"email too long", "borrower_email", "Alice", strings.Repeat("a", 101)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.lending.BorrowBook(book.ID, tc.bName, tc.email)
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tc.field, vErr.Field)
		})
	}

	// Rejected borrows must not have touched the book or the ledger.
	updated, err := env.books.GetByID(nil, book.ID)
	require.NoError(t, err)
	assert.True(t, updated.Available)
	records, err := env.records.ListByBook(nil, book.ID)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestBorrowBookConflictWhenOnLoan(t *testing.T) {
	env := newTestEnv(t)
	book := env.createBook(t)

	first, err := env.lending.BorrowBook(book.ID, "Alice", "a@x.com")
	require.NoError(t, err)

	_, err = env.lending.BorrowBook(book.ID, "Bob", "b@x.com")
	assert.ErrorIs(t, err, ErrBookNotAvailable)

	// The failed borrow mutated nothing: still one record, same borrower.
	records, err := env.records.ListByBook(nil, book.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, first.ID, records[0].ID)
	env.assertAvailabilityInvariant(t, book.ID)
}

func TestReturnBook(t *testing.T) {
	env := newTestEnv(t)
	book := env.createBook(t)

	record, err := env.lending.BorrowBook(book.ID, "Alice", "a@x.com")
	require.NoError(t, err)

	require.NoError(t, env.lending.ReturnBook(record.ID))

	closed, err := env.lending.GetRecord(record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecordStatusReturned, closed.Status)
	require.NotNil(t, closed.ReturnDate)
	assert.WithinDuration(t, time.Now().UTC(), *closed.ReturnDate, 5*time.Second)

	updated, err := env.books.GetByID(nil, book.ID)
	require.NoError(t, err)
	assert.True(t, updated.Available)
	env.assertAvailabilityInvariant(t, book.ID)
}

func TestReturnBookTwiceConflict(t *testing.T) {
	env := newTestEnv(t)
	book := env.createBook(t)

	record, err := env.lending.BorrowBook(book.ID, "Alice", "a@x.com")
	require.NoError(t, err)
	require.NoError(t, env.lending.ReturnBook(record.ID))

	closed, err := env.lending.GetRecord(record.ID)
	require.NoError(t, err)

	// Idempotent retries are rejected, not silently accepted.
	err = env.lending.ReturnBook(record.ID)
	assert.ErrorIs(t, err, ErrRecordAlreadyReturned)

	after, err := env.lending.GetRecord(record.ID)
	require.NoError(t, err)
	assert.True(t, closed.ReturnDate.Equal(*after.ReturnDate), "return date must not move on retry")
	env.assertAvailabilityInvariant(t, book.ID)
}

func TestReturnBookNotFound(t *testing.T) {
	env := newTestEnv(t)

	err := env.lending.ReturnBook(uuid.New())
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestDeleteRecordRepairsActiveLoan(t *testing.T) {
	env := newTestEnv(t)
	book := env.createBook(t)

	record, err := env.lending.BorrowBook(book.ID, "Alice", "a@x.com")
	require.NoError(t, err)

	require.NoError(t, env.lending.DeleteRecord(record.ID))

	_, err = env.lending.GetRecord(record.ID)
	assert.ErrorIs(t, err, ErrRecordNotFound)

	// The book must not be stranded on loan with no record.
	updated, err := env.books.GetByID(nil, book.ID)
	require.NoError(t, err)
	assert.True(t, updated.Available)
	env.assertAvailabilityInvariant(t, book.ID)
}

func TestDeleteRecordClosedLeavesBookAlone(t *testing.T) {
	env := newTestEnv(t)
	book := env.createBook(t)

	first, err := env.lending.BorrowBook(book.ID, "Alice", "a@x.com")
	require.NoError(t, err)
	require.NoError(t, env.lending.ReturnBook(first.ID))

	// Book is back on loan to someone else; deleting the closed record
	// must not release it.
	second, err := env.lending.BorrowBook(book.ID, "Bob", "b@x.com")
	require.NoError(t, err)

	require.NoError(t, env.lending.DeleteRecord(first.ID))

	updated, err := env.books.GetByID(nil, book.ID)
	require.NoError(t, err)
	assert.False(t, updated.Available)

	active, err := env.lending.GetRecord(second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecordStatusBorrowed, active.Status)
	env.assertAvailabilityInvariant(t, book.ID)
}

func TestDeleteRecordNotFound(t *testing.T) {
	env := newTestEnv(t)

	err := env.lending.DeleteRecord(uuid.New())
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestConcurrentBorrowSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	book := env.createBook(t)

	const borrowers = 8

	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make([]error, borrowers)

	for i := 0; i < borrowers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			<-start
			_, err := env.lending.BorrowBook(book.ID,
				fmt.Sprintf("Borrower %d", idx),
				fmt.Sprintf("b%d@x.com", idx))
			errs[idx] = err
		}(i)
	}

	close(start)
	wg.Wait()

	var wins, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case assert.ErrorIs(t, err, ErrBookNotAvailable):
			conflicts++
		}
	}
	assert.Equal(t, 1, wins, "exactly one concurrent borrow must succeed")
	assert.Equal(t, borrowers-1, conflicts)

	records, err := env.records.ListByBook(nil, book.ID)
	require.NoError(t, err)
	assert.Len(t, records, 1, "exactly one record may exist after the race")
	env.assertAvailabilityInvariant(t, book.ID)
}

func TestConcurrentBorrowDifferentBooksIndependent(t *testing.T) {
	env := newTestEnv(t)

	section, err := env.catalog.CreateSection("Reference", "Reference materials")
	require.NoError(t, err)

	const n = 4
	bookIDs := make([]uuid.UUID, n)
	for i := 0; i < n; i++ {
		book, err := env.catalog.CreateBook(BookInput{
			Title:     fmt.Sprintf("Volume %d", i+1),
			Author:    "Various",
			ISBN:      fmt.Sprintf("isbn-%d", i),
			SectionID: section.ID,
		})
		require.NoError(t, err)
		bookIDs[i] = book.ID
	}

	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			<-start
			_, err := env.lending.BorrowBook(bookIDs[idx], "Alice", "a@x.com")
			errs[idx] = err
		}(i)
	}
	close(start)
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "borrow of book %d should not be blocked by others", i)
		env.assertAvailabilityInvariant(t, bookIDs[i])
	}
}

package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"librarycatalog/internal/handlers"
	"librarycatalog/internal/models"
	"librarycatalog/internal/repositories"
	"librarycatalog/internal/services"
)

func main() {
	root := &cobra.Command{
		Use:   "library",
		Short: "Library catalog service",
	}
	root.AddCommand(serveCmd(), migrateCmd(), seedCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func openDatabase() (*gorm.DB, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase()
			if err != nil {
				log.Fatalf("failed to connect database: %v", err)
			}

			sectionRepo := repositories.NewSectionRepository(db)
			bookRepo := repositories.NewBookRepository(db)
			recordRepo := repositories.NewBorrowRecordRepository(db)

			catalogService := services.NewCatalogService(db, sectionRepo, bookRepo, recordRepo)
			lendingService := services.NewLendingService(db, bookRepo, recordRepo)

			router := gin.Default()
			handlers.RegisterRoutes(router, catalogService, lendingService)

			serverAddr := os.Getenv("SERVER_ADDR")
			if serverAddr == "" {
				serverAddr = ":8080"
			}

			srv := &http.Server{
				Addr:         serverAddr,
				Handler:      router,
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 15 * time.Second,
			}

			log.Printf("Starting server on %s", serverAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("server error: %v", err)
			}
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase()
			if err != nil {
				log.Fatalf("failed to connect database: %v", err)
			}
			if err := db.AutoMigrate(&models.Section{}, &models.Book{}, &models.BorrowRecord{}); err != nil {
				return err
			}
			log.Println("migrations applied")
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert the starter sections and books",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase()
			if err != nil {
				log.Fatalf("failed to connect database: %v", err)
			}

			sectionRepo := repositories.NewSectionRepository(db)
			bookRepo := repositories.NewBookRepository(db)
			recordRepo := repositories.NewBorrowRecordRepository(db)
			catalog := services.NewCatalogService(db, sectionRepo, bookRepo, recordRepo)

			return seedCatalog(catalog)
		},
	}
}

type seedBook struct {
	title    string
	author   string
	isbn     string
	category string
	section  string
	rack     string
}

var seedSections = []models.Section{
	{Name: "Fiction", Description: "Fiction books collection"},
	{Name: "Non-Fiction", Description: "Non-fiction books collection"},
	{Name: "Reference", Description: "Reference materials"},
}

var seedBooks = []seedBook{
	{"The Great Gatsby", "F. Scott Fitzgerald", "978-0743273565", "Classic", "Fiction", "A1"},
	{"1984", "George Orwell", "978-0451524935", "Dystopian", "Fiction", "A2"},
	{"Sapiens", "Yuval Noah Harari", "978-0062316097", "History", "Non-Fiction", "B1"},
}

// seedCatalog inserts the starter rows, skipping anything already present so
// the command can be re-run safely.
func seedCatalog(catalog services.CatalogService) error {
	existingSections, err := catalog.ListSections()
	if err != nil {
		return err
	}
	sectionByName := map[string]models.Section{}
	for _, s := range existingSections {
		sectionByName[s.Name] = s
	}

	for _, s := range seedSections {
		if _, ok := sectionByName[s.Name]; ok {
			continue
		}
		created, err := catalog.CreateSection(s.Name, s.Description)
		if err != nil {
			return err
		}
		sectionByName[s.Name] = *created
	}

	existingBooks, err := catalog.ListBooks()
	if err != nil {
		return err
	}
	haveISBN := map[string]bool{}
	for _, b := range existingBooks {
		haveISBN[b.ISBN] = true
	}

	for _, b := range seedBooks {
		if haveISBN[b.isbn] {
			continue
		}
		section := sectionByName[b.section]
		if _, err := catalog.CreateBook(services.BookInput{
			Title:     b.title,
			Author:    b.author,
			ISBN:      b.isbn,
			Category:  b.category,
			SectionID: section.ID,
			RackID:    b.rack,
		}); err != nil {
			return err
		}
	}

	log.Println("seed data applied")
	return nil
}

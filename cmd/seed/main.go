package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/jophinbabu/Chatty/internal/models"
	"github.com/jophinbabu/Chatty/internal/repository"
	"github.com/jophinbabu/Chatty/pkg/utils"
)

// Provisions an account directly in the database. There is no signup
// endpoint; operators create accounts here, including the assistant
// account that ASSISTANT_USER_ID points at.
func main() {
	email := flag.String("email", "", "account email (required)")
	fullName := flag.String("name", "", "account display name (required)")
	password := flag.String("password", "", "account password (required)")
	flag.Parse()

	if *email == "" || *fullName == "" || *password == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	dbUrl := os.Getenv("DB_URL")
	if dbUrl == "" {
		log.Fatal("DB_URL environment variable is required")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbUrl)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	hash, err := utils.HashPassword(*password)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	user := &models.User{
		Email:        *email,
		FullName:     *fullName,
		PasswordHash: hash,
	}
	if err := repository.NewUserRepository(pool).CreateUser(ctx, user); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			log.Fatalf("Account with email %s already exists", *email)
		}
		log.Fatalf("Failed to create account: %v", err)
	}

	log.Printf("Created account %d (%s)", user.ID, *email)
}

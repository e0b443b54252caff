// Simple seeding tool to create/update a default user for local sign-in.
// Usage (env overrides):
//
//	SEED_EMAIL=john.doe@example.com SEED_PASSWORD=Password123
//
// Reads DATABASE_URL and other core config via pkg/config.
package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"socialecho/internal/domain"
	"socialecho/internal/repository/postgres"
	"socialecho/pkg/config"
	secherrors "socialecho/pkg/errors"
	"socialecho/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	log := logger.New("seed-user")

	cfg := config.Load()
	if err := cfg.ValidateCore(); err != nil {
		log.Fatal("Invalid configuration", map[string]interface{}{"error": err.Error()})
	}

	email := getenv("SEED_EMAIL", "john.doe@example.com")
	password := getenv("SEED_PASSWORD", "Password123")
	name := getenv("SEED_NAME", "John Doe")

	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatal("Failed to connect to database", map[string]interface{}{"error": err.Error()})
	}
	defer db.Close()

	users := postgres.NewUserRepository(db)
	prefs := postgres.NewPreferenceRepository(db)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatal("Failed to hash password", map[string]interface{}{"error": err.Error()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	user, err := users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if err := users.UpdatePassword(ctx, user.ID, string(hash)); err != nil {
			log.Fatal("Failed to update password", map[string]interface{}{"error": err.Error()})
		}
		if !user.EmailVerified {
			if err := users.SetEmailVerified(ctx, user.ID); err != nil {
				log.Fatal("Failed to mark email verified", map[string]interface{}{"error": err.Error()})
			}
		}
		log.Info("Updated existing seed user", map[string]interface{}{"email": email})

	case errors.Is(err, secherrors.ErrUserNotFound):
		now := time.Now()
		user = &domain.User{
			ID:            uuid.New(),
			Name:          name,
			Email:         email,
			PasswordHash:  string(hash),
			Role:          domain.RoleGeneral,
			Avatar:        "https://raw.githubusercontent.com/nz-m/public-files/main/dp.jpg",
			EmailVerified: true,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := users.Create(ctx, user); err != nil {
			log.Fatal("Failed to create user", map[string]interface{}{"error": err.Error()})
		}
		log.Info("Created seed user", map[string]interface{}{"email": email})

	default:
		log.Fatal("Failed to look up user", map[string]interface{}{"error": err.Error()})
	}

	if err := prefs.Upsert(ctx, &domain.UserPreference{
		ID:                     uuid.New(),
		UserID:                 user.ID,
		EnableContextBasedAuth: true,
		UpdatedAt:              time.Now(),
	}); err != nil {
		log.Fatal("Failed to upsert preferences", map[string]interface{}{"error": err.Error()})
	}

	log.Info("Seed complete", map[string]interface{}{
		"email":    email,
		"password": password,
	})
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

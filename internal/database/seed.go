package database

import (
	"log"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"
)

func SeedUsers(db *sqlx.DB) error {
	// Check if users already exist
	var count int
	if err := db.Get(&count, "SELECT COUNT(*) FROM users"); err != nil {
		return err
	}

	if count > 0 {
		log.Println("✓ Users already seeded, skipping...")
		return nil
	}

	log.Println("🌱 Seeding test users...")

	driverPassword, err := bcrypt.GenerateFromPassword([]byte("driver123"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	dispatcherPassword, err := bcrypt.GenerateFromPassword([]byte("dispatch123"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	users := []map[string]interface{}{
		{
			"id":       uuid.New().String(),
			"email":    "driver@shuttleops.com",
			"password": string(driverPassword),
			"name":     "Dana Driver",
			"role":     "driver",
		},
		{
			"id":       uuid.New().String(),
			"email":    "dispatch@shuttleops.com",
			"password": string(dispatcherPassword),
			"name":     "Morgan Dispatcher",
			"role":     "dispatcher",
		},
	}

	for _, user := range users {
		query := `
			INSERT INTO users (id, email, password, name, role)
			VALUES (:id, :email, :password, :name, :role)
		`
		if _, err := db.NamedExec(query, user); err != nil {
			return err
		}
		log.Printf("  ✓ Created user: %s (%s)", user["email"], user["role"])
	}

	log.Println("✓ Successfully seeded test users")
	return nil
}

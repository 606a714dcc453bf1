package main

import (
	"database/sql"
	"log"
	"os"

	"github.com/alexedwards/argon2id"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

// Seeds the local database with the fixtures a fresh dashboard needs: two
// accounts, the default shop tax rates, and the pricing settings row.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	db := mustOpen(os.Getenv("DATABASE_URL"))
	defer db.Close()

	seedUsers(db)
	seedShops(db)
	seedSettings(db)

	log.Println("Seeding completed successfully!")
}

func mustOpen(dbURL string) *sql.DB {
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}
	return db
}

func seedUsers(db *sql.DB) {
	log.Println("Seeding Users...")
	accounts := map[string][3]string{
		"admin@envioex.com":    {"Admin", "password123", "admin"},
		"operador@envioex.com": {"Operador", "password123", "user"},
	}
	for email, account := range accounts {
		name, password, role := account[0], account[1], account[2]
		hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
		if err != nil {
			log.Printf("Failed to hash password for %s: %v", email, err)
			continue
		}
		if _, err := db.Exec(`
			INSERT INTO users (name, email, password_hash, roles)
			VALUES ($1, $2, $3, ARRAY[$4])
			ON CONFLICT (email) DO NOTHING;
		`, name, email, hash, role); err != nil {
			log.Printf("Failed to seed user %s: %v", email, err)
		}
	}
}

func seedShops(db *sql.DB) {
	log.Println("Seeding Shops...")
	// Zero rates stay zero via the name resolver; an explicit zero in the
	// column would fall through to it anyway.
	rates := []struct {
		name string
		rate string
	}{
		{"Shein", "0"},
		{"Amazon", "3"},
		{"Temu", "3"},
		{"AliExpress", "5"},
		{"eBay", "5"},
	}
	for _, shop := range rates {
		if _, err := db.Exec(`
			INSERT INTO shops (name, tax_rate)
			VALUES ($1, $2)
			ON CONFLICT (name) DO UPDATE SET tax_rate = EXCLUDED.tax_rate;
		`, shop.name, shop.rate); err != nil {
			log.Printf("Failed to seed shop %s: %v", shop.name, err)
		}
	}
}

func seedSettings(db *sql.DB) {
	log.Println("Seeding Settings...")
	if _, err := db.Exec(`
		INSERT INTO settings (id, exchange_rate, cost_per_pound)
		VALUES (1, 1, 3.5)
		ON CONFLICT (id) DO NOTHING;
	`); err != nil {
		log.Printf("Failed to seed settings: %v", err)
	}
}

// Command seed populates the database with demo data for development.
package main

import (
	"flag"
	"log"

	"insureconnect/internal/config"
	"insureconnect/internal/database"
	"insureconnect/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 50, "number of users to create")
	numPosts := flag.Int("posts", 200, "number of posts to create")
	clean := flag.Bool("clean", true, "clear existing data before seeding")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("Refusing to seed a production database")
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := seed.EnsureBuiltIns(db); err != nil {
		log.Fatalf("Failed to seed built-in content: %v", err)
	}

	if err := seed.Seed(db, seed.Options{
		NumUsers:    *numUsers,
		NumPosts:    *numPosts,
		ShouldClean: *clean,
	}); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Println("All seeded users have the password: password123")
}

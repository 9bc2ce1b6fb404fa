// Command admin manages administrator accounts from the command line.
//
// Usage:
//
//	admin promote <email>   grant the ADMIN role
//	admin demote <email>    revert to the CUSTOMER role
//	admin list-admins       list all administrator accounts
package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"insureconnect/internal/config"
	"insureconnect/internal/database"
	"insureconnect/internal/models"

	"gorm.io/gorm"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.ConnectWithOptions(cfg, database.ConnectOptions{ApplySchema: false})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	switch os.Args[1] {
	case "promote":
		setRole(db, requireEmail(), models.RoleAdmin)
	case "demote":
		setRole(db, requireEmail(), models.RoleCustomer)
	case "list-admins":
		listAdmins(db)
	default:
		usage()
		os.Exit(1)
	}
}

func requireEmail() string {
	if len(os.Args) < 3 {
		log.Fatalf("Usage: admin %s <email>", os.Args[1])
	}
	return strings.ToLower(strings.TrimSpace(os.Args[2]))
}

func setRole(db *gorm.DB, email string, role models.Role) {
	var user models.User
	if err := db.Where("email = ?", email).First(&user).Error; err != nil {
		log.Fatalf("User %s not found: %v", email, err)
	}
	if user.Role == role {
		log.Printf("%s already has role %s", email, role)
		return
	}
	if err := db.Model(&user).Update("role", role).Error; err != nil {
		log.Fatalf("Failed to update role for %s: %v", email, err)
	}
	log.Printf("%s is now %s", email, role)
}

func listAdmins(db *gorm.DB) {
	var admins []models.User
	if err := db.Where("role = ?", models.RoleAdmin).Order("id").Find(&admins).Error; err != nil {
		log.Fatalf("Failed to list admins: %v", err)
	}
	if len(admins) == 0 {
		fmt.Println("No administrators found")
		return
	}
	for _, admin := range admins {
		fmt.Printf("%d\t%s\t%s\n", admin.ID, admin.Name, admin.Email)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: admin <promote|demote|list-admins> [email]")
}

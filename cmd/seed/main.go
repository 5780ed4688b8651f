package main

import (
	"context"
	"log"
	"os"
	"strings"

	"github.com/Baaaki/scooter-fleet/internal/config"
	"github.com/Baaaki/scooter-fleet/internal/database"
	"github.com/Baaaki/scooter-fleet/internal/models"
	"github.com/Baaaki/scooter-fleet/internal/repository"
	"github.com/Baaaki/scooter-fleet/internal/utils"
)

func main() {
	cfg := config.Load()
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatal("Failed to connect database:", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	adminName := os.Getenv("ADMIN_NAME")
	adminEmail := strings.ToLower(strings.TrimSpace(os.Getenv("ADMIN_EMAIL")))
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminName == "" || adminEmail == "" || adminPassword == "" {
		log.Fatal("Missing environment variables: ADMIN_NAME, ADMIN_EMAIL, ADMIN_PASSWORD")
	}

	ctx := context.Background()
	users := repository.NewUserRepository(db)

	existing, err := users.GetUserByEmail(ctx, adminEmail)
	if err != nil {
		log.Fatal("Failed to look up admin:", err)
	}
	if existing != nil {
		if existing.Role != models.RoleAdmin {
			if err := db.Model(existing).Update("role", models.RoleAdmin).Error; err != nil {
				log.Fatal("Failed to promote user:", err)
			}
			log.Println("Existing user promoted to admin:", existing.Email)
			return
		}
		log.Println("Admin user already exists:", existing.Email)
		return
	}

	passwordHash, err := utils.HashPassword(adminPassword)
	if err != nil {
		log.Fatal("Failed to hash password:", err)
	}

	admin := &models.User{
		Name:         adminName,
		Email:        adminEmail,
		PasswordHash: passwordHash,
		Role:         models.RoleAdmin,
		IsVerified:   true,
	}
	if err := users.CreateUser(ctx, admin); err != nil {
		log.Fatal("Failed to create admin:", err)
	}

	log.Println("Admin user created successfully")
	log.Println("   Name:", admin.Name)
	log.Println("   Email:", admin.Email)
}

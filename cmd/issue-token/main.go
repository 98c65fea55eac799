package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"phantom-mask/internal/config"
	"phantom-mask/internal/repository"
	"phantom-mask/pkg/database"
	"phantom-mask/pkg/jwt"

	"gorm.io/gorm"
)

// issue-token prints a bearer token for an existing buyer
func main() {
	userID := flag.Uint("user", 0, "user id")
	name := flag.String("name", "", "user name, used when -user is not given")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	jwt.SetSecret(cfg.JWTSecret)

	db := database.ConnectDB(cfg.DBDriver, cfg.DatabaseURL, cfg.DBLogLevel)
	txm := repository.NewTxManager(db)
	userRepo := repository.NewUserRepo(db)

	var (
		id       uint
		userName string
	)
	err = txm.Snapshot(context.Background(), func(tx *gorm.DB) error {
		if *userID != 0 {
			u, err := userRepo.FindByID(tx, uint(*userID))
			if err != nil {
				return err
			}
			id, userName = u.ID, u.Name
			return nil
		}
		u, err := userRepo.FindByName(tx, *name)
		if err != nil {
			return err
		}
		id, userName = u.ID, u.Name
		return nil
	})
	if err != nil {
		log.Fatalf("User not found: %v", err)
	}

	token, err := jwt.GenerateToken(id, userName, cfg.TokenTTL)
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}
	log.Printf("Token for user %d (%s), valid %s", id, userName, cfg.TokenTTL)
	fmt.Println(token)
}

package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"

	"phantom-mask/internal/config"
	"phantom-mask/internal/importer"
	"phantom-mask/internal/repository"
	"phantom-mask/pkg/database"
)

func main() {
	pharmaciesPath := flag.String("pharmacies", "data/pharmacies.json", "pharmacies file")
	usersPath := flag.String("users", "data/users.json", "users file, empty to skip")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db := database.ConnectDB(cfg.DBDriver, cfg.DatabaseURL, cfg.DBLogLevel)
	if err := repository.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate schema: %v", err)
	}

	pharmacies, err := os.Open(*pharmaciesPath)
	if err != nil {
		log.Fatalf("Failed to open %s: %v", *pharmaciesPath, err)
	}
	defer pharmacies.Close()

	var users io.Reader
	if *usersPath != "" {
		f, err := os.Open(*usersPath)
		if err != nil {
			log.Fatalf("Failed to open %s: %v", *usersPath, err)
		}
		defer f.Close()
		users = f
	}

	im := importer.NewImporter(
		repository.NewTxManager(db),
		repository.NewPharmacyRepo(db),
		repository.NewMaskRepo(db),
		repository.NewUserRepo(db),
		repository.NewTransactionRepo(db),
		importer.Options{
			DefaultStock: cfg.ImportDefaultStock,
			Location:     cfg.Location,
			Logger:       log.New(os.Stdout, "[import] ", log.LstdFlags),
		},
	)

	summary, err := im.Import(context.Background(), pharmacies, users)
	if err != nil {
		log.Fatalf("Import failed, nothing was written: %v", err)
	}
	log.Printf("Import finished: %+v", *summary)
}

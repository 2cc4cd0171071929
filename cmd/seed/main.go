// Command main runs the database seeder for the dispatch backend.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"reciapp/internal/config"
	"reciapp/internal/database"
	"reciapp/internal/models"
	"reciapp/internal/repository"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var materialTypes = []models.MaterialType{
	models.MaterialPlastic,
	models.MaterialCardboard,
	models.MaterialGlass,
	models.MaterialMetal,
	models.MaterialPaper,
}

func main() {
	// Parse command line flags
	numRequesters := flag.Int("requesters", 30, "Number of requester users to create")
	numCollectors := flag.Int("collectors", 10, "Number of collector users to create")
	numRequests := flag.Int("requests", 50, "Number of pending pickup requests to create")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	flag.Parse()

	log.Println("🌱 Database Seeder")
	log.Println("==================")
	log.Printf("Target: %d requesters, %d collectors, %d requests, clean=%v\n",
		*numRequesters, *numCollectors, *numRequests, *shouldClean)

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Connect to database
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if *shouldClean {
		if err := clearAll(db); err != nil {
			log.Fatalf("❌ Cleanup failed: %v", err)
		}
	}

	ctx := context.Background()
	users := repository.NewUserRepository(db)

	requesters, err := seedUsers(ctx, users, *numRequesters, models.RoleRequester)
	if err != nil {
		log.Fatalf("❌ Requester seeding failed: %v", err)
	}
	if _, err := seedUsers(ctx, users, *numCollectors, models.RoleCollector); err != nil {
		log.Fatalf("❌ Collector seeding failed: %v", err)
	}

	if !*shouldClean {
		// Incremental runs spread new requests over every known requester.
		requesters, err = users.ListByRole(ctx, models.RoleRequester)
		if err != nil {
			log.Fatalf("❌ Listing requesters failed: %v", err)
		}
	}
	if err := seedRequests(db, cfg, requesters, *numRequests); err != nil {
		log.Fatalf("❌ Request seeding failed: %v", err)
	}

	log.Println("✨ All done! Your database is now populated with test data.")
}

func clearAll(db *gorm.DB) error {
	log.Println("🧹 Clearing existing data...")
	for _, model := range []interface{}{
		&models.RequestMaterial{}, &models.PickupRequest{}, &models.User{},
	} {
		if err := db.Session(&gorm.Session{AllowGlobalUpdate: true}).
			Unscoped().Delete(model).Error; err != nil {
			return err
		}
	}
	return nil
}

func seedUsers(ctx context.Context, repo repository.UserRepository, count int, role models.Role) ([]models.User, error) {
	users := make([]models.User, 0, count)
	for i := 0; i < count; i++ {
		user := models.User{
			Username: gofakeit.Username() + gofakeit.DigitN(3),
			Role:     role,
		}
		if err := repo.Create(ctx, &user); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	log.Printf("👤 Created %d %s users", count, role)
	return users, nil
}

func seedRequests(db *gorm.DB, cfg *config.Config, requesters []models.User, count int) error {
	if len(requesters) == 0 {
		return nil
	}
	for i := 0; i < count; i++ {
		requester := requesters[gofakeit.Number(0, len(requesters)-1)]
		req := models.PickupRequest{
			ID:          uuid.NewString(),
			RequesterID: requester.ID,
			// Scatter pickups a few kilometers around the default coordinate.
			Latitude:  cfg.DefaultLat + gofakeit.Float64Range(-0.05, 0.05),
			Longitude: cfg.DefaultLng + gofakeit.Float64Range(-0.05, 0.05),
			State:     models.RequestPending,
			CreatedAt: time.Now().Add(-time.Duration(gofakeit.Number(0, 120)) * time.Minute),
		}
		numMaterials := gofakeit.Number(1, 3)
		for p := 0; p < numMaterials; p++ {
			req.Materials = append(req.Materials, models.RequestMaterial{
				Position:     p,
				MaterialType: materialTypes[gofakeit.Number(0, len(materialTypes)-1)],
				QuantityKg:   gofakeit.Float64Range(0.5, 12.0),
			})
		}
		if err := db.Create(&req).Error; err != nil {
			return err
		}
	}
	log.Printf("📦 Created %d pending pickup requests", count)
	return nil
}

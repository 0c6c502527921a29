package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/clinovia/clinic-scheduling/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	_ = godotenv.Load()

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	seedCtx := context.Background()

	serviceIDs, err := seedServices(seedCtx, pool)
	if err != nil {
		log.Fatalf("seed services: %v", err)
	}
	doctorIDs, err := seedDoctors(seedCtx, pool, 20, serviceIDs)
	if err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	if err := seedPatients(seedCtx, pool, 2000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedBlockedDates(seedCtx, pool); err != nil {
		log.Fatalf("seed blocked dates: %v", err)
	}

	log.Printf("seed complete: %d services, %d doctors", len(serviceIDs), len(doctorIDs))
}

type serviceSpec struct {
	name            string
	durationMinutes int
	priceCents      int64
	depositPercent  int
}

func seedServices(ctx context.Context, pool *pgxpool.Pool) ([]uuid.UUID, error) {
	specs := []serviceSpec{
		{"General Consultation", 30, 60_000, 50},
		{"Dental Cleaning", 45, 120_000, 50},
		{"Root Canal", 90, 450_000, 30},
		{"Dermatology Screening", 30, 95_000, 50},
		{"Physiotherapy Session", 60, 80_000, 25},
		{"Annual Checkup", 60, 150_000, 40},
	}

	log.Printf("seeding %d services", len(specs))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, len(specs))
	for _, s := range specs {
		id := uuid.New()
		_, err := tx.Exec(ctx, `
			INSERT INTO services (id, name, duration_minutes, price_cents, deposit_percent, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, now(), now())
		`, id, s.name, s.durationMinutes, s.priceCents, s.depositPercent)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("services seeded")
	return ids, nil
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int, serviceIDs []uuid.UUID) ([]uuid.UUID, error) {
	log.Printf("seeding %d doctors", count)

	specialties := []string{
		"Dermatology",
		"General Practice",
		"Dentistry",
		"Orthopedics",
		"Physiotherapy",
		"Pediatrics",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := "Dr. " + gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, spec)
		if err != nil {
			return nil, err
		}

		// Each doctor performs 2-4 of the services.
		perform := gofakeit.Number(2, 4)
		offset := gofakeit.Number(0, len(serviceIDs)-1)
		for j := 0; j < perform; j++ {
			serviceID := serviceIDs[(offset+j)%len(serviceIDs)]
			_, err := tx.Exec(ctx, `
				INSERT INTO doctor_services (doctor_id, service_id)
				VALUES ($1, $2)
				ON CONFLICT DO NOTHING
			`, id, serviceID)
			if err != nil {
				return nil, err
			}
		}

		// Weekday roster: morning block every Mon-Fri, afternoon block on
		// three of them.
		for weekday := 1; weekday <= 5; weekday++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO doctor_schedule_windows (doctor_id, weekday, start_minutes, end_minutes)
				VALUES ($1, $2, $3, $4)
			`, id, weekday, 9*60, 12*60)
			if err != nil {
				return nil, err
			}
			if gofakeit.Bool() {
				_, err := tx.Exec(ctx, `
					INSERT INTO doctor_schedule_windows (doctor_id, weekday, start_minutes, end_minutes)
					VALUES ($1, $2, $3, $4)
				`, id, weekday, 14*60, 17*60)
				if err != nil {
					return nil, err
				}
			}
		}

		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("doctors seeded")
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			phone := gofakeit.Phone()

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, phone, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, name, phone)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return nil
}

func seedBlockedDates(ctx context.Context, pool *pgxpool.Pool) error {
	// Two stand-in holidays somewhere in the coming month.
	for i := 0; i < 2; i++ {
		date := time.Now().UTC().AddDate(0, 0, gofakeit.Number(7, 30))
		reason := "clinic closed"
		_, err := pool.Exec(ctx, `
			INSERT INTO blocked_dates (blocked_on, reason)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, date.Format("2006-01-02"), reason)
		if err != nil {
			return err
		}
	}

	log.Println("blocked dates seeded")
	return nil
}

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/api"
	"github.com/hackgods/clinic-appointments/internal/config"
	"github.com/hackgods/clinic-appointments/internal/db"
	"github.com/hackgods/clinic-appointments/internal/directory"
	"github.com/hackgods/clinic-appointments/internal/logger"
)

var specializations = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	lg, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	doctorCount := envInt("SEED_DOCTORS", 50)
	patientCount := envInt("SEED_PATIENTS", 2000)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{
		MaxConns: cfg.PostgresPool.MaxConns,
		MinConns: cfg.PostgresPool.MinConns,
	})
	if err != nil {
		lg.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		lg.Fatal("migrate", zap.Error(err))
	}

	admin, err := seedAdmin(ctx, pool)
	if err != nil {
		lg.Fatal("seed admin", zap.Error(err))
	}

	doctors, err := seedDoctors(ctx, pool, doctorCount)
	if err != nil {
		lg.Fatal("seed doctors", zap.Error(err))
	}
	lg.Info("doctors seeded", zap.Int("count", len(doctors)))

	patients, err := seedPatients(ctx, pool, patientCount, lg)
	if err != nil {
		lg.Fatal("seed patients", zap.Error(err))
	}
	lg.Info("patients seeded", zap.Int("count", len(patients)))

	// sample tokens for manual testing against the api-server
	for role, id := range map[directory.Role]uuid.UUID{
		directory.RoleAdmin:   admin,
		directory.RoleDoctor:  doctors[0],
		directory.RolePatient: patients[0],
	} {
		tok, err := api.IssueToken(cfg.JWTSecret, id, role, 24*time.Hour)
		if err != nil {
			lg.Fatal("issue token", zap.Error(err))
		}
		fmt.Printf("%-8s %s\n         %s\n", role, id, tok)
	}

	lg.Info("seed complete")
}

func seedAdmin(ctx context.Context, pool *pgxpool.Pool) (uuid.UUID, error) {
	id := uuid.New()
	_, err := pool.Exec(ctx, `
		INSERT INTO users (id, name, email, role, created_at, updated_at)
		VALUES ($1, $2, $3, 'admin', now(), now())
	`, id, gofakeit.Name(), uniqueEmail())
	return id, err
}

// seedDoctors creates doctor accounts; roughly one in ten is left pending or suspended.
func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, count)

	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for i := 0; i < count; i++ {
			id := uuid.New()

			status := directory.DoctorActive
			switch n := gofakeit.Number(1, 20); {
			case n == 1:
				status = directory.DoctorPending
			case n == 2:
				status = directory.DoctorSuspended
			}
			if i == 0 {
				status = directory.DoctorActive
			}

			if _, err := tx.Exec(ctx, `
				INSERT INTO users (id, name, email, role, created_at, updated_at)
				VALUES ($1, $2, $3, 'doctor', now(), now())
			`, id, "Dr. "+gofakeit.Name(), uniqueEmail()); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO doctors (user_id, specialization, status, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, specializations[gofakeit.Number(0, len(specializations)-1)], status); err != nil {
				return err
			}

			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int, lg *zap.Logger) ([]uuid.UUID, error) {
	const batchSize = 500

	ids := make([]uuid.UUID, 0, count)

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		batch := &pgx.Batch{}
		for i := offset; i < end; i++ {
			id := uuid.New()
			batch.Queue(`
				INSERT INTO users (id, name, email, role, created_at, updated_at)
				VALUES ($1, $2, $3, 'patient', now(), now())
			`, id, gofakeit.Name(), uniqueEmail())
			ids = append(ids, id)
		}

		if err := pool.SendBatch(ctx, batch).Close(); err != nil {
			return nil, err
		}

		lg.Debug("patients batch seeded", zap.Int("done", end), zap.Int("total", count))
	}

	return ids, nil
}

// uniqueEmail avoids collisions on the users.email unique index across seed runs.
func uniqueEmail() string {
	return fmt.Sprintf("%s.%s@%s", gofakeit.Username(), uuid.NewString()[:8], gofakeit.DomainName())
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

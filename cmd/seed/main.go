package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/telehealth-scheduling/internal/availability"
	"github.com/hackgods/telehealth-scheduling/internal/config"
	"github.com/hackgods/telehealth-scheduling/internal/db"
	"github.com/hackgods/telehealth-scheduling/internal/logging"
)

const (
	therapistCount = 50
	patientCount   = 2000
)

var specializations = []string{
	"Speech Therapy",
	"Occupational Therapy",
	"Physical Therapy",
	"Behavioral Therapy",
	"Child Psychology",
	"Language Development",
	"Feeding Therapy",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("dev", "info").Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.Env, cfg.LogLevel).With().Str("service", "seed").Logger()
	logger.Info().Msg("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	faker := gofakeit.New(uint64(time.Now().UnixNano()))

	therapists, err := seedTherapists(context.Background(), pool, faker, therapistCount, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed therapists")
	}
	patients, err := seedPatients(context.Background(), pool, faker, patientCount, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed patients")
	}
	if err := seedGoals(context.Background(), pool, faker, therapists, patients, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed therapy goals")
	}

	logger.Info().Msg("seed complete")
}

// weeklyAvailability opens a random set of weekdays with 30 minute slots
// between a random start hour and end hour.
func weeklyAvailability(faker *gofakeit.Faker) availability.Availability {
	var days []availability.DayTemplate
	for _, day := range availability.Weekdays {
		if day == "Sunday" {
			continue
		}
		open := faker.Bool() || day == "Monday"
		first := faker.Number(8, 11)
		last := faker.Number(first+3, 18)

		d := availability.DayTemplate{Day: day, Available: open, Slots: []availability.SlotTemplate{}}
		for h := first; h < last; h++ {
			for _, m := range []int{0, 30} {
				d.Slots = append(d.Slots, availability.SlotTemplate{
					Start:       fmt.Sprintf("%02d:%02d", h, m),
					End:         fmt.Sprintf("%02d:%02d", h+m/30, (m+30)%60),
					Available:   faker.Number(1, 10) > 1,
					BookedDates: []time.Time{},
				})
			}
		}
		days = append(days, d)
	}
	return availability.Availability{ConsultationDays: days}
}

func seedTherapists(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int, logger zerolog.Logger) ([]uuid.UUID, error) {
	logger.Info().Int("count", count).Msg("seeding therapists")

	zones := []string{"UTC", "America/New_York", "Europe/London", "Asia/Kolkata"}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		specialty := specializations[faker.Number(0, len(specializations)-1)]
		zone := zones[faker.Number(0, len(zones)-1)]

		doc, err := json.Marshal(weeklyAvailability(faker))
		if err != nil {
			return nil, err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO therapists (id, name, specializations, time_zone, availability, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, now(), now())
		`, id, "Dr. "+faker.Name(), specialty, zone, doc)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	logger.Info().Msg("therapists seeded")
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int, logger zerolog.Logger) ([]uuid.UUID, error) {
	logger.Info().Int("count", count).Msg("seeding patients")

	const batchSize = 500

	ids := make([]uuid.UUID, 0, count)
	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, faker.Name(), faker.Email())
			if err != nil {
				_ = tx.Rollback(ctx)
				return nil, err
			}
			ids = append(ids, id)
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}

		logger.Info().Int("done", end).Int("total", count).Msg("patients seeded")
	}

	return ids, nil
}

// seedGoals gives a slice of patients one therapy goal each so progress can be recorded.
func seedGoals(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, therapists, patients []uuid.UUID, logger zerolog.Logger) error {
	n := len(patients) / 10
	logger.Info().Int("count", n).Msg("seeding therapy goals")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < n; i++ {
		therapist := therapists[faker.Number(0, len(therapists)-1)]
		_, err := tx.Exec(ctx, `
			INSERT INTO therapy_goals (id, therapist_id, patient_id, title, description, start_date, total_sessions)
			VALUES ($1, $2, $3, $4, $5, current_date, $6)
		`, uuid.New(), therapist, patients[i], "Practice "+faker.Verb(), faker.Phrase(), fmt.Sprint(faker.Number(6, 24)))
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

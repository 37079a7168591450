package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/telehealth-scheduling/internal/api"
	"github.com/hackgods/telehealth-scheduling/internal/availability"
	"github.com/hackgods/telehealth-scheduling/internal/config"
	"github.com/hackgods/telehealth-scheduling/internal/db"
	"github.com/hackgods/telehealth-scheduling/internal/logging"
)

// SimConfig drives a booking storm: every round fires Concurrency create
// requests at one therapist slot on one date. At most one may succeed.
type SimConfig struct {
	APIBaseURL     string
	Rounds         int
	Concurrency    int
	TherapistLimit int
	PatientLimit   int
	PostgresDSN    string
}

type target struct {
	TherapistID uuid.UUID
	Weekday     string
	Start       string
}

type DataPool struct {
	Patients []uuid.UUID
	Targets  []target
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	at := func(pct int) time.Duration {
		i := len(latencies) * pct / 100
		if i >= len(latencies) {
			i = len(latencies) - 1
		}
		return latencies[i]
	}

	return sum / time.Duration(len(latencies)), latencies[0], latencies[len(latencies)-1], at(50), at(95)
}

type roundResult struct {
	target   target
	date     time.Time
	success  int
	conflict int
	errors   int
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	log     zerolog.Logger
	booking OperationMetrics
	rounds  []roundResult
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("dev", "info").Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.Env, cfg.LogLevel).With().Str("service", "simulate").Logger()

	simCfg := loadConfig(cfg)
	if err := validateConfig(simCfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	logger.Info().
		Int("rounds", simCfg.Rounds).
		Int("concurrency", simCfg.Concurrency).
		Str("api", simCfg.APIBaseURL).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, simCfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, simCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}
	logger.Info().Int("patients", len(dataPool.Patients)).Int("slots", len(dataPool.Targets)).Msg("data loaded")

	sim := &Simulator{
		config: simCfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    logger,
	}

	sim.Run(context.Background())

	if violations := sim.PrintReport(); violations > 0 {
		os.Exit(1)
	}
}

func loadConfig(base config.Config) SimConfig {
	return SimConfig{
		APIBaseURL:     getEnv("SIM_API_BASE_URL", "http://localhost:"+base.HTTPPort),
		Rounds:         getInt("SIM_ROUNDS", 50),
		Concurrency:    getInt("SIM_CONCURRENCY", 20),
		TherapistLimit: getInt("SIM_THERAPIST_LIMIT", 50),
		PatientLimit:   getInt("SIM_PATIENT_LIMIT", 2000),
		PostgresDSN:    base.PostgresDSN,
	}
}

func validateConfig(cfg SimConfig) error {
	if cfg.Rounds <= 0 {
		return errors.New("SIM_ROUNDS must be > 0")
	}
	if cfg.Concurrency < 2 {
		return errors.New("SIM_CONCURRENCY must be >= 2")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `SELECT id FROM patients LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, id)
	}
	rows.Close()

	rows, err = pool.Query(ctx, `SELECT id, availability FROM therapists LIMIT $1`, cfg.TherapistLimit)
	if err != nil {
		return nil, fmt.Errorf("load therapists: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		var av availability.Availability
		if err := json.Unmarshal(raw, &av); err != nil {
			return nil, fmt.Errorf("decode availability of %s: %w", id, err)
		}
		for _, d := range av.ConsultationDays {
			if !d.Available {
				continue
			}
			for _, s := range d.Slots {
				if s.Available {
					dataPool.Targets = append(dataPool.Targets, target{TherapistID: id, Weekday: d.Day, Start: s.Start})
				}
			}
		}
	}

	if len(dataPool.Patients) < cfg.Concurrency {
		return nil, fmt.Errorf("need at least %d patients, have %d", cfg.Concurrency, len(dataPool.Patients))
	}
	if len(dataPool.Targets) == 0 {
		return nil, errors.New("no available slots loaded")
	}

	return dataPool, nil
}

func (s *Simulator) Run(ctx context.Context) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for i := 0; i < s.config.Rounds; i++ {
		t := s.pool.Targets[rng.Intn(len(s.pool.Targets))]
		date := nextWeekday(time.Now().UTC(), t.Weekday, rng.Intn(52)+1)

		patients := make([]uuid.UUID, s.config.Concurrency)
		for j, k := range rng.Perm(len(s.pool.Patients))[:s.config.Concurrency] {
			patients[j] = s.pool.Patients[k]
		}

		res := s.storm(ctx, t, date, patients)
		s.rounds = append(s.rounds, res)

		ev := s.log.Info()
		if res.success > 1 {
			ev = s.log.Error()
		}
		ev.Int("round", i+1).
			Str("therapist_id", t.TherapistID.String()).
			Str("slot", t.Weekday+" "+t.Start).
			Str("date", date.Format(time.DateOnly)).
			Int("success", res.success).
			Int("conflict", res.conflict).
			Int("errors", res.errors).
			Msg("round complete")
	}
}

func (s *Simulator) storm(ctx context.Context, t target, date time.Time, patients []uuid.UUID) roundResult {
	var success, conflict, failed int64
	var wg sync.WaitGroup
	start := make(chan struct{})

	for _, p := range patients {
		wg.Add(1)
		go func(patientID uuid.UUID) {
			defer wg.Done()
			<-start
			code, latency, err := s.book(ctx, t, date, patientID)
			switch {
			case err == nil && code == http.StatusCreated:
				atomic.AddInt64(&success, 1)
				s.booking.Record(latency, true, false)
			case err == nil && code == http.StatusConflict:
				atomic.AddInt64(&conflict, 1)
				s.booking.Record(latency, false, true)
			default:
				atomic.AddInt64(&failed, 1)
				s.booking.Record(latency, false, false)
			}
		}(p)
	}
	close(start)
	wg.Wait()

	return roundResult{target: t, date: date, success: int(success), conflict: int(conflict), errors: int(failed)}
}

func (s *Simulator) book(ctx context.Context, t target, date time.Time, patientID uuid.UUID) (int, time.Duration, error) {
	body, err := json.Marshal(api.CreateAppointmentRequest{
		TherapistID:     t.TherapistID.String(),
		AppointmentDate: date.Format(time.DateOnly),
		AppointmentTime: t.Start,
		PackageType:     "video call",
	})
	if err != nil {
		return 0, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+"/appointments", bytes.NewReader(body))
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Profile-ID", patientID.String())
	req.Header.Set("X-Role", "patient")

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, latency, err
	}
	defer resp.Body.Close()

	return resp.StatusCode, latency, nil
}

// PrintReport prints the summary and returns the number of rounds that
// booked the same slot more than once.
func (s *Simulator) PrintReport() int {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("BOOKING STORM REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Rounds: %d\n", len(s.rounds))
	fmt.Printf("Concurrency: %d\n", s.config.Concurrency)
	fmt.Println()

	violations, empty := 0, 0
	for i, r := range s.rounds {
		if r.success > 1 {
			violations++
			fmt.Printf("  DOUBLE BOOKING round=%d therapist=%s slot=%s %s date=%s successes=%d\n",
				i+1, r.target.TherapistID, r.target.Weekday, r.target.Start, r.date.Format(time.DateOnly), r.success)
		}
		if r.success == 0 {
			empty++
		}
	}

	total := atomic.LoadInt64(&s.booking.Total)
	if total > 0 {
		avg, min, max, p50, p95 := s.booking.Stats()
		fmt.Printf("Booking requests: %d\n", total)
		fmt.Printf("  Success: %d\n", atomic.LoadInt64(&s.booking.Success))
		fmt.Printf("  Conflicts: %d\n", atomic.LoadInt64(&s.booking.Conflict))
		fmt.Printf("  Errors: %d\n", atomic.LoadInt64(&s.booking.Error))
		fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
			avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
			p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	}

	fmt.Println()
	fmt.Printf("Rounds without a winner (slot already taken): %d\n", empty)
	fmt.Printf("Rounds with more than one winner: %d\n", violations)
	return violations
}

// nextWeekday returns midnight UTC of the weekday named day, weeksAhead weeks out.
func nextWeekday(from time.Time, day string, weeksAhead int) time.Time {
	base := availability.CalendarDay(from)
	for i := 1; i <= 7; i++ {
		d := base.AddDate(0, 0, i)
		if d.Weekday().String() == day {
			return d.AddDate(0, 0, 7*(weeksAhead-1))
		}
	}
	return base
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
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
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/api"
	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/config"
	"github.com/hackgods/clinic-appointments/internal/db"
	"github.com/hackgods/clinic-appointments/internal/directory"
	"github.com/hackgods/clinic-appointments/internal/logger"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	StatusRatio  float64
	ReadRatio    float64
	PatientLimit int
	DoctorLimit  int
	Days         int // booking window; a small window forces slot contention
	PostgresDSN  string
	PostgresPool config.PoolConfig
	JWTSecret    string
}

type booked struct {
	ID       uuid.UUID
	DoctorID uuid.UUID
	Patient  uuid.UUID
}

type DataPool struct {
	Patients []uuid.UUID
	Doctors  []uuid.UUID
	Slots    []appointment.TimeSlot

	tokens sync.Map // user id -> bearer token

	mu           sync.RWMutex
	appointments []booked
}

func (dp *DataPool) AddAppointment(b booked) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, b)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (booked, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return booked{}, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
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
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, lo, hi, p50, p95 time.Duration) {
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

	avg = sum / time.Duration(len(latencies))
	lo = latencies[0]
	hi = latencies[len(latencies)-1]
	p50 = latencies[min(len(latencies)*50/100, len(latencies)-1)]
	p95 = latencies[min(len(latencies)*95/100, len(latencies)-1)]

	return avg, lo, hi, p50, p95
}

type Metrics struct {
	Booking    OperationMetrics
	Reschedule OperationMetrics
	Confirm    OperationMetrics
	Cancel     OperationMetrics
	ReadByID   OperationMetrics
	List       OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	logger  *zap.Logger
	start   time.Time
}

func main() {
	cfg, lg := loadConfig()
	defer func() { _ = lg.Sync() }()

	if err := validateConfig(cfg); err != nil {
		lg.Fatal("invalid config", zap.Error(err))
	}

	lg.Info("simulator starting",
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
		zap.Float64("booking", cfg.BookingRatio),
		zap.Float64("status", cfg.StatusRatio),
		zap.Float64("read", cfg.ReadRatio),
		zap.Int("days", cfg.Days),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{
		MaxConns: cfg.PostgresPool.MaxConns,
		MinConns: cfg.PostgresPool.MinConns,
	})
	if err != nil {
		lg.Fatal("connect postgres", zap.Error(err))
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		lg.Fatal("load data pool", zap.Error(err))
	}
	lg.Info("data loaded", zap.Int("patients", len(dataPool.Patients)), zap.Int("doctors", len(dataPool.Doctors)))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: lg,
		start:  time.Now().UTC(),
	}

	sim.Run()
	sim.PrintReport()

	checkCtx, cancelCheck := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelCheck()
	if err := verifySlotUniqueness(checkCtx, pgPool); err != nil {
		lg.Fatal("slot uniqueness violated", zap.Error(err))
	}
	lg.Info("slot uniqueness verified: no slot holds more than one active appointment")
}

func loadConfig() (SimConfig, *zap.Logger) {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	lg, err := logger.New(baseCfg.Env, baseCfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 20),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.5),
		StatusRatio:  getFloat("SIM_STATUS_RATIO", 0.2),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.3),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 500),
		DoctorLimit:  getInt("SIM_DOCTOR_LIMIT", 5),
		Days:         getInt("SIM_DAYS", 2),
		PostgresDSN:  baseCfg.PostgresDSN,
		PostgresPool: baseCfg.PostgresPool,
		JWTSecret:    baseCfg.JWTSecret,
	}

	total := cfg.BookingRatio + cfg.StatusRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.StatusRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg, lg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Days <= 0 {
		return fmt.Errorf("SIM_DAYS must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{Slots: appointment.TimeSlots()}

	load := func(query string, limit int) ([]uuid.UUID, error) {
		rows, err := pool.Query(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var ids []uuid.UUID
		for rows.Next() {
			var id uuid.UUID
			if err := rows.Scan(&id); err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
		return ids, rows.Err()
	}

	var err error
	dataPool.Patients, err = load(`SELECT id FROM users WHERE role = 'patient' LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	dataPool.Doctors, err = load(`SELECT user_id FROM doctors WHERE status = 'active' LIMIT $1`, cfg.DoctorLimit)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}

	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded, run cmd/seed first")
	}
	if len(dataPool.Doctors) == 0 {
		return nil, fmt.Errorf("no active doctors loaded, run cmd/seed first")
	}

	for _, id := range dataPool.Patients {
		if err := dataPool.issue(cfg.JWTSecret, id, directory.RolePatient); err != nil {
			return nil, err
		}
	}
	for _, id := range dataPool.Doctors {
		if err := dataPool.issue(cfg.JWTSecret, id, directory.RoleDoctor); err != nil {
			return nil, err
		}
	}

	return dataPool, nil
}

func (dp *DataPool) issue(secret string, id uuid.UUID, role directory.Role) error {
	tok, err := api.IssueToken(secret, id, role, 2*time.Hour)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	dp.tokens.Store(id, tok)
	return nil
}

func (dp *DataPool) token(id uuid.UUID) string {
	if v, ok := dp.tokens.Load(id); ok {
		return v.(string)
	}
	return ""
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			if rng.Intn(5) == 0 {
				s.doReschedule(ctx, rng)
			} else {
				s.doBooking(ctx, rng)
			}
		case r < s.config.BookingRatio+s.config.StatusRatio:
			if rng.Intn(3) == 0 {
				s.doCancel(ctx, rng)
			} else {
				s.doConfirm(ctx, rng)
			}
		default:
			if rng.Intn(2) == 0 {
				s.doReadByID(ctx, rng)
			} else {
				s.doList(ctx, rng)
			}
		}
	}
}

// randomSlot picks a (date, time) inside the booking window.
func (s *Simulator) randomSlot(rng *rand.Rand) (string, string) {
	day := s.start.AddDate(0, 0, 1+rng.Intn(s.config.Days))
	return day.Format(appointment.DateLayout), string(s.pool.Slots[rng.Intn(len(s.pool.Slots))])
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	doctorID := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	date, slot := s.randomSlot(rng)

	status, kind, body, latency := s.call(ctx, http.MethodPost, "/appointments", s.pool.token(patientID), map[string]string{
		"doctor_id": doctorID.String(),
		"date":      date,
		"time":      slot,
		"symptoms":  "simulated visit",
	})

	success := status == http.StatusCreated
	if success {
		var resp struct {
			ID uuid.UUID `json:"id"`
		}
		if json.Unmarshal(body, &resp) == nil && resp.ID != uuid.Nil {
			s.pool.AddAppointment(booked{ID: resp.ID, DoctorID: doctorID, Patient: patientID})
		}
	}

	s.metrics.Booking.Record(latency, success, kind == string(appointment.KindSlotConflict))
}

func (s *Simulator) doReschedule(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}
	date, slot := s.randomSlot(rng)

	status, kind, _, latency := s.call(ctx, http.MethodPut, "/appointments/"+b.ID.String(), s.pool.token(b.Patient),
		map[string]string{"date": date, "time": slot})

	s.metrics.Reschedule.Record(latency, status == http.StatusOK, expectedRejection(kind))
}

func (s *Simulator) doConfirm(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	status, kind, _, latency := s.call(ctx, http.MethodPatch, "/appointments/"+b.ID.String()+"/status", s.pool.token(b.DoctorID),
		map[string]string{"status": string(appointment.StatusConfirmed)})

	s.metrics.Confirm.Record(latency, status == http.StatusOK, expectedRejection(kind))
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	status, kind, _, latency := s.call(ctx, http.MethodDelete, "/appointments/"+b.ID.String(), s.pool.token(b.Patient),
		map[string]string{"reason": "simulated cancellation"})

	s.metrics.Cancel.Record(latency, status == http.StatusOK, expectedRejection(kind))
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	status, _, _, latency := s.call(ctx, http.MethodGet, "/appointments/"+b.ID.String(), s.pool.token(b.Patient), nil)
	s.metrics.ReadByID.Record(latency, status == http.StatusOK, false)
}

func (s *Simulator) doList(ctx context.Context, rng *rand.Rand) {
	var tok string
	if rng.Intn(2) == 0 {
		tok = s.pool.token(s.pool.Doctors[rng.Intn(len(s.pool.Doctors))])
	} else {
		tok = s.pool.token(s.pool.Patients[rng.Intn(len(s.pool.Patients))])
	}

	status, _, _, latency := s.call(ctx, http.MethodGet, "/appointments?limit=20", tok, nil)
	s.metrics.List.Record(latency, status == http.StatusOK, false)
}

// expectedRejection reports domain refusals that are normal under concurrent load.
func expectedRejection(kind string) bool {
	switch appointment.Kind(kind) {
	case appointment.KindSlotConflict, appointment.KindInvalidTransition, appointment.KindInvalidState:
		return true
	}
	return false
}

func (s *Simulator) call(ctx context.Context, method, path, token string, payload any) (status int, kind string, body []byte, latency time.Duration) {
	var reader io.Reader
	if payload != nil {
		raw, _ := json.Marshal(payload)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0, "", nil, 0
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := s.client.Do(req)
	latency = time.Since(start)
	if err != nil {
		return 0, "", nil, latency
	}
	defer resp.Body.Close()

	body, _ = io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		var e api.ErrorResponse
		if json.Unmarshal(body, &e) == nil {
			kind = e.Error
		}
	}
	return resp.StatusCode, kind, body, latency
}

func verifySlotUniqueness(ctx context.Context, pool *pgxpool.Pool) error {
	rows, err := pool.Query(ctx, `
		SELECT doctor_id, date, time_slot, count(*)
		FROM appointments
		WHERE status IN ('pending', 'confirmed')
		GROUP BY doctor_id, date, time_slot
		HAVING count(*) > 1
	`)
	if err != nil {
		return fmt.Errorf("query duplicates: %w", err)
	}
	defer rows.Close()

	var dups []string
	for rows.Next() {
		var (
			doctorID uuid.UUID
			date     time.Time
			slot     string
			n        int
		)
		if err := rows.Scan(&doctorID, &date, &slot, &n); err != nil {
			return err
		}
		dups = append(dups, fmt.Sprintf("%s %s %s x%d", doctorID, date.Format(appointment.DateLayout), slot, n))
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(dups) > 0 {
		return fmt.Errorf("%d slots double-booked: %s", len(dups), strings.Join(dups, "; "))
	}
	return nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Booking window: %d days x %d doctors x %d slots\n", s.config.Days, len(s.pool.Doctors), len(s.pool.Slots))
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Reschedule", &s.metrics.Reschedule)
	printOperationReport("Confirm", &s.metrics.Confirm)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("List", &s.metrics.List)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, lo, hi, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Rejected (conflict/state): %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), lo.Round(time.Millisecond), hi.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

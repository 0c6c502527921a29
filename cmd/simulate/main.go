package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
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

	"github.com/clinovia/clinic-scheduling/internal/config"
	"github.com/clinovia/clinic-scheduling/internal/db"
)

// The simulator hammers the public booking flow: many workers query
// availability for a small set of doctor/service pairs and race to hold,
// release and redeem the same slots. Conflicts (409) are the expected
// outcome under contention, not errors.

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	HoldRatio    float64
	RedeemRatio  float64
	ReleaseRatio float64
	DoctorLimit  int
	PatientLimit int
	PostgresDSN  string
}

type pair struct {
	DoctorID  uuid.UUID
	ServiceID uuid.UUID
}

type DataPool struct {
	Patients []uuid.UUID
	Pairs    []pair

	mu     sync.Mutex
	tokens []string
}

func (dp *DataPool) AddToken(token string) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.tokens = append(dp.tokens, token)
}

func (dp *DataPool) TakeRandomToken(rng *rand.Rand) (string, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.tokens) == 0 {
		return "", false
	}
	idx := rng.Intn(len(dp.tokens))
	token := dp.tokens[idx]
	dp.tokens = append(dp.tokens[:idx], dp.tokens[idx+1:]...)
	return token, true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success, conflict bool) {
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

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]

	p50Idx := len(latencies) * 50 / 100
	if p50Idx >= len(latencies) {
		p50Idx = len(latencies) - 1
	}
	p50 = latencies[p50Idx]

	p95Idx := len(latencies) * 95 / 100
	if p95Idx >= len(latencies) {
		p95Idx = len(latencies) - 1
	}
	p95 = latencies[p95Idx]

	return avg, min, max, p50, p95
}

type Metrics struct {
	Availability OperationMetrics
	Hold         OperationMetrics
	Redeem       OperationMetrics
	Release      OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d hold=%.2f redeem=%.2f release=%.2f",
		cfg.Duration, cfg.Workers, cfg.HoldRatio, cfg.RedeemRatio, cfg.ReleaseRatio)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}

	log.Printf("loaded: %d patients, %d doctor/service pairs", len(dataPool.Patients), len(dataPool.Pairs))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDurationEnv("SIM_DURATION", 30*time.Second),
		Workers:      getIntEnv("SIM_WORKERS", 10),
		HoldRatio:    getFloatEnv("SIM_HOLD_RATIO", 0.5),
		RedeemRatio:  getFloatEnv("SIM_REDEEM_RATIO", 0.2),
		ReleaseRatio: getFloatEnv("SIM_RELEASE_RATIO", 0.3),
		DoctorLimit:  getIntEnv("SIM_DOCTOR_LIMIT", 5),
		PatientLimit: getIntEnv("SIM_PATIENT_LIMIT", 1000),
		PostgresDSN:  baseCfg.PostgresDSN,
	}

	total := cfg.HoldRatio + cfg.RedeemRatio + cfg.ReleaseRatio
	if total > 0 {
		cfg.HoldRatio /= total
		cfg.RedeemRatio /= total
		cfg.ReleaseRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `SELECT id FROM patients LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, id)
	}

	// A small set of doctor/service pairs concentrates contention.
	rows, err = pool.Query(ctx, `
		SELECT doctor_id, service_id FROM doctor_services LIMIT $1
	`, cfg.DoctorLimit)
	if err != nil {
		return nil, fmt.Errorf("load doctor services: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p pair
		if err := rows.Scan(&p.DoctorID, &p.ServiceID); err != nil {
			return nil, err
		}
		dataPool.Pairs = append(dataPool.Pairs, p)
	}

	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded, run the seed binary first")
	}
	if len(dataPool.Pairs) == 0 {
		return nil, fmt.Errorf("no doctor/service pairs loaded, run the seed binary first")
	}

	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Println("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.HoldRatio:
				s.doHold(ctx, rng)
			case r < s.config.HoldRatio+s.config.RedeemRatio:
				s.doRedeem(ctx, rng)
			default:
				s.doRelease(ctx, rng)
			}
		}
	}
}

// doHold fetches availability for a random pair and races for the first
// open slot.
func (s *Simulator) doHold(ctx context.Context, rng *rand.Rand) {
	p := s.pool.Pairs[rng.Intn(len(s.pool.Pairs))]
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	date := time.Now().UTC().AddDate(0, 0, 1+rng.Intn(7)).Format("2006-01-02")

	start := time.Now()
	availURL := fmt.Sprintf("%s/availability?doctor_id=%s&service_id=%s&date=%s",
		s.config.APIBaseURL, p.DoctorID, p.ServiceID, date)
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, availURL, nil)
	resp, err := s.client.Do(req)
	latency := time.Since(start)

	if err != nil {
		s.metrics.Availability.Record(latency, false, false)
		return
	}

	var avail struct {
		Slots []string `json:"slots"`
	}
	decodeErr := json.NewDecoder(resp.Body).Decode(&avail)
	resp.Body.Close()
	s.metrics.Availability.Record(latency, resp.StatusCode == http.StatusOK && decodeErr == nil, false)

	if resp.StatusCode != http.StatusOK || len(avail.Slots) == 0 {
		return
	}

	body, _ := json.Marshal(map[string]string{
		"patient_id": patientID.String(),
		"doctor_id":  p.DoctorID.String(),
		"service_id": p.ServiceID.String(),
		"date":       date,
		"time":       avail.Slots[0],
	})

	start = time.Now()
	req, _ = http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+"/holds", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err = s.client.Do(req)
	latency = time.Since(start)

	if err != nil {
		s.metrics.Hold.Record(latency, false, false)
		return
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		var hr struct {
			Token string `json:"token"`
		}
		if json.NewDecoder(resp.Body).Decode(&hr) == nil && hr.Token != "" {
			s.pool.AddToken(hr.Token)
		}
		s.metrics.Hold.Record(latency, true, false)
	case http.StatusConflict:
		s.metrics.Hold.Record(latency, false, true)
	default:
		s.metrics.Hold.Record(latency, false, false)
	}
}

func (s *Simulator) doRedeem(ctx context.Context, rng *rand.Rand) {
	token, ok := s.pool.TakeRandomToken(rng)
	if !ok {
		return
	}
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	body, _ := json.Marshal(map[string]string{
		"patient_id": patientID.String(),
		"proof_ref":  "sim/proof-" + uuid.NewString(),
		"method":     "transfer",
	})

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/holds/%s/redeem", s.config.APIBaseURL, token), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	latency := time.Since(start)

	if err != nil {
		s.metrics.Redeem.Record(latency, false, false)
		return
	}
	defer resp.Body.Close()

	s.metrics.Redeem.Record(latency,
		resp.StatusCode == http.StatusCreated,
		resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusNotFound)
}

func (s *Simulator) doRelease(ctx context.Context, rng *rand.Rand) {
	token, ok := s.pool.TakeRandomToken(rng)
	if !ok {
		return
	}

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodDelete,
		fmt.Sprintf("%s/holds/%s", s.config.APIBaseURL, token), nil)
	resp, err := s.client.Do(req)
	latency := time.Since(start)

	if err != nil {
		s.metrics.Release.Record(latency, false, false)
		return
	}
	defer resp.Body.Close()

	s.metrics.Release.Record(latency, resp.StatusCode == http.StatusNoContent, false)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Availability", &s.metrics.Availability)
	printOperationReport("Hold", &s.metrics.Hold)
	printOperationReport("Redeem", &s.metrics.Redeem)
	printOperationReport("Release", &s.metrics.Release)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failures := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failures > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failures, float64(failures)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
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

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

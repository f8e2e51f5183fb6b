// Benchmark tool for measuring Merlin against labeled transactions.
//
// Usage:
//
//	go run ./cmd/benchmark -csv /path/to/labeled.csv -models ./models
//	go run ./cmd/benchmark -csv /path/to/labeled.csv -url http://localhost:8080
//
// This tool:
//  1. Reads labeled transactions (amount, day, type, transaction_pair_code,
//     part_of_the_day, is_fraud)
//  2. Scores each one in-process, or against a running merlind when -url is set
//  3. Compares the verdict with the fraud label
//  4. Prints precision, recall, F1-score and the confusion matrix
package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/merlin/internal/artifacts"
	"github.com/opensource-finance/merlin/internal/config"
	"github.com/opensource-finance/merlin/internal/domain"
	"github.com/opensource-finance/merlin/internal/ensemble"
	"github.com/opensource-finance/merlin/internal/models"
	"github.com/opensource-finance/merlin/internal/pipeline"
)

// LabeledTransaction is one row of the benchmark dataset.
type LabeledTransaction struct {
	Record  domain.TransactionRecord
	IsFraud bool
}

// Scorer produces a prediction for one transaction.
type Scorer interface {
	Score(ctx context.Context, rec domain.TransactionRecord) (*domain.PredictionResult, error)
}

// Metrics tracks benchmark results
type Metrics struct {
	TruePositives  int64 // Fraud predicted as fraud
	FalsePositives int64 // Legitimate predicted as fraud
	TrueNegatives  int64 // Legitimate predicted as legitimate
	FalseNegatives int64 // Fraud predicted as legitimate (missed fraud!)

	TotalProcessed int64
	TotalFraud     int64
	TotalNonFraud  int64
	TotalErrors    int64

	ProcessingTimeMs int64

	methodsMu sync.Mutex
	Methods   map[domain.PredictionMethod]int64
}

// Record adds one scored transaction to the metrics.
func (m *Metrics) Record(actual bool, res *domain.PredictionResult) {
	if actual {
		atomic.AddInt64(&m.TotalFraud, 1)
	} else {
		atomic.AddInt64(&m.TotalNonFraud, 1)
	}

	predicted := res.IsFraud
	switch {
	case predicted && actual:
		atomic.AddInt64(&m.TruePositives, 1)
	case predicted && !actual:
		atomic.AddInt64(&m.FalsePositives, 1)
	case !predicted && !actual:
		atomic.AddInt64(&m.TrueNegatives, 1)
	default:
		atomic.AddInt64(&m.FalseNegatives, 1)
	}

	m.methodsMu.Lock()
	if m.Methods == nil {
		m.Methods = make(map[domain.PredictionMethod]int64)
	}
	m.Methods[res.PredictionMethod]++
	m.methodsMu.Unlock()
}

// Precision is TP / (TP + FP).
func (m *Metrics) Precision() float64 {
	return ratio(m.TruePositives, m.TruePositives+m.FalsePositives)
}

// Recall is TP / (TP + FN).
func (m *Metrics) Recall() float64 {
	return ratio(m.TruePositives, m.TruePositives+m.FalseNegatives)
}

// F1 is the harmonic mean of precision and recall.
func (m *Metrics) F1() float64 {
	p, r := m.Precision(), m.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

// Accuracy is the share of correct verdicts.
func (m *Metrics) Accuracy() float64 {
	return ratio(m.TruePositives+m.TrueNegatives,
		m.TruePositives+m.TrueNegatives+m.FalsePositives+m.FalseNegatives)
}

func ratio(a, b int64) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}

func main() {
	csvPath := flag.String("csv", "", "Path to labeled CSV file")
	baseURL := flag.String("url", "", "merlind base URL (empty scores in-process)")
	modelDir := flag.String("models", "", "Model directory for in-process scoring (overrides MERLIN_MODEL_DIR)")
	limit := flag.Int("limit", 10000, "Maximum transactions to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	fraudOnly := flag.Bool("fraud-only", false, "Only test fraud transactions")
	verbose := flag.Bool("verbose", false, "Print each transaction result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/labeled.csv [-url http://localhost:8080 | -models ./models]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	// Pipeline diagnostics stay quiet unless something goes wrong
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	fmt.Println("MERLIN BENCHMARK - Labeled Fraud Detection")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Target:      %s\n", targetName(*baseURL))
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Printf("Fraud Only:  %v\n", *fraudOnly)
	fmt.Println()

	ctx := context.Background()

	var scorer Scorer
	if *baseURL != "" {
		if err := checkHealth(*baseURL); err != nil {
			fmt.Printf("ERROR: merlind not reachable at %s: %v\n", *baseURL, err)
			os.Exit(1)
		}
		fmt.Println("✓ merlind is healthy")
		scorer = &httpScorer{client: &http.Client{Timeout: 10 * time.Second}, baseURL: *baseURL}
	} else {
		s, closeFn, err := newLocalScorer(ctx, *modelDir)
		if err != nil {
			fmt.Printf("ERROR: failed to load models: %v\n", err)
			os.Exit(1)
		}
		defer closeFn()
		fmt.Println("✓ models loaded")
		scorer = s
	}

	f, err := os.Open(*csvPath)
	if err != nil {
		fmt.Printf("ERROR: Failed to open CSV: %v\n", err)
		os.Exit(1)
	}
	transactions, err := readLabeledCSV(f, *limit, *fraudOnly)
	f.Close()
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d transactions\n", len(transactions))
	if len(transactions) == 0 {
		os.Exit(0)
	}

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(ctx, transactions, scorer, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func targetName(baseURL string) string {
	if baseURL == "" {
		return "in-process"
	}
	return baseURL
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// readLabeledCSV reads rows by header name. Rows that fail to parse are
// skipped.
func readLabeledCSV(r io.Reader, limit int, fraudOnly bool) ([]LabeledTransaction, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	required := append([]string{"is_fraud"}, domain.RequiredFields...)
	for _, col := range required {
		if _, ok := colIndex[col]; !ok {
			return nil, fmt.Errorf("missing column: %s", col)
		}
	}

	var transactions []LabeledTransaction
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			continue
		}

		isFraud := row[colIndex["is_fraud"]] == "1"
		if fraudOnly && !isFraud {
			continue
		}

		amount, err := strconv.ParseFloat(row[colIndex[domain.FieldAmount]], 64)
		if err != nil {
			continue
		}
		day, err := strconv.Atoi(row[colIndex[domain.FieldDay]])
		if err != nil {
			continue
		}

		transactions = append(transactions, LabeledTransaction{
			Record: domain.TransactionRecord{
				Amount:    amount,
				Day:       day,
				Type:      row[colIndex[domain.FieldType]],
				PairCode:  row[colIndex[domain.FieldPairCode]],
				PartOfDay: row[colIndex[domain.FieldPartOfDay]],
			},
			IsFraud: isFraud,
		})

		if limit > 0 && len(transactions) >= limit {
			break
		}
	}

	return transactions, nil
}

func runBenchmark(ctx context.Context, transactions []LabeledTransaction, scorer Scorer, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}
	if numWorkers < 1 {
		numWorkers = 1
	}

	work := make(chan LabeledTransaction, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for tx := range work {
				start := time.Now()
				res, err := scorer.Score(ctx, tx.Record)
				atomic.AddInt64(&metrics.ProcessingTimeMs, time.Since(start).Milliseconds())
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %+v -> %v\n", tx.Record, err)
					}
					continue
				}

				metrics.Record(tx.IsFraud, res)

				if verbose {
					status := "✓"
					if res.IsFraud != tx.IsFraud {
						status = "✗"
					}
					fmt.Printf("%s %-9s | Amount: %12.2f | Fraud: %-5v | Merlin: %-10s (%.2f) via %s\n",
						status,
						tx.Record.Type,
						tx.Record.Amount,
						tx.IsFraud,
						res.Status,
						res.Probability,
						res.PredictionMethod,
					)
				}
			}
		}()
	}

	for _, tx := range transactions {
		work <- tx
	}
	close(work)

	wg.Wait()

	return metrics
}

// localScorer runs the pipeline in this process.
type localScorer struct {
	pipeline *pipeline.Pipeline
}

func newLocalScorer(ctx context.Context, modelDir string) (*localScorer, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if modelDir != "" {
		cfg.Artifacts.Source = "dir"
		cfg.Artifacts.Dir = modelDir
	}

	source, err := artifacts.New(cfg.Artifacts)
	if err != nil {
		return nil, nil, err
	}

	loader := pipeline.NewLoader(models.NewStore(source), ensemble.ResolveOptions{
		NeuralEnabled: cfg.Models.NeuralEnabled,
	})
	if _, err := loader.Models(ctx); err != nil {
		source.Close()
		return nil, nil, err
	}

	p, err := pipeline.New(loader, pipeline.Options{NeuralTimeout: cfg.Models.NeuralTimeout})
	if err != nil {
		source.Close()
		return nil, nil, err
	}
	return &localScorer{pipeline: p}, func() { source.Close() }, nil
}

func (s *localScorer) Score(ctx context.Context, rec domain.TransactionRecord) (*domain.PredictionResult, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return s.pipeline.Run(ctx, raw)
}

// httpScorer posts to a running merlind.
type httpScorer struct {
	client  *http.Client
	baseURL string
}

func (s *httpScorer) Score(ctx context.Context, rec domain.TransactionRecord) (*domain.PredictionResult, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&e)
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, e.Error)
	}

	var result domain.PredictionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\nBENCHMARK RESULTS")

	fmt.Printf("\nDATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Fraud:      %d\n", m.TotalFraud)
	fmt.Printf("   Total Non-Fraud:  %d\n", m.TotalNonFraud)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\nCONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                   FRAUD     LEGIT")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("   Actual  F  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("          NF  │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

	fmt.Printf("\nDETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f\n", m.Precision())
	fmt.Printf("   Recall:     %.4f\n", m.Recall())
	fmt.Printf("   F1-Score:   %.4f\n", m.F1())
	fmt.Printf("   Accuracy:   %.4f\n", m.Accuracy())

	if len(m.Methods) > 0 {
		fmt.Printf("\nPREDICTION METHODS\n")
		for method, n := range m.Methods {
			fmt.Printf("   %-20s %d\n", method, n)
		}
	}

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		tps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f tx/sec\n", tps)
	}

	fmt.Println()
}

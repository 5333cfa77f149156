// Benchmark replays labeled PaySim data against a running osprey-risk.
//
// Usage:
//
//	go run ./cmd/benchmark -csv /path/to/paysim.csv -url http://localhost:8080
//
// Each row becomes a POST /score call. Flagged decisions (review or block)
// are compared with the isFraud label to build a confusion matrix. With
// -calibrate the collected scores are posted to /calibrate afterwards.
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
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opensource-finance/osprey-risk/internal/domain"
)

// PaySimTransaction is one row of the PaySim dataset.
type PaySimTransaction struct {
	Step           int
	Type           string
	Amount         float64
	NameOrig       string
	OldBalanceOrg  float64
	NewBalanceOrig float64
	NameDest       string
	IsFraud        bool
}

// Metrics tracks benchmark results.
type Metrics struct {
	TruePositives  int64 // fraud flagged
	FalsePositives int64 // legitimate flagged
	TrueNegatives  int64 // legitimate approved
	FalseNegatives int64 // fraud approved

	Blocked int64

	TotalProcessed int64
	TotalFraud     int64
	TotalNonFraud  int64
	TotalErrors    int64

	ProcessingTimeMs int64

	mu      sync.Mutex
	samples []domain.LabeledScore
}

// Record adds one scored transaction.
func (m *Metrics) Record(resp *domain.ScoreResponse, isFraud bool) {
	if isFraud {
		atomic.AddInt64(&m.TotalFraud, 1)
	} else {
		atomic.AddInt64(&m.TotalNonFraud, 1)
	}
	if resp.Decision == domain.ActionBlock {
		atomic.AddInt64(&m.Blocked, 1)
	}

	flagged := resp.Decision != domain.ActionApprove
	switch {
	case flagged && isFraud:
		atomic.AddInt64(&m.TruePositives, 1)
	case flagged && !isFraud:
		atomic.AddInt64(&m.FalsePositives, 1)
	case !flagged && !isFraud:
		atomic.AddInt64(&m.TrueNegatives, 1)
	default:
		atomic.AddInt64(&m.FalseNegatives, 1)
	}

	m.mu.Lock()
	m.samples = append(m.samples, domain.LabeledScore{Score: resp.FraudScore, IsFraud: isFraud})
	m.mu.Unlock()
}

// Precision is the share of flags that were fraud.
func (m *Metrics) Precision() float64 {
	return ratio(m.TruePositives, m.TruePositives+m.FalsePositives)
}

// Recall is the share of fraud that was flagged.
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

func ratio(a, b int64) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}

func main() {
	csvPath := flag.String("csv", "", "Path to PaySim CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "osprey-risk base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	limit := flag.Int("limit", 10000, "Maximum transactions to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	fraudOnly := flag.Bool("fraud-only", false, "Only test fraud transactions")
	sampleRate := flag.Float64("sample", 1.0, "Sample rate for non-fraud (0.0-1.0)")
	calibrate := flag.Bool("calibrate", false, "Post the labeled scores to /calibrate when done")
	verbose := flag.Bool("verbose", false, "Print each transaction result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/paysim.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("OSPREY RISK BENCHMARK - PaySim")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("URL:         %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Printf("Fraud Only:  %v\n", *fraudOnly)
	fmt.Printf("Sample Rate: %.2f\n", *sampleRate)
	fmt.Println()

	client := &http.Client{Timeout: 10 * time.Second}
	if err := checkHealth(client, *baseURL); err != nil {
		fmt.Printf("ERROR: osprey-risk not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nStart it with:")
		fmt.Println("  go run ./cmd/osprey-risk")
		os.Exit(1)
	}
	fmt.Println("service is healthy")

	file, err := os.Open(*csvPath)
	if err != nil {
		fmt.Printf("ERROR: Failed to open CSV: %v\n", err)
		os.Exit(1)
	}
	transactions, err := readPaySimCSV(file, *limit, *fraudOnly, *sampleRate)
	file.Close()
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	if len(transactions) == 0 {
		fmt.Println("ERROR: no transactions loaded")
		os.Exit(1)
	}
	fmt.Printf("loaded %d transactions\n", len(transactions))

	start := time.Now()
	metrics := runBenchmark(context.Background(), client, transactions, *baseURL, *tenantID, *workers, *verbose)
	printResults(metrics, time.Since(start))

	if *calibrate {
		report, err := postCalibration(client, *baseURL, *tenantID, metrics.samples)
		if err != nil {
			fmt.Printf("ERROR: calibration failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("CALIBRATION\n")
		fmt.Printf("   Approve below:  %.4f\n", report.Approve)
		fmt.Printf("   Block from:     %.4f\n", report.Block)
		fmt.Printf("   Expected cost:  %.4f per transaction\n", report.ExpectedCost)
	}
}

func checkHealth(client *http.Client, baseURL string) error {
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readPaySimCSV(r io.Reader, limit int, fraudOnly bool, sampleRate float64) ([]PaySimTransaction, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, col := range []string{"step", "type", "amount", "nameorig", "namedest", "isfraud"} {
		if _, ok := colIndex[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}
	field := func(record []string, col string) string {
		if i, ok := colIndex[col]; ok && i < len(record) {
			return record[i]
		}
		return ""
	}

	var transactions []PaySimTransaction
	sampleCounter := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		isFraud := field(record, "isfraud") == "1"
		if fraudOnly && !isFraud {
			continue
		}
		if !isFraud && sampleRate < 1.0 {
			sampleCounter++
			if float64(sampleCounter%100)/100.0 >= sampleRate {
				continue
			}
		}

		step, _ := strconv.Atoi(field(record, "step"))
		amount, _ := strconv.ParseFloat(field(record, "amount"), 64)
		oldBalance, _ := strconv.ParseFloat(field(record, "oldbalanceorg"), 64)
		newBalance, _ := strconv.ParseFloat(field(record, "newbalanceorig"), 64)

		transactions = append(transactions, PaySimTransaction{
			Step:           step,
			Type:           field(record, "type"),
			Amount:         amount,
			NameOrig:       field(record, "nameorig"),
			OldBalanceOrg:  oldBalance,
			NewBalanceOrig: newBalance,
			NameDest:       field(record, "namedest"),
			IsFraud:        isFraud,
		})
		if limit > 0 && len(transactions) >= limit {
			break
		}
	}
	return transactions, nil
}

// toScoreRequest maps a PaySim row. Steps are simulated hours from epoch.
func toScoreRequest(tx PaySimTransaction, epoch time.Time, seq int) domain.ScoreRequest {
	return domain.ScoreRequest{
		ID:         fmt.Sprintf("paysim-%d-%s", seq, tx.NameOrig),
		UserID:     tx.NameOrig,
		MerchantID: tx.NameDest,
		DeviceID:   tx.NameOrig + "-device",
		Amount:     tx.Amount,
		Currency:   "USD",
		Timestamp:  epoch.Add(time.Duration(tx.Step)*time.Hour + time.Duration(seq)*time.Millisecond),
	}
}

func runBenchmark(ctx context.Context, client *http.Client, transactions []PaySimTransaction, baseURL, tenantID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}
	epoch := time.Now().UTC().Add(-time.Duration(maxStep(transactions)+1) * time.Hour)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(numWorkers)
	for i, tx := range transactions {
		i, tx := i, tx
		g.Go(func() error {
			start := time.Now()
			resp, err := scoreTransaction(ctx, client, baseURL, tenantID, toScoreRequest(tx, epoch, i))
			atomic.AddInt64(&metrics.ProcessingTimeMs, time.Since(start).Milliseconds())
			atomic.AddInt64(&metrics.TotalProcessed, 1)
			if err != nil {
				atomic.AddInt64(&metrics.TotalErrors, 1)
				if verbose {
					fmt.Printf("ERROR: %s -> %v\n", tx.NameOrig, err)
				}
				return nil
			}
			metrics.Record(resp, tx.IsFraud)

			if verbose {
				mark := "ok "
				if (resp.Decision != domain.ActionApprove) != tx.IsFraud {
					mark = "err"
				}
				fmt.Printf("%s %-12s | Type: %-8s | Amount: %12.2f | Fraud: %-5v | %-7s (%.3f) | %s\n",
					mark, tx.NameOrig, tx.Type, tx.Amount, tx.IsFraud, resp.Decision, resp.FraudScore, resp.ExplanationText)
			}
			return nil
		})
	}
	_ = g.Wait()
	return metrics
}

func maxStep(transactions []PaySimTransaction) int {
	m := 0
	for _, tx := range transactions {
		if tx.Step > m {
			m = tx.Step
		}
	}
	return m
}

func scoreTransaction(ctx context.Context, client *http.Client, baseURL, tenantID string, req domain.ScoreRequest) (*domain.ScoreResponse, error) {
	var resp domain.ScoreResponse
	if err := postJSON(ctx, client, baseURL+"/score", tenantID, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type calibrationReport struct {
	Approve      float64 `json:"approveThreshold"`
	Block        float64 `json:"blockThreshold"`
	ExpectedCost float64 `json:"expectedCost"`
}

func postCalibration(client *http.Client, baseURL, tenantID string, samples []domain.LabeledScore) (*calibrationReport, error) {
	var report calibrationReport
	body := map[string]any{"samples": samples}
	if err := postJSON(context.Background(), client, baseURL+"/calibrate", tenantID, body, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func postJSON(ctx context.Context, client *http.Client, url, tenantID string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\nBENCHMARK RESULTS")

	fmt.Printf("\nDATASET\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Fraud:      %d\n", m.TotalFraud)
	fmt.Printf("   Total Non-Fraud:  %d\n", m.TotalNonFraud)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\nCONFUSION MATRIX (flagged = review or block)\n")
	fmt.Println("                    FLAGGED    APPROVED")
	fmt.Printf("   Actual fraud   %9d   %9d   (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Printf("   Legitimate     %9d   %9d   (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Printf("   Blocked        %9d\n", m.Blocked)

	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	fmt.Printf("\nDETECTION\n")
	fmt.Printf("   Precision:  %.4f\n", m.Precision())
	fmt.Printf("   Recall:     %.4f\n", m.Recall())
	fmt.Printf("   F1-Score:   %.4f\n", m.F1())
	fmt.Printf("   Accuracy:   %.4f\n", ratio(m.TruePositives+m.TrueNegatives, total))
	if m.TotalNonFraud > 0 {
		fmt.Printf("   False Alarms: %d / %d (%.2f%%)\n", m.FalsePositives, m.TotalNonFraud, 100*ratio(m.FalsePositives, m.TotalNonFraud))
	}

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		fmt.Printf("   Avg Latency:      %.2f ms\n", float64(m.ProcessingTimeMs)/float64(m.TotalProcessed))
		fmt.Printf("   Throughput:       %.2f tx/sec\n", float64(m.TotalProcessed)/duration.Seconds())
	}
	fmt.Println()
}

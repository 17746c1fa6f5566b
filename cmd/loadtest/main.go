package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	idempotencyHeader = "Idempotency-Key"
	apiPrefix         = "/api/v1"

	codeTransportError = "transport_error"
	kindInsufficient   = "insufficient_stock"
)

type loadMode string

const (
	modeCheckout       loadMode = "checkout"
	modeCheckoutCancel loadMode = "checkout-cancel"
)

type config struct {
	addr        string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	connections int
	timeout     time.Duration
	mode        loadMode
	cancelRate  int
	stock       int64
	quantity    int64
	price       string
	userBase    int64
	outputPath  string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type methodReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Codes     map[string]int64 `json:"codes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

// inventoryReport хранит сверку остатка после прогона.
type inventoryReport struct {
	ProductID      int64 `json:"product_id"`
	InitialStock   int64 `json:"initial_stock"`
	SoldUnits      int64 `json:"sold_units"`
	RestockedUnits int64 `json:"restocked_units"`
	ExpectedStock  int64 `json:"expected_stock"`
	FinalStock     int64 `json:"final_stock"`
	OrdersPlaced   int64 `json:"orders_placed"`
	Rejected       int64 `json:"rejected_insufficient_stock"`
	UniqueNumbers  int64 `json:"unique_order_numbers"`
	Consistent     bool  `json:"consistent"`
}

type report struct {
	StartedAt         time.Time               `json:"started_at"`
	DurationSeconds   float64                 `json:"duration_seconds"`
	TotalScenarios    int64                   `json:"total_scenarios"`
	SuccessScenarios  int64                   `json:"success_scenarios"`
	FailedScenarios   int64                   `json:"failed_scenarios"`
	ErrorRate         float64                 `json:"error_rate"`
	RPS               float64                 `json:"rps"`
	ScenarioLatencyMs latencySummary          `json:"scenario_latency_ms"`
	Methods           map[string]methodReport `json:"methods"`
	Inventory         *inventoryReport        `json:"inventory,omitempty"`
}

type methodStats struct {
	calls     int64
	success   int64
	failed    int64
	codes     map[string]int64
	latencies []float64
}

type collector struct {
	mu      sync.Mutex
	methods map[string]*methodStats
}

func newCollector() *collector {
	return &collector{
		methods: make(map[string]*methodStats),
	}
}

func (c *collector) record(method string, latency time.Duration, code string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, found := c.methods[method]
	if !found {
		stats = &methodStats{
			codes: make(map[string]int64),
		}
		c.methods[method] = stats
	}

	stats.calls++
	if ok {
		stats.success++
	} else {
		stats.failed++
	}
	stats.codes[code]++
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000.0)
}

func (c *collector) snapshot(name string) (methodReport, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.methods[name]
	if !ok {
		return methodReport{}, false
	}
	return stats.report(), true
}

func (s *methodStats) report() methodReport {
	codesCopy := make(map[string]int64, len(s.codes))
	for code, count := range s.codes {
		codesCopy[code] = count
	}
	return methodReport{
		Calls:     s.calls,
		Success:   s.success,
		Failed:    s.failed,
		ErrorRate: ratio(s.failed, s.calls),
		Codes:     codesCopy,
		LatencyMs: buildLatencySummary(s.latencies),
	}
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Methods:         make(map[string]methodReport, len(c.methods)),
	}

	if scenarioStats := c.methods["scenario"]; scenarioStats != nil {
		result.TotalScenarios = scenarioStats.calls
		result.SuccessScenarios = scenarioStats.success
		result.FailedScenarios = scenarioStats.failed
		result.ErrorRate = ratio(scenarioStats.failed, scenarioStats.calls)
		result.ScenarioLatencyMs = buildLatencySummary(scenarioStats.latencies)
	}
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}

	for name, stats := range c.methods {
		result.Methods[name] = stats.report()
	}

	return result
}

// ledger — итоги оформлений, по которым проверяется отсутствие перепродажи.
type ledger struct {
	mu        sync.Mutex
	numbers   map[string]struct{}
	duplicate []string
	placed    int64
	rejected  int64
	sold      int64
	restocked int64
}

func newLedger() *ledger {
	return &ledger{numbers: make(map[string]struct{})}
}

func (l *ledger) placedOrder(number string, units int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, seen := l.numbers[number]; seen {
		l.duplicate = append(l.duplicate, number)
	}
	l.numbers[number] = struct{}{}
	l.placed++
	l.sold += units
}

func (l *ledger) rejectedOrder() {
	l.mu.Lock()
	l.rejected++
	l.mu.Unlock()
}

func (l *ledger) cancelledOrder(units int64) {
	l.mu.Lock()
	l.restocked += units
	l.mu.Unlock()
}

func (l *ledger) reconcile(productID, initial, final int64) inventoryReport {
	l.mu.Lock()
	defer l.mu.Unlock()

	expected := initial - l.sold + l.restocked
	return inventoryReport{
		ProductID:      productID,
		InitialStock:   initial,
		SoldUnits:      l.sold,
		RestockedUnits: l.restocked,
		ExpectedStock:  expected,
		FinalStock:     final,
		OrdersPlaced:   l.placed,
		Rejected:       l.rejected,
		UniqueNumbers:  int64(len(l.numbers)),
		Consistent:     final == expected && final >= 0 && len(l.duplicate) == 0,
	}
}

// apiClient — минимальный JSON-клиент HTTP API магазина.
type apiClient struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
}

type apiError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type productBody struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Stock int64  `json:"stock"`
}

type orderBody struct {
	ID          string `json:"id"`
	OrderNumber string `json:"orderNumber"`
	Status      string `json:"status"`
	Lines       []struct {
		Quantity int64 `json:"quantity"`
	} `json:"lines"`
}

func (o orderBody) units() int64 {
	var total int64
	for _, line := range o.Lines {
		total += line.Quantity
	}
	return total
}

// response — результат вызова: HTTP-статус и вид ошибки для неуспешных ответов.
type response struct {
	status int
	kind   string
}

func (r response) code() string {
	if r.status == 0 {
		return codeTransportError
	}
	return strconv.Itoa(r.status)
}

func newAPIClient(cfg config) *apiClient {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxConnsPerHost = cfg.connections
	transport.MaxIdleConnsPerHost = cfg.connections

	return &apiClient{
		baseURL: normalizeBaseURL(cfg.addr),
		http:    &http.Client{Transport: transport},
		timeout: cfg.timeout,
	}
}

func normalizeBaseURL(addr string) string {
	addr = strings.TrimRight(strings.TrimSpace(addr), "/")
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}
	return addr
}

func (c *apiClient) do(method, path string, headers map[string]string, in, out any) (response, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return response{}, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, body)
	if err != nil {
		return response{}, fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return response{}, err
	}
	defer resp.Body.Close()

	result := response{status: resp.StatusCode}
	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr apiError
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		result.kind = apiErr.Kind
		return result, fmt.Errorf("%s %s: status %d %s", method, path, resp.StatusCode, apiErr.Kind)
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return result, fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	return result, nil
}

func (c *apiClient) createProduct(cfg config, runID string) (productBody, error) {
	var product productBody
	_, err := c.do(http.MethodPost, "/products", nil, map[string]any{
		"name":        "loadtest-" + runID,
		"description": "checkout contention run",
		"price":       cfg.price,
		"stock":       cfg.stock,
	}, &product)
	return product, err
}

func (c *apiClient) getProduct(id int64) (productBody, error) {
	var product productBody
	_, err := c.do(http.MethodGet, "/products/"+strconv.FormatInt(id, 10), nil, nil, &product)
	return product, err
}

func parseConfig() (config, error) {
	var cfg config
	var modeValue string
	var timeoutValue string
	var durationValue string

	flag.StringVar(&cfg.addr, "addr", "localhost:8080", "HTTP API address")
	flag.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	flag.StringVar(&durationValue, "duration", "0s", "optional time-based run duration (e.g. 10m, 15m)")
	flag.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	flag.IntVar(&cfg.connections, "connections", 20, "max HTTP connections to the API")
	flag.StringVar(&timeoutValue, "timeout", "5s", "per-request timeout")
	flag.StringVar(&modeValue, "mode", string(modeCheckout), "load mode: checkout | checkout-cancel")
	flag.IntVar(&cfg.cancelRate, "cancel-rate", 0, "cancel probability in percent for checkout mode (0..100)")
	flag.Int64Var(&cfg.stock, "stock", 100, "initial stock of the contended product")
	flag.Int64Var(&cfg.quantity, "quantity", 1, "units each user puts into the cart")
	flag.StringVar(&cfg.price, "price", "9.99", "price of the contended product")
	flag.Int64Var(&cfg.userBase, "user-base", 0, "first user id; defaults to a run-unique offset")
	flag.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	flag.Parse()

	timeout, err := time.ParseDuration(strings.TrimSpace(timeoutValue))
	if err != nil {
		return cfg, fmt.Errorf("parse timeout: %w", err)
	}
	cfg.timeout = timeout

	duration, err := time.ParseDuration(strings.TrimSpace(durationValue))
	if err != nil {
		return cfg, fmt.Errorf("parse duration: %w", err)
	}
	cfg.duration = duration

	flag.CommandLine.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode

	if cfg.userBase == 0 {
		cfg.userBase = time.Now().Unix() % 1_000_000 * 10_000
	}

	return cfg, validateConfig(cfg)
}

func validateConfig(cfg config) error {
	if strings.TrimSpace(cfg.addr) == "" {
		return errors.New("addr is required")
	}
	if cfg.duration < 0 {
		return errors.New("duration must be >= 0")
	}
	if cfg.duration == 0 && cfg.total <= 0 {
		return errors.New("total must be > 0 when duration is not set")
	}
	if cfg.duration > 0 && cfg.totalSet && cfg.total <= 0 {
		return errors.New("total must be > 0 when explicitly set with duration")
	}
	if cfg.concurrency <= 0 {
		return errors.New("concurrency must be > 0")
	}
	if cfg.connections <= 0 {
		return errors.New("connections must be > 0")
	}
	if cfg.timeout <= 0 {
		return errors.New("timeout must be > 0")
	}
	if cfg.stock < 0 {
		return errors.New("stock must be >= 0")
	}
	if cfg.quantity <= 0 {
		return errors.New("quantity must be > 0")
	}
	price, err := decimal.NewFromString(strings.TrimSpace(cfg.price))
	if err != nil {
		return fmt.Errorf("parse price: %w", err)
	}
	if !price.IsPositive() {
		return errors.New("price must be > 0")
	}
	if cfg.cancelRate < 0 || cfg.cancelRate > 100 {
		return errors.New("cancel-rate must be between 0 and 100")
	}
	if cfg.userBase < 0 {
		return errors.New("user-base must be >= 0")
	}
	return nil
}

func parseMode(value string) (loadMode, error) {
	switch loadMode(strings.TrimSpace(value)) {
	case modeCheckout:
		return modeCheckout, nil
	case modeCheckoutCancel:
		return modeCheckoutCancel, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	result, err := run(cfg)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}

	printReport(result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.FailedScenarios > 0 || (result.Inventory != nil && !result.Inventory.Consistent) {
		os.Exit(1)
	}
}

// run засевает товар с ограниченным остатком, гоняет конкурентные оформления
// и сверяет итоговый остаток с числом проданных единиц.
func run(cfg config) (report, error) {
	client := newAPIClient(cfg)
	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())

	product, err := client.createProduct(cfg, runID)
	if err != nil {
		return report{}, fmt.Errorf("seed product: %w", err)
	}

	col := newCollector()
	book := newLedger()

	jobs := make(chan int, cfg.concurrency*2)
	var failures int64
	var wg sync.WaitGroup

	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				if runErr := runScenario(client, cfg, product.ID, id, col, book); runErr != nil {
					atomic.AddInt64(&failures, 1)
				}
			}
		}()
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	duration := time.Since(startedAt)
	result := col.buildReport(startedAt, duration)
	if result.FailedScenarios == 0 && failures > 0 {
		result.FailedScenarios = failures
		result.ErrorRate = ratio(result.FailedScenarios, result.TotalScenarios)
	}

	final, err := client.getProduct(product.ID)
	if err != nil {
		return result, fmt.Errorf("read final stock: %w", err)
	}
	inventory := book.reconcile(product.ID, cfg.stock, final.Stock)
	result.Inventory = &inventory

	return result, nil
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}

		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

// runScenario: положить товар в корзину своего пользователя и оформить её.
// Отказ из-за нехватки остатка считается ожидаемым исходом, а не ошибкой.
func runScenario(client *apiClient, cfg config, productID int64, index int, col *collector, book *ledger) (err error) {
	scenarioStart := time.Now()
	defer func() {
		code := "ok"
		if err != nil {
			code = "failed"
		}
		col.record("scenario", time.Since(scenarioStart), code, err == nil)
	}()

	userID := cfg.userBase + int64(index) + 1

	if err := callAddToCart(client, userID, productID, cfg.quantity, col); err != nil {
		return err
	}

	order, rejected, err := callCheckout(client, userID, uuid.NewString(), col)
	if err != nil {
		return err
	}
	if rejected {
		book.rejectedOrder()
		// Корзина после отказа остаётся, её нужно очистить для повторных прогонов.
		return callClearCart(client, userID, col)
	}
	if order.OrderNumber == "" {
		return errors.New("checkout response returned empty order number")
	}
	book.placedOrder(order.OrderNumber, order.units())

	if cfg.mode == modeCheckoutCancel || (cfg.mode == modeCheckout && shouldCancelScenario(index, cfg.cancelRate)) {
		if err := callCancelOrder(client, order.ID, col); err != nil {
			return err
		}
		book.cancelledOrder(order.units())
	}

	return nil
}

func callAddToCart(client *apiClient, userID, productID, quantity int64, col *collector) error {
	start := time.Now()
	resp, err := client.do(http.MethodPost, "/cart/items", nil, map[string]int64{
		"userId":    userID,
		"productId": productID,
		"quantity":  quantity,
	}, nil)
	col.record("AddCartItem", time.Since(start), resp.code(), err == nil)
	return err
}

func callCheckout(client *apiClient, userID int64, key string, col *collector) (orderBody, bool, error) {
	start := time.Now()
	var order orderBody
	resp, err := client.do(http.MethodPost, "/orders/checkout", map[string]string{idempotencyHeader: key}, map[string]any{
		"userId":        userID,
		"customerName":  fmt.Sprintf("Load User %d", userID),
		"customerEmail": fmt.Sprintf("load-%d@example.com", userID),
	}, &order)

	rejected := resp.status == http.StatusConflict && resp.kind == kindInsufficient
	col.record("Checkout", time.Since(start), resp.code(), err == nil || rejected)
	if rejected {
		return orderBody{}, true, nil
	}
	return order, false, err
}

func callCancelOrder(client *apiClient, orderID string, col *collector) error {
	start := time.Now()
	resp, err := client.do(http.MethodPatch, "/orders/"+orderID+"/status", nil, map[string]string{
		"status": "cancelled",
	}, nil)
	col.record("CancelOrder", time.Since(start), resp.code(), err == nil)
	return err
}

func callClearCart(client *apiClient, userID int64, col *collector) error {
	start := time.Now()
	resp, err := client.do(http.MethodDelete, "/cart/users/"+strconv.FormatInt(userID, 10), nil, nil, nil)
	col.record("ClearCart", time.Since(start), resp.code(), err == nil)
	return err
}

func shouldCancelScenario(index, cancelRate int) bool {
	if cancelRate <= 0 {
		return false
	}
	if cancelRate >= 100 {
		return true
	}
	return index%100 < cancelRate
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- path is an explicit CLI output parameter for local load-test reports.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(result report, cfg config) {
	fmt.Println("Load test summary")
	fmt.Printf("mode=%s run=%s total=%d success=%d failed=%d error_rate=%.4f\n",
		cfg.mode,
		runTarget(cfg),
		result.TotalScenarios,
		result.SuccessScenarios,
		result.FailedScenarios,
		result.ErrorRate,
	)
	fmt.Printf("duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)
	fmt.Printf("scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		result.ScenarioLatencyMs.Min,
		result.ScenarioLatencyMs.Avg,
		result.ScenarioLatencyMs.P50,
		result.ScenarioLatencyMs.P95,
		result.ScenarioLatencyMs.P99,
		result.ScenarioLatencyMs.Max,
	)

	methodNames := make([]string, 0, len(result.Methods))
	for name := range result.Methods {
		if name == "scenario" {
			continue
		}
		methodNames = append(methodNames, name)
	}
	sort.Strings(methodNames)
	for _, name := range methodNames {
		stats := result.Methods[name]
		fmt.Printf(
			"%s: calls=%d success=%d failed=%d error_rate=%.4f p95=%.2fms\n",
			name,
			stats.Calls,
			stats.Success,
			stats.Failed,
			stats.ErrorRate,
			stats.LatencyMs.P95,
		)
	}

	if inv := result.Inventory; inv != nil {
		fmt.Printf(
			"inventory: product=%d initial=%d sold=%d restocked=%d expected=%d final=%d orders=%d rejected=%d unique_numbers=%d consistent=%t\n",
			inv.ProductID,
			inv.InitialStock,
			inv.SoldUnits,
			inv.RestockedUnits,
			inv.ExpectedStock,
			inv.FinalStock,
			inv.OrdersPlaced,
			inv.Rejected,
			inv.UniqueNumbers,
			inv.Consistent,
		)
	}
}

func runTarget(cfg config) string {
	if cfg.duration <= 0 {
		return fmt.Sprintf("count:%d", cfg.total)
	}
	if cfg.totalSet {
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	}
	return fmt.Sprintf("duration:%s", cfg.duration)
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}

	weight := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}

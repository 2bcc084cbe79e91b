// Команда loadtest гоняет сценарии покупателя против HTTP API маркетплейса.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

const (
	headerActorID        = "X-Actor-ID"
	headerActorRole      = "X-Actor-Role"
	headerSessionID      = "X-Session-ID"
	headerIdempotencyKey = "Idempotency-Key"
)

type loadMode string

const (
	modeBrowse          loadMode = "browse"
	modeCheckout        loadMode = "checkout"
	modeCheckoutFulfill loadMode = "checkout-fulfill"
)

type config struct {
	addr        string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	timeout     time.Duration
	mode        loadMode
	productID   string
	quantity    int
	buyerTag    string
	address     string
	phone       string
	outputPath  string
}

func parseConfig(args []string) (config, error) {
	var cfg config
	var modeValue string

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.StringVar(&cfg.addr, "addr", "http://localhost:8080", "marketplace HTTP base URL")
	fs.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	fs.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 10m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-request timeout")
	fs.StringVar(&modeValue, "mode", string(modeCheckout), "load mode: browse | checkout | checkout-fulfill")
	fs.StringVar(&cfg.productID, "product", "", "product id to browse or buy")
	fs.IntVar(&cfg.quantity, "qty", 1, "quantity per checkout")
	fs.StringVar(&cfg.buyerTag, "buyer-tag", "load", "buyer id prefix")
	fs.StringVar(&cfg.address, "address", "1 Load Test Street", "delivery address")
	fs.StringVar(&cfg.phone, "phone", "+10000000000", "delivery phone")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode
	cfg.addr = strings.TrimRight(strings.TrimSpace(cfg.addr), "/")

	switch {
	case cfg.addr == "":
		return cfg, errors.New("addr is required")
	case cfg.duration < 0:
		return cfg, errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when duration is not set")
	case cfg.duration > 0 && cfg.totalSet && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	case cfg.concurrency <= 0:
		return cfg, errors.New("concurrency must be > 0")
	case cfg.timeout <= 0:
		return cfg, errors.New("timeout must be > 0")
	case strings.TrimSpace(cfg.productID) == "":
		return cfg, errors.New("product is required")
	case cfg.quantity <= 0:
		return cfg, errors.New("qty must be > 0")
	case strings.TrimSpace(cfg.buyerTag) == "":
		return cfg, errors.New("buyer-tag is required")
	}
	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch mode := loadMode(strings.TrimSpace(value)); mode {
	case modeBrowse, modeCheckout, modeCheckoutFulfill:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	client := &http.Client{Transport: &http.Transport{
		MaxIdleConns:        cfg.concurrency,
		MaxIdleConnsPerHost: cfg.concurrency,
		IdleConnTimeout:     30 * time.Second,
	}}
	result := run(client, cfg)

	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}
	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

func run(client *http.Client, cfg config) report {
	startedAt := time.Now()
	lt := &loadTester{
		client: client,
		cfg:    cfg,
		col:    newCollector(),
		runID:  fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid()),
	}

	jobs := make(chan int, cfg.concurrency*2)
	var wg sync.WaitGroup
	for range cfg.concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				lt.runScenario(id)
			}
		}()
	}
	dispatchJobs(jobs, cfg)
	wg.Wait()

	return lt.col.buildReport(startedAt, time.Since(startedAt))
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

type loadTester struct {
	client *http.Client
	cfg    config
	col    *collector
	runID  string
}

type actor struct {
	id        string
	role      string
	sessionID string
}

type orderItem struct {
	ID         string `json:"id"`
	SupplierID string `json:"supplier_id"`
}

type placedOrder struct {
	ID    string      `json:"id"`
	Items []orderItem `json:"items"`
}

// runScenario выполняет один сценарий и записывает его итог под scenarioKey.
func (lt *loadTester) runScenario(index int) {
	start := time.Now()
	status := http.StatusOK
	defer func() { lt.col.record(scenarioKey, time.Since(start), status) }()

	var err error
	switch lt.cfg.mode {
	case modeBrowse:
		status, err = lt.browse()
	default:
		status, err = lt.checkout(index)
	}
	if err != nil && isSuccess(status) {
		status = http.StatusInternalServerError
	}
}

func (lt *loadTester) browse() (int, error) {
	status, err := lt.call("ListProducts", actor{}, http.MethodGet, "/api/v1/products?limit=20", nil, nil, nil)
	if err != nil || !isSuccess(status) {
		return status, err
	}
	return lt.call("GetProduct", actor{}, http.MethodGet, "/api/v1/products/"+lt.cfg.productID, nil, nil, nil)
}

func (lt *loadTester) checkout(index int) (int, error) {
	buyer := actor{id: fmt.Sprintf("%s-%s-%d", lt.cfg.buyerTag, lt.runID, index), role: "buyer"}

	var session struct {
		SessionID string `json:"session_id"`
	}
	status, err := lt.call("OpenSession", buyer, http.MethodPost, "/api/v1/sessions", nil, nil, &session)
	if err != nil || !isSuccess(status) {
		return status, err
	}
	if session.SessionID == "" {
		return status, errors.New("open session returned empty session id")
	}
	buyer.sessionID = session.SessionID

	add := map[string]any{"product_id": lt.cfg.productID}
	if status, err = lt.call("AddToCart", buyer, http.MethodPost, "/api/v1/cart/items", add, nil, nil); err != nil || !isSuccess(status) {
		return status, err
	}
	// Новая строка корзины всегда создаётся с количеством 1.
	if lt.cfg.quantity > 1 {
		set := map[string]any{"quantity": lt.cfg.quantity}
		if status, err = lt.call("SetQuantity", buyer, http.MethodPut, "/api/v1/cart/items/"+lt.cfg.productID, set, nil, nil); err != nil || !isSuccess(status) {
			return status, err
		}
	}

	var order placedOrder
	body := map[string]any{"delivery_address": lt.cfg.address, "delivery_phone": lt.cfg.phone}
	headers := map[string]string{headerIdempotencyKey: fmt.Sprintf("lt-checkout-%s-%d", lt.runID, index)}
	if status, err = lt.call("Checkout", buyer, http.MethodPost, "/api/v1/checkout", body, headers, &order); err != nil || !isSuccess(status) {
		return status, err
	}
	if order.ID == "" {
		return status, errors.New("checkout returned empty order id")
	}
	if lt.cfg.mode != modeCheckoutFulfill {
		return status, nil
	}

	for _, item := range order.Items {
		supplier := actor{id: item.SupplierID, role: "supplier"}
		path := fmt.Sprintf("/api/v1/supplier/orders/%s/items/%s", order.ID, item.ID)
		for _, next := range []string{"Processing", "Shipped"} {
			status, err = lt.call("UpdateItemStatus", supplier, http.MethodPatch, path, map[string]string{"status": next}, nil, nil)
			if err != nil || !isSuccess(status) {
				return status, err
			}
		}
	}
	return status, nil
}

// call отправляет запрос, записывает шаг и при успехе декодирует ответ в out.
func (lt *loadTester) call(step string, who actor, method, path string, body any, headers map[string]string, out any) (int, error) {
	start := time.Now()
	status, err := lt.do(who, method, path, body, headers, out)
	lt.col.record(step, time.Since(start), status)
	return status, err
}

func (lt *loadTester) do(who actor, method, path string, body any, headers map[string]string, out any) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), lt.cfg.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, lt.cfg.addr+path, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if who.id != "" {
		req.Header.Set(headerActorID, who.id)
		req.Header.Set(headerActorRole, who.role)
	}
	if who.sessionID != "" {
		req.Header.Set(headerSessionID, who.sessionID)
	}
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	resp, err := lt.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out == nil || !isSuccess(resp.StatusCode) {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s response: %w", path, err)
	}
	return resp.StatusCode, nil
}

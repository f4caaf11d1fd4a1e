// Command sendalert queues a manual or demo alert through a running alertd
// dashboard API, or prints the queue status.
//
// Usage:
//
//	go run ./cmd/sendalert -district Kachchh -taluka Bhuj -message "Cyclone warning" -severity high
//	go run ./cmd/sendalert -demo -district Kachchh -taluka Bhuj
//	go run ./cmd/sendalert -status
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/couchcryptid/taluka-alert-service/internal/dashboard"
)

func main() {
	if err := run(os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(out io.Writer) error {
	api := flag.String("api", "http://localhost:8080/api/v1", "dashboard API base URL")
	district := flag.String("district", "", "target district")
	taluka := flag.String("taluka", "", "target taluka")
	message := flag.String("message", "", "alert text (optional with -demo)")
	severity := flag.String("severity", "", "low, medium or high")
	demo := flag.Bool("demo", false, "send the demo alert")
	status := flag.Bool("status", false, "print queue status and exit")
	timeout := flag.Duration("timeout", 10*time.Second, "request timeout")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	base := strings.TrimRight(*api, "/")

	if *status {
		return call(ctx, out, http.MethodGet, base+"/status", nil)
	}
	if *district == "" || *taluka == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -district, -taluka")
	}

	if *demo {
		return call(ctx, out, http.MethodPost, base+"/alerts/demo",
			dashboard.DemoRequest{District: *district, Taluka: *taluka, Message: *message})
	}
	if *message == "" {
		return fmt.Errorf("-message is required unless -demo is set")
	}
	return call(ctx, out, http.MethodPost, base+"/alerts",
		dashboard.AlertRequest{District: *district, Taluka: *taluka, Message: *message, Severity: *severity})
}

func call(ctx context.Context, out io.Writer, method, url string, body any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	var res dashboard.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if !res.Success {
		return fmt.Errorf("%s (%s, HTTP %d)", res.Error, res.Code, resp.StatusCode)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res.Data)
}

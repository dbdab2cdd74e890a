// cartcheck はローカルに保存したカート（JSON）をAPIの出品状態と突き合わせる。
//
//	cartcheck -file cart.json -api http://localhost:8080 [-apply] [-resolve keep|apply] [-write]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"market/internal/cart"

	"github.com/joho/godotenv"
)

type cartFile struct {
	Lines []cart.Line `json:"lines"`
}

type options struct {
	file    string
	api     string
	token   string
	apply   bool
	resolve string
	write   bool
	timeout time.Duration
}

func main() {
	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.file, "file", "cart.json", "cart JSON file")
	flag.StringVar(&opts.api, "api", getenv("MARKET_API_URL", "http://localhost:8080"), "API base URL")
	flag.StringVar(&opts.token, "token", os.Getenv("MARKET_TOKEN"), "bearer token (optional)")
	flag.BoolVar(&opts.apply, "apply", false, "adopt live prices instead of holding them as pending")
	flag.StringVar(&opts.resolve, "resolve", "", "resolve pending price conflicts: keep | apply")
	flag.BoolVar(&opts.write, "write", false, "write reconciled lines back to -file")
	flag.DurationVar(&opts.timeout, "timeout", 15*time.Second, "overall timeout")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := run(context.Background(), opts, os.Stdout); err != nil {
		logger.Error("cartcheck failed", slog.Any("err", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, out io.Writer) error {
	if opts.resolve != "" && opts.resolve != "keep" && opts.resolve != "apply" {
		return fmt.Errorf("invalid -resolve %q", opts.resolve)
	}

	raw, err := os.ReadFile(opts.file)
	if err != nil {
		return err
	}
	var cf cartFile
	if err := json.Unmarshal(raw, &cf); err != nil {
		return fmt.Errorf("parse %s: %w", opts.file, err)
	}

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	reader := cart.NewHTTPListingReader(opts.api, opts.token, &http.Client{Timeout: 5 * time.Second})
	res, err := cart.NewEngine(reader).Reconcile(ctx, cf.Lines, cart.Options{ApplyPriceUpdates: opts.apply})
	if err != nil {
		return err
	}

	switch opts.resolve {
	case "apply":
		res.ApplyAll()
	case "keep":
		res.KeepAll()
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}

	if opts.write {
		if res.HasPendingConflicts() {
			return errors.New("pending price conflicts: rerun with -resolve keep|apply before -write")
		}
		b, err := json.MarshalIndent(cartFile{Lines: res.Lines}, "", "  ")
		if err != nil {
			return err
		}
		return os.WriteFile(opts.file, b, 0o644)
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

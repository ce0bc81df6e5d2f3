// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/LeeDigitalWorks/ctxrelay/pkg/config"
	"github.com/LeeDigitalWorks/ctxrelay/pkg/debug"
	"github.com/LeeDigitalWorks/ctxrelay/pkg/filter"
	"github.com/LeeDigitalWorks/ctxrelay/pkg/handler"
	"github.com/LeeDigitalWorks/ctxrelay/pkg/logger"
	"github.com/LeeDigitalWorks/ctxrelay/pkg/mdc"
	"github.com/LeeDigitalWorks/ctxrelay/pkg/pipeline"
	"github.com/LeeDigitalWorks/ctxrelay/pkg/request"
	"github.com/LeeDigitalWorks/ctxrelay/pkg/scheduler"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run requests through both filter stacks",
	Long: `Run a batch of synthetic requests through the blocking and the asynchronous
filter stacks and print what each handler observed. Every third request carries
no request id, so leftovers from earlier requests would show up in the output.`,
	RunE: runDemo,
}

func init() {
	rootCmd.AddCommand(demoCmd)

	f := demoCmd.Flags()
	f.Int("requests", 12, "Number of requests per stack")
	f.Int("concurrency", scheduler.DefaultConcurrency, "Number of scheduler workers")
	f.Int("queue_size", scheduler.DefaultQueueSize, "Scheduler queue bound")
	f.Float64("rate_limit", 0, "Tasks started per second (0 = unlimited)")
	f.Int("rate_burst", scheduler.DefaultRateBurst, "Rate limiter burst")
	f.String("debug_addr", "", "Serve metrics and health on this address (empty = disabled)")
	f.Duration("linger", 0, "Keep the debug server up this long after the run")

	viper.BindPFlag(config.KeyConcurrency, f.Lookup("concurrency"))
	viper.BindPFlag(config.KeyQueueSize, f.Lookup("queue_size"))
	viper.BindPFlag(config.KeyRateLimit, f.Lookup("rate_limit"))
	viper.BindPFlag(config.KeyRateBurst, f.Lookup("rate_burst"))
	viper.BindPFlag(config.KeyDebugAddr, f.Lookup("debug_addr"))
}

// DemoResult is what a handler saw while serving one request.
type DemoResult struct {
	Stack      string              `json:"stack"`
	Index      int                 `json:"index"`
	SentRID    string              `json:"sent_rid,omitempty"`
	SeenRID    string              `json:"seen_rid,omitempty"`
	Inspection *handler.Inspection `json:"inspection,omitempty"`
	Error      string              `json:"error,omitempty"`
}

func runDemo(cmd *cobra.Command, args []string) error {
	fl := NewFlagLoader(cmd)
	requests := fl.Int("requests")
	linger := fl.Duration("linger")
	debugAddr := viper.GetString(config.KeyDebugAddr)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var debugWG sync.WaitGroup
	debugCtx, stopDebug := context.WithCancel(ctx)
	defer stopDebug()
	if debugAddr != "" {
		debugWG.Add(1)
		go func() {
			defer debugWG.Done()
			if err := debug.Serve(debugCtx, debugAddr); err != nil {
				logger.Error().Err(err).Str("addr", debugAddr).Msg("debug server failed")
			}
		}()
		logger.Info().Str("addr", debugAddr).Msg("debug server listening")
	}

	s := scheduler.New(config.Scheduler("demo"))
	webChain := filter.NewWebChain(&filter.ReactiveRIDFilter{}, &filter.ExchangeBindingFilter{})
	if err := webChain.Setup(s.Hooks()); err != nil {
		return fmt.Errorf("setting up filters: %w", err)
	}
	defer webChain.Shutdown(s.Hooks())

	s.Start(ctx)
	defer s.Stop()

	chain := filter.NewChain(&filter.RIDFilter{}, &filter.BindingFilter{})
	proxy := handler.NewProxy(demoUpstream{}, s)

	debug.SetReady()
	defer debug.SetNotReady()

	start := time.Now()
	results := make([]DemoResult, 2*requests)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < requests; i++ {
		rid := demoRID(i)
		g.Go(func() error {
			results[2*i] = serveBlocking(gctx, chain, i, rid)
			return nil
		})
		g.Go(func() error {
			results[2*i+1] = serveAsync(gctx, webChain, proxy, i, rid)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	logger.Info().
		Str("requests", humanize.Comma(int64(len(results)))).
		Int("failed", failed).
		Str("started", humanize.Time(start)).
		Dur("elapsed", time.Since(start)).
		Msg("demo finished")

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return err
	}

	if debugAddr != "" && linger > 0 {
		logger.Info().Dur("linger", linger).Msg("keeping debug server up")
		select {
		case <-time.After(linger):
		case <-ctx.Done():
		}
	}
	stopDebug()
	debugWG.Wait()
	return nil
}

func demoRID(i int) string {
	if i%3 == 2 {
		return ""
	}
	return fmt.Sprintf("req-%03d", i)
}

func demoTarget(prefix, rid string) string {
	if rid == "" {
		return prefix
	}
	return prefix + "?rid=" + rid
}

func serveBlocking(ctx context.Context, chain *filter.Chain, i int, rid string) DemoResult {
	res := DemoResult{Stack: "blocking", Index: i, SentRID: rid}
	r := httptest.NewRequest(http.MethodGet, demoTarget("/inspect", rid), nil)
	req := request.NewNative(r)
	req.SetAttribute("stack", res.Stack)

	err := chain.Serve(ctx, req, handler.Logged("inspect", func(ctx context.Context, req *request.NativeRequest) error {
		ins, err := handler.Inspect(ctx)
		if err != nil {
			return err
		}
		res.Inspection = ins
		res.SeenRID, _ = mdc.FromContext(ctx, mdc.RIDKey)
		return nil
	}))
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

// asyncSeen collects what the worker observed for one async request.
type asyncSeen struct {
	mu  sync.Mutex
	rid string
	ins *handler.Inspection
}

func serveAsync(ctx context.Context, chain *filter.WebChain, proxy *handler.Proxy, i int, rid string) DemoResult {
	res := DemoResult{Stack: "async", Index: i, SentRID: rid}
	ex := request.NewExchange(httptest.NewRequest(http.MethodGet, demoTarget("/reactive/inspect", rid), nil))
	ex.SetAttribute("stack", res.Stack)

	var seen asyncSeen
	sub := chain.Serve(ctx, ex, func(ctx context.Context, ex *request.Exchange) pipeline.Mono[struct{}] {
		inspected := pipeline.Map(proxy.Async("inspect"), func(ctx context.Context, _ any) (*handler.Inspection, error) {
			ins, err := handler.Inspect(ctx)
			if err != nil {
				return nil, err
			}
			rid, _ := mdc.FromContext(ctx, mdc.RIDKey)
			seen.mu.Lock()
			seen.rid = rid
			seen.mu.Unlock()
			return ins, nil
		})
		return pipeline.Then(handler.LoggedMono("inspect", inspected).
			DoOnSuccess(func(ctx context.Context, ins *handler.Inspection) {
				seen.mu.Lock()
				seen.ins = ins
				seen.mu.Unlock()
			}))
	})
	if _, err := sub.Await(ctx); err != nil {
		if ctx.Err() != nil {
			sub.Cancel(ctx)
		}
		res.Error = err.Error()
	}

	seen.mu.Lock()
	defer seen.mu.Unlock()
	res.SeenRID = seen.rid
	res.Inspection = seen.ins
	return res
}

// demoUpstream stands in for the proxied service.
type demoUpstream struct{}

func (demoUpstream) Call(ctx context.Context, template string) (any, error) {
	select {
	case <-time.After(5 * time.Millisecond):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	rid, _ := mdc.FromContext(ctx, mdc.RIDKey)
	return map[string]string{"template": template, "rid": rid}, nil
}

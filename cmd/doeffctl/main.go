// Copyright (c) 2026 The Doeff Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/doeffvm/doeff"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "doeffctl",
		Short: "doeffctl - run and inspect doeff programs",
		Long:  "A CLI driver for the doeff algebraic-effects interpreter",
	}

	rootCmd.AddCommand(
		runCmd(),
		serveCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// demoPrograms are the built-in programs doeffctl can run, since a Program
// tree carries live Go closures and cannot be loaded from a plain file the
// way nova loads a function's code path.
var demoPrograms = map[string]func() doeff.Program{
	"hello":   demoHello,
	"retry":   demoRetry,
	"gather":  demoGather,
	"reader":  demoReader,
}

func runCmd() *cobra.Command {
	var (
		maxStackDepth int
		profiling     bool
		cachePath     string
	)

	cmd := &cobra.Command{
		Use:   "run <demo>",
		Short: "Run a built-in demo program and report its result",
		Long: fmt.Sprintf("Runs one of the built-in demo programs: %s",
			demoNames()),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			build, ok := demoPrograms[args[0]]
			if !ok {
				return fmt.Errorf("unknown demo %q (available: %s)", args[0], demoNames())
			}

			opts := []doeff.RunOption{
				doeff.WithProfiling(profiling),
			}
			if maxStackDepth > 0 {
				opts = append(opts, doeff.WithMaxStackDepth(maxStackDepth))
			}
			if cachePath != "" {
				opts = append(opts, doeff.WithCacheDBPath(cachePath))
			}

			result := doeff.Run(build(), opts...)
			if !result.IsOk() {
				fmt.Fprintf(os.Stderr, "error: %v\n", result.Err())
				return fmt.Errorf("program failed")
			}
			fmt.Printf("%v\n", result.Value())
			return nil
		},
	}

	cmd.Flags().IntVar(&maxStackDepth, "max-stack-depth", 0, "Continuation stack depth limit (0 = the interpreter default)")
	cmd.Flags().BoolVar(&profiling, "profile", false, "Enable step-level trace logging to stderr")
	cmd.Flags().StringVar(&cachePath, "cache-dir", "", "Persistent cache directory (enables CacheGet/CacheSet)")
	return cmd
}

func serveCmd() *cobra.Command {
	var (
		addr      string
		namespace string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose the interpreter's Prometheus metrics over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			doeff.InitMetrics(namespace)

			mux := http.NewServeMux()
			mux.Handle("/metrics", doeff.MetricsHandler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})

			server := &http.Server{Addr: addr, Handler: mux}
			fmt.Printf("doeffctl metrics server listening on %s\n", addr)
			return server.ListenAndServe()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":9191", "Listen address")
	cmd.Flags().StringVar(&namespace, "namespace", "doeff", "Prometheus metric namespace")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print doeffctl's version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("doeffctl (doeff interpreter CLI)")
			return nil
		},
	}
}

func demoNames() string {
	names := make([]string, 0, len(demoPrograms))
	for k := range demoPrograms {
		names = append(names, k)
	}
	return fmt.Sprintf("%v", names)
}

// demoHello performs a single Print effect.
func demoHello() doeff.Program {
	return doeff.DoThen(
		doeff.DoPerform(doeff.Print{Args: []any{"hello from doeff"}}),
		doeff.DoPure("ok"),
	)
}

// demoRetry fails twice then succeeds, exercising the Retry effect's
// unrolled-Catch implementation (default_handlers.go's buildRetryProgram).
func demoRetry() doeff.Program {
	attempt := 0
	body := doeff.DoFlatMap(
		doeff.DoPure(nil),
		func(any) doeff.Program {
			attempt++
			if attempt < 3 {
				return doeff.DoPerform(doeff.Fail{Exc: fmt.Errorf("attempt %d failed", attempt)})
			}
			return doeff.DoPure(fmt.Sprintf("succeeded on attempt %d", attempt))
		},
		nil,
	)
	return doeff.DoPerform(doeff.Retry{
		Body: body,
		Max:  5,
		Delay: doeff.RetryDelay{
			Strategy: func(attempt int) time.Duration { return 0 },
		},
	})
}

// demoGather spawns three programs and joins their results in order.
func demoGather() doeff.Program {
	mk := func(n int) doeff.Program { return doeff.DoPure(n * n) }
	return doeff.DoPerform(doeff.Gather{
		Progs: []doeff.Program{mk(1), mk(2), mk(3)},
	})
}

// demoReader asks the reader environment for a greeting and maps over it.
func demoReader() doeff.Program {
	return doeff.DoFlatMap(
		doeff.DoPerform(doeff.Local{
			EnvUpdate: map[string]any{"name": "doeff"},
			Body:      doeff.DoPerform(doeff.EffAsk{Key: "name"}),
		}),
		func(v any) doeff.Program {
			return doeff.DoPure(fmt.Sprintf("hello, %s", v))
		},
		nil,
	)
}

// Strata CLI
//
// Composes storage backends (local, S3, HTTP mirrors) into layered and
// cached filesystem views and synchronizes one filesystem to another.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/strata-fs/strata/internal/backend"
	"github.com/strata-fs/strata/internal/config"
	"github.com/strata-fs/strata/internal/hidefs"
	"github.com/strata-fs/strata/internal/logging"
	"github.com/strata-fs/strata/internal/metrics"
	"github.com/strata-fs/strata/internal/syncer"
	"github.com/strata-fs/strata/internal/vfs"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: strata <command> [flags]

commands:
  sync ORIGIN TARGET [-delete] [-workers N] [-queue N] [-hide PATTERNS]
  ls FS PATH
  cat FS PATH
  cleanup FS AGE ROOT [ROOT...]

Storage strings: /local/path, ~/local/path, mem, s3:bucket[/prefix],
http(s)://base/url
`)
	os.Exit(2)
}

func main() {
	cfg := config.Load()

	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			logging.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logging.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	if len(os.Args) < 2 {
		usage()
	}

	ctx := context.Background()
	reg := backend.Default()

	var err error
	switch os.Args[1] {
	case "sync":
		err = runSync(ctx, reg, cfg, os.Args[2:])
	case "ls":
		err = runLs(ctx, reg, os.Args[2:])
	case "cat":
		err = runCat(ctx, reg, os.Args[2:])
	case "cleanup":
		err = runCleanup(ctx, reg, os.Args[2:])
	default:
		usage()
	}

	if err != nil {
		logging.Fatal("command failed", zap.String("command", os.Args[1]), zap.Error(err))
	}
}

func runSync(ctx context.Context, reg *backend.Registry, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	deleteMissing := fs.Bool("delete", cfg.DeleteMissing, "delete target files missing on the origin")
	workers := fs.Int("workers", cfg.SyncWorkers, "parallel workers (0 = sequential)")
	queue := fs.Int("queue", cfg.SyncQueueSize, "pending-action queue capacity")
	hide := fs.String("hide", "", "comma-separated wildcards to exclude from the origin")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		usage()
	}

	origin, err := reg.Resolve(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	if *hide != "" {
		origin = hidefs.New(origin, strings.Split(*hide, ",")...)
	}
	target, err := reg.Resolve(ctx, fs.Arg(1))
	if err != nil {
		return err
	}

	s := &syncer.Syncer{
		Origin:        origin,
		Target:        target,
		DeleteMissing: *deleteMissing,
		Workers:       *workers,
		QueueSize:     *queue,
	}
	return s.Run(ctx)
}

func runLs(ctx context.Context, reg *backend.Registry, args []string) error {
	if len(args) != 2 {
		usage()
	}
	fsys, err := reg.Resolve(ctx, args[0])
	if err != nil {
		return err
	}
	entries, err := fsys.List(ctx, args[1])
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	for _, e := range entries {
		if e.IsDir {
			fmt.Printf("%12s  %s/\n", "-", e.Name)
		} else {
			fmt.Printf("%12d  %s\n", e.Size, e.Name)
		}
	}
	return nil
}

func runCat(ctx context.Context, reg *backend.Registry, args []string) error {
	if len(args) != 2 {
		usage()
	}
	fsys, err := reg.Resolve(ctx, args[0])
	if err != nil {
		return err
	}
	data, err := vfs.ReadFile(ctx, fsys, args[1])
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

func runCleanup(ctx context.Context, reg *backend.Registry, args []string) error {
	if len(args) < 3 {
		usage()
	}
	fsys, err := reg.Resolve(ctx, args[0])
	if err != nil {
		return err
	}
	age, err := time.ParseDuration(args[1])
	if err != nil {
		return fmt.Errorf("parse age %q: %w", args[1], err)
	}
	removed, err := vfs.CleanupOldFiles(ctx, fsys, age, args[2:]...)
	for _, path := range removed {
		fmt.Println(path)
	}
	return err
}

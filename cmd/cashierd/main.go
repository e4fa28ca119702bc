// Command cashierd runs the cashier orchestration service: the process
// wiring described in SPEC_FULL.md §6, grounded on the teacher's
// lndMain/main split in lnd.go — the nested "real main" exists so
// deferred cleanup (log flush, storage close) still runs on a
// configuration error, while os.Exit happens only in main itself.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"

	"github.com/CashierHQ/cashier-sub000/api"
	"github.com/CashierHQ/cashier-sub000/build"
	"github.com/CashierHQ/cashier-sub000/candid"
	"github.com/CashierHQ/cashier-sub000/config"
	"github.com/CashierHQ/cashier-sub000/ledger"
	"github.com/CashierHQ/cashier-sub000/service"
	"github.com/CashierHQ/cashier-sub000/storage"
)

var log = build.NewSubLogger(build.SubsystemService)

const shutdownGrace = 10 * time.Second

func cashierdMain() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.LogDir, 0700); err != nil {
		return fmt.Errorf("unable to create log dir: %w", err)
	}
	if err := build.InitLogRotator(cfg.LogDir+"/cashierd.log", 10); err != nil {
		return fmt.Errorf("unable to init log rotator: %w", err)
	}
	build.SetLogLevel(cfg.LogLevel)
	defer build.Flush()

	log.Infof("starting cashierd, datadir=%s listen=%s", cfg.DataDir, cfg.Listen)

	db, err := storage.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("unable to open storage: %w", err)
	}
	defer db.Close()

	// ledgerClient is the out-of-scope ICRC-1/2 collaborator (spec.md
	// §1/§6); a real deployment replaces this with an agent-go client
	// against the ledger canister. No such client exists in this pack,
	// so cashierd runs against ledger.Fake until one is wired in.
	ledgerClient := ledger.NewFake()

	svc := service.New(cfg, db, ledgerClient, candid.JSONEncoder{})
	if err := svc.RearmTimeouts(); err != nil {
		return fmt.Errorf("unable to rearm outstanding timeouts: %w", err)
	}
	svc.StartBackgroundWorkers()
	defer svc.Close()

	srv := api.New(svc, cfg.Listen, api.DefaultShedConfig())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-shutdown:
		log.Infof("received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return srv.Shutdown(ctx)
}

func main() {
	if err := cashierdMain(); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

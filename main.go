package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/abennett/grimoire/pkg/catalog"
	"github.com/abennett/grimoire/pkg/dice"
	"github.com/abennett/grimoire/pkg/engine"
	"github.com/abennett/grimoire/pkg/rank"
	"github.com/abennett/grimoire/pkg/server"
	"github.com/abennett/grimoire/pkg/store"
)

var serveCmd = &ffcli.Command{
	Name:       "serve",
	ShortUsage: "serve",
	Exec:       serve,
}

var rollRemoteCmd = &ffcli.Command{
	Name:       "roll_remote",
	ShortUsage: "roll_remote <ws://host:port> <room> <username> <action> <weapon_rank> <mastery_rank> [other_bonus]",
	Exec:       rollRemote,
}

var rollLocalCmd = &ffcli.Command{
	Name:       "roll_local",
	ShortUsage: "roll_local <action> <weapon_rank> <mastery_rank> [other_bonus]",
	Exec:       rollLocal,
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default(), nil
	}
	return catalog.Load(path)
}

func serve(ctx context.Context, args []string) error {
	cfg, err := server.ConfigFromEnv()
	if err != nil {
		return err
	}

	cat, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}

	eval := engine.New(dice.NewSource())
	eval.ExplosionCap = cfg.ExplosionCap

	srv := server.NewServer(cat, eval)
	if cfg.DBPath != "" {
		audit, err := store.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("opening audit store: %w", err)
		}
		defer audit.Close()
		srv.SetRecorder(audit)
		slog.Info("audit log enabled", "path", cfg.DBPath)
	}

	slog.Info("serving", "addr", cfg.Addr, "actions", cat.Len())
	return http.ListenAndServe(cfg.Addr, server.NewMux(srv))
}

func rollLocal(ctx context.Context, args []string) error {
	if len(args) < 3 {
		return flag.ErrHelp
	}
	cat := catalog.Default()
	action, err := cat.Get(args[0])
	if err != nil {
		return err
	}
	weapon, err := rank.Parse(args[1])
	if err != nil {
		return err
	}
	mastery, err := rank.Parse(args[2])
	if err != nil {
		return err
	}
	var otherBonus int
	if len(args) > 3 {
		otherBonus, err = strconv.Atoi(args[3])
		if err != nil {
			return err
		}
	}

	eval := engine.New(dice.NewSource())
	result, err := eval.Evaluate(action, weapon, mastery, otherBonus)
	if err != nil {
		return err
	}
	fmt.Println(result.Expression)
	return nil
}

func main() {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	slog.SetDefault(slog.New(h))
	root := &ffcli.Command{
		ShortUsage: "grimoire <subcommand>",
		Subcommands: []*ffcli.Command{
			rollLocalCmd,
			serveCmd,
			rollRemoteCmd,
		},
		Exec: func(context.Context, []string) error {
			return flag.ErrHelp
		},
	}

	err := root.ParseAndRun(context.Background(), os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}
}

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Kunal9797/artissales-sub000/pkg/record"
	"github.com/Kunal9797/artissales-sub000/pkg/store"
	"github.com/Kunal9797/artissales-sub000/pkg/syncer"
)

func newRunCommand(configPath *string) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the interactive sync demo",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if !verbose {
				log.SetLevel(log.ErrorLevel)
			}
			return runDemo(cfg)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show engine logs")
	return cmd
}

func runDemo(cfg config) error {
	var s store.Store
	var err error
	if cfg.Ephemeral {
		s = store.NewMemoryStore()
	} else {
		s, err = store.NewBadgerStore(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
	}
	defer s.Close()

	remote := newDemoRemote(cfg.SeedEntities, cfg.FailureRate, cfg.createLatency())
	reach := syncer.NewSignal(true)

	coord := syncer.New(s, cfg.Identity, remote,
		syncer.WithReachability(reach),
		syncer.WithStalenessThreshold(cfg.staleness()),
		syncer.WithSyncInterval(cfg.syncInterval()),
	)
	coord.Load()
	coord.Start()
	defer coord.Stop()

	unsub := coord.Subscribe(func(records []record.CacheRecord) {
		printRecords(records)
	})
	defer unsub()

	fmt.Println("commands: add <name> | list | sync | retry <id> | remove <id> | offline | online | stats | quit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		verb, rest, _ := strings.Cut(line, " ")
		rest = strings.TrimSpace(rest)

		switch verb {
		case "add":
			id := coord.Enqueue(record.Entity{Name: rest})
			fmt.Printf("enqueued %s\n", id)
		case "list":
			printRecords(coord.List())
		case "sync":
			if err := coord.SyncWithServer(context.Background()); err != nil {
				fmt.Printf("sync: %v\n", err)
			}
		case "retry":
			if err := coord.Retry(rest); err != nil {
				fmt.Printf("retry: %v\n", err)
			}
		case "remove":
			if err := coord.Remove(rest); err != nil {
				fmt.Printf("remove: %v\n", err)
			}
		case "offline":
			reach.Set(false)
			fmt.Println("reachability: offline")
		case "online":
			reach.Set(true)
			fmt.Println("reachability: online")
		case "stats":
			fmt.Printf("%+v\n", coord.Stats())
		case "quit", "exit":
			return nil
		default:
			fmt.Printf("unknown command %q\n", verb)
		}
	}
}

func printRecords(records []record.CacheRecord) {
	if len(records) == 0 {
		fmt.Println("  (empty)")
		return
	}
	for _, r := range records {
		marker := " "
		switch r.State() {
		case record.StatePending:
			marker = "~"
		case record.StateFailed:
			marker = "!"
		}
		line := fmt.Sprintf("  %s %-28s %s", marker, r.Entity().Name, r.ID())
		if errMsg := r.SyncError(); errMsg != "" {
			line += "  (" + errMsg + ")"
		}
		fmt.Println(line)
	}
}

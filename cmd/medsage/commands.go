package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hunterwarburton/medsage/internal/api"
	"github.com/hunterwarburton/medsage/internal/auth"
	"github.com/hunterwarburton/medsage/internal/core"
	"github.com/hunterwarburton/medsage/internal/diagnose"
	"github.com/hunterwarburton/medsage/internal/logger"
	"github.com/hunterwarburton/medsage/internal/search"
	"github.com/hunterwarburton/medsage/internal/telegram"
	"github.com/hunterwarburton/medsage/internal/tools"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the optional Telegram bot",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the medical corpora",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Rank likely conditions for one case",
	Args:  cobra.NoArgs,
	RunE:  runDiagnose,
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Load the datasets and print statistics",
	Args:  cobra.NoArgs,
	RunE:  runIndex,
}

var (
	searchTypes []string
	searchTopK  int
	searchPage  int
	searchLimit int

	diagModality string
	diagSymptoms string
	diagImage    string
)

func init() {
	searchCmd.Flags().StringSliceVar(&searchTypes, "types", nil, "record types to include (text, image, tabular)")
	searchCmd.Flags().IntVar(&searchTopK, "top-k", 0, "maximum number of results across all pages")
	searchCmd.Flags().IntVar(&searchPage, "page", 1, "page number")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "results per page")

	diagnoseCmd.Flags().StringVar(&diagModality, "modality", "", "skin or chest")
	diagnoseCmd.Flags().StringVar(&diagSymptoms, "symptoms", "", "free-text symptoms")
	diagnoseCmd.Flags().StringVar(&diagImage, "image", "", "path to a clinical image")
	_ = diagnoseCmd.MarkFlagRequired("modality")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(ctx, cfg)
	defer a.close()

	// indexing runs in the background; the cascade falls through until it is done
	go func() {
		if err := a.datasets.Load(ctx); err != nil {
			logger.Error("Dataset load failed: %v", err)
		}
	}()

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.NewServer(a.cascade, a.diagnoser, a.datasets).Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      180 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	var bot *telegram.Bot
	if cfg.Telegram.Token != "" {
		policy := auth.NewPolicyService(cfg.Telegram.AdminUserIDs, cfg.Telegram.AllowedUserIDs)
		router := tools.NewToolRouter(policy, a.cascade, a.diagnoser, a.datasets)
		var err error
		if bot, err = telegram.NewBot(cfg.Telegram.Token, router, policy); err != nil {
			return err
		}
	} else {
		logger.Info("TG_BOT_TOKEN not set; Telegram bot disabled")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP API listening on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if bot != nil {
		g.Go(func() error {
			logger.Info("Starting Telegram bot...")
			bot.Start(gctx)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a := newApp(ctx, cfg)
	defer a.close()

	if err := a.datasets.Load(ctx); err != nil {
		logger.Warn("Dataset load failed: %v", err)
	}
	page, err := a.cascade.Search(ctx, search.Query{
		Text:  strings.Join(args, " "),
		Types: searchTypes,
		TopK:  searchTopK,
		Page:  searchPage,
		Limit: searchLimit,
	})
	if err != nil {
		return err
	}
	logger.Debug("Search: %s", page)
	return printJSON(page)
}

func runDiagnose(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	req := diagnose.Request{Symptoms: diagSymptoms, Modality: core.Modality(diagModality)}
	if diagImage != "" {
		img, err := os.ReadFile(diagImage)
		if err != nil {
			return fmt.Errorf("reading image: %w", err)
		}
		req.Image = img
	}

	a := newApp(ctx, cfg)
	defer a.close()

	resp, err := a.diagnoser.Diagnose(ctx, req)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func runIndex(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a := newApp(ctx, cfg)
	defer a.close()

	start := time.Now()
	if err := a.datasets.Load(ctx); err != nil {
		return err
	}
	st := a.datasets.Stats()
	logger.Info("Indexed %d records in %s", st.TotalItems, time.Since(start).Round(time.Millisecond))
	return printJSON(st)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

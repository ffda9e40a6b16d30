package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/crmcore/internal/config"
	"github.com/MarcoPoloResearchLab/crmcore/internal/database"
	"github.com/MarcoPoloResearchLab/crmcore/internal/document"
	"github.com/MarcoPoloResearchLab/crmcore/internal/logging"
	"github.com/MarcoPoloResearchLab/crmcore/internal/ordering"
	"github.com/MarcoPoloResearchLab/crmcore/internal/replica"
	"github.com/MarcoPoloResearchLab/crmcore/internal/server"
)

// replicaRuntime holds what every subcommand opens: config, logger, event store and replica.
type replicaRuntime struct {
	config  config.AppConfig
	logger  *zap.Logger
	events  *database.EventStore
	replica *replica.Replica
	close   func()
}

func openRuntime(onChange func(replica.Change)) (*replicaRuntime, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.DeviceID)
	if err != nil {
		return nil, err
	}

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	closeAll := func() {
		_ = sqlDB.Close()
		_ = logger.Sync()
	}

	eventStore, err := database.NewEventStore(db, time.Now)
	if err != nil {
		closeAll()
		return nil, err
	}
	checkpointStore, err := database.NewCheckpointStore(db)
	if err != nil {
		closeAll()
		return nil, err
	}

	replicaInstance, err := replica.New(replica.Config{
		DeviceID:           appConfig.DeviceID,
		Log:                eventStore,
		Checkpoints:        checkpointStore,
		CheckpointInterval: appConfig.CheckpointInterval,
		IDProvider:         replica.NewUUIDProvider(),
		Clock:              time.Now,
		Logger:             logger,
		OnChange:           onChange,
	})
	if err != nil {
		closeAll()
		return nil, err
	}

	return &replicaRuntime{config: appConfig, logger: logger, events: eventStore, replica: replicaInstance, close: closeAll}, nil
}

// load restores the replica from the log. Events still waiting on a dependency are not fatal.
func (r *replicaRuntime) load(ctx context.Context) (replica.MergeResult, error) {
	result, err := r.replica.Load(ctx)
	if err != nil && !isDangling(err) {
		return replica.MergeResult{}, err
	}
	return result, nil
}

func isDangling(err error) bool {
	var dangling *ordering.DanglingDependencyError
	return errors.As(err, &dangling)
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the replica over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func runServer(ctx context.Context) error {
	dispatcher := server.NewRealtimeDispatcher()
	rt, err := openRuntime(dispatcher.PublishChange)
	if err != nil {
		return err
	}
	defer rt.close()

	if _, err := rt.load(ctx); err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Replica:  rt.replica,
		Realtime: dispatcher,
		Logger:   rt.logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    rt.config.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		rt.logger.Info("server starting", zap.String("address", rt.config.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func newReplayCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "replay",
		Short: "Rebuild the document from the stored log, ignoring checkpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(nil)
			if err != nil {
				return err
			}
			defer rt.close()

			result, err := rt.replica.Rebuild(cmd.Context())
			if err != nil && !isDangling(err) {
				return err
			}
			return rt.printSummary(cmd.Context(), cmd.OutOrStdout(), result)
		},
	}
}

func newImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Merge a peer event log (JSON or YAML) into the local replica",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			peerLog, err := replica.DecodePeerLog(data, replica.FormatForPath(path))
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}

			rt, err := openRuntime(nil)
			if err != nil {
				return err
			}
			defer rt.close()

			if _, err := rt.load(cmd.Context()); err != nil {
				return err
			}
			result, err := rt.replica.Merge(cmd.Context(), peerLog)
			if err != nil && !isDangling(err) {
				return err
			}
			return rt.printSummary(cmd.Context(), cmd.OutOrStdout(), result)
		},
	}
}

func newExportCommand() *cobra.Command {
	var outputPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the local event log in canonical order as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(nil)
			if err != nil {
				return err
			}
			defer rt.close()

			if _, err := rt.load(cmd.Context()); err != nil {
				return err
			}

			writer := cmd.OutOrStdout()
			if outputPath != "" {
				file, err := os.Create(outputPath)
				if err != nil {
					return err
				}
				defer file.Close()
				writer = file
			}
			return replica.EncodePeerLog(writer, rt.replica.Events())
		},
	}
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write to this file instead of stdout")
	return cmd
}

type summary struct {
	DeviceID    string         `json:"deviceId"`
	Fingerprint string         `json:"fingerprint"`
	Stored      int64          `json:"stored"`
	Ordered     int            `json:"ordered"`
	Added       int            `json:"added"`
	Duplicates  int            `json:"duplicates"`
	Pending     []string       `json:"pending"`
	Rejected    []string       `json:"rejected"`
	Counts      map[string]int `json:"counts"`
}

// printSummary reports the replica state next to the number of rows in the event log.
func (r *replicaRuntime) printSummary(ctx context.Context, writer io.Writer, result replica.MergeResult) error {
	doc := r.replica.Document()
	fingerprint, err := document.Fingerprint(doc)
	if err != nil {
		return err
	}
	stored, err := r.events.Count(ctx)
	if err != nil {
		return err
	}
	report := summary{
		DeviceID:    r.replica.DeviceID(),
		Fingerprint: fingerprint,
		Stored:      stored,
		Ordered:     result.Ordered,
		Added:       result.Added,
		Duplicates:  result.Duplicates,
		Pending:     []string{},
		Rejected:    []string{},
		Counts:      doc.Counts(),
	}
	for _, event := range result.Pending {
		report.Pending = append(report.Pending, event.ID)
	}
	for _, rejection := range result.Rejected {
		report.Rejected = append(report.Rejected, fmt.Sprintf("%d %s %s: %s", rejection.Index, rejection.EventID, rejection.Kind, rejection.Reason))
	}
	sort.Strings(report.Pending)

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

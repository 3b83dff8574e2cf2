package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/nfvri/lora-simulator/pkg/manager"
	"github.com/nfvri/lora-simulator/pkg/metrics"
	"github.com/nfvri/lora-simulator/pkg/model"
	"github.com/nfvri/lora-simulator/pkg/statistics"
	"github.com/nfvri/lora-simulator/pkg/utils"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          utils.ServiceName,
		Short:        "Replays LoRaWAN uplinks through a multi-gateway reception model",
		SilenceUsage: true,
		RunE:         run,
	}
	cmd.Flags().String("model", "model", "scenario name, looked up as <name>.yaml")
	cmd.Flags().Int64("seed", 0, "overrides the scenario seed when non-zero")
	cmd.Flags().String("run-id", "", "identifier of the run, generated when empty")
	cmd.Flags().String("strategy", "LB", "spreading factor allocation strategy (LB or FIXED)")
	cmd.Flags().Uint8("fixed-sf", 0, "spreading factor of the FIXED strategy")
	cmd.Flags().Bool("redis", false, "publish the run snapshot to redis")
	cmd.Flags().String("metrics-addr", "", "HTTP address for Prometheus /metrics, disabled when empty")
	cmd.Flags().String("output", "", "writes the run snapshot as JSON to this file")
	cmd.Flags().String("log-level", "info", "log level")

	v := viper.GetViper()
	v.SetEnvPrefix("LORASIM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlags(cmd.Flags())
	return cmd
}

func run(cmd *cobra.Command, _ []string) error {
	level, err := log.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		return err
	}
	log.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	mgr, err := manager.NewManager(&manager.Config{
		ModelName:    viper.GetString("model"),
		RunID:        viper.GetString("run-id"),
		Seed:         viper.GetInt64("seed"),
		Strategy:     viper.GetString("strategy"),
		FixedSF:      model.SpreadingFactor(viper.GetUint("fixed-sf")),
		RedisEnabled: viper.GetBool("redis"),
	})
	if err != nil {
		return err
	}
	defer mgr.Close()

	if srv := serveMetrics(viper.GetString("metrics-addr"), mgr.Collector()); srv != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	snapshot, err := mgr.Run(ctx)
	if err != nil {
		log.Error(err)
		return err
	}

	observed, captured := mgr.Outcomes().Uplinks()
	log.WithFields(log.Fields{
		"service":  utils.ServiceName,
		"run":      snapshot.RunID,
		"uplinks":  observed,
		"captured": captured,
		"received": snapshot.Received,
		"lost":     snapshot.Lost,
		"pdr":      statistics.ReceivedProbability(snapshot.Received, snapshot.Lost),
		"sf":       statistics.SFHistogram(mgr.Model().Devices),
	}).Info("Run summary")
	for _, gw := range mgr.Outcomes().Gateways() {
		log.WithField("gateway", gw).Infof("received %d, interfered %d, under sensitivity %d, no more receivers %d",
			mgr.Outcomes().Count(gw, model.Received), mgr.Outcomes().Count(gw, model.Interfered),
			mgr.Outcomes().Count(gw, model.UnderSensitivity), mgr.Outcomes().Count(gw, model.NoMoreReceivers))
	}

	if output := viper.GetString("output"); output != "" {
		data, err := json.MarshalIndent(snapshot, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(output, data, 0o644); err != nil {
			return err
		}
		log.Infof("Snapshot written to %s", output)
	}
	return nil
}

func serveMetrics(addr string, collector *metrics.Collector) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warnf("metrics server exited: %v", err)
		}
	}()
	log.Infof("Serving Prometheus metrics on %s", addr)
	return srv
}

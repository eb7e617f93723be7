package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mattermost/mattermost-plugin-sosconsole/server/store"
	"github.com/mattermost/mattermost-plugin-sosconsole/server/watcher"
)

type simulateOptions struct {
	collection string
	count      int
	centerLat  float64
	centerLng  float64
	spread     float64
	interval   time.Duration
}

// newSimulateCmd creates the simulate subcommand
func newSimulateCmd() *cobra.Command {
	opts := simulateOptions{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Insert test SOS alerts",
		Long: `Insert synthetic SOS alerts into the alert collection. Each alert gets a
TEST-nnnn phone number, a random position around the center and the test flag,
so consoles show and notify it like a real alert.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSimulate(ctx, opts)
		},
	}

	cmd.Flags().StringVar(&opts.collection, "collection", watcher.DefaultSOSCollection, "alert collection")
	cmd.Flags().IntVarP(&opts.count, "count", "n", 1, "number of alerts to insert")
	cmd.Flags().Float64Var(&opts.centerLat, "center-lat", store.DefaultCenter[0], "latitude alerts are placed around")
	cmd.Flags().Float64Var(&opts.centerLng, "center-lng", store.DefaultCenter[1], "longitude alerts are placed around")
	cmd.Flags().Float64Var(&opts.spread, "spread", store.DefaultSpread, "maximum offset in degrees")
	cmd.Flags().DurationVar(&opts.interval, "interval", time.Second, "pause between alerts")
	return cmd
}

func (o simulateOptions) validate() error {
	if o.count < 1 {
		return errors.Errorf("count must be at least 1 (got %d)", o.count)
	}
	if o.spread < 0 {
		return errors.Errorf("spread must not be negative (got %g)", o.spread)
	}
	if o.centerLat < -90 || o.centerLat > 90 || o.centerLng < -180 || o.centerLng > 180 {
		return errors.Errorf("center %g,%g is out of range", o.centerLat, o.centerLng)
	}
	return nil
}

func runSimulate(ctx context.Context, opts simulateOptions) error {
	if err := opts.validate(); err != nil {
		return err
	}

	credentials := os.Getenv("FIREBASE_CREDENTIALS")
	if credentials == "" {
		return errors.New("FIREBASE_CREDENTIALS is not set")
	}

	log := newLogger()

	openCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	st, err := store.Open(openCtx, credentials, projectID, log)
	cancel()
	if err != nil {
		return err
	}
	defer st.Close()

	alerts := st.Alerts(opts.collection)
	center := [2]float64{opts.centerLat, opts.centerLng}

	for i := range opts.count {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(opts.interval):
			}
		}

		sim := store.NewSimulatedAlert(nil, center, opts.spread)
		id, err := alerts.InsertTestAlert(ctx, sim)
		if err != nil {
			return errors.Wrapf(err, "failed to insert alert %d of %d", i+1, opts.count)
		}
		fmt.Printf("%s  %s  %.5f,%.5f\n", id, sim.Phone, sim.Lat, sim.Lng)
	}
	return nil
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/signalsfoundry/impact-simulator/internal/config"
	"github.com/signalsfoundry/impact-simulator/internal/logging"
	"github.com/signalsfoundry/impact-simulator/internal/sim"
	"github.com/signalsfoundry/impact-simulator/kb"
	"github.com/signalsfoundry/impact-simulator/model"
	"github.com/signalsfoundry/impact-simulator/timectrl"
)

// runFlags are the per-invocation choices layered over the config file.
type runFlags struct {
	AsteroidID  string
	Target      model.GeoCoordinate
	Offline     bool
	Accelerated bool
	JSON        bool
	Verbose     bool
}

func main() {
	configDir := flag.String("config", ".", "Directory holding "+config.FileName)
	asteroid := flag.String("asteroid", "", "Catalog ID of the impactor (default: first catalog entry)")
	lat := flag.Float64("lat", 40.7128, "Target latitude in degrees")
	lng := flag.Float64("lng", -74.006, "Target longitude in degrees")
	offline := flag.Bool("offline", false, "Skip NeoWs and use the built-in catalog")
	duration := flag.Duration("duration", 0, "Flight time (overrides sim.duration)")
	tick := flag.Duration("tick", 0, "Integrator step (overrides sim.tick)")
	accelerated := flag.Bool("accelerated", true, "Run in accelerated mode (vs real-time)")
	period := flag.Duration("rotation-period", 0, "Planet rotation period (overrides rotation.period)")
	alignGMST := flag.Bool("align-gmst", false, "Start the planet at Greenwich mean sidereal time")
	asJSON := flag.Bool("json", false, "Print the impact report as JSON")
	verbose := flag.Bool("verbose", false, "Print every tick")
	flag.Parse()

	settings, cfgErr := config.Load(*configDir)
	if cfgErr != nil && !config.IsNotFound(cfgErr) {
		fmt.Fprintf(os.Stderr, "impact-sim: %v\n", cfgErr)
		os.Exit(1)
	}
	if *duration > 0 {
		settings.Sim.Duration = *duration
	}
	if *tick > 0 {
		settings.Sim.Tick = *tick
	}
	if *period > 0 {
		settings.Rotation.Period = *period
	}
	if *alignGMST {
		settings.Rotation.Alignment = "gmst"
	}

	// Logs go to stderr so -json output stays parseable.
	log := logging.New(logging.Config{
		Level:   settings.Log.Level,
		Format:  settings.Log.Format,
		Writers: []io.Writer{os.Stderr},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	flags := runFlags{
		AsteroidID:  *asteroid,
		Target:      model.GeoCoordinate{Lat: *lat, Lng: *lng},
		Offline:     *offline,
		Accelerated: *accelerated,
		JSON:        *asJSON,
		Verbose:     *verbose,
	}
	if err := run(ctx, settings, flags, log, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "impact-sim: %v\n", err)
		os.Exit(1)
	}
}

// run flies one impactor onto the target and prints its report to out.
func run(ctx context.Context, settings config.Settings, f runFlags, log logging.Logger, out io.Writer) error {
	opts := []sim.Option{sim.WithLogger(log)}
	if f.Offline {
		opts = append(opts, sim.Offline())
	}
	a, err := sim.Assemble(ctx, settings, opts...)
	if err != nil {
		return err
	}
	defer a.Close()

	a.Loader.Load(ctx, 0)
	rec, err := pickAsteroid(a.Catalog, f.AsteroidID)
	if err != nil {
		return err
	}

	ctrl := a.Controller
	if err := ctrl.SelectImpactor(rec.Profile()); err != nil {
		return fmt.Errorf("impactor %s: %w", rec.ID, err)
	}
	if err := ctrl.SelectTarget(f.Target); err != nil {
		return fmt.Errorf("target: %w", err)
	}
	flight, err := ctrl.Begin(ctx, 0)
	if err != nil {
		return err
	}

	mode := timectrl.RealTime
	if f.Accelerated {
		mode = timectrl.Accelerated
	}
	tc := timectrl.NewTimeController(flight.StartedAt, settings.Sim.Tick, mode)

	var tickErr error
	tc.AddListener(func(time.Time) {
		res, err := ctrl.Tick(ctx, tc.Elapsed())
		if err != nil {
			tickErr = err
			tc.Stop()
			return
		}
		if f.Verbose && !f.JSON {
			fmt.Fprintf(out, "[%7s] progress=%5.1f%% pos=(%.2f, %.2f, %.2f) spin=%.3f rad\n",
				res.Elapsed.Round(time.Millisecond),
				res.Progress*100,
				res.Position.X, res.Position.Y, res.Position.Z,
				res.RotationAngle,
			)
		}
		if res.State != model.RunInFlight {
			tc.Stop()
		}
	})

	if !f.JSON {
		fmt.Fprintf(out, "Launching %s at (%.4f, %.4f): flight=%s, tick=%s, mode=%v\n",
			rec.Name, f.Target.Lat, f.Target.Lng, ctrl.FlightDuration(), settings.Sim.Tick, mode)
	}
	// Run past the flight time so the arrival tick always lands.
	done := tc.Start(ctrl.FlightDuration() + settings.Sim.Tick)
	select {
	case <-done:
	case <-ctx.Done():
		tc.Stop()
		<-done
		_ = ctrl.Abort(context.WithoutCancel(ctx))
		return ctx.Err()
	}
	if tickErr != nil {
		return fmt.Errorf("tick: %w", tickErr)
	}

	report, ok := ctrl.Report()
	if !ok {
		return errors.New("run ended without an impact report")
	}
	if f.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printReport(out, report)
	return nil
}

// pickAsteroid returns the record with id, or the first listed record when
// id is empty.
func pickAsteroid(catalog *kb.KnowledgeBase, id string) (model.NEORecord, error) {
	if id != "" {
		rec, ok := catalog.GetObject(id)
		if !ok {
			return model.NEORecord{}, fmt.Errorf("asteroid %q not in catalog", id)
		}
		return rec, nil
	}
	records := catalog.ListObjects()
	if len(records) == 0 {
		return model.NEORecord{}, errors.New("catalog is empty")
	}
	return records[0], nil
}

func printReport(w io.Writer, r model.ImpactReport) {
	c := r.Consequences
	fmt.Fprintf(w, "Impact %s\n", r.RunID)
	fmt.Fprintf(w, "  impactor      %s (%.0f m at %.1f km/s)\n", r.Impactor.Name, r.Impactor.DiameterMeters, r.Impactor.VelocityKmPerSec)
	fmt.Fprintf(w, "  selected      %.4f, %.4f\n", r.Selected.Lat, r.Selected.Lng)
	fmt.Fprintf(w, "  actual        %.4f, %.4f (%s)\n", r.Actual.Lat, r.Actual.Lng, r.Region)
	fmt.Fprintf(w, "  drift         %.2f°\n", r.DriftDegrees)
	fmt.Fprintf(w, "  energy        %.2f Mt TNT (%s, danger %s)\n", r.Result.Megatons, c.EnergyClass, c.Danger)
	fmt.Fprintf(w, "  crater        %.0f m wide, %.0f m deep\n", r.Result.CraterDiameterMeters, c.CraterDepthMeters)
	fmt.Fprintf(w, "  fireball      %.1f km\n", r.Result.Radii.Fireball)
	fmt.Fprintf(w, "  severe        %.1f km\n", r.Result.Radii.Severe)
	fmt.Fprintf(w, "  moderate      %.1f km\n", r.Result.Radii.Moderate)
	fmt.Fprintf(w, "  casualties    ~%d\n", c.EstimatedCasualties)
	if c.Analog.Event != "" {
		fmt.Fprintf(w, "  comparable to %s (%.1fx)\n", c.Analog.Event, c.Analog.Ratio)
	}
	fmt.Fprintf(w, "  flight time   %s\n", r.FlightTime)
}

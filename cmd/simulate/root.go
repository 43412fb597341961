package simulate

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ValentinKolb/sandclock/cmd/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var (
	simulateConfig = Config{}
	SimulateCmd    = &cobra.Command{
		Use:   "simulate",
		Short: "Simulate clients that go silent and report how they were detected",
		Long: `Simulate a presence tracker: every client touches its key at a fixed interval, a fraction
of the clients stops half way through the run. The report shows how many silent clients were
detected and the delay between their last touch and the timeout notification.
Flags can also be set via environment variables in the format SANDCLOCK_<flag> (e.g. SANDCLOCK_CLIENTS=500)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	util.SetupClockFlags(SimulateCmd, time.Second)

	key := "clients"
	SimulateCmd.Flags().Int(key, 1000, util.WrapString("Number of simulated clients"))

	key = "silent"
	SimulateCmd.Flags().Float64(key, 0.2, util.WrapString("Fraction of clients that go silent (0-1)"))

	key = "interval"
	SimulateCmd.Flags().Duration(key, 200*time.Millisecond, util.WrapString("Interval between two touches of one client, must be shorter than the timeout"))

	key = "duration"
	SimulateCmd.Flags().Duration(key, 10*time.Second, util.WrapString("Total run time. Silent clients stop after half of it"))

	key = "keys"
	SimulateCmd.Flags().String(key, "uuid", util.WrapString("Key type (uuid, session). Session keys are large composite keys"))

	key = "seed"
	SimulateCmd.Flags().Int64(key, 1, util.WrapString("Seed for choosing the silent clients"))

	key = "output"
	SimulateCmd.Flags().StringP(key, "o", "text", util.WrapString("Format of the report (text, json, yaml)"))

	key = "metrics"
	SimulateCmd.Flags().Bool(key, false, util.WrapString("Print the metrics of the clock in Prometheus text format after the report"))
}

// processConfig reads the configuration from the command line flags and environment variables
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := util.ProcessClockConfig(cmd); err != nil {
		return err
	}

	simulateConfig = Config{
		Clients:        viper.GetInt("clients"),
		SilentFraction: viper.GetFloat64("silent"),
		TouchInterval:  viper.GetDuration("interval"),
		Duration:       viper.GetDuration("duration"),
		KeyType:        viper.GetString("keys"),
		Seed:           viper.GetInt64("seed"),
	}
	if simulateConfig.SilentFraction < 0 || simulateConfig.SilentFraction > 1 {
		return fmt.Errorf("silent must be between 0 and 1, got %f", simulateConfig.SilentFraction)
	}
	return nil
}

func run(cmd *cobra.Command, _ []string) error {
	opts := util.GetClockOptions()
	format := strings.ToLower(viper.GetString("output"))

	if format == "text" {
		fmt.Println("Simulating clients for", simulateConfig.Duration)
		fmt.Print(opts.String())
		fmt.Println()
	}

	var metricsOut io.Writer
	if viper.GetBool("metrics") {
		metricsOut = &strings.Builder{}
	}

	report, err := Run(cmd.Context(), simulateConfig, opts, metricsOut)
	if err != nil {
		return err
	}

	if err := writeReport(os.Stdout, format, report); err != nil {
		return err
	}
	if metricsOut != nil {
		fmt.Println()
		fmt.Print(metricsOut.(*strings.Builder).String())
	}
	return nil
}

// writeReport writes the report in the given format (text, json or yaml)
func writeReport(w io.Writer, format string, r *Report) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(r)
	case "text":
		fmt.Fprintf(w, "%-22s%d\n", "Clients", r.Clients)
		fmt.Fprintf(w, "%-22s%d\n", "Touches", r.Touches)
		fmt.Fprintf(w, "%-22s%d\n", "Silent", r.Silent)
		fmt.Fprintf(w, "%-22s%d\n", "Detected", r.Detected)
		fmt.Fprintf(w, "%-22s%d\n", "Missed", r.Missed)
		fmt.Fprintf(w, "%-22s%d\n", "False Positives", r.FalsePositives)
		fmt.Fprintf(w, "%-22s%d\n", "Duplicates", r.Duplicates)
		if r.DelayMs.Count > 0 {
			fmt.Fprintf(w, "%-22smin=%.1fms mean=%.1fms p95=%.1fms max=%.1fms\n", "Detection Delay",
				r.DelayMs.Min, r.DelayMs.Mean, r.DelayMs.P95, r.DelayMs.Max)
		}
		fmt.Fprintf(w, "%-22s%d cycles, %d timeouts, %d dropped\n", "Clock",
			r.Clock.ScanCycles, r.Clock.Timeouts, r.Clock.DroppedEvents)
		return nil
	default:
		return fmt.Errorf("invalid output format: %s. must be one of text, json, yaml", format)
	}
}

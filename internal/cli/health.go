package cli

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
)

// ErrUnhealthy — система или воркер в статусе Unhealthy.
// CLI завершается с ненулевым кодом, чтобы команду можно было
// использовать в скриптах.
var ErrUnhealthy = errors.New("unhealthy")

// NewHealthCmd создаёт команду проверки здоровья.
func NewHealthCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var ready, live bool
	var worker string

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check system health",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if ready && live {
				return errors.New("--ready and --live are mutually exclusive")
			}

			var report *HealthReport
			var err error
			switch {
			case worker != "":
				report, err = client.WorkerHealth(cmd.Context(), worker)
			case ready:
				report, err = client.Health(cmd.Context(), HealthReady)
			case live:
				report, err = client.Health(cmd.Context(), HealthLive)
			default:
				report, err = client.Health(cmd.Context(), HealthAll)
			}
			if err != nil {
				return err
			}

			printReport(out, report)
			if report.Status == "Unhealthy" {
				return fmt.Errorf("%w: status %s", ErrUnhealthy, report.Status)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&ready, "ready", false, "Only readiness checks (database, broker)")
	cmd.Flags().BoolVar(&live, "live", false, "Liveness only, no dependency checks")
	cmd.Flags().StringVar(&worker, "worker", "", "Check a single worker (PaymentWorker, InventoryWorker, EmailWorker)")

	cmd.AddCommand(newHealthWorkersCmd(clientFn, outputFn))
	return cmd
}

func newHealthWorkersCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "workers",
		Short: "Show the last reported snapshot of each worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			workers, err := client.ListWorkers(cmd.Context())
			if err != nil {
				return err
			}

			headers := []string{"WORKER", "STATUS", "PROCESSED", "ERRORS", "ERROR_RATE", "LAST_CHECK"}
			rows := make([][]string, len(workers))
			for i, w := range workers {
				rows[i] = []string{
					w.WorkerName,
					w.Status,
					strconv.FormatInt(w.TotalProcessed, 10),
					strconv.FormatInt(w.TotalErrors, 10),
					strconv.FormatFloat(w.ErrorRate, 'f', 2, 64),
					w.LastCheckTime,
				}
			}

			out.Print(headers, rows, workers)
			return nil
		},
	}
}

func printReport(out *Output, report *HealthReport) {
	if out.IsJSON() {
		out.JSON(report)
		return
	}

	names := make([]string, 0, len(report.Entries))
	for name := range report.Entries {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([][]string, len(names))
	for i, name := range names {
		e := report.Entries[name]
		rows[i] = []string{name, e.Status, e.Description, e.Error}
	}

	out.Success("Overall: " + report.Status)
	out.Table([]string{"CHECK", "STATUS", "DESCRIPTION", "ERROR"}, rows)
}

package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/tendant/schema-content/pkg/schemacontent"
	"github.com/tendant/schema-content/pkg/schemacontent/admin"
	"github.com/tendant/schema-content/pkg/schemacontent/scan"
)

var indexesCmd = &cobra.Command{
	Use:   "indexes",
	Short: "Manage the content index set",
}

var indexesEnsureCmd = &cobra.Command{
	Use:   "ensure",
	Short: "Create the required indexes (idempotent)",
	RunE: func(cmd *cobra.Command, args []string) error {
		spinner, _ := pterm.DefaultSpinner.Start("Ensuring indexes...")
		if err := repo.EnsureIndexes(cmd.Context()); err != nil {
			spinner.Fail(err.Error())
			return err
		}
		spinner.Success("Indexes ensured")

		data := pterm.TableData{{"Name", "Keys"}}
		for _, idx := range schemacontent.RequiredIndexes() {
			data = append(data, []string{idx.Name, describeIndex(idx)})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

func describeIndex(idx schemacontent.IndexSpec) string {
	if idx.Text {
		return "text(dataText)"
	}
	out := ""
	for i, k := range idx.Keys {
		if i > 0 {
			out += ", "
		}
		out += string(k.Column)
		if k.Descending {
			out += " desc"
		}
	}
	return out
}

var statsFlags scopeFlags

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show per-status statistics of one schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		filters, err := statsFlags.filters()
		if err != nil {
			return err
		}
		resp, err := admin.New(repo).GetStatistics(cmd.Context(), admin.StatisticsRequest{
			Filters: filters,
			Options: admin.DefaultStatisticsOptions(),
		})
		if err != nil {
			return err
		}
		if statsFlags.jsonOut {
			return printJSON(resp)
		}

		stats := resp.Statistics
		data := pterm.TableData{{"Status", "Count"}}
		for _, status := range admin.AllStatuses {
			if n, ok := stats.ByStatus[status]; ok {
				data = append(data, []string{string(status), strconv.FormatInt(n, 10)})
			}
		}
		data = append(data, []string{"Total", strconv.FormatInt(stats.TotalCount, 10)})
		if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
			return err
		}
		if stats.Newest != nil {
			pterm.Info.Printfln("Newest modification: %s", stats.Newest.Format(time.RFC3339))
		}
		return nil
	},
}

var (
	queryFlags scopeFlags
	queryTop   int
	querySkip  int
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query latest content versions",
	RunE: func(cmd *cobra.Command, args []string) error {
		filters, err := queryFlags.filters()
		if err != nil {
			return err
		}
		filters.Limit, filters.Offset = queryTop, querySkip

		resp, err := admin.New(repo).ListAllContents(cmd.Context(), admin.ListContentsRequest{Filters: filters})
		if err != nil {
			return err
		}
		if queryFlags.jsonOut {
			return printJSON(resp)
		}

		data := pterm.TableData{{"ID", "Version", "Status", "Last Modified"}}
		for _, item := range resp.Contents {
			data = append(data, []string{
				item.ID.String(),
				strconv.FormatInt(item.Version, 10),
				string(item.Status),
				item.LastModified.Format(time.RFC3339),
			})
		}
		if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
			return err
		}
		pterm.Info.Printfln("Showing %d of %d (offset %d)", len(resp.Contents), resp.TotalCount, resp.Offset)
		return nil
	},
}

var (
	scanFlags     scopeFlags
	scanBatchSize int
	scanDryRun    bool
	scanPrint     bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Walk every matching content and report counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		filters, err := scanFlags.filters()
		if err != nil {
			return err
		}

		counter := scan.NewCounter()
		processors := []scan.ContentProcessor{counter}
		if scanPrint {
			processors = append(processors, scan.ProcessorFunc(func(_ context.Context, item *schemacontent.ContentItem) error {
				pterm.Printfln("%s v%d %s", item.ID, item.Version, item.Status)
				return nil
			}))
		}

		scanner := scan.New(admin.New(repo), log)
		result, err := scanner.Scan(cmd.Context(), scan.ScanOptions{
			Filters:   filters,
			Processor: scan.Chain(processors...),
			BatchSize: scanBatchSize,
			DryRun:    scanDryRun,
			OnProgress: func(processed, total int64) {
				pterm.Debug.Printfln("processed %d/%d", processed, total)
			},
		})
		if err != nil {
			return err
		}
		if scanFlags.jsonOut {
			return printJSON(map[string]interface{}{"result": result, "by_status": counter.Counts()})
		}

		data := pterm.TableData{
			{"Found", "Processed", "Failed"},
			{fmt.Sprint(result.TotalFound), fmt.Sprint(result.TotalProcessed), fmt.Sprint(result.TotalFailed)},
		}
		if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
			return err
		}
		for status, n := range counter.Counts() {
			pterm.Info.Printfln("%s: %d", status, n)
		}
		return nil
	},
}

func init() {
	indexesCmd.AddCommand(indexesEnsureCmd)

	statsFlags.register(statsCmd)

	queryFlags.register(queryCmd)
	queryCmd.Flags().IntVar(&queryTop, "top", schemacontent.DefaultTake, "page size")
	queryCmd.Flags().IntVar(&querySkip, "skip", 0, "page offset")

	scanFlags.register(scanCmd)
	scanCmd.Flags().IntVar(&scanBatchSize, "batch-size", 100, "contents per page")
	scanCmd.Flags().BoolVar(&scanDryRun, "dry-run", false, "report without processing")
	scanCmd.Flags().BoolVar(&scanPrint, "print", false, "print each processed content")
}

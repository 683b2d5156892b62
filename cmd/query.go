package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aptlens/aptlens/internal/model"
	"github.com/aptlens/aptlens/internal/search"
)

var queryFlags struct {
	address   string
	radiusKm  float64
	area      string
	buildYear string
	sortBy    string
	order     string
	page      int
}

var queryCmd = &cobra.Command{
	Use:   "query <file>",
	Short: "Search analyzed transactions around an address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		d, err := env.analyzer.Run(ctx, args[0])
		if err != nil {
			return err
		}

		radius := queryFlags.radiusKm
		if radius <= 0 {
			radius = cfg.Search.DefaultRadiusKm
		}
		res, err := env.engine.Search(ctx, d.Rows, search.Query{
			Address:     queryFlags.address,
			RadiusKm:    radius,
			AreaBucket:  queryFlags.area,
			BuildBucket: queryFlags.buildYear,
			SortBy:      queryFlags.sortBy,
			SortDesc:    queryFlags.order == "desc",
			Page:        queryFlags.page,
			PerPage:     cfg.Search.PerPage,
		})
		if err != nil {
			return err
		}

		if !res.Found {
			fmt.Println(res.Message)
			return nil
		}
		printResultTable(res)
		return nil
	},
}

// tableColumns is the subset of columns narrow enough for terminal output.
var tableColumns = []string{
	model.ColComplex, model.ColDistrict, model.ColArea, model.ColContractYM,
	model.ColPrice, model.ColPricePerPyeong, model.ColBuildYear, model.ColDistanceKm,
}

func printResultTable(res *search.Result) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, col := range tableColumns {
		fmt.Fprintf(w, "%s\t", col)
	}
	fmt.Fprintln(w)
	for _, row := range res.Rows {
		for _, col := range tableColumns {
			fmt.Fprintf(w, "%s\t", row[col])
		}
		fmt.Fprintln(w)
	}
	w.Flush() //nolint:errcheck

	fmt.Printf("\n%d transactions, page %d/%d", res.TotalCount, res.Page, res.TotalPages)
	if res.AvgPrice != "" {
		fmt.Printf(", avg price %s", res.AvgPrice)
	}
	fmt.Println()
	if res.Message != "" {
		fmt.Println(res.Message)
	}
}

func init() {
	queryCmd.Flags().StringVar(&queryFlags.address, "address", "", "center address (required)")
	queryCmd.Flags().Float64Var(&queryFlags.radiusKm, "radius", 0, "radius in km (default from config)")
	queryCmd.Flags().StringVar(&queryFlags.area, "area", "all", "area bucket: all, le60, gt60le85, gt85le102, gt102le135, gt135")
	queryCmd.Flags().StringVar(&queryFlags.buildYear, "build-year", "all", "build-year bucket: all, recent5, recent10, recent15, over15")
	queryCmd.Flags().StringVar(&queryFlags.sortBy, "sort", "", "sort column")
	queryCmd.Flags().StringVar(&queryFlags.order, "order", "asc", "sort order: asc or desc")
	queryCmd.Flags().IntVar(&queryFlags.page, "page", 1, "result page")
	queryCmd.MarkFlagRequired("address") //nolint:errcheck
	rootCmd.AddCommand(queryCmd)
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"visreg/internal/imaging"
	"visreg/internal/metric"
	"visreg/internal/report"
)

var (
	compareMetric    string
	compareThreshold float64
	compareDirection string
)

var compareCmd = &cobra.Command{
	Use:   "compare <golden> <latest>",
	Short: "Compare two images directly, without building or rendering",
	Long: `Loads two netpbm images and reports the selected metric. With a
non-zero --threshold the comparison also passes or fails per --direction:
"lower" fails when the value exceeds the threshold, "higher" fails when it
falls below.`,
	Args: cobra.ExactArgs(2),
	RunE: compareImages,
}

func init() {
	compareCmd.Flags().StringVar(&compareMetric, "metric", metric.RMSE, "metric to compute (SSIM, RMSE, MAE, PSNR)")
	compareCmd.Flags().Float64Var(&compareThreshold, "threshold", 0, "pass/fail threshold (0 reports the value only)")
	compareCmd.Flags().StringVar(&compareDirection, "direction", metric.DirectionLower, "threshold direction (lower or higher)")
}

func compareImages(cmd *cobra.Command, args []string) error {
	golden, err := imaging.DecodeFile(args[0])
	if err != nil {
		return err
	}
	latest, err := imaging.DecodeFile(args[1])
	if err != nil {
		return err
	}

	value, err := metric.Compute(compareMetric, golden, latest)
	if err != nil {
		return err
	}

	var threshold *float64
	if compareThreshold != 0 {
		threshold = &compareThreshold
	}

	name, _ := metric.Normalize(compareMetric)
	fmt.Println(report.Comparison(args[1], name, value, threshold, compareDirection))
	if err := metric.Verdict(name, value, threshold, compareDirection); err != nil {
		fmt.Println(report.Verdict(false))
		return err
	}
	if threshold != nil {
		fmt.Println(report.Verdict(true))
	}
	return nil
}

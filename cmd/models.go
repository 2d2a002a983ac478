package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/model"
)

var modelsCmd = &cobra.Command{
	Use:     "models",
	Aliases: []string{"model"},
	Short:   "Manage fitted models in the local store",
	Long: `Models saved with fit --save (or POST /api/v1/models/{kind}/fit with
"save": true) are kept in the local store with their handle, metadata and
the forecast computed at fit time.`,
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored models",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()
		if err := deps.OpenStore(); err != nil {
			return err
		}

		start := time.Now()
		infos, err := deps.Store.ListModels()
		if err != nil {
			return err
		}
		result := newResult(model.KindModelInfo, "models list", infos, len(infos), start)
		return emit(cmd, deps.Config.Format, result)
	},
}

var modelsGetWithResult bool

var modelsGetCmd = &cobra.Command{
	Use:   "get <MODEL_ID>",
	Short: "Show a stored model",
	Long: `Get prints the metadata of a stored model. With --result it prints the
forecast computed when the model was fitted instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		start := time.Now()
		rec, err := deps.GetModel(args[0])
		if err != nil {
			return err
		}
		if modelsGetWithResult {
			if rec.Result == nil {
				return fmt.Errorf("model %s has no stored forecast", args[0])
			}
			rep := &model.ForecastReport{Model: &rec.Info, Result: *rec.Result}
			result := newResult(model.KindForecastResult, "models get "+args[0], rep, rec.Result.BestForecast.Len(), start)
			return emit(cmd, deps.Config.Format, result)
		}
		result := newResult(model.KindModelInfo, "models get "+args[0], rec.Info, 1, start)
		return emit(cmd, deps.Config.Format, result)
	},
}

var modelsDeleteCmd = &cobra.Command{
	Use:     "delete <MODEL_ID...>",
	Aliases: []string{"rm"},
	Short:   "Delete stored models",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()
		if err := deps.OpenStore(); err != nil {
			return err
		}
		for _, id := range args {
			if err := deps.Store.DeleteModel(id); err != nil {
				return fmt.Errorf("model %s: %w", id, err)
			}
			if !globalFlags.Quiet {
				fmt.Fprintf(cmd.ErrOrStderr(), "✓ Deleted model %s\n", id)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.AddCommand(modelsListCmd)
	modelsCmd.AddCommand(modelsGetCmd)
	modelsCmd.AddCommand(modelsDeleteCmd)

	modelsGetCmd.Flags().BoolVar(&modelsGetWithResult, "result", false, "print the stored forecast instead of the metadata")
}

// internal/commands/engines.go
package kolosalctl

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mwiater/kolosalctl/internal/kolosal"
	"github.com/mwiater/kolosalctl/internal/util"
	"github.com/spf13/cobra"
)

var enginesCmd = &cobra.Command{
	Use:     "engines",
	Aliases: []string{"engine"},
	Short:   "List and register inference engines",
}

var enginesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List engines known to the server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, func(ctx context.Context, rt *runtime) error {
			engines, err := rt.client.ListEngines(ctx)
			if err != nil {
				return err
			}
			if len(engines) == 0 {
				printWarn(rt.out, "no engines registered")
				return nil
			}
			fmt.Fprintln(rt.out, engineTable(engines))
			return nil
		})
	},
}

func engineTable(engines []kolosal.Engine) string {
	rows := make([][]string, 0, len(engines))
	for _, e := range engines {
		status := e.Status
		if status == "" {
			status = "-"
		}
		rows = append(rows, []string{util.TruncateRunes(e.ID, 60), status})
	}
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return titleStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers("ENGINE", "STATUS").
		Rows(rows...).
		String()
}

var enginesAddCmd = &cobra.Command{
	Use:   "add ENGINE_ID MODEL_URL",
	Short: "Register an engine; the server downloads the model in the background",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		localPath, _ := cmd.Flags().GetString("path")
		paramsFile, _ := cmd.Flags().GetString("params")
		loadNow, _ := cmd.Flags().GetBool("load-now")
		gpu, _ := cmd.Flags().GetInt("gpu")

		reg := kolosal.EngineRegistration{
			EngineID:        args[0],
			SourceURL:       args[1],
			LocalPath:       localPath,
			LoadImmediately: loadNow,
			MainGPUID:       gpu,
		}
		if paramsFile != "" {
			params, err := readLoadParams(paramsFile)
			if err != nil {
				return err
			}
			reg.LoadParams = params
		}

		return run(cmd, func(ctx context.Context, rt *runtime) error {
			submitted, err := rt.client.RegisterEngine(ctx, reg)
			if err != nil {
				return err
			}
			if !submitted {
				printWarn(rt.out, "engine %s already exists", reg.EngineID)
				return nil
			}
			printSuccess(rt.out, "registration submitted for %s; follow it with: kolosalctl download watch %s", reg.EngineID, reg.EngineID)
			return nil
		})
	},
}

func readLoadParams(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read load parameters: %w", err)
	}
	var params map[string]any
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, fmt.Errorf("parse load parameters %s: %w", path, err)
	}
	return params, nil
}

func init() {
	enginesAddCmd.Flags().String("path", "", "local model path recorded in the server config")
	enginesAddCmd.Flags().String("params", "", "JSON file with loading parameters (default: built-in set)")
	enginesAddCmd.Flags().Bool("load-now", false, "load the engine as soon as it is created")
	enginesAddCmd.Flags().Int("gpu", 0, "main GPU id")

	enginesCmd.AddCommand(enginesListCmd, enginesAddCmd)
	rootCmd.AddCommand(enginesCmd)
}

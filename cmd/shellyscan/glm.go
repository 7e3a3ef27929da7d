package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/shellyscan/internal/devicelist"
	"github.com/muurk/shellyscan/internal/render"
)

var (
	glmHub    string
	glmOutput string
)

func init() {
	glmCmd.Flags().StringVar(&glmHub, "hub", "", "Hub object name")
	glmCmd.Flags().StringVarP(&glmOutput, "output", "o", "", "Output file (default stdout)")

	rootCmd.AddCommand(glmCmd)
}

var glmCmd = &cobra.Command{
	Use:   "glm [devices.csv]",
	Short: "Convert a device list to a GridLAB-D model",
	Long: `Convert a name,addr device list into a GridLAB-D model with one hub
object holding a device object per row.

This produces the same text as 'shellyscan scan -f glm' without scanning.`,
	Example: `  # Convert the default device list
  shellyscan glm

  # Name the hub and write to a file
  shellyscan glm office.csv --hub office -o office.glm`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGLM,
}

func runGLM(cmd *cobra.Command, args []string) (err error) {
	path := devicelist.DefaultFile
	if len(args) == 1 {
		path = args[0]
	}

	list, err := devicelist.Load(path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if glmOutput != "" {
		f, err := os.Create(glmOutput)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("failed to close output file: %w", cerr)
			}
		}()
		out = f
	}

	return render.WriteGLM(out, list, glmHub)
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/sicko7947/smartflow/engine"
	"github.com/spf13/cobra"
)

type runOptions struct {
	inputFile string
	userID    string
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run <workflow.yaml>",
		Short: "Execute a workflow file once and print the execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(root.configFile)
			if err != nil {
				return err
			}
			return runOnce(cmd, cfg, args[0], opts)
		},
	}
	cmd.Flags().StringVarP(&opts.inputFile, "input", "i", "", "JSON input file, - for stdin")
	cmd.Flags().StringVarP(&opts.userID, "user", "u", "", "user id recorded on the execution")
	return cmd
}

func runOnce(cmd *cobra.Command, cfg *Config, path string, opts *runOptions) error {
	ctx := cmd.Context()

	logger, err := NewLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	wf, err := LoadWorkflowFile(path)
	if err != nil {
		return err
	}
	input, err := readInput(cmd.InOrStdin(), opts.inputFile)
	if err != nil {
		return err
	}

	execStore, closeStore, err := OpenStore(ctx, cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer closeStore()

	resultCache, closeCache, err := OpenCache(ctx, cfg.Cache, logger)
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	defer closeCache()

	engineOpts := []engine.EngineOption{
		engine.WithLogger(logger),
		engine.WithConfig(cfg.EngineConfig()),
		engine.WithCollaborators(NewCollaborators(cfg.Collaborators)),
	}
	if resultCache != nil {
		engineOpts = append(engineOpts, engine.WithResultCache(resultCache))
	}
	eng := engine.NewEngine(execStore, engineOpts...)

	exec, runErr := eng.ExecuteWorkflow(ctx, wf, input, opts.userID)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(exec); err != nil {
		return fmt.Errorf("failed to encode execution: %w", err)
	}
	if runErr != nil {
		return fmt.Errorf("execution %s %s: %w", exec.ID, exec.Status, runErr)
	}
	return nil
}

func readInput(stdin io.Reader, path string) (map[string]any, error) {
	var r io.Reader
	switch path {
	case "":
		return map[string]any{}, nil
	case "-":
		r = stdin
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		r = f
	}

	var input map[string]any
	if err := json.NewDecoder(r).Decode(&input); err != nil {
		return nil, fmt.Errorf("failed to decode input: %w", err)
	}
	return input, nil
}

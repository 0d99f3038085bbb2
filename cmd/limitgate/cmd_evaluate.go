/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/limitgate/internal/api"
	"github.com/friendsincode/limitgate/internal/command"
	"github.com/friendsincode/limitgate/internal/dispatch"
	"github.com/friendsincode/limitgate/internal/policy"
)

var (
	evaluatePolicyFile string
	evaluateRequest    string
	evaluateDispatch   bool
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate a schedule request offline",
	Long: `Evaluate a schedule request against a local YAML policy file.

Nothing is stored or announced and no AWS access is needed.

Examples:
  # Decision and normalized start
  limitgate evaluate --policies devices.yaml --request req.json

  # Read the request from stdin and print the command that would be sent
  echo '{"devId":"d1","startAt":"24/06/01,10:00:00","interval":[900],"maxWh":5000}' | \
    limitgate evaluate --policies devices.yaml --dispatch
`,
	RunE: runEvaluate,
}

func init() {
	evaluateCmd.Flags().StringVarP(&evaluatePolicyFile, "policies", "p", "", "YAML policy file (devices: {<id>: {timezone, opt_out_start, opt_out_end}})")
	evaluateCmd.Flags().StringVarP(&evaluateRequest, "request", "r", "-", "Request JSON file, or - for stdin")
	evaluateCmd.Flags().BoolVar(&evaluateDispatch, "dispatch", false, "Print the response the server would send, jitter included")
	_ = evaluateCmd.MarkFlagRequired("policies")
	rootCmd.AddCommand(evaluateCmd)
}

// staticPolicies serves a parsed policy file.
type staticPolicies map[string]policy.Record

func (s staticPolicies) Lookup(_ context.Context, deviceID string) (policy.Record, error) {
	rec, ok := s[deviceID]
	if !ok {
		return policy.Record{}, policy.ErrDeviceNotFound
	}
	return rec, nil
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(evaluatePolicyFile)
	if err != nil {
		return fmt.Errorf("read policy file: %w", err)
	}
	records, err := policy.ParseFile(data)
	if err != nil {
		return err
	}

	body, err := readRequest(cmd.InOrStdin(), evaluateRequest)
	if err != nil {
		return err
	}

	out, err := evaluate(cmd.Context(), staticPolicies(records), body, evaluateDispatch)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func readRequest(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read request: %w", err)
	}
	return data, nil
}

// evaluate runs a dry run, or the full pipeline without sinks when full is set.
func evaluate(ctx context.Context, policies policy.Lookup, body []byte, full bool) (any, error) {
	req, err := command.ParseRequest(body)
	if err != nil {
		return nil, err
	}

	svc := dispatch.New(policies, zerolog.Nop())
	if full {
		outcome, err := svc.Handle(ctx, req)
		if err != nil {
			return nil, err
		}
		_, resp := api.OutcomeResponse(outcome)
		return resp, nil
	}

	ev, err := svc.Evaluate(ctx, req)
	if err != nil {
		return nil, err
	}
	return api.NewEvaluationResponse(req.DeviceID, ev), nil
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"

	"github.com/friendsincode/limitgate/internal/lambdafn"
	"github.com/friendsincode/limitgate/internal/server"
)

var lambdaCmd = &cobra.Command{
	Use:   "lambda",
	Short: "Run as an AWS Lambda function behind API Gateway",
	Long: `Serve API Gateway proxy events with the same pipeline as the HTTP server.

The handler never returns; the Lambda runtime owns the process lifecycle.`,
	RunE: runLambda,
}

func init() {
	rootCmd.AddCommand(lambdaCmd)
}

func runLambda(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	shutdownTracer, err := initTracer(cmd.Context())
	if err != nil {
		return err
	}
	defer shutdownTracer()

	deps, err := server.Wire(cmd.Context(), cfg, logger)
	if err != nil {
		return fmt.Errorf("wire dependencies: %w", err)
	}
	defer func() { _ = deps.Close() }()

	if deps.Audit != nil {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go deps.Audit.Start(ctx)
	}

	lambda.Start(lambdafn.New(deps.API, logger).Handle)
	return nil
}

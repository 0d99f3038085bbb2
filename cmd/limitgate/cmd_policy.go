/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/friendsincode/limitgate/internal/db"
	"github.com/friendsincode/limitgate/internal/optout"
	"github.com/friendsincode/limitgate/internal/policy"
)

var (
	policyTimezone string
	policyStart    string
	policyEnd      string
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Manage device opt-out policies in the SQL database",
}

var policySetCmd = &cobra.Command{
	Use:   "set <device-id>",
	Short: "Create or replace a device policy",
	Long: `Create or replace the opt-out window for a device.

Examples:
  limitgate policy set dev-123 --timezone America/Los_Angeles --start 07:00 --end 09:00
`,
	Args: cobra.ExactArgs(1),
	RunE: runPolicySet,
}

var policyGetCmd = &cobra.Command{
	Use:   "get <device-id>",
	Short: "Show a device policy",
	Args:  cobra.ExactArgs(1),
	RunE:  runPolicyGet,
}

var policyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all device policies",
	Args:  cobra.NoArgs,
	RunE:  runPolicyList,
}

func init() {
	policySetCmd.Flags().StringVar(&policyTimezone, "timezone", "", "IANA time zone, e.g. America/New_York")
	policySetCmd.Flags().StringVar(&policyStart, "start", "", "Opt-out window start (HH:MM, local)")
	policySetCmd.Flags().StringVar(&policyEnd, "end", "", "Opt-out window end (HH:MM, local)")
	_ = policySetCmd.MarkFlagRequired("timezone")
	_ = policySetCmd.MarkFlagRequired("start")
	_ = policySetCmd.MarkFlagRequired("end")

	policyCmd.AddCommand(policySetCmd, policyGetCmd, policyListCmd)
	rootCmd.AddCommand(policyCmd)
}

func openPolicyStore() (*policy.SQLStore, func(), error) {
	if err := loadConfig(); err != nil {
		return nil, nil, err
	}
	database, err := initDatabase()
	if err != nil {
		return nil, nil, err
	}
	return policy.NewSQLStore(database), func() { _ = db.Close(database) }, nil
}

func runPolicySet(cmd *cobra.Command, args []string) error {
	rec := policy.Record{Timezone: policyTimezone, OptOutStart: policyStart, OptOutEnd: policyEnd}
	resolved, err := policy.Resolve(rec, optout.SystemZones())
	if err != nil {
		return err
	}

	store, closeDB, err := openPolicyStore()
	if err != nil {
		return err
	}
	defer closeDB()

	if err := store.Put(cmd.Context(), args[0], rec); err != nil {
		return fmt.Errorf("store policy: %w", err)
	}
	if resolved.CrossesMidnight() {
		logger.Warn().Str("device_id", args[0]).Msg("window ends before it starts and will never match")
	}
	logger.Info().Str("device_id", args[0]).Str("timezone", rec.Timezone).Msg("policy stored")
	return nil
}

func runPolicyGet(cmd *cobra.Command, args []string) error {
	store, closeDB, err := openPolicyStore()
	if err != nil {
		return err
	}
	defer closeDB()

	rec, err := store.Lookup(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}

func runPolicyList(cmd *cobra.Command, args []string) error {
	store, closeDB, err := openPolicyStore()
	if err != nil {
		return err
	}
	defer closeDB()

	all, err := store.List(cmd.Context())
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		rec := all[id]
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s-%s\n", id, rec.Timezone, rec.OptOutStart, rec.OptOutEnd)
	}
	return nil
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.


package main

import (
	"github.com/spf13/cobra"
)

var (
	configPath string
	force      bool

	rootCmd = &cobra.Command{
		Use:   "formsd",
		Short: "Serve server-side forms applications",
		Long: `formsd renders component trees as XML pages, answers AJAX updates
and content downloads, and keeps one user context per browser session.`,
		SilenceUsage: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the forms server",
		RunE:  runServe, // Defined in cmd_serve.go
	}

	// --- Configuration ---
	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Inspect and create configuration files",
	}
	configValidateCmd = &cobra.Command{
		Use:   "validate",
		Short: "Load the configuration and report the first problem",
		RunE:  runConfigValidate, // Defined in cmd_config.go
	}
	configInitCmd = &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with the default settings",
		RunE:  runConfigInit, // Defined in cmd_config.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Path to the configuration file. Without it the defaults and FORMS_* environment variables are used.")

	configInitCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	configCmd.AddCommand(configValidateCmd, configInitCmd)
	rootCmd.AddCommand(serveCmd, configCmd)
}

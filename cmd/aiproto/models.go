package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newModelsCmd(c *cli) *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the models loaded in LM Studio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := *c.cfg
			if cmd.Flags().Changed("lm-studio-url") {
				f.LMStudio.BaseURL = url
			}
			client := c.newClient(&f)
			defer client.Close()

			models, err := client.ListModels(cmd.Context())
			if err != nil {
				return withCodef(exitConnection, "cannot connect to LM Studio at %s: %v", f.LMStudio.BaseURL, err)
			}
			if len(models) == 0 {
				c.printf("No models loaded in LM Studio\n")
				return nil
			}
			c.printf("Available models (%d):\n", len(models))
			for _, m := range models {
				if m.OwnedBy != "" {
					c.printf("  - %s (%s)\n", m.ID, m.OwnedBy)
					continue
				}
				c.printf("  - %s\n", m.ID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "lm-studio-url", "", "LM Studio API base URL")
	return cmd
}

func newHealthCmd(c *cli) *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the connection to LM Studio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := *c.cfg
			if cmd.Flags().Changed("lm-studio-url") {
				f.LMStudio.BaseURL = url
			}
			client := c.newClient(&f)
			defer client.Close()

			h := client.HealthCheck(cmd.Context())
			status := color.GreenString(string(h.Status))
			if !h.Healthy() {
				status = color.RedString(string(h.Status))
			}
			c.printf("Status: %s\n", status)
			c.printf("Base URL: %s\n", h.BaseURL)
			c.printf("Models loaded: %d\n", h.ModelsCount)
			if h.Error != "" {
				c.printf("Error (%s): %s\n", h.ErrorKind, h.Error)
			}
			if !h.Healthy() {
				return &exitError{code: exitConnection}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "lm-studio-url", "", "LM Studio API base URL")
	return cmd
}

package main

import (
	"context"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/taskmaster/pulse/cmd/api/commands"
)

// @title TaskPulse API
// @version 1.0
// @description Personal task management with impact scoring, history and analytics
// @termsOfService https://github.com/taskmaster/pulse/blob/main/LICENSE

// @contact.name TaskPulse Support
// @contact.url https://github.com/taskmaster/pulse

// @license.name MIT
// @license.url https://github.com/taskmaster/pulse/blob/main/LICENSE

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	rootCmd := &cobra.Command{
		Use:           "taskpulse",
		Short:         "TaskPulse API Server",
		Long:          `TaskPulse tracks personal tasks with priority and impact scoring, keeps a full change history and serves productivity analytics.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Add commands
	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(commands.NewMigrateCommand())
	rootCmd.AddCommand(commands.NewUserCommand())
	rootCmd.AddCommand(commands.NewStatsCommand())
	rootCmd.AddCommand(commands.NewVersionCommand())

	// Execute root command
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Printf("Command execution failed: %v", err)
		os.Exit(1)
	}
}

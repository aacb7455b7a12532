package main

import (
	"fmt"

	"github.com/EVODENUBY/DYPSE-sub000/internal/config"
	"github.com/EVODENUBY/DYPSE-sub000/internal/server"
	"github.com/EVODENUBY/DYPSE-sub000/internal/server/middleware"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token signed with JWT_SECRET",
	Long:  "Mint a bearer token for calling the API, e.g. an admin token for POST /jobs/scrape.",
	RunE:  runToken,
}

var (
	tokenRole string
	tokenUser string
)

func init() {
	tokenCmd.Flags().StringVar(&tokenRole, "role", middleware.RoleAdmin, "Role claim")
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "User ID claim (random when empty)")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, _ []string) error {
	jwtConfig, err := config.NewJWTConfig()
	if err != nil {
		return fmt.Errorf("failed to create JWT config: %w", err)
	}

	userID := uuid.New()
	if tokenUser != "" {
		if userID, err = uuid.Parse(tokenUser); err != nil {
			return fmt.Errorf("invalid --user: %w", err)
		}
	}
	if tokenRole == "" {
		return fmt.Errorf("--role must not be empty")
	}

	token, err := server.NewJWTService(jwtConfig).GenerateToken(userID, tokenRole)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

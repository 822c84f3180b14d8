package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/routine-tracker/internal/utils"
)

var (
	tokenName string
	tokenTTL  time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token <email>",
	Short: "Mint a development bearer token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tok, err := utils.NewAccessToken(cfg.JWTSecret, args[0], tokenName, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok.Token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenName, "name", "", "display name claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
}

package main

import (
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/replay/internal/auth"
	"github.com/MarcoPoloResearchLab/replay/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var errTokenRequiresSecret = errors.New("auth.signing_secret is required to issue tokens")

func newTokenCommand() *cobra.Command {
	var displayName string

	tokenCmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue a session token accepted by the API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			if !appConfig.AuthEnabled() {
				return errTokenRequiresSecret
			}
			issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
				SigningSecret: []byte(appConfig.AuthSigningSecret),
				Issuer:        appConfig.AuthIssuer,
				TokenTTL:      appConfig.TokenTTL,
			})
			if err != nil {
				return err
			}
			token, expiresIn, err := issuer.IssueSessionToken(args[0], displayName)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\nexpires_in=%ds\n", token, expiresIn)
			return err
		},
	}
	tokenCmd.Flags().StringVar(&displayName, "display-name", "", "Display name embedded in the token")
	return tokenCmd
}

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/onnwee/pomodorotteux/config"
	"github.com/onnwee/pomodorotteux/crypto"
	"github.com/onnwee/pomodorotteux/errs"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the credential file",
	}
	cmd.AddCommand(newConfigInitCmd(a))
	return cmd
}

func newConfigInitCmd(a *app) *cobra.Command {
	var (
		path string
		p    config.Params
		seal bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a credential file",
		Long: `Write the credential file read by "run".

The OAuth token can be generated at https://twitchapps.com/tmi/. With --seal the token is
stored encrypted with the base64 key in ` + config.EncryptionKeyEnv + `.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				path = a.rt.ConfigPath
			}
			var sealer *crypto.Sealer
			if seal {
				s, err := crypto.NewSealer(os.Getenv(config.EncryptionKeyEnv))
				if err != nil {
					return errs.Configuration("seal credential", err)
				}
				sealer = s
			}
			cfg, err := config.Generate(path, p, sealer)
			if err != nil {
				return err
			}
			a.log.Info("configuration written", slog.String("path", path), slog.Any("config", cfg), slog.Bool("sealed", seal))
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "credential file to write (default $POMODORO_CONFIG)")
	cmd.Flags().StringVar(&p.Channel, "channel", "", "channel to join (required)")
	cmd.Flags().StringVar(&p.Nickname, "nickname", "", "login nickname (default: the channel)")
	cmd.Flags().StringVar(&p.DatabasePath, "database", "", "scoreboard file (default ~/.config/Pomodoro/database.pomo)")
	cmd.Flags().StringVar(&p.OAuthKey, "oauth", "", "chat OAuth token (required)")
	cmd.Flags().StringVar(&p.ServerAddress, "server", "", "IRC server host")
	cmd.Flags().IntVar(&p.Port, "port", 0, "IRC server port")
	cmd.Flags().BoolVar(&seal, "seal", false, "encrypt the token with "+config.EncryptionKeyEnv)
	return cmd
}

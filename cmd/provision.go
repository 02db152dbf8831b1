package cmd

import (
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/bwmarrin/discordgo"
	"github.com/l-messias/huebot/huebot"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

var provisionGuildID string

// provisionCmd runs the role provisioner once, over the REST API only,
// without connecting to the gateway or starting the HTTP server. Useful
// for setting up a guild before the bot is ever started.
var provisionCmd = &cobra.Command{
	Use:   "provision [flags]",
	Short: "Create any missing color roles in a guild, then exit",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()

		if cfg.Discord.Token == "" {
			log.Fatal("discord token not set")
		}
		guildID := provisionGuildID
		if guildID == "" {
			guildID = cfg.Discord.GuildID
		}
		if guildID == "" {
			log.Fatal("no guild ID given (use --guild-id)")
		}

		palette, err := huebot.LoadPalette(cfg.Palette)
		if err != nil {
			log.Fatalf("error loading palette: %v", err)
		}

		session, err := discordgo.New("Bot " + cfg.Discord.Token)
		if err != nil {
			log.Fatalf("error creating discord session: %v", err)
		}

		logger := slog.New(
			tint.NewHandler(
				os.Stdout, &tint.Options{Level: cfg.LogLevel},
			),
		)
		provisioner := huebot.NewProvisioner(session, *cfg.Provision, logger)
		if _, err = provisioner.Run(ctx, guildID, palette); err != nil {
			log.Fatalf("provisioning failed: %v", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), provisioner.Summary().String())
	},
}

func init() {
	rootCmd.AddCommand(provisionCmd)
	provisionCmd.Flags().StringVar(
		&provisionGuildID,
		"guild-id",
		"",
		"Guild to provision (defaults to discord.guild_id)",
	)
}

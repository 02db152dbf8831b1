package huebot

import (
	"context"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

const provisionDeniedMessage = "You need the **Manage Roles** permission to do that."

// handleProvisionCommand runs the role provisioner for the guild the
// interaction came from. The response is deferred up front: a run over a
// large palette can take well past the 3-second initial-response window
// when rate limited.
func (h *Huebot) handleProvisionCommand(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) {
	ctx, logger := h.getLogger(ctx)

	if i.GuildID == "" {
		h.respondEphemeral(ctx, i, "This command only works in a server.")
		return
	}

	if i.Member == nil ||
		i.Member.Permissions&discordgo.PermissionManageRoles == 0 {
		user := getDiscordUser(i)
		if user != nil {
			logger.WarnContext(
				ctx,
				"provision denied",
				slog.Group("user", discordUserLogAttrs(*user)...),
			)
		}
		h.respondEphemeral(ctx, i, provisionDeniedMessage)
		return
	}

	if err := h.discord.session.InteractionRespond(
		i.Interaction,
		h.discord.ackResponse(),
	); err != nil {
		logger.ErrorContext(ctx, "error acknowledging interaction", tint.Err(err))
		return
	}

	provisioner := NewProvisioner(
		h.discord.session,
		*h.config.Provision,
		h.logger,
	)
	_, err := provisioner.Run(ctx, i.GuildID, h.palette)
	if err != nil {
		logger.ErrorContext(ctx, "provisioning run failed", tint.Err(err))
		errMsg := DefaultDiscordErrorMessage
		_, _ = h.discord.session.InteractionResponseEdit(
			i.Interaction,
			&discordgo.WebhookEdit{Content: &errMsg},
		)
		return
	}

	h.setLastProvision(provisioner.Summary())

	summary := provisioner.Summary().String()
	if _, err := h.discord.session.InteractionResponseEdit(
		i.Interaction,
		&discordgo.WebhookEdit{Content: &summary},
	); err != nil {
		logger.ErrorContext(ctx, "error editing interaction response", tint.Err(err))
	}
}

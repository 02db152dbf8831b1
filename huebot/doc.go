// Package huebot implements a Discord bot that provisions "color" roles
// from a static palette and lets guild members pick one through a
// select-menu dropdown.
//
// Key components of the package include:
//
//   - Huebot: The main struct that encapsulates the bot's core functionality.
//   - Discord: Handles Discord integration and gateway events.
//   - Provisioner: Creates palette roles concurrently, retrying on rate limits.
//   - API: Provides a small HTTP surface for health checks and audit queries.
//   - Database: Persists role-change and interaction audit records.
//
// The bot supports two slash commands:
//
//   - /color: Presents a dropdown of available color roles; picking one swaps
//     the member's current color role for the selection.
//   - /provision: Creates any palette roles missing from the guild (requires
//     the Manage Roles permission).
//
// Discord remains the source of truth for roles and members; huebot's own
// database only records what happened and when.
package huebot

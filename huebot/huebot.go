package huebot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/go-playground/validator/v10"
	"github.com/lmittmann/tint"
	"gorm.io/gorm"
)

// Set via -ldflags at build time
var (
	Version   = "dev"
	CommitSHA = ""
	BuildTime = ""
)

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.SetTagName("binding")
	return v
}

// Huebot is the bot itself: discord session, role provisioner config,
// color palette, HTTP API and database, wired together.
type Huebot struct {
	config *Config

	db      *gorm.DB
	writeDB DBI

	discord *Discord
	api     *API

	palette []RoleTask

	logger     *slog.Logger
	logHandler slog.Handler

	runMu     sync.Mutex
	startedAt time.Time

	provisionMu   sync.Mutex
	lastProvision *ProvisionSummary

	// signalReady is closed when startup has finished (gateway connected,
	// commands registered, API listening)
	signalReady chan struct{}

	// signalStop stops a running bot when closed
	signalStop chan struct{}

	// eventShutdown is closed when shutdown has completed
	eventShutdown chan struct{}
}

// New creates a new Huebot instance from the given config. The discord
// session isn't opened and the HTTP server doesn't listen until [Huebot.Run].
func New(config *Config) (*Huebot, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := structValidator.Struct(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logHandler := tint.NewHandler(
		os.Stdout, &tint.Options{
			Level:     config.LogLevel,
			AddSource: true,
		},
	)
	logger := slog.New(logHandler).With(loggerNameKey, "huebot")

	palette, err := LoadPalette(config.Palette)
	if err != nil {
		return nil, fmt.Errorf("error loading palette: %w", err)
	}
	logger.Info(
		"loaded palette",
		"source", config.Palette,
		"roles", len(palette),
	)

	h := &Huebot{
		config:        config,
		palette:       palette,
		logger:        logger,
		logHandler:    logHandler,
		signalReady:   make(chan struct{}),
		signalStop:    make(chan struct{}, 1),
		eventShutdown: make(chan struct{}, 1),
	}

	h.discord = newDiscord(config.Discord)
	h.discord.bot = h
	h.discord.logger = slog.New(
		tint.NewHandler(
			os.Stdout, &tint.Options{
				Level:     config.Discord.LogLevel,
				AddSource: true,
			},
		),
	).With(loggerNameKey, "discord")

	session, err := h.discord.newSession()
	if err != nil {
		return nil, err
	}
	h.discord.session = session
	if config.HTTPClient != nil {
		session.SetHTTPClient(config.HTTPClient)
	}

	api, err := newAPI(h, config.API)
	if err != nil {
		return nil, err
	}
	h.api = api

	return h, nil
}

// getLogger returns a logger from the given context if one is set,
// falling back to the bot's logger, which is then set on the returned
// context.
func (h *Huebot) getLogger(ctx context.Context) (context.Context, *slog.Logger) {
	logger, ok := ContextLogger(ctx)
	if ok && logger != nil {
		return ctx, logger
	}
	logger = h.logger
	if logger == nil {
		logger = slog.Default()
	}
	return WithLogger(ctx, logger), logger
}

// Run starts the bot: connects the database, starts the HTTP server,
// opens the discord gateway connection and registers slash commands,
// then blocks until the context is canceled or [Huebot.Stop] is called.
func (h *Huebot) Run(ctx context.Context) error {
	if !h.runMu.TryLock() {
		return errors.New("already running")
	}
	defer h.runMu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	ctx, logger := h.getLogger(ctx)

	h.startedAt = time.Now()

	db, err := CreateDB(
		ctx,
		h.config.DatabaseType,
		h.config.Database,
		h.config.DatabaseLogLevel,
		h.config.DatabaseSlowThreshold,
	)
	if err != nil {
		return fmt.Errorf("error initializing database: %w", err)
	}
	h.db = db
	h.writeDB = NewDatabase(
		db,
		h.logger,
		h.config.DatabaseType == dbTypePostgres,
	)

	apiErr := make(chan error, 1)
	go func() {
		if serveErr := h.api.Serve(ctx); serveErr != nil &&
			!errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error("http server error", tint.Err(serveErr))
			apiErr <- serveErr
		}
	}()

	startupCtx, startupCancel := context.WithTimeout(
		ctx,
		h.config.StartupTimeout,
	)
	defer startupCancel()

	if err = h.startDiscord(startupCtx, ctx); err != nil {
		return err
	}

	close(h.signalReady)
	logger.InfoContext(ctx, "started", "version", Version)

	select {
	case <-ctx.Done():
		logger.InfoContext(ctx, "context canceled, shutting down")
	case <-h.signalStop:
		logger.InfoContext(ctx, "stop signal received, shutting down")
	case err = <-apiErr:
		logger.ErrorContext(ctx, "http server failed, shutting down")
	}

	h.shutdown()
	return err
}

// Stop signals a running bot to shut down, and blocks until shutdown
// has finished.
func (h *Huebot) Stop() {
	select {
	case h.signalStop <- struct{}{}:
	default:
	}
	<-h.eventShutdown
}

func (h *Huebot) setLastProvision(summary ProvisionSummary) {
	h.provisionMu.Lock()
	defer h.provisionMu.Unlock()
	h.lastProvision = &summary
}

// LastProvision returns the summary of the most recent provisioning
// run, or nil if none has happened yet.
func (h *Huebot) LastProvision() *ProvisionSummary {
	h.provisionMu.Lock()
	defer h.provisionMu.Unlock()
	return h.lastProvision
}

// startDiscord opens the gateway connection, registers the gateway event
// handlers and overwrites the bot's slash commands. startupCtx bounds
// startup only; runCtx outlives it and is what the event handlers see.
func (h *Huebot) startDiscord(startupCtx context.Context, runCtx context.Context) error {
	_, logger := h.getLogger(startupCtx)

	discordgo.Logger = discordgoLoggerFunc(
		runCtx,
		tint.NewHandler(
			os.Stdout, &tint.Options{
				Level:     h.config.Discord.DiscordGoLogLevel,
				AddSource: true,
			},
		),
	)

	d := h.discord
	d.discordgoRemoveHandlerFuncs = append(
		d.discordgoRemoveHandlerFuncs,
		d.session.AddHandler(d.handlerReady()),
		d.session.AddHandler(d.handlerConnect()),
		d.session.AddHandler(d.handlerDisconnect()),
		d.session.AddHandler(
			func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
				h.handleInteraction(runCtx, i)
			},
		),
		d.session.AddHandler(
			func(_ *discordgo.Session, m *discordgo.GuildMemberUpdate) {
				h.handleGuildMemberUpdate(runCtx, m)
			},
		),
	)

	opened := make(chan error, 1)
	go func() {
		opened <- d.session.Open()
	}()
	select {
	case err := <-opened:
		if err != nil {
			return fmt.Errorf("error opening discord session: %w", err)
		}
	case <-startupCtx.Done():
		return fmt.Errorf(
			"timed out opening discord session: %w",
			startupCtx.Err(),
		)
	}

	if _, err := d.registerCommands(); err != nil {
		return fmt.Errorf("error registering commands: %w", err)
	}
	logger.InfoContext(startupCtx, "discord started")
	return nil
}

// shutdown closes the gateway connection and HTTP server, bounded by
// ShutdownTimeout.
func (h *Huebot) shutdown() {
	defer close(h.eventShutdown)

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		h.config.ShutdownTimeout,
	)
	defer cancel()

	for _, removeHandler := range h.discord.discordgoRemoveHandlerFuncs {
		removeHandler()
	}
	h.discord.discordgoRemoveHandlerFuncs = nil

	if err := h.discord.session.Close(); err != nil {
		h.logger.Error("error closing discord session", tint.Err(err))
	}

	if h.api != nil && h.api.httpServer != nil {
		if err := h.api.httpServer.Shutdown(shutdownCtx); err != nil {
			h.logger.Error("error shutting down http server", tint.Err(err))
		}
	}

	if h.db != nil {
		if sqlDB, err := h.db.DB(); err == nil {
			if closeErr := sqlDB.Close(); closeErr != nil {
				h.logger.Error("error closing database", tint.Err(closeErr))
			}
		}
	}
	h.logger.Info("shutdown complete")
}

// handleInteraction dispatches an incoming interaction to the
// appropriate command or component handler, and records it.
func (h *Huebot) handleInteraction(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) {
	ctx, logger := h.getLogger(ctx)
	logger = logger.With(
		slog.Group("interaction", interactionLogAttrs(*i)...),
	)
	ctx = WithLogger(ctx, logger)

	user := getDiscordUser(i)
	go h.logInteraction(ctx, i, user)

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		data := i.ApplicationCommandData()
		switch data.Name {
		case DiscordSlashCommandColor:
			h.handleColorCommand(ctx, i)
		case DiscordSlashCommandProvision:
			h.handleProvisionCommand(ctx, i)
		default:
			logger.WarnContext(ctx, "unknown command", "name", data.Name)
		}
	case discordgo.InteractionMessageComponent:
		data := i.MessageComponentData()
		if isColorSelect(data.CustomID) {
			h.handleColorSelect(ctx, i)
		} else {
			logger.WarnContext(ctx, "unknown component", "custom_id", data.CustomID)
		}
	default:
		logger.WarnContext(ctx, "unexpected interaction type")
	}
}

// logInteraction persists an [InteractionLog] row for the interaction.
func (h *Huebot) logInteraction(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	u *discordgo.User,
) {
	ctx, logger := h.getLogger(ctx)

	interactionLog, err := newInteractionLog(i, u)
	if err != nil {
		logger.ErrorContext(ctx, "error creating interaction log", tint.Err(err))
		return
	}
	if _, err = h.writeDB.Create(ctx, interactionLog); err != nil {
		logger.ErrorContext(ctx, "error saving interaction log", tint.Err(err))
	}
}

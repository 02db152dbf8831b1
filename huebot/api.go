package huebot

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	ginPprof "github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
)

const (
	xRequestIDHeader = "X-Request-ID"
	pprofPrefix      = "/debug/pprof"

	apiPathPing    = "/ping"
	apiPathHealth  = "/api/health"
	apiPathPalette = "/api/palette"
	apiPathChanges = "/api/changes"

	apiChangesMaxLimit = 200
)

// API provides the HTTP surface: a keep-alive endpoint, a health check,
// the loaded palette, and the role-change audit log.
type API struct {
	config     *APIConfig
	engine     *gin.Engine
	httpServer *http.Server
	listener   net.Listener
	logger     *slog.Logger
	bot        *Huebot
}

// newAPI initializes the API server and its routes.
func newAPI(h *Huebot, config *APIConfig) (*API, error) {
	logger := slog.New(
		tint.NewHandler(
			os.Stdout, &tint.Options{
				Level:     config.LogLevel,
				AddSource: true,
			},
		),
	).With(loggerNameKey, "api")

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	api := &API{
		config: config,
		engine: r,
		logger: logger,
		bot:    h,
	}

	httpServer := &http.Server{
		Addr:              config.Listen,
		Handler:           r,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	if config.SSL.Cert != "" || config.SSL.Key != "" {
		tlsCfg, err := tlsConfig(
			config.SSL.Cert,
			config.SSL.Key,
			config.SSL.TLSMinVersion,
		)
		if err != nil {
			return nil, fmt.Errorf("error loading SSL certs: %w", err)
		}
		httpServer.TLSConfig = tlsCfg
	}
	api.httpServer = httpServer

	corsConfig := config.CORS.GINConfig()
	if len(corsConfig.AllowOrigins) == 0 && config.Development {
		corsConfig.AllowOrigins = []string{"*"}
	}

	r.Use(
		gin.Recovery(),
		requestIDMiddleware(),
		ginLoggingMiddleware(api),
	)
	if len(corsConfig.AllowOrigins) > 0 {
		r.Use(cors.New(corsConfig))
	}

	r.GET(apiPathPing, api.ping)
	r.GET(apiPathHealth, api.healthCheck)
	r.GET(apiPathPalette, api.getPalette)
	r.GET(apiPathChanges, api.getRoleChanges)

	if config.Development {
		ginPprof.Register(r, pprofPrefix)
	}

	return api, nil
}

// Serve starts the HTTP server, listening until the server is closed.
func (a *API) Serve(ctx context.Context) error {
	if a.listener == nil {
		listenCfg := &net.ListenConfig{}
		ln, err := listenCfg.Listen(
			ctx,
			a.config.ListenNetwork,
			a.config.Listen,
		)
		if err != nil {
			return fmt.Errorf("error creating listener: %w", err)
		}
		if a.httpServer.TLSConfig != nil {
			ln = tls.NewListener(ln, a.httpServer.TLSConfig)
		}
		a.listener = ln
	}
	a.logger.Info("http server listening", "address", a.listener.Addr().String())
	return a.httpServer.Serve(a.listener)
}

func (a *API) ping(c *gin.Context) {
	c.String(http.StatusOK, "pong")
}

type healthResponse struct {
	Status           string            `json:"status"`
	Version          string            `json:"version"`
	Uptime           string            `json:"uptime"`
	DiscordConnected bool              `json:"discord_connected"`
	Connects         int64             `json:"gateway_connects"`
	Disconnects      int64             `json:"gateway_disconnects"`
	PaletteSize      int               `json:"palette_size"`
	LastProvision    *ProvisionSummary `json:"last_provision,omitempty"`
}

func (a *API) healthCheck(c *gin.Context) {
	h := a.bot
	c.JSON(
		http.StatusOK, healthResponse{
			Status:           "ok",
			Version:          Version,
			Uptime:           time.Since(h.startedAt).Round(time.Second).String(),
			DiscordConnected: h.discord.connected.Load(),
			Connects:         h.discord.metricConnects.Load(),
			Disconnects:      h.discord.metricDisconnects.Load(),
			PaletteSize:      len(h.palette),
			LastProvision:    h.LastProvision(),
		},
	)
}

type paletteResponseEntry struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

func (a *API) getPalette(c *gin.Context) {
	entries := make([]paletteResponseEntry, 0, len(a.bot.palette))
	for _, task := range a.bot.palette {
		entries = append(
			entries, paletteResponseEntry{
				Name:  task.Name,
				Color: fmt.Sprintf("#%06X", task.Color),
			},
		)
	}
	c.JSON(http.StatusOK, gin.H{"roles": entries})
}

func (a *API) getRoleChanges(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > apiChangesMaxLimit {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
		return
	}

	changes, err := a.bot.writeDB.RecentRoleChanges(
		c.Request.Context(),
		c.Query("guild_id"),
		limit,
		offset,
	)
	if err != nil {
		a.logger.Error("error fetching role changes", tint.Err(err))
		c.JSON(
			http.StatusInternalServerError,
			gin.H{"error": "error fetching role changes"},
		)
		return
	}
	c.JSON(http.StatusOK, gin.H{"changes": changes})
}

// requestIDMiddleware assigns a random request ID to each request, set
// on both the context and the response headers.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(xRequestIDHeader)
		if requestID == "" {
			buf := make([]byte, 8)
			if _, err := rand.Read(buf); err == nil {
				requestID = hex.EncodeToString(buf)
			}
		}
		c.Set("request_id", requestID)
		c.Header(xRequestIDHeader, requestID)
		c.Next()
	}
}

// ginLoggingMiddleware logs each request with its status, latency and
// request ID.
func ginLoggingMiddleware(a *API) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		a.logger.LogAttrs(
			c.Request.Context(),
			slog.LevelInfo,
			"http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(started)),
			slog.String("request_id", c.GetString("request_id")),
			slog.String("client_ip", c.ClientIP()),
		)
	}
}

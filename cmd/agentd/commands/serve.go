package commands

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentd-ai/agentd/internal/channel/console"
	"github.com/agentd-ai/agentd/internal/channel/tcpconsole"
	"github.com/agentd-ai/agentd/internal/config"
	"github.com/agentd-ai/agentd/internal/core"
	"github.com/agentd-ai/agentd/internal/event"
	"github.com/agentd-ai/agentd/internal/logging"
	"github.com/agentd-ai/agentd/internal/mcp"
	"github.com/agentd-ai/agentd/internal/plan"
	"github.com/agentd-ai/agentd/internal/provider"
	"github.com/agentd-ai/agentd/internal/router"
	"github.com/agentd-ai/agentd/internal/server"
	"github.com/agentd-ai/agentd/internal/storage"
	"github.com/agentd-ai/agentd/internal/task"
	"github.com/agentd-ai/agentd/internal/workflow"
	"github.com/agentd-ai/agentd/pkg/types"
)

var (
	serveDir        string
	serveToolServer string
	serveWebAddr    string
	serveTCPAddr    string
	serveConsole    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the agentd runtime",
	Long: `Start the agentd runtime with the configured channels.

Channels are enabled from configuration or flags; with nothing
configured the console channel is enabled so the runtime is usable
out of the box.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveDir, "directory", "", "Working directory")
	serveCmd.Flags().StringVar(&serveToolServer, "tool-server", "", "Tool server address (host:port)")
	serveCmd.Flags().StringVar(&serveWebAddr, "web-addr", "", "Web channel listen address")
	serveCmd.Flags().StringVar(&serveTCPAddr, "tcp-addr", "", "TCP console listen address")
	serveCmd.Flags().BoolVar(&serveConsole, "console", false, "Enable the stdin/stdout console channel")
}

func runServe(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(serveDir)
	if err != nil {
		return err
	}

	cfg, err := config.Load(workDir)
	if err != nil {
		return err
	}
	if serveToolServer != "" {
		cfg.ToolServer.Addr = serveToolServer
	}
	if serveWebAddr != "" {
		cfg.Channels.WebAddr = serveWebAddr
	}
	if serveTCPAddr != "" {
		cfg.Channels.TCPAddr = serveTCPAddr
	}
	if serveConsole {
		cfg.Channels.Console = true
	}
	if !cfg.Channels.Console && cfg.Channels.TCPAddr == "" && cfg.Channels.WebAddr == "" {
		cfg.Channels.Console = true
	}

	log := logging.Component("serve")
	log.Info().Str("version", Version).Str("dir", workDir).Msg("starting agentd")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, err := provider.InitializeProviders(ctx, cfg)
	if err != nil {
		return err
	}
	completer, err := registry.Default()
	if err != nil {
		return fmt.Errorf("no completion provider configured: %w", err)
	}
	log.Info().Str("provider", completer.ID()).Msg("completion provider ready")

	in := event.NewInputBus()
	out := event.NewOutputBus()
	defer in.Close()
	defer out.Close()
	rt := router.New()

	elicitor := mcp.NewElicitor(in, out, nil, cfg.ToolServer.ElicitationTimeout.Std())
	taskMgr := task.NewManager()

	var (
		pool    *mcp.Pool
		clients workflow.ClientSource
		catalog workflow.ToolClient
		lister  plan.ToolLister
	)
	if cfg.ToolServer.Addr != "" {
		pool = mcp.NewPool(mcp.ClientConfig{
			Addr:        cfg.ToolServer.Addr,
			DialTimeout: cfg.ToolServer.DialTimeout.Std(),
		}, elicitor)
		// Each session gets its own connection so one session's pending
		// elicitation never blocks another's tool calls. Background task
		// results come back over the output bus as plain text.
		clients = workflow.ClientSourceFunc(func(sessionID, source string) workflow.ToolClient {
			client := pool.ClientFor(sessionID, source)
			if client == nil {
				return nil
			}
			return workflow.NewTaskTools(client, taskMgr, func(text string) {
				out.Publish(types.NewTextOutput(sessionID, source, text))
			})
		})
		catalog = workflow.NewTaskTools(pool.Base(), taskMgr, nil)
		lister = catalog
		log.Info().Str("addr", cfg.ToolServer.Addr).Msg("tool server configured")
	} else {
		log.Warn().Msg("no tool server configured, planning without tools")
	}

	persona := cfg.Persona.OrDefault()
	engine := plan.NewLLMEngine(completer, lister)
	engine.SetPersona(persona)
	resolver := workflow.NewResolver(catalog, completer)
	executor := workflow.NewExecutor(clients, completer, resolver)
	executor.SetPersona(persona)

	var gate core.IntentGate
	if cfg.Session.IntentGate {
		llmGate := core.NewLLMIntentGate(completer)
		llmGate.SetPersona(persona)
		gate = llmGate
	}

	c := core.New(in, out, rt, engine, executor, gate, cfg.Session)

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		log.Warn().Err(err).Msg("data directory unavailable, memory will not persist")
	} else {
		c.Manager().SetMemoryStore(storage.New(paths.Data))
	}
	if pool != nil {
		// Drop a session's connection when the session is reaped.
		c.Manager().SetOnRetire(pool.Release)
	}

	c.Start(ctx)
	defer c.Stop()

	if cfg.Channels.Console {
		ch := console.New(in, nil, nil)
		c.AddHandler(console.HandlerID, ch.Emit)
		rt.Bind(router.Route{Source: "console"}, console.HandlerID)
		go func() {
			if err := ch.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("console channel stopped")
			}
		}()
		log.Info().Msg("console channel enabled")
	}

	var tcpCh *tcpconsole.Channel
	if cfg.Channels.TCPAddr != "" {
		tcpCh, err = tcpconsole.Listen(in, cfg.Channels.TCPAddr)
		if err != nil {
			return err
		}
		c.AddHandler(tcpconsole.HandlerID, tcpCh.Emit)
		rt.Bind(router.Route{Source: "tcp"}, tcpconsole.HandlerID)
		go func() {
			if err := tcpCh.Run(ctx); err != nil {
				log.Error().Err(err).Msg("tcp channel stopped")
			}
		}()
	}

	var webSrv *server.Server
	if cfg.Channels.WebAddr != "" {
		webCfg := server.DefaultConfig()
		webCfg.Addr = cfg.Channels.WebAddr
		webSrv = server.New(webCfg, in, out)
		// Web clients receive replies over their SSE streams, which ride
		// the output bus directly. The binding keeps web traffic out of
		// the broadcast set so other channels do not echo it.
		c.AddHandler("web", func(ev types.OutputEvent) {})
		rt.Bind(router.Route{Source: "web"}, "web")
		go func() {
			log.Info().Str("addr", cfg.Channels.WebAddr).Msg("web channel listening")
			if err := webSrv.Start(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("web server error")
			}
		}()
	}

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if webSrv != nil {
		if err := webSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("web server shutdown error")
		}
	}
	if tcpCh != nil {
		tcpCh.Close()
	}
	if pool != nil {
		pool.Close()
	}

	log.Info().Msg("stopped")
	return nil
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/hiyaok/guardbot/internal/adapters/llm"
	"github.com/hiyaok/guardbot/internal/bot"
	"github.com/hiyaok/guardbot/internal/config"
	"github.com/hiyaok/guardbot/internal/db/sqlite"
	"github.com/hiyaok/guardbot/internal/event"
	"github.com/hiyaok/guardbot/internal/handlers/chat"
	"github.com/hiyaok/guardbot/internal/handlers/moderation"
	"github.com/hiyaok/guardbot/internal/handlers/private"
	"github.com/hiyaok/guardbot/internal/lifecycle"
	"github.com/hiyaok/guardbot/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatalln("cant load config")
	}
	log.SetOutput(os.Stdout)
	log.SetLevel(log.Level(cfg.LogLevel))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := observability.Init(); err != nil {
		log.WithError(err).Fatalln("cant initialize observability")
	}

	botAPI, err := api.NewBotAPI(cfg.TelegramAPIToken)
	if err != nil {
		log.WithError(err).Errorln("cant initialize bot api")
		time.Sleep(1 * time.Second)
		log.Fatalln("exiting")
	}
	if log.Level(cfg.LogLevel) == log.TraceLevel {
		botAPI.Debug = true
	}
	defer botAPI.StopReceivingUpdates()

	dbClient, err := sqlite.NewSQLiteClient(ctx, cfg.DotPath, cfg.DBName)
	if err != nil {
		log.WithError(err).Fatalln("cant open database")
	}
	defer func() { _ = dbClient.Close() }()

	transport := bot.NewTransport(botAPI)
	service := bot.NewService(transport, dbClient)

	events := event.NewBus()
	events.Subscribe(event.NewChatNotifier(transport))
	events.Subscribe(event.NewAuditSink(observability.Audit))
	events.Run()
	defer events.Shutdown()

	admins := moderation.NewAdminChecker(transport, cfg.AdminCacheTTL)
	executor := moderation.NewExecutor(transport, admins, events)
	escalator := moderation.NewEscalator(dbClient, executor, admins, events)
	flood := moderation.NewFloodDetector(dbClient)
	filters := moderation.NewChain(transport.BotUsername())

	var scorer chat.SpamScorer
	if cfg.LLM.APIKey != "" {
		switch cfg.LLM.Type {
		case "openai":
			scorer = llm.NewOpenAIScorer(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL, dbClient)
		default:
			gemini, err := llm.NewGeminiScorer(ctx, cfg.LLM.APIKey, cfg.LLM.Model, dbClient)
			if err != nil {
				log.WithError(err).Warnln("cant initialize spam scorer, going without")
			} else {
				scorer = gemini
				defer func() { _ = gemini.Close() }()
			}
		}
	}

	bot.RegisterUpdateHandler("conversation", private.NewConversation(service))
	bot.RegisterUpdateHandler("membership", chat.NewMembership(service, executor, admins, events, cfg.CaptchaTimeout))
	bot.RegisterUpdateHandler("moderator", chat.NewModerator(service, filters, flood, escalator, executor, admins, events, scorer))

	runtime := lifecycle.NewRuntime()
	runtime.Register("metrics", observability.NewServer(cfg.MetricsAddr))
	runtime.Register("captcha sweeper", chat.NewCaptchaSweeper(service))
	if err := runtime.Start(ctx); err != nil {
		log.WithError(err).Fatalln("cant start components")
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer stopCancel()
		if err := runtime.Stop(stopCtx); err != nil {
			log.WithError(err).Errorln("unclean shutdown")
		}
	}()

	updateConfig := api.NewUpdate(0)
	updateConfig.Timeout = 60
	updateProcessor := bot.NewUpdateProcessor(service)
	updateChan, errorChan := bot.GetUpdatesChans(ctx, botAPI, updateConfig)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case err := <-errorChan:
				return err
			case update := <-updateChan:
				if err := updateProcessor.Process(ctx, &update); err != nil {
					log.WithError(err).Errorln("cant process update")
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		log.WithError(err).Fatalln("bot api get updates error")
	}
	log.Infoln("shutting down")
}

package app

import (
	"errors"
	"fmt"
	"log"
	"os"

	"mailsprint/config"
	"mailsprint/runner"
	"mailsprint/sendwindow"
	"mailsprint/sequence"
	"mailsprint/steps"
	"mailsprint/store"
	"mailsprint/utils"

	"github.com/go-redis/redis/v8"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

// App wires the long-lived collaborators the daemon and the CLI share.
type App struct {
	Policy    *sendwindow.Policy
	State     *store.State
	CRM       *store.CRM
	Mailer    *utils.Mailer
	Sequences *sequence.File
	Runner    *runner.Runner
	Logger    *logrus.Logger
}

// Build loads configuration, connects the database, and assembles the
// runner stack. Any failure here is fatal for the caller.
func Build() (*App, error) {
	if err := config.LoadConfig(); err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if err := config.ConnectDB(); err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	windowLogger := log.New(os.Stdout, "WINDOW: ", log.LstdFlags)

	controls, err := sendwindow.LoadControls(config.AppConfig.ControlsPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			windowLogger.Printf("Controls file %s not found; using defaults", config.AppConfig.ControlsPath)
			controls = sendwindow.DefaultControls()
		} else {
			return nil, err
		}
	}

	var counters sendwindow.CounterStore
	if config.AppConfig.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     config.AppConfig.Redis.Address,
			Password: config.AppConfig.Redis.Password,
			DB:       config.AppConfig.Redis.DB,
		})
		counters = sendwindow.NewRedisCounterStore(client, "sendwindow")
	} else {
		counters = sendwindow.NewFileCounterStore(config.AppConfig.CountersPath)
	}

	policy, err := sendwindow.NewPolicy(controls, counters, windowLogger)
	if err != nil {
		return nil, err
	}

	sequences, err := sequence.Load(config.AppConfig.SequencesPath)
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	templates, err := steps.NewTemplateRenderer()
	if err != nil {
		return nil, err
	}
	var renderer steps.Renderer = templates
	if config.AppConfig.OpenAIAPIKey != "" {
		client := openai.NewClient(config.AppConfig.OpenAIAPIKey)
		renderer = steps.NewLLMRenderer(client, config.AppConfig.OpenAIModel, templates, logger)
	}

	state := store.NewState(config.DB)
	crm := store.NewCRM(config.DB)
	mailer := utils.NewMailer(config.DB, log.New(os.Stdout, "MAILER: ", log.LstdFlags))

	r := &runner.Runner{
		Sequences: sequences,
		State:     state,
		CRM:       crm,
		Deps: steps.Deps{
			State:     state,
			Records:   crm,
			Window:    policy,
			Renderer:  renderer,
			Transport: mailer,
			Logger:    logger,
		},
		Logger: logger,
	}

	return &App{
		Policy:    policy,
		State:     state,
		CRM:       crm,
		Mailer:    mailer,
		Sequences: sequences,
		Runner:    r,
		Logger:    logger,
	}, nil
}

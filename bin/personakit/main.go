package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	chromem "github.com/philippgille/chromem-go"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/personakit/personakit/plugin/llm"
	"github.com/personakit/personakit/plugin/vectorstore"
	"github.com/personakit/personakit/server"
	"github.com/personakit/personakit/server/profile"
	apiv1 "github.com/personakit/personakit/server/router/api/v1"
	"github.com/personakit/personakit/store"
	"github.com/personakit/personakit/store/db"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

var rootCmd = &cobra.Command{
	Use:   "personakit",
	Short: "Persona chat service with streaming replies and long-term memory",
	RunE: func(_ *cobra.Command, _ []string) error {
		instanceProfile := &profile.Profile{
			Mode:             viper.GetString("mode"),
			Addr:             viper.GetString("addr"),
			Port:             viper.GetInt("port"),
			Data:             viper.GetString("data"),
			Driver:           viper.GetString("driver"),
			DSN:              viper.GetString("dsn"),
			Secret:           viper.GetString("secret"),
			OpenRouterAPIKey: viper.GetString("openrouter-api-key"),
			AIModel:          viper.GetString("ai-model"),
			EmbedModel:       viper.GetString("embed-model"),
			PersonaFile:      viper.GetString("persona-file"),
			QuotaLimits: map[string]int32{
				profile.DefaultTier: viper.GetInt32("quota-free"),
				"pro":               viper.GetInt32("quota-pro"),
			},
		}
		if err := instanceProfile.Validate(); err != nil {
			return errors.Wrap(err, "invalid profile")
		}
		if instanceProfile.IsDev() {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		dbDriver, err := db.NewDBDriver(instanceProfile)
		if err != nil {
			return errors.Wrap(err, "create db driver")
		}
		storeInstance := store.New(dbDriver, instanceProfile)
		if err := storeInstance.Migrate(ctx); err != nil {
			return errors.Wrap(err, "migrate database")
		}

		var memory apiv1.MemoryStore
		if instanceProfile.OpenRouterAPIKey != "" {
			embedFn := chromem.NewEmbeddingFuncOpenAICompat(
				openRouterBaseURL,
				instanceProfile.OpenRouterAPIKey,
				instanceProfile.EmbedModel,
				nil,
			)
			vs, err := vectorstore.New(instanceProfile.Data, embedFn)
			if err != nil {
				return errors.Wrap(err, "open vector store")
			}
			memory = vs
		} else {
			slog.Warn("no OpenRouter API key configured, chat generation and memory will fail")
		}

		llmClient := llm.NewClient(instanceProfile.OpenRouterAPIKey, instanceProfile.AIModel)

		personas, err := apiv1.LoadRegistry(instanceProfile.PersonaFile)
		if err != nil {
			return errors.Wrap(err, "load personas")
		}

		apiV1 := apiv1.NewAPIV1Service(
			instanceProfile.Secret,
			instanceProfile,
			storeInstance,
			memory,
			llmClient,
			personas,
		)

		srv, err := server.NewServer(ctx, instanceProfile, storeInstance, apiV1)
		if err != nil {
			return errors.Wrap(err, "create server")
		}
		if err := srv.Start(ctx); err != nil {
			return errors.Wrap(err, "start server")
		}

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		slog.Info("shutting down")
		srv.Shutdown(ctx)
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("mode", "dev", `server mode, "dev" or "prod"`)
	flags.String("addr", "", "bind address, empty for all interfaces")
	flags.Int("port", 8081, "bind port")
	flags.String("data", "", "directory for local state")
	flags.String("driver", "sqlite", `storage driver, "sqlite", "mysql" or "postgres"`)
	flags.String("dsn", "", "database connection string for mysql/postgres")
	flags.String("secret", "", "secret used to sign and verify access tokens")
	flags.String("openrouter-api-key", "", "OpenRouter API key")
	flags.String("ai-model", "", "chat model identifier")
	flags.String("embed-model", "", "embedding model identifier")
	flags.String("persona-file", "", "optional JSON file of persona definitions")
	flags.Int32("quota-free", 30, "daily request limit for the free tier")
	flags.Int32("quota-pro", 200, "daily request limit for the pro tier")

	for _, name := range []string{
		"mode", "addr", "port", "data", "driver", "dsn", "secret",
		"openrouter-api-key", "ai-model", "embed-model", "persona-file",
		"quota-free", "quota-pro",
	} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("personakit")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func main() {
	// Local development convenience; absence of a .env file is fine.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		slog.Error("failed to run", "err", err)
		os.Exit(1)
	}
}

// Package cli implements cvictl, the command-line companion for building
// Tavus personas and driving coaching sessions.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/oremus-labs/ol-cvi-coach/config"
	"github.com/oremus-labs/ol-cvi-coach/internal/logutil"
	"github.com/oremus-labs/ol-cvi-coach/internal/persona"
	"github.com/oremus-labs/ol-cvi-coach/internal/tavus"
	"github.com/spf13/cobra"
)

var (
	envFile       string
	serverURL     string
	overrideToken string
	outputFormat  string

	appConfig *config.Config
)

// Execute runs the CLI. Interrupts cancel the command context so streams
// stop cleanly.
func Execute() error {
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

var rootCmd = &cobra.Command{
	Use:   "cvictl",
	Short: "Build Tavus personas and drive coaching sessions",
	Long: `cvictl creates the engineering-manager persona on Tavus, opens
conversations with it and talks to the coaching session API.
Tavus settings come from the environment (TAVUS_API_KEY, TAVUS_BASE_URL,
TAVUS_REPLICA_ID, SCENARIOS_PATH), optionally loaded from --env.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config.LoadEnvFile(envFile)
		appConfig = config.Load()
		logutil.SetupWriter(cmd.ErrOrStderr(), appConfig.LogLevel, "console")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "Env file to load before reading configuration")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServerURL(), "Coaching session API URL")
	rootCmd.PersistentFlags().StringVar(&overrideToken, "token", "", "API token (defaults to API_TOKEN)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table|json")

	rootCmd.AddCommand(scenariosCmd)
	rootCmd.AddCommand(promptCmd)
	rootCmd.AddCommand(personaCmd)
	rootCmd.AddCommand(conversationCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(eventsCmd)
}

func defaultServerURL() string {
	if v := os.Getenv("CVI_SERVER"); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func loadCatalog() (*persona.Catalog, error) {
	catalog := persona.NewCatalog(appConfig.ScenariosPath)
	if err := catalog.Load(); err != nil {
		return nil, err
	}
	return catalog, nil
}

func tavusClient() *tavus.Client {
	return tavus.New(appConfig.TavusBaseURL, appConfig.TavusAPIKey, logutil.Component("tavus"))
}

func apiClient() *Client {
	token := overrideToken
	if token == "" {
		token = appConfig.APIToken
	}
	return &Client{
		BaseURL: serverURL,
		Token:   token,
		Timeout: 60 * time.Second,
	}
}

// writeOutput prints data as JSON when requested and reports whether the
// caller still has to render a table.
func writeOutput(out io.Writer, data interface{}) (bool, error) {
	switch strings.ToLower(outputFormat) {
	case "json":
		return false, printJSON(out, data)
	case "table", "":
		return true, nil
	default:
		return false, fmt.Errorf("unsupported output format %q", outputFormat)
	}
}

// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formrelay/internal/config"
	"github.com/xkilldash9x/formrelay/internal/observability"
	"github.com/xkilldash9x/formrelay/internal/service"
)

const envPrefix = "FORMRELAY"

// app carries state shared by the subcommands of one invocation.
type app struct {
	cfgFile string
	v       *viper.Viper
	cfg     *config.Config
	factory service.ComponentFactory
}

// Execute runs the root command with a signal-aware context from main.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			observability.GetLogger().Warn("Command aborted.")
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
			observability.GetLogger().Error("Command execution failed.", zap.Error(err))
		}
		observability.Sync()
		return err
	}
	observability.Sync()
	return nil
}

// NewRootCommand creates a fresh command tree wired to the production component factory.
func NewRootCommand() *cobra.Command {
	return newRootCommand(service.NewComponentFactory())
}

func newRootCommand(factory service.ComponentFactory) *cobra.Command {
	a := &app{factory: factory}

	rootCmd := &cobra.Command{
		Use:           "formrelay",
		Short:         "formrelay extracts Yandex Forms and replays them with weighted answers.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// This runs before every subcommand, setting up config and logging.
			if err := a.initializeConfig(cmd); err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "formrelay"})
				return err
			}
			observability.InitializeLogger(a.cfg.Logger())
			observability.GetLogger().Debug("Starting formrelay", zap.String("version", Version))
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(
		newExtractCmd(a),
		newShowCmd(a),
		newWeightCmd(a),
		newFillCmd(a),
		newChatCmd(a),
		newServeCmd(a),
		newTokenCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}

// initializeConfig reads the config file and environment, binds the flags cmd declares under
// the "viper-key" annotation and validates the result.
func (a *app) initializeConfig(cmd *cobra.Command) error {
	v := viper.New()
	config.SetDefaults(v)

	if a.cfgFile != "" {
		v.SetConfigFile(a.cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and env vars apply.
	}

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key, ok := f.Annotations[viperKeyAnnotation]
		if !ok || len(key) == 0 || bindErr != nil {
			return
		}
		bindErr = v.BindPFlag(key[0], f)
	})
	if bindErr != nil {
		return fmt.Errorf("failed to bind flags: %w", bindErr)
	}

	cfg, err := config.NewConfigFromViper(v)
	if err != nil {
		return err
	}
	a.v = v
	a.cfg = cfg
	return nil
}

const viperKeyAnnotation = "viper-key"

// bindFlag marks a flag as overriding the config key.
func bindFlag(cmd *cobra.Command, flag, key string) {
	if err := cmd.Flags().SetAnnotation(flag, viperKeyAnnotation, []string{key}); err != nil {
		panic(fmt.Sprintf("flag %q is not defined: %v", flag, err))
	}
}

// components creates the components of one command and logs what was asked for.
func (a *app) components(cmd *cobra.Command, opts service.Options) (*service.Components, error) {
	logger := observability.GetLogger()
	components, err := a.factory.Create(cmd.Context(), a.cfg, logger, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}
	return components, nil
}

func out(cmd *cobra.Command) io.Writer { return cmd.OutOrStdout() }

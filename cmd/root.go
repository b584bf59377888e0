package cmd

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/imagepicker/internal/config"
	"github.com/lehigh-university-libraries/imagepicker/internal/images"
	"github.com/lehigh-university-libraries/imagepicker/internal/logging"
	"github.com/lehigh-university-libraries/imagepicker/internal/objecturl"
	"github.com/lehigh-university-libraries/imagepicker/internal/preview"
	"github.com/lehigh-university-libraries/imagepicker/internal/source"
)

// app carries state shared by subcommands once flags are parsed.
type app struct {
	configPath string
	logLevel   string
	cfg        config.Config
}

func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "imagepicker",
		Short: "Image source resolution and live preview service",
		Long: `Imagepicker accepts a single image from a file picker, a URL field,
a drag-and-drop payload or the clipboard, validates it and renders a live
preview before the form is submitted.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			if a.logLevel != "" {
				cfg.LogLevel = a.logLevel
			}
			logging.Setup(os.Stderr, cfg.LogLevel, cfg.LogFormat)
			slog.Debug("Configuration loaded", "path", a.configPath, "fetch_remote", cfg.FetchRemote)

			a.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to a YAML config file")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(newServeCmd(a))
	cmd.AddCommand(newResolveCmd(a))

	return cmd
}

// resolverFactory builds resolvers sharing one object URL registry.
func (a *app) resolverFactory(objects *objecturl.Registry, observer preview.Observer) func() *preview.Resolver {
	fetcher := images.NewFetcher(a.cfg.FetchTimeout, a.cfg.MaxImageBytes, a.cfg.AllowPrivateHosts)
	validator := source.NewValidator(a.cfg.ForbiddenSchemes...)
	loader := preview.NewLoader(objects, fetcher, a.cfg.PreviewMaxSide, a.cfg.MaxImagePixels)

	return func() *preview.Resolver {
		return preview.New(preview.Options{
			Validator:      validator,
			Objects:        objects,
			Loader:         loader,
			Fetcher:        fetcher,
			FetchRemote:    a.cfg.FetchRemote,
			EmbedImageData: a.cfg.EmbedImageData,
			Observer:       observer,
		})
	}
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Nilesh2000/joncalhoun-dl/downloader"
	"github.com/Nilesh2000/joncalhoun-dl/internal"
	"github.com/Nilesh2000/joncalhoun-dl/utils"
)

var (
	email        string
	password     string
	courseKey    string
	destRoot     string
	workers      int
	rateLimit    string
	proxyURL     string
	timeout      int
	registryFile string
	dryRun       bool
	quiet        bool
	debug        bool
	logLevel     string
	logFile      string
	config       *internal.Config
)

var rootCmd = &cobra.Command{
	Use:     "joncalhoun-dl --email E --password P --course K [--dest D]",
	Short:   "Download the videos of a Jon Calhoun course you have access to",
	Version: "v1.0.0",
	Long: `joncalhoun-dl signs in to courses.calhoun.io with your account, walks the
course table of contents and saves every lesson video under
<dest>/<course>/<NN_section>/<NNN_lesson>.mp4. Files that already exist are
skipped, so an interrupted run can simply be started again.

Examples:
  joncalhoun-dl --email me@example.com --password secret --course testwithgo
  joncalhoun-dl --course webdevwithgo --dest ~/videos -w 4 -r 2M
  joncalhoun-dl courses

Environment Variables:
  JCDL_EMAIL, JCDL_PASSWORD  Account credentials
  JCDL_DEST                  Destination root (default ./courses)
  JCDL_WORKERS               Concurrent downloads (1-8)
  JCDL_TIMEOUT               Request timeout in seconds
  JCDL_DOWNLOAD_TIMEOUT      Per-video timeout (e.g. 90m)
  JCDL_PROXY                 HTTP or SOCKS5 proxy URL
  JCDL_RATE_LIMIT            Bandwidth limit (e.g. 2M)
  JCDL_REGISTRY              JSON5 course registry override file

Only download courses your account has purchased.`,
	Args:          cobra.NoArgs,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfiguration(); err != nil {
			return fmt.Errorf("configuration error: %v", err)
		}

		if err := internal.InitLogger(config); err != nil {
			return fmt.Errorf("failed to initialize logger: %v", err)
		}

		internal.LogDebug("Configuration loaded: dest=%s, workers=%d, timeout=%v, debug=%v, quiet=%v",
			config.DestRoot, config.Workers, config.RequestTimeout, config.EnableDebug, config.QuietMode)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		internal.CloseLogger()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateArguments(); err != nil {
			if validationErr, ok := err.(*internal.ValidationError); ok {
				internal.LogValidationError(validationErr)
			}
			return err
		}
		// Usage is for flag mistakes only, not for failures of the run itself.
		cmd.SilenceUsage = true

		var rateLimitBytes int64
		if config.RateLimit != "" {
			var err error
			rateLimitBytes, err = utils.ParseRateLimit(config.RateLimit)
			if err != nil {
				validationErr := internal.NewValidationErrorWithValue("rate_limit", "invalid format", config.RateLimit).
					WithSuggestion("Use formats like 2M (2 MB/s), 500K (500 KB/s) or 1024 (bytes/s)")
				internal.LogValidationError(validationErr)
				return validationErr
			}
			internal.LogDebug("Rate limit parsed: %s = %d bytes/sec", config.RateLimit, rateLimitBytes)
		}

		registry, err := internal.LoadRegistry(config.RegistryFile)
		if err != nil {
			return err
		}

		if !quiet {
			fmt.Printf("Course: %s\n", courseKey)
			fmt.Printf("Destination: %s\n", config.DestRoot)
			if config.Workers > 1 {
				fmt.Printf("Workers: %d\n", config.Workers)
			}
			if rateLimitBytes > 0 {
				fmt.Printf("Rate limit: %s/s\n", utils.FormatBytes(rateLimitBytes))
			}
			if config.ProxyURL != "" {
				fmt.Printf("Proxy: %s\n", config.ProxyURL)
			}
			fmt.Println()
		}

		return executeDownloadWorkflow(registry, rateLimitBytes)
	},
}

var coursesCmd = &cobra.Command{
	Use:   "courses",
	Short: "List the courses that can be downloaded",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := internal.LoadRegistry(config.RegistryFile)
		if err != nil {
			return err
		}
		return printCourses(cmd.OutOrStdout(), registry)
	},
}

// loadConfiguration merges defaults, JCDL_* environment variables and flags
func loadConfiguration() error {
	config = internal.DefaultConfig()
	config.LoadFromEnv()

	if email == "" {
		email = internal.GetEnvWithDefault("JCDL_EMAIL", "")
	}
	if password == "" {
		password = internal.GetEnvWithDefault("JCDL_PASSWORD", "")
	}

	if destRoot != "" {
		config.DestRoot = destRoot
	}
	if workers > 0 {
		config.Workers = workers
	}
	if timeout > 0 {
		config.RequestTimeout = time.Duration(timeout) * time.Second
	}
	if proxyURL != "" {
		config.ProxyURL = proxyURL
	}
	if rateLimit != "" {
		config.RateLimit = rateLimit
	}
	if registryFile != "" {
		config.RegistryFile = registryFile
	}
	if dryRun {
		config.DryRun = true
	}

	if debug {
		config.EnableDebug = true
		config.LogLevel = "debug"
	}
	if quiet {
		config.QuietMode = true
	}
	if logLevel != "" {
		config.LogLevel = logLevel
	}
	if logFile != "" {
		config.LogFile = logFile
	}

	return config.ValidateConfig()
}

// validateArguments checks the values the run cannot start without
func validateArguments() error {
	if strings.TrimSpace(email) == "" {
		return internal.NewValidationError("email", "--email is required").
			WithSuggestion("Pass --email or set JCDL_EMAIL")
	}
	if password == "" {
		return internal.NewValidationError("password", "--password is required").
			WithSuggestion("Pass --password or set JCDL_PASSWORD")
	}
	if strings.TrimSpace(courseKey) == "" {
		return internal.NewValidationError("course", "--course is required").
			WithSuggestion("Run 'joncalhoun-dl courses' to see the available keys")
	}

	if config.ProxyURL != "" {
		if err := validateProxyURL(config.ProxyURL); err != nil {
			return internal.NewValidationErrorWithValue("proxy_url", err.Error(), config.ProxyURL).
				WithSuggestion("Use formats like http://proxy:8080 or socks5://proxy:1080")
		}
	}

	return nil
}

// validateProxyURL validates the proxy URL format
func validateProxyURL(proxyURL string) error {
	if !strings.HasPrefix(proxyURL, "http://") &&
		!strings.HasPrefix(proxyURL, "https://") &&
		!strings.HasPrefix(proxyURL, "socks5://") {
		return fmt.Errorf("unsupported proxy scheme, use http://, https:// or socks5://")
	}
	return nil
}

func printCourses(w io.Writer, registry *internal.Registry) error {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Key", "Title", "Table of contents"})
	for _, course := range registry.Courses() {
		t.AppendRow(table.Row{course.Key, course.Title, course.TOCURL()})
	}
	t.Render()
	return nil
}

func init() {
	config = internal.DefaultConfig()

	rootCmd.AddCommand(coursesCmd)

	rootCmd.Flags().StringVar(&email, "email", "", "Account email (env: JCDL_EMAIL)")
	rootCmd.Flags().StringVar(&password, "password", "", "Account password (env: JCDL_PASSWORD)")
	rootCmd.Flags().StringVar(&courseKey, "course", "", "Course key, see 'joncalhoun-dl courses'")
	rootCmd.Flags().StringVar(&destRoot, "dest", "", fmt.Sprintf("Destination root directory (env: JCDL_DEST) (default %q)", config.DestRoot))
	rootCmd.Flags().IntVarP(&workers, "workers", "w", 0, fmt.Sprintf("Concurrent video downloads (1-%d) (env: JCDL_WORKERS) (default %d)", internal.MaxWorkers, config.Workers))
	rootCmd.Flags().StringVarP(&rateLimit, "limit-rate", "r", "", "Bandwidth limit shared by all downloads, e.g. 2M (env: JCDL_RATE_LIMIT)")
	rootCmd.Flags().StringVar(&proxyURL, "proxy", "", "HTTP/SOCKS5 proxy URL (env: JCDL_PROXY)")
	rootCmd.Flags().IntVar(&timeout, "timeout", 0, fmt.Sprintf("Request timeout in seconds (env: JCDL_TIMEOUT) (default %d)", int(config.RequestTimeout.Seconds())))
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Sign in and list the planned files without downloading")

	rootCmd.PersistentFlags().StringVar(&registryFile, "registry", "", "JSON5 file adding or overriding courses (env: JCDL_REGISTRY)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress bars and informational output (env: JCDL_QUIET)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging with file and line information (env: JCDL_DEBUG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Set log level (debug, info, warn, error) (env: JCDL_LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write logs to this file (env: JCDL_LOG_FILE)")
}

func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

// executeDownloadWorkflow runs the pipeline and prints the summary
func executeDownloadWorkflow(registry *internal.Registry, rateLimitBytes int64) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			internal.LogInfo("Received signal %v, stopping after in-flight requests...", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	driver := downloader.NewDriver(downloader.DriverOptions{
		Registry: registry,
		Session: &utils.SessionConfig{
			RequestTimeout:   config.RequestTimeout,
			DownloadTimeout:  config.DownloadTimeout,
			UserAgent:        config.UserAgent,
			ProxyURL:         config.ProxyURL,
			CloudflareBypass: true,
		},
		Download: &internal.DownloadConfig{
			Workers:   config.Workers,
			RateLimit: rateLimitBytes,
			Quiet:     config.QuietMode,
		},
		MaxRetries: config.MaxRetries,
		DryRun:     config.DryRun,
	})

	internal.LogInfo("Signing in and reading course %s", courseKey)
	result, err := driver.Run(ctx, internal.Credentials{Email: email, Password: password}, courseKey, config.DestRoot)
	if err != nil {
		var fetchErr *internal.FetchError
		if errors.As(err, &fetchErr) {
			internal.LogFetchError(fetchErr)
		} else {
			internal.LogError("Run failed: %v", err)
		}
		return err
	}

	fmt.Print(result.Summary())
	if ctx.Err() != nil {
		return fmt.Errorf("download cancelled by user")
	}
	return nil
}

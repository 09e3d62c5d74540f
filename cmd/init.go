package cmd

import (
	"fmt"
	"os"

	"github.com/bascanada/logexplorer/pkg/config"
	httpPkg "github.com/bascanada/logexplorer/pkg/http"
	"github.com/bascanada/logexplorer/pkg/log"
	"github.com/bascanada/logexplorer/pkg/log/printer"
	"github.com/spf13/cobra"
)

var (
	// target
	viewName    string
	backendName string
	stream      string

	// range
	from string
	to   string
	last string

	// filtering
	filters []string
	sqlStmt string

	// paging
	page    int
	perPage int
	sortBy  string

	// output
	format       string
	template     string
	messageRegex string
	colorMode    string

	logger log.MyLoggerOptions

	debugHttp bool
)

func onCommandStart(cmd *cobra.Command, args []string) {
	if err := log.ConfigureMyLogger(&logger); err != nil {
		fmt.Fprintf(os.Stderr, "failed to configure logger: %v\n", err)
	}
	// enable HTTP debug logs when requested
	httpPkg.SetDebug(debugHttp)
}

// loadConfigForCompletion loads the configuration for shell completion
// functions, mapping a failure to the error directive.
func loadConfigForCompletion(cmd *cobra.Command) (*config.Config, cobra.ShellCompDirective) {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	return cfg, cobra.ShellCompDirectiveDefault
}

// addTargetFlags registers the flags choosing what to explore.
func addTargetFlags(c *cobra.Command) {
	c.Flags().StringVarP(&viewName, "view", "i", "", "Saved view to open")
	c.Flags().StringVarP(&backendName, "backend", "b", "", "Backend to query when no view is given")
	c.Flags().StringVarP(&stream, "stream", "s", "", "Stream to query, overrides the view")

	_ = c.RegisterFlagCompletionFunc("view", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		cfg, directive := loadConfigForCompletion(cmd)
		if cfg == nil {
			return nil, directive
		}
		var suggestions []string
		for _, name := range cfg.ViewNames() {
			v := cfg.Views[name]
			suggestions = append(suggestions, fmt.Sprintf("%s\t(%s/%s)", name, v.Backend, v.Stream))
		}
		return suggestions, cobra.ShellCompDirectiveNoFileComp
	})
	_ = c.RegisterFlagCompletionFunc("backend", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		cfg, directive := loadConfigForCompletion(cmd)
		if cfg == nil {
			return nil, directive
		}
		var suggestions []string
		for name, b := range cfg.Backends {
			suggestions = append(suggestions, fmt.Sprintf("%s\t(%s)", name, b.Type))
		}
		return suggestions, cobra.ShellCompDirectiveNoFileComp
	})
}

// addRangeFlags registers the time window flags.
func addRangeFlags(c *cobra.Command) {
	c.Flags().StringVar(&from, "from", "", "Start of the window (RFC3339 or a duration back from now)")
	c.Flags().StringVar(&to, "to", "", "End of the window, now when empty")
	c.Flags().StringVar(&last, "last", "", "Window length back from --to, like 15m or 24h")
}

// addFilterFlags registers the filtering flags.
func addFilterFlags(c *cobra.Command) {
	c.Flags().StringArrayVarP(&filters, "filter", "f", []string{}, "Filter expression, repeat to AND them (level=error, msg~=timeout)")
}

// addOutputFlags registers the row printing flags.
func addOutputFlags(c *cobra.Command, formats []string) {
	c.Flags().StringVar(&format, "format", printer.FormatText, fmt.Sprintf("Output format %v", formats))
	c.Flags().StringVar(&template, "template", "", "Go template for text output")
	c.Flags().StringVar(&messageRegex, "message-regex", "", "Keep the first capture group of the message")
	_ = c.RegisterFlagCompletionFunc("format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return formats, cobra.ShellCompDirectiveNoFileComp
	})
}

// Package cmd defines the CLI commands for the sitemd executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "sitemd",
		Short: "Crawl a website's sitemap and save its pages as Markdown",
		Long: `sitemd discovers a site's pages through robots.txt and sitemap
traversal, fetches each page with either a plain HTTP GET or a headless
browser depending on the domain policy, converts the HTML to Markdown,
and writes one file per page to the output directory.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (YAML)")
	root.AddCommand(newCrawlCmd())
	return root
}

// Execute runs the CLI and exits nonzero on startup failure.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is stamped by the build.
var version = "0.1.0"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:          "duan",
	Short:        "Chunk documents and search them semantically",
	Long:         "duan ingests documents, chunks them and indexes the chunks in vector collections for semantic retrieval. Without a subcommand it starts the HTTP service.",
	SilenceUsage: true,
	Run:          runServe,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// exitOn prints the error and exits non-zero. Boot failures must not
// leave a half-started service behind.
func exitOn(err error) {
	if err == nil {
		return
	}
	color.Red("duan: %s", err.Error())
	os.Exit(1)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./duan.yaml)")

	rootCmd.PersistentFlags().StringP("db-url", "d", "", "database URL (env DATABASE_URL)")
	viper.BindPFlag("database_url", rootCmd.PersistentFlags().Lookup("db-url"))

	rootCmd.PersistentFlags().StringP("log", "l", "", "log level: trace, debug, info, warn or error")
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log"))

	rootCmd.PersistentFlags().StringP("upload-path", "u", "", "directory the fs document store writes to")
	viper.BindPFlag("upload_path", rootCmd.PersistentFlags().Lookup("upload-path"))

	rootCmd.PersistentFlags().StringP("address", "a", "", "address to listen on (default 0.0.0.0:42069)")
	viper.BindPFlag("address", rootCmd.PersistentFlags().Lookup("address"))

	rootCmd.PersistentFlags().StringP("allowed-origins", "c", "", "comma separated CORS origins, empty allows all")
	viper.BindPFlag("allowed_origins", rootCmd.PersistentFlags().Lookup("allowed-origins"))

	rootCmd.PersistentFlags().StringP("qdrant-url", "q", "", "Qdrant URL")
	viper.BindPFlag("qdrant_url", rootCmd.PersistentFlags().Lookup("qdrant-url"))

	rootCmd.PersistentFlags().StringP("weaviate-url", "w", "", "Weaviate URL")
	viper.BindPFlag("weaviate_url", rootCmd.PersistentFlags().Lookup("weaviate-url"))

	rootCmd.PersistentFlags().StringP("fembed-url", "f", "", "fastembed endpoint (env FEMBED_URL)")
	viper.BindPFlag("fembed_url", rootCmd.PersistentFlags().Lookup("fembed-url"))

	rootCmd.AddCommand(serveCmd, syncCmd, versionCmd)
}

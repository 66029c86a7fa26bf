// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command corpus is the CLI for the corpus knowledge base.
//
// Usage:
//
//	corpus ingest docs/guide.pdf notes.md
//	corpus query "how does chunk overlap work?" --stream
//	corpus stats
//	corpus maintain
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	corpus "github.com/kadirpekel/corpus"
	"github.com/kadirpekel/corpus/pkg/config"
	"github.com/kadirpekel/corpus/pkg/logger"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Ingest   IngestCmd   `cmd:"" help:"Ingest documents into the knowledge base."`
	Query    QueryCmd    `cmd:"" help:"Ask the knowledge base a question."`
	Delete   DeleteCmd   `cmd:"" help:"Delete a document and its fragments."`
	Stats    StatsCmd    `cmd:"" help:"Show store and agent statistics."`
	Maintain MaintainCmd `cmd:"" help:"Run maintenance (cache invalidation, stats)."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)."`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (text, json)."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(corpus.GetVersion().String())
	return nil
}

// ValidateCmd validates a configuration file without running anything.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	if cli.Config == "" {
		return fmt.Errorf("--config is required for validate")
	}
	cfg, err := config.LoadFile(cli.Config)
	if err != nil {
		return err
	}
	name := cfg.Name
	if name == "" {
		name = "(unnamed)"
	}
	fmt.Printf("Configuration OK: %s\n", name)
	return nil
}

// loadConfig loads the config file, or builds a fully defaulted
// configuration when no file is given.
func loadConfig(cli *CLI) (*config.Config, error) {
	cfg := config.Default()
	if cli.Config != "" {
		loaded, err := config.LoadFile(cli.Config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	// CLI flags override the config file's logger section.
	if cli.LogLevel != "" {
		cfg.Logger.Level = cli.LogLevel
	}
	if cli.LogFile != "" {
		cfg.Logger.File = cli.LogFile
	}
	if cli.LogFormat != "" {
		cfg.Logger.Format = cli.LogFormat
	}
	return cfg, nil
}

// initLogger installs the process logger from config. Returns a cleanup
// function when logging goes to a file.
func initLogger(cfg config.LoggerConfig) (func(), error) {
	opts := logger.Options{
		Level:  cfg.Level,
		Format: logger.Format(cfg.Format),
	}

	cleanup := func() {}
	if cfg.File != "" {
		file, closeFile, err := logger.OpenLogFile(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		opts.Output = file
		cleanup = closeFile
	}

	logger.Init(opts)
	return cleanup, nil
}

func main() {
	_ = config.LoadEnvFiles()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("corpus"),
		kong.Description("corpus - retrieval-augmented knowledge base"),
		kong.UsageOnError(),
	)

	cfg, err := loadConfig(&cli)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cleanup, err := initLogger(cfg.Logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer cleanup()

	err = ctx.Run(&cli, cfg)
	ctx.FatalIfErrorf(err)
}

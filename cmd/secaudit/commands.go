package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"github.com/secaudit/secaudit-go/internal/ai"
	"github.com/secaudit/secaudit-go/internal/analyzer"
	"github.com/secaudit/secaudit-go/internal/app"
	"github.com/secaudit/secaudit-go/internal/config"
	"github.com/secaudit/secaudit-go/internal/domain"
	"github.com/secaudit/secaudit-go/internal/frida"
	"github.com/secaudit/secaudit-go/internal/hexview"
)

var errInvalidArgCount = errors.New("expected exactly one argument: file path or \"-\" for stdin")

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Config file path",
		Value:   "./configs/config.yaml",
	}
}

func loadConfig(cmd *cli.Command) (*config.Config, *logrus.Logger, error) {
	_ = godotenv.Load()

	path := cmd.String("config")
	if _, err := os.Stat(path); err != nil {
		path = "" // 无配置文件时使用默认值与环境变量
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, config.InitLogger(&cfg.Log), nil
}

// cliLogger 命令行模式下仅输出告警
func cliLogger(logger *logrus.Logger) *logrus.Logger {
	logger.SetOutput(os.Stderr)
	if logger.GetLevel() > logrus.WarnLevel {
		logger.SetLevel(logrus.WarnLevel)
	}
	return logger
}

func readInput(arg string, limit int64) ([]byte, error) {
	var r io.Reader = os.Stdin
	if arg != "-" {
		f, err := os.Open(arg)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	if limit > 0 {
		r = io.LimitReader(r, limit)
	}
	return io.ReadAll(r)
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API server",
		Flags: []cli.Flag{configFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			printBanner()

			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return app.Run(ctx, cfg, logger)
		},
	}
}

func hexdumpCommand() *cli.Command {
	return &cli.Command{
		Name:      "hexdump",
		Usage:     fmt.Sprintf("Print the first %d bytes of a file as a hex view", hexview.MaxBytes),
		ArgsUsage: "<file | ->",
		Action: func(_ context.Context, cmd *cli.Command) error {
			if cmd.NArg() != 1 {
				return fmt.Errorf("%w: got %d", errInvalidArgCount, cmd.NArg())
			}

			data, err := readInput(cmd.Args().First(), hexview.MaxBytes)
			if err != nil {
				return err
			}

			offset := color.New(color.FgCyan)
			ascii := color.New(color.FgGreen)
			w := cmd.Root().Writer
			for _, row := range hexview.Rows(data) {
				fmt.Fprintf(w, "%s  %s  |%s|\n", offset.Sprint(row.Offset), row.Hex, ascii.Sprint(row.ASCII))
			}
			return nil
		},
	}
}

func auditCodeCommand() *cli.Command {
	return &cli.Command{
		Name:      "audit-code",
		Usage:     "Audit a source snippet (manifest, Java, Kotlin, Smali) with the model",
		ArgsUsage: "<file | ->",
		Flags:     []cli.Flag{configFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() != 1 {
				return fmt.Errorf("%w: got %d", errInvalidArgCount, cmd.NArg())
			}

			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			code, err := readInput(cmd.Args().First(), 0)
			if err != nil {
				return err
			}

			client, err := ai.NewClient(ctx, &cfg.AI, cliLogger(logger))
			if err != nil {
				return err
			}
			defer client.Close()

			a := analyzer.New(client, logger, analyzer.Options{Workspace: "cli"})
			a.SetCode(string(code))
			if err := a.AnalyzeCode(ctx); err != nil {
				return err
			}

			_, _ = fmt.Fprintln(cmd.Root().Writer, a.Snapshot().Report)
			return nil
		},
	}
}

func fridaCommand() *cli.Command {
	return &cli.Command{
		Name:  "frida",
		Usage: "Generate a Frida instrumentation script",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:    "package",
				Aliases: []string{"p"},
				Usage:   "Target package name",
				Value:   frida.DefaultPackage,
			},
			&cli.StringFlag{
				Name:  "hook",
				Usage: "Hook type: ssl_pinning, root_bypass, emulator_bypass, custom_hook",
				Value: string(domain.HookRootBypass),
			},
			&cli.StringFlag{
				Name:  "class",
				Usage: "Target class (custom_hook only)",
			},
			&cli.StringFlag{
				Name:  "method",
				Usage: "Target method (custom_hook only)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			category, err := frida.ParseHookCategory(cmd.String("hook"))
			if err != nil {
				return err
			}
			req := domain.HookRequest{
				TargetPackage: cmd.String("package"),
				Category:      category,
				CustomClass:   cmd.String("class"),
				CustomMethod:  cmd.String("method"),
			}
			if err := frida.Validate(req); err != nil {
				return err
			}

			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := ai.NewClient(ctx, &cfg.AI, cliLogger(logger))
			if err != nil {
				return err
			}
			defer client.Close()

			script, err := frida.NewGenerator(client, logger, "cli", nil).Generate(ctx, req)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.Root().Writer, script)
			return nil
		},
	}
}

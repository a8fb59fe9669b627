package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/micro"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/flarexio/ragblade"
	"github.com/flarexio/ragblade/document"
	"github.com/flarexio/ragblade/tui"

	mcpE "github.com/flarexio/ragblade/mcp"
	httpT "github.com/flarexio/ragblade/transport/http"
	natsT "github.com/flarexio/ragblade/transport/nats"
)

func main() {
	cmd := &cli.Command{
		Name:  "ragblade",
		Usage: "RAGBlade knowledge base service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "path",
				Usage: "Path to the RAGBlade data directory",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Serve the knowledge base over NATS and HTTP",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "nats",
						Usage:   "NATS server URL",
						Value:   "wss://nats.flarex.io",
						Sources: cli.EnvVars("NATS_URL"),
					},
					&cli.BoolFlag{
						Name:  "http",
						Usage: "Enable HTTP transport",
						Value: false,
					},
					&cli.StringFlag{
						Name:  "http-addr",
						Usage: "HTTP server address",
						Value: ":8080",
					},
				},
				Action: serve,
			},
			{
				Name:      "ingest",
				Usage:     "Ingest files or directories into the knowledge base",
				ArgsUsage: "<path> [path...]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "scene",
						Usage: "Scene the documents belong to",
					},
					&cli.StringFlag{
						Name:  "category",
						Usage: "Category recorded with the documents",
					},
				},
				Action: ingest,
			},
			{
				Name:      "query",
				Usage:     "Retrieve passages for a query, or answer it",
				ArgsUsage: "<query>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "scene",
						Usage: "Restrict retrieval to one scene",
					},
					&cli.IntFlag{
						Name:  "top-k",
						Usage: "Number of passages to retrieve",
					},
					&cli.BoolFlag{
						Name:  "answer",
						Usage: "Generate an answer from the passages",
					},
				},
				Action: query,
			},
			{
				Name:  "chat",
				Usage: "Open the interactive chat console",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "scene",
						Usage: "Restrict the conversation to one scene",
					},
				},
				Action: chat,
			},
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		log.Fatal(err.Error())
	}
}

type app struct {
	path string
	svc  ragblade.Service
	log  *zap.Logger
}

func setup(ctx context.Context, cmd *cli.Command) (*app, error) {
	return setupWith(ctx, cmd, zap.NewDevelopment)
}

func setupWith(ctx context.Context, cmd *cli.Command, newLogger func(...zap.Option) (*zap.Logger, error)) (*app, error) {
	_ = godotenv.Load()

	path := cmd.String("path")
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}

		path = filepath.Join(homeDir, ".flarex", "ragblade")
	}

	log, err := newLogger()
	if err != nil {
		return nil, err
	}

	zap.ReplaceGlobals(log)

	cfg, err := loadConfig(path)
	if err != nil {
		return nil, err
	}

	svc, err := newService(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	return &app{path, svc, log}, nil
}

func (a *app) Close() {
	a.svc.Close()
	a.log.Sync()
}

func serve(ctx context.Context, cmd *cli.Command) error {
	a, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	svc := a.svc
	endpoints := ragblade.MakeEndpoints(svc)

	natsURL := cmd.String("nats")
	natsCreds := filepath.Join(a.path, "user.creds")

	idBytes, err := os.ReadFile(filepath.Join(a.path, "id"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	// Add NATS Transport
	if edgeID := strings.TrimSpace(string(idBytes)); edgeID != "" && natsURL != "" {
		nc, err := nats.Connect(natsURL,
			nats.Name("RAGBlade Server - "+edgeID),
			nats.UserCredentials(natsCreds),
		)

		if err != nil {
			return err
		}
		defer nc.Drain()

		srv, err := micro.AddService(nc, micro.Config{
			Name:    "ragblade",
			Version: "1.0.0",
		})

		if err != nil {
			return err
		}
		defer srv.Stop()

		topic := "edges." + edgeID + ".ragblade"

		root := srv.AddGroup(topic)
		natsT.AddEndpoints(root, endpoints)
	}

	httpEnabled := cmd.Bool("http")
	if httpEnabled {
		r := gin.Default()
		httpT.AddRouters(r, endpoints)
		httpT.AddStreamableRouters(r, mcpE.MakeEndpoints(svc))

		httpAddr := cmd.String("http-addr")
		go r.Run(httpAddr)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sign := <-quit

	a.log.Info("graceful shutdown", zap.String("signal", sign.String()))
	return svc.Save(context.Background())
}

func ingest(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() == 0 {
		return errors.New("no paths given")
	}

	a, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	paths, err := expandPaths(cmd.Args().Slice())
	if err != nil {
		return err
	}

	opts := ragblade.IngestOptions{
		SceneID:  cmd.String("scene"),
		Category: cmd.String("category"),
	}

	results, err := a.svc.BatchIngest(ctx, paths, opts)
	if err != nil {
		return err
	}

	for _, r := range results {
		line := fmt.Sprintf("%-8s %s  chunks=%d", r.Status, r.Path, r.ChunkCount)
		if r.Error != "" {
			line += "  error=" + r.Error
		}
		fmt.Println(line)
	}

	return a.svc.Save(ctx)
}

// expandPaths replaces each directory by the supported files below it.
func expandPaths(args []string) ([]string, error) {
	registry := document.DefaultRegistry()

	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil || !info.IsDir() {
			paths = append(paths, arg)
			continue
		}

		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			if !d.IsDir() && registry.Supported(path) {
				paths = append(paths, path)
			}
			return nil
		})

		if err != nil {
			return nil, err
		}
	}

	return paths, nil
}

func query(ctx context.Context, cmd *cli.Command) error {
	text := strings.Join(cmd.Args().Slice(), " ")
	if strings.TrimSpace(text) == "" {
		return ragblade.ErrEmptyQuery
	}

	a, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	q := ragblade.RetrieveQuery{
		Query:   text,
		SceneID: cmd.String("scene"),
		TopK:    int(cmd.Int("top-k")),
	}

	if cmd.Bool("answer") {
		answer, err := a.svc.Generate(ctx, ragblade.GenerateRequest{RetrieveQuery: q})
		if err != nil {
			return err
		}

		fmt.Println(answer.Answer)
		for _, src := range answer.Sources {
			fmt.Printf("[%d] %s (score %.3f)\n", src.Index, src.Source, src.Score)
		}
		return nil
	}

	result, err := a.svc.Retrieve(ctx, q)
	if err != nil {
		return err
	}

	if result.Status == ragblade.RetrieveError {
		return errors.New(result.Message)
	}

	for i, doc := range result.Documents {
		fmt.Printf("[%d] %s  score=%.3f\n%s\n\n", i+1, doc.Source, doc.Score, document.Preview(doc.Content, 300))
	}

	return nil
}

func chat(ctx context.Context, cmd *cli.Command) error {
	// log lines would tear the console
	nop := func(...zap.Option) (*zap.Logger, error) {
		return zap.NewNop(), nil
	}

	a, err := setupWith(ctx, cmd, nop)
	if err != nil {
		return err
	}
	defer a.Close()

	m := tui.New(ctx, a.svc, cmd.String("scene"))

	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

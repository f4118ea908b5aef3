package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"rag-playground/internal/chromemdb"
	"rag-playground/internal/config"
	"rag-playground/internal/db"
	"rag-playground/internal/helper"
	"rag-playground/internal/llmservice"
	"rag-playground/internal/parser"
	"rag-playground/internal/rag"
)

var errNoInput = errors.New("no text to embed: pass it as arguments, with -file or on stdin")

type store interface {
	rag.VectorStore
	Close() error
}

// app holds the process streams so runs can be driven from tests.
type app struct {
	stdin       io.Reader
	stdout      io.Writer
	stderr      io.Writer
	interactive bool
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	// langchaingo warns through the standard logger
	stdlog.SetFlags(0)
	stdlog.SetOutput(log.Logger.With().Str("source", "langchaingo").Logger())

	a := &app{
		stdin:       os.Stdin,
		stdout:      os.Stdout,
		stderr:      os.Stderr,
		interactive: isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()),
	}
	os.Exit(a.run(os.Args[1:]))
}

// run executes one CLI invocation and returns the exit code. Startup and usage
// failures return 1; a failed embed, search or chat call is logged and returns 0.
func (a *app) run(args []string) int {
	fs := flag.NewFlagSet("rag-playground", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	embed := fs.Bool("embed", false, "Embed text from the arguments, -file or stdin")
	search := fs.String("search", "", "Search the stored chunks closest to the query")
	prompt := fs.String("prompt", "", "Answer the question from the stored chunks")
	configPath := fs.String("config", "", "Path to an optional YAML config file")
	filePath := fs.String("file", "", "Document to embed (.txt, .md, .pdf, .docx, .pptx, .xlsx, .xlsm)")
	fs.Usage = func() { usage(fs) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if err := checkModes(*embed, *search, *prompt, *filePath); err != nil {
		fmt.Fprintln(a.stderr, err)
		fs.Usage()
		return 1
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Error().Err(err).Msg("Error loading config")
		return 1
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Error().Err(err).Str("level", cfg.LogLevel).Msg("Invalid log level")
		return 1
	}
	zerolog.SetGlobalLevel(level)
	log.Debug().Interface("config", cfg.Redacted()).Msg("Loaded config")

	// read the input before connecting so a missing document fails fast
	var text string
	if *embed {
		text, err = embedInput(fs.Args(), *filePath, a.stdin, a.interactive)
		if err != nil {
			log.Error().Err(err).Msg("Error reading input")
			return 1
		}
	}

	llm, err := newLLM(&cfg.LLM)
	if err != nil {
		log.Error().Err(err).Str("provider", cfg.LLM.Provider).Msg("Error creating LLM client")
		return 1
	}

	splitter, err := parser.NewSplitter(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	if err != nil {
		log.Error().Err(err).Msg("Error creating splitter")
		return 1
	}

	ctx := context.Background()

	vs, err := openStore(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Str("store", cfg.Store).Msg("Error opening vector store")
		return 1
	}
	defer vs.Close()

	r := rag.NewRAG(vs, llm, splitter, cfg.RAG.SearchLimit)

	switch {
	case *embed:
		a.embedText(ctx, r, text)
	case *search != "":
		a.searchText(ctx, r, *search)
	default:
		a.promptText(ctx, r, *prompt)
	}
	return 0
}

func usage(fs *flag.FlagSet) {
	out := fs.Output()
	fmt.Fprintf(out, "Usage:\n")
	fmt.Fprintf(out, "  %s -embed [text...]     embed text, -file or stdin\n", fs.Name())
	fmt.Fprintf(out, "  %s -search <query>      show the closest stored chunks\n", fs.Name())
	fmt.Fprintf(out, "  %s -prompt <question>   answer from the closest stored chunks\n\n", fs.Name())
	fs.PrintDefaults()
}

func checkModes(embed bool, search, prompt, filePath string) error {
	modes := 0
	for _, set := range []bool{embed, search != "", prompt != ""} {
		if set {
			modes++
		}
	}
	if modes != 1 {
		return errors.New("please provide exactly one of -embed, -search or -prompt")
	}
	if filePath != "" && !embed {
		return errors.New("-file can only be used with -embed")
	}
	return nil
}

// embedInput picks the text to embed: arguments first, then the file, then
// stdin unless it is a terminal.
func embedInput(args []string, filePath string, stdin io.Reader, interactive bool) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	if filePath != "" {
		return parser.ReadFile(filePath)
	}
	if interactive {
		return "", errNoInput
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}

func openStore(ctx context.Context, cfg *config.Config) (store, error) {
	if cfg.Store == config.StoreChromem {
		inMemory := cfg.Chromem.Path == config.ChromemInMemory
		return chromemdb.NewVectorDBManager(cfg.Chromem.Path, cfg.Chromem.Collection, inMemory)
	}

	sqldb, err := db.ConnectDB(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}
	bunDB := db.NewDB(sqldb, cfg.Database.Debug)
	if cfg.Database.AutoMigrate {
		if err := db.InitDB(ctx, bunDB); err != nil {
			bunDB.Close()
			return nil, err
		}
	}
	return db.NewStore(bunDB), nil
}

func newLLM(cfg *config.LLMConfig) (rag.LLM, error) {
	if cfg.Provider == config.ProviderOllama {
		return llmservice.NewOllamaClient(cfg)
	}
	return llmservice.NewClient(cfg), nil
}

func (a *app) embedText(ctx context.Context, r *rag.RAG, text string) {
	n, err := r.Embed(ctx, text)
	if err != nil {
		log.Error().Err(err).Int("stored", n).Msg("Error embedding text")
		return
	}
	log.Info().Int("chunks", n).Msg("Embedded text")
}

func (a *app) searchText(ctx context.Context, r *rag.RAG, query string) {
	results, err := r.Search(ctx, query)
	if err != nil {
		log.Error().Err(err).Msg("Error searching")
		return
	}

	fmt.Fprintln(a.stdout, helper.Panel("Search query", query, helper.QueryColor))
	for i, res := range results {
		title := fmt.Sprintf("Result: %d (Distance: %.4f)", i+1, res.Distance)
		fmt.Fprintln(a.stdout, helper.Panel(title, res.Content, helper.ResultColor))
	}
}

func (a *app) promptText(ctx context.Context, r *rag.RAG, query string) {
	resp, err := r.Prompt(ctx, query)
	if err != nil {
		log.Error().Err(err).Msg("Error prompting")
		return
	}

	fmt.Fprintln(a.stdout, helper.Panel("Search query", resp.Query, helper.QueryColor))
	fmt.Fprintln(a.stdout, helper.Panel("Results", resp.Content, helper.ResultColor))
}

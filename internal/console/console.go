// Package console runs an interactive line-oriented session: lines starting
// with ':' are commands, anything else is a question about the selected image.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	visionamp "github.com/menta2k/vision-amp"
	"github.com/menta2k/vision-amp/internal/utils"
	"github.com/menta2k/vision-amp/pkg/pipeline"
	"github.com/menta2k/vision-amp/pkg/types"
)

const helpText = `Commands:
  :upload <path|url|dir>...   add images (a new upload becomes the selection)
  :list                       show uploaded images
  :select <n|hash>            select an image by list number or hash prefix
  :delete <n|hash>            remove an image
  :models                     show configured models
  :model <name>               switch model
  :params [key=value ...]     show or set max_tokens, temperature, top_p, stream
  :enrich [prompt]            two-stage analysis with weather alerts
  :help                       show this help
  :quit                       leave
Any other line is sent as a prompt with the selected image.`

// LineReader is the part of readline.Instance the loop needs
type LineReader interface {
	Readline() (string, error)
	Close() error
}

type Console struct {
	session *visionamp.Session
	out     io.Writer
}

// New creates a console writing to out
func New(session *visionamp.Session, out io.Writer) *Console {
	return &Console{session: session, out: out}
}

// NewReadline creates a readline instance with history and command completion
func NewReadline(historyFile string) (*readline.Instance, error) {
	completer := readline.NewPrefixCompleter(
		readline.PcItem(":upload"),
		readline.PcItem(":list"),
		readline.PcItem(":select"),
		readline.PcItem(":delete"),
		readline.PcItem(":models"),
		readline.PcItem(":model"),
		readline.PcItem(":params"),
		readline.PcItem(":enrich"),
		readline.PcItem(":help"),
		readline.PcItem(":quit"),
	)
	return readline.NewEx(&readline.Config{
		Prompt:          "> ",
		HistoryFile:     historyFile,
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       ":quit",
	})
}

// Run reads lines until EOF, interrupt or :quit
func (c *Console) Run(ctx context.Context, rl LineReader) error {
	defer func() {
		_ = rl.Close()
	}()

	fmt.Fprintln(c.out, "vision-amp console. Type :help for commands.")
	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, readline.ErrInterrupt) {
				return nil
			}
			return err
		}

		quit, err := c.Execute(ctx, line)
		if err != nil {
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

// Execute runs one input line and reports whether the console should exit
func (c *Console) Execute(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, ":") {
		return false, c.ask(ctx, line)
	}

	name, rest := splitCommand(line[1:])
	args := strings.Fields(rest)
	switch name {
	case "quit", "exit", "q":
		return true, nil
	case "help", "h":
		fmt.Fprintln(c.out, helpText)
	case "upload", "u":
		return false, c.upload(ctx, args)
	case "list", "ls":
		c.list()
	case "select":
		return false, c.selectImage(args)
	case "delete", "rm":
		return false, c.deleteImage(args)
	case "models":
		c.models()
	case "model":
		return false, c.model(args)
	case "params":
		return false, c.params(args)
	case "enrich":
		return false, c.enrich(ctx, rest)
	default:
		return false, fmt.Errorf("unknown command :%s (try :help)", name)
	}
	return false, nil
}

func splitCommand(s string) (string, string) {
	name, rest, _ := strings.Cut(s, " ")
	return strings.ToLower(name), strings.TrimSpace(rest)
}

func (c *Console) upload(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: :upload <path|url|dir>...")
	}

	var sources []string
	for _, arg := range args {
		if utils.DirExists(arg) {
			files, err := utils.ListImageFiles(arg)
			if err != nil {
				return err
			}
			sources = append(sources, files...)
			continue
		}
		sources = append(sources, arg)
	}

	for _, src := range sources {
		img, isNew, err := c.session.UploadSource(ctx, src)
		switch {
		case err != nil:
			fmt.Fprintf(c.out, "%s: %v\n", src, err)
		case isNew:
			fmt.Fprintf(c.out, "Uploaded %s [%s]\n", img.Name, utils.ShortHash(img.Hash))
		default:
			fmt.Fprintf(c.out, "%s is already uploaded as %s [%s]\n", src, img.Name, utils.ShortHash(img.Hash))
		}
	}
	return nil
}

func (c *Console) list() {
	images := c.session.Images()
	if len(images) == 0 {
		fmt.Fprintln(c.out, "No images yet.")
		return
	}
	selected, _ := c.session.Selected()
	for i, img := range images {
		marker := " "
		if img.Hash == selected.Hash {
			marker = "*"
		}
		dims := ""
		if info, err := c.session.Inspect(img.Hash); err == nil {
			dims = fmt.Sprintf(" %dx%d", info.Width, info.Height)
		}
		fmt.Fprintf(c.out, "%s %d. %s [%s] %s %s%s\n", marker, i+1, img.Name, utils.ShortHash(img.Hash),
			img.MimeType, utils.FormatFileSize(int64(img.Size)), dims)
	}
}

// resolveImage accepts a 1-based list number or a unique hash prefix
func (c *Console) resolveImage(ref string) (types.StoredImage, error) {
	images := c.session.Images()
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(images) {
			return types.StoredImage{}, fmt.Errorf("%w: no image number %d", types.ErrNotFound, n)
		}
		return images[n-1], nil
	}

	var match *types.StoredImage
	for i := range images {
		if strings.HasPrefix(images[i].Hash, ref) {
			if match != nil {
				return types.StoredImage{}, fmt.Errorf("hash prefix %q is ambiguous", ref)
			}
			match = &images[i]
		}
	}
	if match == nil {
		return types.StoredImage{}, fmt.Errorf("%w: no image matches %q", types.ErrNotFound, ref)
	}
	return *match, nil
}

func (c *Console) selectImage(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: :select <n|hash>")
	}
	img, err := c.resolveImage(args[0])
	if err != nil {
		return err
	}
	if err := c.session.Select(img.Hash); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Selected %s\n", img.Name)
	return nil
}

func (c *Console) deleteImage(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: :delete <n|hash>")
	}
	img, err := c.resolveImage(args[0])
	if err != nil {
		return err
	}
	c.session.Delete(img.Hash)
	fmt.Fprintf(c.out, "Deleted %s\n", img.Name)
	return nil
}

func (c *Console) models() {
	current := c.session.Model().Name
	for _, m := range c.session.Models() {
		marker := " "
		if m.Name == current {
			marker = "*"
		}
		fmt.Fprintf(c.out, "%s %s (%s)\n", marker, m.Name, m.Model)
	}
}

func (c *Console) model(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: :model <name>")
	}
	name := strings.Join(args, " ")
	if err := c.session.SelectModel(name); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Using %s\n", name)
	return nil
}

func (c *Console) params(args []string) error {
	if len(args) == 0 {
		p := c.session.Params()
		fmt.Fprintf(c.out, "max_tokens=%d temperature=%g top_p=%g stream=%t\n", p.MaxTokens, p.Temperature, p.TopP, p.Stream)
		return nil
	}
	p, err := ApplyParams(c.session.Params(), args)
	if err != nil {
		return err
	}
	if err := c.session.SetParams(p); err != nil {
		return err
	}
	return c.params(nil)
}

// ApplyParams returns p with key=value assignments applied
func ApplyParams(p types.ModelParams, assignments []string) (types.ModelParams, error) {
	for _, a := range assignments {
		key, value, ok := strings.Cut(a, "=")
		if !ok {
			return p, fmt.Errorf("expected key=value, got %q", a)
		}
		var err error
		switch strings.ToLower(key) {
		case "max_tokens", "maxtokens":
			p.MaxTokens, err = strconv.Atoi(value)
		case "temperature", "temp":
			p.Temperature, err = strconv.ParseFloat(value, 64)
		case "top_p", "topp":
			p.TopP, err = strconv.ParseFloat(value, 64)
		case "stream":
			p.Stream, err = strconv.ParseBool(value)
		default:
			return p, fmt.Errorf("unknown parameter %q", key)
		}
		if err != nil {
			return p, fmt.Errorf("invalid value for %s: %w", key, err)
		}
	}
	return p, nil
}

func (c *Console) ask(ctx context.Context, prompt string) error {
	streamed := false
	resp, err := c.session.Ask(ctx, prompt, visionamp.WithDelta(func(chunk string) {
		streamed = true
		fmt.Fprint(c.out, chunk)
	}))
	if err != nil {
		return err
	}
	if streamed {
		fmt.Fprintln(c.out)
		return nil
	}
	fmt.Fprintln(c.out, resp.Text)
	return nil
}

func (c *Console) enrich(ctx context.Context, prompt string) error {
	if prompt == "" {
		prompt = pipeline.DefaultPrompt
	}

	result, err := c.session.Enrich(ctx, prompt, visionamp.WithObserver(func(from, to pipeline.State) {
		switch to {
		case pipeline.StageARunning:
			fmt.Fprintln(c.out, "Analyzing image...")
		case pipeline.EnrichmentFetching:
			fmt.Fprintln(c.out, "Fetching weather alerts...")
		case pipeline.StageBRunning:
			fmt.Fprintln(c.out, "Enriching analysis with weather data...")
		}
	}))
	if result != nil && result.StageA.Text != "" {
		fmt.Fprintf(c.out, "Initial analysis:\n%s\n", result.StageA.Text)
	}
	if err != nil {
		return err
	}

	for _, w := range result.Warnings {
		fmt.Fprintf(c.out, "warning: %s\n", w)
	}
	for _, ev := range result.Events {
		if ev.Err == nil {
			fmt.Fprintf(c.out, "  %s\n", ev.Summary)
		}
	}
	fmt.Fprintf(c.out, "Enriched analysis:\n%s\n", result.StageB.Text)
	return nil
}

// mcp-cli talks to a bus server from the command line: raw publish, request
// and subscribe on any channel, plus the typed market and document calls.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/rickgao/mcpbus/internal/bus"
	"github.com/rickgao/mcpbus/internal/client"
	"github.com/rickgao/mcpbus/internal/config"
	"github.com/rickgao/mcpbus/internal/version"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch cmd {
	case "publish":
		err = cmdPublish(ctx, args)
	case "request":
		err = cmdRequest(ctx, args)
	case "subscribe":
		err = cmdSubscribe(ctx, args)
	case "history":
		err = cmdHistory(ctx, args)
	case "stream":
		err = cmdStream(ctx, args)
	case "fetch":
		err = cmdFetch(ctx, args)
	case "ocr", "asr":
		err = cmdText(ctx, cmd, args)
	case "version":
		fmt.Println("mcp-cli", version.String())
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Println("mcp-cli " + version.Version)
	fmt.Println()
	fmt.Println("Usage: mcp-cli <command> [flags] [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  publish <channel> <message>    Publish a JSON object or text")
	fmt.Println("  request <channel> <message>    Send a request and print the reply")
	fmt.Println("  subscribe <channel>            Print every message on a channel")
	fmt.Println("  history <symbol>               Fetch price history")
	fmt.Println("  stream <symbol>                Print live ticks for a symbol")
	fmt.Println("  fetch <uri>                    Fetch a document")
	fmt.Println("  ocr <uri>                      Recognize text in an image")
	fmt.Println("  asr <uri>                      Transcribe an audio file")
	fmt.Println("  version                        Show build information")
	fmt.Println()
	yellow.Println("Common flags:")
	fmt.Println("  -c, --config <path>            Config file (client section)")
	fmt.Println("      --url <ws-url>             Bus endpoint (overrides config)")
	fmt.Println("      --timeout <duration>       Request timeout")
	fmt.Println("      --binary                   Use CBOR binary frames")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Printf("  %-30s Default bus endpoint (default: %s)\n", config.BusURLEnv, config.DefaultBusURL)
	fmt.Println()
	yellow.Println("Examples:")
	fmt.Println(`  mcp-cli request market '{"action":"history","params":{"symbol":"AAPL"}}'`)
	fmt.Println("  mcp-cli history MSFT --range 5d --interval 1h")
	fmt.Println("  mcp-cli fetch https://example.com/report.pdf --out report.pdf")
	fmt.Println()
}

// common holds the flags shared by every command.
type common struct {
	configPath string
	url        string
	timeout    time.Duration
	binary     bool
}

func newFlagSet(name string, c *common) *pflag.FlagSet {
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.StringVarP(&c.configPath, "config", "c", "", "config file")
	flags.StringVar(&c.url, "url", "", "bus endpoint")
	flags.DurationVar(&c.timeout, "timeout", 0, "request timeout")
	flags.BoolVar(&c.binary, "binary", false, "use CBOR binary frames")
	return flags
}

// busFor builds a bus client for the market or document endpoint.
func (c *common) busFor(document bool) (*bus.Client, time.Duration, error) {
	cfg, err := config.LoadWithDefaults(c.configPath)
	if err != nil {
		return nil, 0, err
	}

	url := cfg.Client.MarketURL
	if document {
		url = cfg.Client.DocumentURL
	}
	if c.url != "" {
		url = c.url
	}

	timeout := cfg.Client.RequestTimeout
	if c.timeout > 0 {
		timeout = c.timeout
	}

	opts := []bus.Option{
		bus.WithLogger(cfg.Logging.NewLogger(os.Stderr)),
		bus.WithDefaultTimeout(timeout),
	}
	if c.binary || cfg.Client.BinaryFrames {
		opts = append(opts, bus.WithBinaryFrames())
	}
	return bus.New(url, opts...), timeout, nil
}

// parseArgs parses flags and checks the positional argument count.
func parseArgs(flags *pflag.FlagSet, args []string, want int, usage string) ([]string, error) {
	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	rest := flags.Args()
	if len(rest) != want {
		return nil, fmt.Errorf("usage: mcp-cli %s", usage)
	}
	return rest, nil
}

// parseMessage reads a JSON object, falling back to plain text.
func parseMessage(s string) any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err == nil && obj != nil {
		return obj
	}
	return s
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(data))
}

func cmdPublish(ctx context.Context, args []string) error {
	var c common
	rest, err := parseArgs(newFlagSet("publish", &c), args, 2, "publish <channel> <message>")
	if err != nil {
		return err
	}

	b, _, err := c.busFor(isDocumentChannel(rest[0]))
	if err != nil {
		return err
	}
	if err := b.Publish(ctx, rest[0], parseMessage(rest[1])); err != nil {
		return err
	}

	color.New(color.FgGreen).Printf("published to %s\n", rest[0])
	return nil
}

func cmdRequest(ctx context.Context, args []string) error {
	var c common
	rest, err := parseArgs(newFlagSet("request", &c), args, 2, "request <channel> <message>")
	if err != nil {
		return err
	}

	b, timeout, err := c.busFor(isDocumentChannel(rest[0]))
	if err != nil {
		return err
	}
	body, err := b.Request(ctx, rest[0], parseMessage(rest[1]), timeout)
	if err != nil {
		return err
	}

	if msg := body.Error(); msg != "" {
		color.Red("%s\n", msg)
		return nil
	}
	printJSON(body)
	return nil
}

func cmdSubscribe(ctx context.Context, args []string) error {
	var c common
	rest, err := parseArgs(newFlagSet("subscribe", &c), args, 1, "subscribe <channel>")
	if err != nil {
		return err
	}

	b, _, err := c.busFor(isDocumentChannel(rest[0]))
	if err != nil {
		return err
	}
	sub, err := b.Subscribe(ctx, rest[0])
	if err != nil {
		return err
	}
	defer sub.Close()

	cyan := color.New(color.FgCyan)
	cyan.Printf("subscribed to %s (ctrl-c to stop)\n", rest[0])

	for body, err := range sub.Messages() {
		if err != nil {
			return err
		}
		data, _ := json.Marshal(body)
		fmt.Println(string(data))
	}
	return nil
}

func cmdHistory(ctx context.Context, args []string) error {
	var c common
	req := client.NewMarketRequest("")

	flags := newFlagSet("history", &c)
	flags.StringVar(&req.Range, "range", client.DefaultRange, "history range (1d, 5d, 1mo, 1y, ytd, max)")
	flags.StringVar(&req.Interval, "interval", client.DefaultInterval, "bar interval (1m, 1h, 1d, 1wk)")

	rest, err := parseArgs(flags, args, 1, "history <symbol> [--range R] [--interval I]")
	if err != nil {
		return err
	}
	req.Symbol = rest[0]

	b, timeout, err := c.busFor(false)
	if err != nil {
		return err
	}
	result, err := client.NewMarketClient(b, timeout, nil).FetchHistory(ctx, req)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("%s: %d bars from %s\n", result.Symbol, len(result.Data), result.Source)
	for _, rec := range result.Data {
		fmt.Printf("  %s  O %.2f  H %.2f  L %.2f  C %.2f  V %d\n",
			rec.Datetime.Format(time.RFC3339), rec.Open, rec.High, rec.Low, rec.Close, rec.Volume)
	}
	return nil
}

func cmdStream(ctx context.Context, args []string) error {
	var c common
	rest, err := parseArgs(newFlagSet("stream", &c), args, 1, "stream <symbol>")
	if err != nil {
		return err
	}

	b, _, err := c.busFor(false)
	if err != nil {
		return err
	}
	ticks, stop, err := client.NewMarketClient(b, 0, nil).StreamPrices(ctx, client.NewMarketRequest(rest[0]))
	if err != nil {
		return err
	}
	defer stop()

	cyan := color.New(color.FgCyan)
	for tick, err := range ticks {
		if err != nil {
			return err
		}
		cyan.Printf("%s ", strings.ToUpper(tick.Symbol))
		fmt.Printf("%.4f\n", tick.Price)
	}
	return nil
}

func documentRequest(flags *pflag.FlagSet) *client.DocumentRequest {
	req := client.NewDocumentRequest("")
	flags.StringVar(&req.MediaType, "media-type", client.DefaultMediaType, "media type hint")
	flags.StringVar(&req.Channel, "channel", client.DefaultDocumentChannel, "document channel")
	return &req
}

func cmdFetch(ctx context.Context, args []string) error {
	var c common
	flags := newFlagSet("fetch", &c)
	req := documentRequest(flags)
	out := flags.StringP("out", "o", "", "write the document to this file")

	rest, err := parseArgs(flags, args, 1, "fetch <uri> [--out FILE]")
	if err != nil {
		return err
	}
	req.URI = rest[0]

	b, timeout, err := c.busFor(true)
	if err != nil {
		return err
	}
	data, err := client.NewDocumentClient(b, nil, timeout, nil).Fetch(ctx, *req)
	if err != nil {
		return err
	}

	if *out == "" {
		color.New(color.FgGreen).Printf("fetched %s: %d bytes\n", req.URI, len(data))
		return nil
	}
	if err := os.WriteFile(*out, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", *out, err)
	}
	color.New(color.FgGreen).Printf("wrote %d bytes to %s\n", len(data), *out)
	return nil
}

func cmdText(ctx context.Context, action string, args []string) error {
	var c common
	flags := newFlagSet(action, &c)
	req := documentRequest(flags)

	rest, err := parseArgs(flags, args, 1, action+" <uri>")
	if err != nil {
		return err
	}
	req.URI = rest[0]

	b, timeout, err := c.busFor(true)
	if err != nil {
		return err
	}
	dc := client.NewDocumentClient(b, nil, timeout, nil)

	var text string
	if action == "ocr" {
		text, err = dc.OCRImage(ctx, *req)
	} else {
		text, err = dc.SpeechToText(ctx, *req)
	}
	if errors.Is(err, client.ErrMissingText) {
		color.Yellow("no text in response\n")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Println(text)
	return nil
}

// isDocumentChannel reports whether raw commands on channel should use the
// document endpoint.
func isDocumentChannel(channel string) bool {
	return strings.HasPrefix(channel, "doc")
}

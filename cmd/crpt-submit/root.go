package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"crpt-gateway/crpt"
	"crpt-gateway/middleware/ratelimit/application"
	"crpt-gateway/middleware/ratelimit/domain"
	"crpt-gateway/middleware/ratelimit/infra"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type submitOptions struct {
	token          string
	document       string
	signature      string
	group          crpt.ProductGroup
	format         crpt.DocumentFormat
	docType        string
	operation      crpt.Operation
	baseURL        string
	repeat         int
	limit          int
	window         time.Duration
	acquireTimeout time.Duration
	logLevel       string
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("CRPT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:   "crpt-submit",
		Short: "Submit documents to the CRPT documents API through the sliding window limiter",
		Long: `Reads a JSON document, encodes it and posts it to the documents API.

With --repeat N the same document is submitted N times concurrently; at most
--limit calls start in any --window, the rest wait for a free slot.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := optionsFrom(v)
			if err != nil {
				return err
			}
			return runSubmit(cmd.Context(), opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.String("token", "", "authorization token (env CRPT_TOKEN)")
	f.String("document", "-", "path to the JSON document, - for stdin")
	f.String("signature", "", "detached signature of the document")
	f.String("group", "", "product group: "+joinGroups())
	f.String("format", string(crpt.FormatManual), "document format: MANUAL, XML or CSV")
	f.String("type", crpt.DocumentTypeIntroduceGoods, "document type")
	f.String("operation", string(crpt.OperationCreate), "create or send")
	f.String("base-url", crpt.DefaultBaseURL, "documents API base url")
	f.Int("repeat", 1, "how many times to submit the document")
	f.Int("limit", 1, "max calls per window")
	f.Duration("window", time.Second, "window duration")
	f.Duration("acquire-timeout", 0, "max wait for a slot, 0 waits forever")
	f.String("log-level", "info", "debug, info, warn or error")
	_ = v.BindPFlags(f)

	return cmd
}

func joinGroups() string {
	groups := crpt.ProductGroups()
	out := make([]string, len(groups))
	for i, g := range groups {
		out[i] = string(g)
	}
	return strings.Join(out, ", ")
}

func optionsFrom(v *viper.Viper) (submitOptions, error) {
	opts := submitOptions{
		token:          v.GetString("token"),
		document:       v.GetString("document"),
		signature:      v.GetString("signature"),
		format:         crpt.DocumentFormat(strings.ToUpper(v.GetString("format"))),
		docType:        v.GetString("type"),
		operation:      crpt.Operation(v.GetString("operation")),
		baseURL:        v.GetString("base-url"),
		repeat:         v.GetInt("repeat"),
		limit:          v.GetInt("limit"),
		window:         v.GetDuration("window"),
		acquireTimeout: v.GetDuration("acquire-timeout"),
		logLevel:       v.GetString("log-level"),
	}

	g, err := crpt.ParseProductGroup(v.GetString("group"))
	if err != nil {
		return submitOptions{}, err
	}
	opts.group = g

	if opts.repeat <= 0 {
		return submitOptions{}, errors.New("--repeat must be > 0")
	}
	return opts, nil
}

func runSubmit(ctx context.Context, opts submitOptions, stdin io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	level, err := zap.ParseAtomicLevel(opts.logLevel)
	if err != nil {
		return err
	}
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = level
	logger, err := logCfg.Build()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	doc, err := readDocument(opts.document, stdin)
	if err != nil {
		return err
	}

	window, err := infra.NewSlidingWindow(opts.limit, opts.window, infra.WithLogger(logger.Named("window")))
	if err != nil {
		return err
	}
	stats := infra.NewMemoryStatsStore()
	gate := application.AdmissionService{
		Gate:           window,
		Key:            domain.Key("crpt"),
		Route:          string(opts.operation),
		AcquireTimeout: opts.acquireTimeout,
		Stats:          stats,
		Logger:         logger.Named("admission"),
	}

	client, err := crpt.New(gate,
		crpt.WithBaseURL(opts.baseURL),
		crpt.WithOperation(opts.operation),
		crpt.WithLogger(logger.Named("crpt")),
	)
	if err != nil {
		return err
	}

	payload := crpt.Payload{
		Document:  doc,
		Signature: opts.signature,
		Group:     opts.group,
		Format:    opts.format,
		Type:      opts.docType,
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)
	start := time.Now()
	for i := 0; i < opts.repeat; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			resp, err := client.Submit(ctx, opts.token, payload)

			mu.Lock()
			defer mu.Unlock()
			elapsed := time.Since(start).Round(time.Millisecond)
			if err != nil {
				failed++
				fmt.Fprintf(out, "#%d +%s error: %v\n", n, elapsed, err)
				return
			}
			fmt.Fprintf(out, "#%d +%s status %d: %s\n", n, elapsed, resp.StatusCode, strings.TrimSpace(string(resp.Body)))
		}(i + 1)
	}
	wg.Wait()

	total := stats.Total()
	logger.Info("done",
		zap.Int64("admitted", total.Admitted),
		zap.Int64("timed_out", total.TimedOut),
		zap.Int64("cancelled", total.Cancelled),
		zap.Duration("waited", total.Waited),
	)
	if failed > 0 {
		return fmt.Errorf("%d of %d submissions failed", failed, opts.repeat)
	}
	return nil
}

// readDocument valida que o conteúdo é JSON; ele segue como está (sem re-serializar).
func readDocument(path string, stdin io.Reader) (json.RawMessage, error) {
	var (
		b   []byte
		err error
	)
	if path == "" || path == "-" {
		b, err = io.ReadAll(stdin)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	if !json.Valid(b) {
		return nil, errors.New("document is not valid JSON")
	}
	return json.RawMessage(b), nil
}

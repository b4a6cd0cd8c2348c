package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/phrasekit/phrasekit/internal/score"
	"github.com/phrasekit/phrasekit/internal/tm"
	pkgerrors "github.com/phrasekit/phrasekit/pkg/errors"
	"github.com/phrasekit/phrasekit/pkg/logger"
	"github.com/phrasekit/phrasekit/pkg/metrics"
)

func (c *CLI) newQueryCommand() *cobra.Command {
	var modelPath, inputPath string
	var sampleSize int

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Extract scored rules for source sentences",
		Long: `Query loads a built index, then reads whitespace-tokenized source
sentences from --input (or stdin) and prints every scored translation rule
with its source span and feature values.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if modelPath == "" {
				return pkgerrors.New(pkgerrors.ErrInvalidConfig, "query requires --model")
			}
			if sampleSize > 0 {
				c.cfg.Model.SampleSize = sampleSize
			}
			return c.runQuery(modelPath, inputPath, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&modelPath, "model", "", "Path to a built index (.bin or .bin.gz)")
	cmd.Flags().StringVar(&inputPath, "input", "", "Source sentences, one per line (default stdin)")
	cmd.Flags().IntVar(&sampleSize, "sample-size", 0, "Occurrences sampled per source span (default from config)")
	return cmd
}

func (c *CLI) runQuery(modelPath, inputPath string, out io.Writer) error {
	log := logger.WithComponent("query")
	mcfg := c.cfg.Model

	start := time.Now()
	model, err := tm.Load(modelPath)
	if err != nil {
		return err
	}
	template, err := score.ParseTemplate(mcfg.FeatureTemplate)
	if err != nil {
		return err
	}
	if err := model.SetFeatureTemplate(template); err != nil {
		return err
	}
	if err := model.SetMaxSourcePhrase(mcfg.MaxSourcePhrase); err != nil {
		return err
	}
	if err := model.SetMaxTargetPhrase(mcfg.MaxTargetPhrase); err != nil {
		return err
	}
	if err := model.SetCacheThreshold(mcfg.CacheThreshold); err != nil {
		return err
	}
	model.SetParallelism(mcfg.Parallelism)
	model.SetSeed(mcfg.Seed)

	if c.cfg.Metrics.Enabled {
		m := metrics.New()
		model.SetMetrics(m)
		shutdown := metrics.StartServer(c.cfg.Metrics.Port)
		defer shutdown(context.Background())
	}

	if err := model.Init(mcfg.UseSystemVocab, mcfg.SampleSize); err != nil {
		return err
	}
	log.Info("model ready", "load_and_init", time.Since(start))

	var in io.Reader = os.Stdin
	if inputPath != "" {
		f, err := os.Open(inputPath)
		if err != nil {
			return fmt.Errorf("opening input: %w", err)
		}
		defer f.Close()
		in = f
	}

	names := model.FeatureNames()
	fmt.Fprintf(out, "# features: %s\n", strings.Join(names, " "))

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	inputID := 0
	queryStart := time.Now()
	totalRules := 0
	for scanner.Scan() {
		source := strings.Fields(scanner.Text())
		if len(source) == 0 {
			continue
		}
		rules := model.GetRules(source, inputID)
		totalRules += len(rules)
		printRules(out, model, source, rules)
		inputID++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	elapsed := time.Since(queryStart)
	log.Info("queries done",
		"segments", inputID,
		"rules", totalRules,
		"total", elapsed,
		"per_segment", perSegment(elapsed, inputID),
	)
	return nil
}

func perSegment(elapsed time.Duration, segments int) time.Duration {
	if segments == 0 {
		return 0
	}
	return elapsed / time.Duration(segments)
}

func printRules(out io.Writer, model *tm.DynamicTM, source []string, rules []tm.ConcreteRule) {
	v := model.Vocab()
	for _, r := range rules {
		srcPhrase := strings.Join(source[r.SourceStart:r.SourceEnd], " ")
		tgtPhrase := strings.Join(v.ToWords(r.Rule.Tgt), " ")
		fmt.Fprintf(out, "%d\t[%d,%d)\t%s ||| %s |||", r.InputID, r.SourceStart, r.SourceEnd, srcPhrase, tgtPhrase)
		for _, s := range r.Rule.Scores {
			fmt.Fprintf(out, " %.4f", s)
		}
		fmt.Fprintln(out)
	}
}

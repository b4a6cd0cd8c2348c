package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/phrasekit/phrasekit/internal/corpus"
	"github.com/phrasekit/phrasekit/internal/index"
	"github.com/phrasekit/phrasekit/internal/vocab"
	pkgerrors "github.com/phrasekit/phrasekit/pkg/errors"
	"github.com/phrasekit/phrasekit/pkg/logger"
)

func (c *CLI) newBuildCommand() *cobra.Command {
	var srcPath, tgtPath, alignPath, outPath string

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Index a word-aligned parallel corpus",
		Long: `Build reads a tokenized source file, a tokenized target file, and a
Pharaoh-format alignment file (one "i-j" pair list per line, line-aligned with
the bitext), builds the parallel suffix array, and writes it to the output
path. Inputs ending in .gz are decompressed; an output ending in .gz is
compressed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if srcPath == "" {
				srcPath = c.cfg.Build.SourcePath
			}
			if tgtPath == "" {
				tgtPath = c.cfg.Build.TargetPath
			}
			if alignPath == "" {
				alignPath = c.cfg.Build.AlignPath
			}
			if outPath == "" {
				outPath = c.cfg.Build.OutputPath
			}
			if srcPath == "" || tgtPath == "" || alignPath == "" || outPath == "" {
				return pkgerrors.New(pkgerrors.ErrInvalidConfig,
					"build requires --source, --target, --align, and --out (or the build config section)")
			}
			return runBuild(srcPath, tgtPath, alignPath, outPath)
		},
	}

	cmd.Flags().StringVar(&srcPath, "source", "", "Tokenized source-language file")
	cmd.Flags().StringVar(&tgtPath, "target", "", "Tokenized target-language file")
	cmd.Flags().StringVar(&alignPath, "align", "", "Pharaoh-format word alignment file")
	cmd.Flags().StringVar(&outPath, "out", "", "Output index path (.bin or .bin.gz)")
	return cmd
}

func runBuild(srcPath, tgtPath, alignPath, outPath string) error {
	log := logger.WithComponent("build")
	start := time.Now()

	v := vocab.New()
	sentences, err := corpus.ReadBitext(srcPath, tgtPath, alignPath, v)
	if err != nil {
		return err
	}
	readDone := time.Now()

	sa := index.Build(sentences, v)
	buildDone := time.Now()

	if err := sa.Save(outPath); err != nil {
		return err
	}
	log.Info("index written",
		"path", outPath,
		"sentences", len(sentences),
		"vocabulary", v.Size(),
		"read", readDone.Sub(start),
		"sort", buildDone.Sub(readDone),
		"write", time.Since(buildDone),
	)
	return nil
}

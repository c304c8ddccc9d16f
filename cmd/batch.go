package main

import (
	"context"
	"io"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/wbcard-cli/internal/export"
	"github.com/sells-group/wbcard-cli/internal/model"
	"github.com/sells-group/wbcard-cli/internal/output"
	"github.com/sells-group/wbcard-cli/internal/reconcile"
	"github.com/sells-group/wbcard-cli/pkg/wbapi"
)

var batchCmd = &cobra.Command{
	Use:   "batch [article...]",
	Short: "Generate cards for several articles",
	Long: "Runs one session per article with a bounded number of concurrent streams. " +
		"--from reads articles from a .txt, .csv or .xlsx file. --server hands the whole list " +
		"to the backend batch endpoint and stores it as a single session.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		articles, err := batchArticles(cmd, args)
		if err != nil {
			return err
		}

		env, err := initAPI(ctx, "stream")
		if err != nil {
			return err
		}
		defer env.Close()

		mgr := initManager(env.Store, env.Client)
		live := output.NewLiveLog(printer)

		if server, _ := cmd.Flags().GetBool("server"); server {
			if len(articles) > wbapi.MaxBatchArticles {
				return eris.Errorf("batch: the backend accepts at most %d articles, got %d", wbapi.MaxBatchArticles, len(articles))
			}
			sess, runErr := mgr.StartWith(ctx, strings.Join(articles, batchLabelSep), func(ctx context.Context) (io.ReadCloser, error) {
				return env.Client.BatchStream(ctx, articles)
			}, reconcile.WithObserver(live))
			if sess == nil {
				return runErr
			}
			return reportSession(cmd, mgr, sess, runErr)
		}

		sum, err := processBatch(ctx, articles, cfg.Batch.MaxConcurrent, func(ctx context.Context, article string) (*model.Session, error) {
			return mgr.Start(ctx, article, reconcile.WithObserver(live.Prefix(article)))
		})
		if err != nil {
			return err
		}
		if err := printer.Sessions(sum.Sessions); err != nil {
			return err
		}
		printer.Info("%d done, %d failed.", sum.Succeeded, sum.Failed)
		if sum.Failed > 0 {
			return eris.Errorf("batch: %d of %d articles failed", sum.Failed, len(articles))
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().String("from", "", "read articles from a .txt, .csv or .xlsx file")
	batchCmd.Flags().Bool("server", false, "run the list as one backend batch")
	rootCmd.AddCommand(batchCmd)
}

func batchArticles(cmd *cobra.Command, args []string) ([]string, error) {
	var articles []string
	if from, _ := cmd.Flags().GetString("from"); from != "" {
		list, err := export.ReadArticles(from)
		if err != nil {
			return nil, err
		}
		articles = list
	}
	seen := make(map[string]bool, len(articles))
	for _, a := range articles {
		seen[a] = true
	}
	for _, a := range args {
		a = model.NormalizeArticle(a)
		if a != "" && !seen[a] {
			seen[a] = true
			articles = append(articles, a)
		}
	}
	if len(articles) == 0 {
		return nil, eris.New("batch: no articles given")
	}
	return articles, nil
}

// startFunc runs one article to completion.
type startFunc func(ctx context.Context, article string) (*model.Session, error)

// batchLabelSep joins the articles of a server batch into its session label.
const batchLabelSep = ","

// batchSummary collects the outcome of a batch.
type batchSummary struct {
	Sessions  []model.Session
	Succeeded int64
	Failed    int64
}

// processBatch runs every article with at most concurrency runs in flight.
// A failed article does not stop the others. Sessions come back in article
// order.
func processBatch(ctx context.Context, articles []string, concurrency int, start startFunc) (batchSummary, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	zap.L().Info("processing batch",
		zap.Int("articles", len(articles)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64
	sessions := make([]*model.Session, len(articles))

	for i, article := range articles {
		g.Go(func() error {
			log := zap.L().With(zap.String("article", article))

			sess, err := start(gctx, article)
			sessions[i] = sess
			if err != nil || sess == nil || sess.Status != model.SessionDone {
				failed.Add(1)
				log.Warn("article failed", zap.Error(err))
				return nil // don't abort batch on individual failure
			}

			succeeded.Add(1)
			log.Info("article complete", zap.String("session", sess.ID))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return batchSummary{}, eris.Wrap(err, "batch processing")
	}

	sum := batchSummary{Succeeded: succeeded.Load(), Failed: failed.Load()}
	for _, s := range sessions {
		if s != nil {
			sum.Sessions = append(sum.Sessions, *s)
		}
	}
	zap.L().Info("batch complete",
		zap.Int64("succeeded", sum.Succeeded),
		zap.Int64("failed", sum.Failed),
	)
	return sum, nil
}

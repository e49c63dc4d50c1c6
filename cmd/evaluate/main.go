// evaluate scores a TREC run against qrels and prints the mean of each
// measure. The run is read from a file or, with --from-kafka, rebuilt from
// the events the ranker published.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/Adithya-Monish-Kumar-K/docrank/internal/emit"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/eval"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("evaluate", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "path to YAML config file")
	qrelsPath := flags.StringP("qrels", "q", "test.qrels", "relevance judgements")
	runPath := flags.StringP("run", "r", "", "TREC run file (defaults to output.resultsPath)")
	measures := flags.StringSlice("measures", eval.DefaultMeasures, "measures to report")
	perQuery := flags.Bool("per-query", false, "print every query before the means")
	fromKafka := flags.Bool("from-kafka", false, "rebuild the run from the Kafka run topic")
	runTag := flags.String("run-tag", "", "with --from-kafka, only events with this tag")
	idle := flags.Duration("idle", 5*time.Second, "with --from-kafka, stop after this long without messages")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logger.SetupWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	log := logger.WithComponent("evaluate")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	qrels, err := eval.LoadQrels(*qrelsPath)
	if err != nil {
		return err
	}

	var run eval.Run
	if *fromKafka {
		run, err = runFromKafka(ctx, cfg.Output.Kafka, *runTag, *idle)
	} else {
		path := *runPath
		if path == "" {
			path = cfg.Output.ResultsPath
		}
		run, err = eval.LoadRun(path)
	}
	if err != nil {
		return err
	}

	per, err := eval.Evaluate(qrels, run, *measures)
	if err != nil {
		return err
	}
	log.Info("evaluated", "queries", len(per), "judged_queries", len(qrels), "run_queries", len(run))

	if *perQuery {
		qids := make([]string, 0, len(per))
		for qid := range per {
			qids = append(qids, qid)
		}
		sort.Strings(qids)
		for _, qid := range qids {
			fmt.Printf("# %s\n", qid)
			if err := eval.WriteSummary(os.Stdout, per[qid]); err != nil {
				return err
			}
		}
	}
	return eval.WriteSummary(os.Stdout, eval.Mean(per))
}

// runFromKafka consumes the run topic until it is idle and evaluates the
// most recent run it finds.
func runFromKafka(ctx context.Context, cfg config.KafkaConfig, runTag string, idle time.Duration) (eval.Run, error) {
	collector := emit.NewRunCollector(runTag)
	consumer := kafka.NewConsumer(cfg, collector.Handle)
	defer consumer.Close()

	if _, err := consumer.Drain(ctx, idle); err != nil {
		return nil, err
	}
	runs := collector.Runs()
	if len(runs) == 0 {
		return nil, fmt.Errorf("no runs found on topic %s", cfg.Topic)
	}
	latest := runs[len(runs)-1]
	logger.WithComponent("evaluate").Info("run rebuilt from kafka",
		"run_id", latest.ID,
		"run_tag", latest.Tag,
		"queries", len(latest.Results),
		"runs_seen", len(runs),
	)
	return eval.RunFromResults(latest.Results), nil
}

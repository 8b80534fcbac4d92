// Package main implements the crisiswatch command: it wires the
// configured sources, classifier, stores and notifiers into the pipeline
// coordinator and runs it.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/gurre/s3streamer"
	"go.uber.org/zap"

	"github.com/crisiswatch/crisiswatch/alert"
	awsx "github.com/crisiswatch/crisiswatch/aws"
	"github.com/crisiswatch/crisiswatch/checkpoint"
	"github.com/crisiswatch/crisiswatch/classify"
	"github.com/crisiswatch/crisiswatch/config"
	"github.com/crisiswatch/crisiswatch/coordinator"
	"github.com/crisiswatch/crisiswatch/dedup"
	"github.com/crisiswatch/crisiswatch/metrics"
	"github.com/crisiswatch/crisiswatch/source"
	"github.com/crisiswatch/crisiswatch/store"
	"github.com/crisiswatch/crisiswatch/verify"
	"github.com/crisiswatch/crisiswatch/window"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run parses flags, validates configuration, and starts the pipeline.
func run() error {
	fs := flag.NewFlagSet("crisiswatch", flag.ExitOnError)

	cfgPath := fs.String("config", "/etc/crisiswatch/config.yml", "path to YAML config")
	once := fs.Bool("once", false, "run a single cycle then exit")
	replay := fs.Bool("replay", false, "replay the post archive instead of polling sources")
	dryRun := fs.Bool("dry-run", false, "log alerts instead of publishing to SNS")
	workers := fs.Int("workers", 0, "override max classification workers")
	interval := fs.Duration("interval", 0, "override poll interval")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if *dryRun {
		cfg.Alerting.DryRun = true
	}
	if *workers > 0 {
		cfg.MaxWorkers = *workers
	}
	if *interval > 0 {
		cfg.PollInterval = *interval
	}

	log, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	rawS3Client := s3.NewFromConfig(awsCfg)
	s3Client := awsx.NewS3Client(rawS3Client)
	dynamoClient := awsx.NewDynamoDBClient(dynamodb.NewFromConfig(awsCfg))
	snsClient := awsx.NewSNSClient(sns.NewFromConfig(awsCfg))
	sqsClient := awsx.NewSQSClient(sqs.NewFromConfig(awsCfg))

	// Turn a mid-run AccessDenied into a startup failure. A dry run
	// publishes nothing, so denied actions must not keep it from starting.
	if shouldPreflight(cfg) {
		iamClient := awsx.NewIAMClient(iam.NewFromConfig(awsCfg))
		if err := awsx.Preflight(ctx, iamClient, cfg.Preflight.PrincipalARN, nil); err != nil {
			return fmt.Errorf("preflight failed: %w", err)
		}
		log.Info("preflight passed", zap.String("principal", cfg.Preflight.PrincipalARN))
	} else if cfg.Preflight.Enable {
		log.Warn("skipping preflight for dry run")
	}

	m := metrics.NewMetrics()

	classifier, err := buildClassifier(ctx, cfg, m)
	if err != nil {
		return err
	}

	verifier, err := buildVerifier(ctx, cfg, s3Client, log)
	if err != nil {
		return err
	}

	var notifier alert.Notifier
	if cfg.Alerting.DryRun {
		notifier = alert.NewLogNotifier(log)
	} else {
		notifier, err = alert.NewSNSNotifier(snsClient, cfg.Alerting.SNSTopicARN)
		if err != nil {
			return err
		}
	}

	sources := make([]source.Source, 0, len(cfg.Sources))
	deps := source.Deps{SQS: sqsClient, Corrupt: m.RecordCorrupt, Log: log}
	for _, sc := range cfg.Sources {
		src, err := source.NewFromConfig(sc, deps)
		if err != nil {
			return fmt.Errorf("failed to build source: %w", err)
		}
		sources = append(sources, src)
		log.Info("configured source", zap.String("source", src.Name()))
	}

	writer := store.NewDynamoDBEventWriter(dynamoClient, cfg.Storage.TableName, cfg.Storage.BatchSize)

	var archive coordinator.Archive
	if cfg.Storage.ArchiveS3URI != "" {
		archiver, err := store.NewArchiver(s3Client, cfg.Storage.ArchiveS3URI)
		if err != nil {
			return fmt.Errorf("failed to create archiver: %w", err)
		}
		archive = archiver
	}

	detector := window.NewDetector(cfg.Window.Duration, cfg.Window.MinEvents, cfg.Window.Cooldown)
	seen := dedup.NewStore(cfg.Dedup.MaxKeys, cfg.Dedup.TTL)

	coord := coordinator.NewCoordinator(
		cfg,
		sources,
		classifier,
		writer,
		archive,
		detector,
		verifier,
		notifier,
		seen,
		m,
		store.NewS3ReportUploader(s3Client),
		log,
	)

	if cfg.Metrics.ListenAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", m.Handler())
			srv := &http.Server{
				Addr:              cfg.Metrics.ListenAddr,
				Handler:           mux,
				ReadHeaderTimeout: 5 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server failed", zap.Error(err))
			}
		}()
		log.Info("metrics endpoint listening", zap.String("addr", cfg.Metrics.ListenAddr))
	}

	if *replay {
		cursors, err := buildCheckpointStore(cfg, s3Client)
		if err != nil {
			return err
		}
		coord.WithReplay(s3streamer.NewS3Streamer(rawS3Client), cursors)
		fmt.Printf("Replaying archive %s\n", cfg.Storage.ArchiveS3URI)
		if err := coord.Replay(ctx); err != nil {
			return fmt.Errorf("replay failed: %w", err)
		}
		fmt.Println("Replay completed successfully")
		return nil
	}

	if *once {
		if err := coord.RunCycle(ctx); err != nil {
			return fmt.Errorf("cycle failed: %w", err)
		}
		fmt.Println(coord.Metrics().GenerateReport())
		return nil
	}

	fmt.Printf("Starting crisiswatch with %d sources, polling every %s\n",
		len(sources), cfg.PollInterval)
	if err := coord.Run(ctx); err != nil {
		return fmt.Errorf("pipeline failed: %w", err)
	}

	return nil
}

// shouldPreflight reports whether the IAM permission check runs before
// the pipeline starts. Dry runs skip it.
func shouldPreflight(cfg *config.Config) bool {
	return cfg.Preflight.Enable && !cfg.Alerting.DryRun
}

// buildClassifier assembles the configured classifier, wrapping the model
// provider with the keyword fallback.
func buildClassifier(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (classify.Classifier, error) {
	keyword := classify.NewKeywordClassifier(cfg.Classifier.ExtraLocations...)

	switch cfg.Classifier.Provider {
	case "", "keyword":
		return keyword, nil
	case "gemini":
		apiKey := os.Getenv(cfg.Classifier.APIKeyEnv)
		gemini, err := classify.NewGeminiClassifier(ctx, apiKey, cfg.Classifier.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini classifier: %w", err)
		}
		return classify.NewFallbackClassifier(gemini, keyword, m.RecordDegraded), nil
	default:
		return nil, fmt.Errorf("unknown classifier provider %q", cfg.Classifier.Provider)
	}
}

// buildVerifier assembles the official-source roster, merging the static
// entries with an S3 roster when one is configured.
func buildVerifier(ctx context.Context, cfg *config.Config, s3Client awsx.S3Client, log *zap.Logger) (verify.Verifier, error) {
	if cfg.Verification.RosterS3URI != "" {
		roster, err := verify.LoadS3Roster(ctx, s3Client, cfg.Verification.RosterS3URI)
		if err != nil {
			return nil, fmt.Errorf("failed to load roster: %w", err)
		}
		log.Info("loaded verification roster",
			zap.String("uri", cfg.Verification.RosterS3URI),
			zap.Int("sources", roster.Len()))
		return roster, nil
	}
	return verify.NewRoster(cfg.Verification.Sources), nil
}

// buildCheckpointStore picks the cursor store from the checkpoint URI.
func buildCheckpointStore(cfg *config.Config, s3Client awsx.S3Client) (checkpoint.Store, error) {
	uri := cfg.Storage.CheckpointURI
	switch {
	case uri == "":
		return checkpoint.NewMemoryStore(), nil
	case len(uri) > 5 && uri[:5] == "s3://":
		return checkpoint.NewS3Store(s3Client, uri)
	default:
		return checkpoint.NewFileStore(uri)
	}
}

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"event-checkpointer/checkpointer"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	var configPath string
	var sourceBucket string
	var sourcePrefix string
	var sourceDir string
	var checkpointBucket string
	var checkpointKey string
	var checkpointDir string
	var region string
	var fetchRetries int
	var fetchRetryInterval time.Duration
	var ledgerFolder string
	var ledgerPrefix string
	var ledgerDB string
	var jobLabel string
	var serviceLabel string
	var syslogAddr string
	var deadman string
	var debug bool
	var timeout time.Duration
	var once bool
	var pollInterval time.Duration

	flag.StringVar(&configPath, "config", "", "YAML config file path.")
	flag.StringVar(&sourceBucket, "source-bucket", "", "S3 bucket holding event logs.")
	flag.StringVar(&sourcePrefix, "source-prefix", "", "Key prefix for event logs.")
	flag.StringVar(&sourceDir, "source-dir", "", "Local directory holding event logs (instead of S3).")
	flag.StringVar(&checkpointBucket, "checkpoint-bucket", "", "S3 bucket for the checkpoint artifact.")
	flag.StringVar(&checkpointKey, "checkpoint-key", "", "Key of the checkpoint parquet artifact.")
	flag.StringVar(&checkpointDir, "checkpoint-dir", "", "Local directory for the checkpoint artifact (instead of S3).")
	flag.StringVar(&region, "region", "", "AWS region (default: SDK default chain).")
	flag.IntVar(&fetchRetries, "fetch-retries", 3, "Max attempts per object fetch.")
	flag.DurationVar(&fetchRetryInterval, "fetch-retry-interval", 500*time.Millisecond, "Initial backoff interval for fetch retries.")
	flag.StringVar(&ledgerFolder, "ledger-folder", "", "Monthly rolling run-ledger folder.")
	flag.StringVar(&ledgerPrefix, "ledger-prefix", "", "Run-ledger file prefix (default runs_).")
	flag.StringVar(&ledgerDB, "ledger-db", "", "Single fixed run-ledger SQLite path.")
	flag.StringVar(&jobLabel, "job", "", "Job label for the run-summary structured-data.")
	flag.StringVar(&serviceLabel, "service", "event-logs", "Service label for the run-summary structured-data.")
	flag.StringVar(&syslogAddr, "syslog-addr", "", "Syslog receiver address (tcp) for run summaries.")
	flag.StringVar(&deadman, "deadman", "", "Deadman token attached to run summaries.")
	flag.BoolVar(&debug, "debug", false, "Enable debug logs.")
	flag.DurationVar(&timeout, "timeout", 0, "Overall timeout for one run (e.g. 30s, 2m).")
	flag.BoolVar(&once, "once", true, "Run once and exit (default true for crontab/scheduler).")
	flag.DurationVar(&pollInterval, "poll-interval", 5*time.Minute, "Polling interval when running with --once=false.")
	flag.Parse()

	visited := map[string]bool{}
	flag.CommandLine.Visit(func(f *flag.Flag) {
		visited[f.Name] = true
	})

	// Base config from file (optional)
	fileCfg := &checkpointer.FileConfig{}
	if configPath != "" {
		cfg, err := checkpointer.LoadConfig(configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		fileCfg = cfg
	}

	// Merge config + CLI overrides
	finalSourceBucket := fileCfg.Source.Bucket
	if visited["source-bucket"] {
		finalSourceBucket = sourceBucket
	}
	finalSourcePrefix := fileCfg.Source.Prefix
	if visited["source-prefix"] {
		finalSourcePrefix = sourcePrefix
	}
	finalSourceDir := fileCfg.Source.Dir
	if visited["source-dir"] {
		finalSourceDir = sourceDir
	}

	finalCheckpointBucket := fileCfg.Checkpoint.Bucket
	if visited["checkpoint-bucket"] {
		finalCheckpointBucket = checkpointBucket
	}
	finalCheckpointKey := fileCfg.Checkpoint.Key
	if visited["checkpoint-key"] {
		finalCheckpointKey = checkpointKey
	}
	finalCheckpointDir := fileCfg.Checkpoint.Dir
	if visited["checkpoint-dir"] {
		finalCheckpointDir = checkpointDir
	}

	finalRegion := fileCfg.Region
	if visited["region"] {
		finalRegion = region
	}

	finalRetries := fileCfg.Fetch.Retries
	if finalRetries == 0 {
		finalRetries = 3
	}
	if visited["fetch-retries"] {
		finalRetries = fetchRetries
	}
	finalRetryInterval := time.Duration(fileCfg.Fetch.RetryIntervalMS) * time.Millisecond
	if finalRetryInterval == 0 {
		finalRetryInterval = 500 * time.Millisecond
	}
	if visited["fetch-retry-interval"] {
		finalRetryInterval = fetchRetryInterval
	}

	finalLedgerFolder := fileCfg.Ledger.Folder
	if visited["ledger-folder"] {
		finalLedgerFolder = ledgerFolder
	}
	finalLedgerPrefix := fileCfg.Ledger.Prefix
	if visited["ledger-prefix"] {
		finalLedgerPrefix = ledgerPrefix
	}
	finalLedgerDB := fileCfg.Ledger.DB
	if visited["ledger-db"] {
		finalLedgerDB = ledgerDB
	}

	finalJob := fileCfg.Job
	if visited["job"] {
		finalJob = jobLabel
	}
	finalService := fileCfg.Service
	if finalService == "" {
		finalService = "event-logs"
	}
	if visited["service"] {
		finalService = serviceLabel
	}
	finalSyslog := fileCfg.SyslogAddr
	if visited["syslog-addr"] {
		finalSyslog = syslogAddr
	}
	finalDeadman := fileCfg.Deadman
	if visited["deadman"] {
		finalDeadman = deadman
	}
	finalDebug := fileCfg.Debug
	if visited["debug"] {
		finalDebug = debug
	}

	if finalSourceDir == "" && finalSourceBucket == "" {
		fmt.Fprintln(os.Stderr, "missing event log source (use --source-bucket or --source-dir, or config source)")
		os.Exit(2)
	}
	if strings.TrimSpace(finalCheckpointKey) == "" {
		fmt.Fprintln(os.Stderr, "missing checkpoint key (use --checkpoint-key or config checkpoint.key)")
		os.Exit(2)
	}
	if finalCheckpointDir == "" && finalCheckpointBucket == "" {
		fmt.Fprintln(os.Stderr, "missing checkpoint location (use --checkpoint-bucket or --checkpoint-dir, or config checkpoint)")
		os.Exit(2)
	}

	ctx := context.Background()

	var s3Client *s3.Client
	if finalSourceDir == "" || finalCheckpointDir == "" {
		var opts []func(*awsconfig.LoadOptions) error
		if finalRegion != "" {
			opts = append(opts, awsconfig.WithRegion(finalRegion))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			log.Fatalf("load aws config: %v", err)
		}
		s3Client = s3.NewFromConfig(awsCfg)
	}

	var sourceStore checkpointer.ObjectStore
	if finalSourceDir != "" {
		sourceStore = checkpointer.NewFSStore(finalSourceDir)
	} else {
		sourceStore = checkpointer.NewS3Store(s3Client, finalSourceBucket)
	}
	var checkpointStore checkpointer.ObjectStore
	if finalCheckpointDir != "" {
		checkpointStore = checkpointer.NewFSStore(finalCheckpointDir)
	} else {
		checkpointStore = checkpointer.NewS3Store(s3Client, finalCheckpointBucket)
	}

	runner, err := checkpointer.NewRunner(checkpointer.RunnerConfig{
		SourcePrefix:       finalSourcePrefix,
		CheckpointKey:      finalCheckpointKey,
		FetchRetries:       finalRetries,
		FetchRetryInterval: finalRetryInterval,
		JobLabel:           finalJob,
		ServiceLabel:       finalService,
		Debug:              finalDebug,
		Timeout:            timeout,
		LedgerPath:         finalLedgerDB,
		LedgerFolder:       finalLedgerFolder,
		LedgerPrefix:       finalLedgerPrefix,
		SyslogAddr:         finalSyslog,
		DeadmanToken:       finalDeadman,
	}, sourceStore, checkpointStore)
	if err != nil {
		log.Fatalf("init runner: %v", err)
	}
	defer runner.Close()

	if once {
		sum, err := runner.RunOnce(ctx)
		printSummary(sum)
		if err != nil {
			log.Fatalf("run once: %v", err)
		}
		return
	}

	for {
		sum, err := runner.RunOnce(ctx)
		printSummary(sum)
		if err != nil {
			log.Printf("run once error: %v", err)
		}
		time.Sleep(pollInterval)
	}
}

func printSummary(sum checkpointer.Summary) {
	b, err := json.Marshal(sum)
	if err != nil {
		log.Printf("marshal summary: %v", err)
		return
	}
	fmt.Println(string(b))
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/groupguard/groupguard/internal/biz/domain"
	"github.com/groupguard/groupguard/internal/conf"
	"github.com/groupguard/groupguard/internal/data"
)

func main() {
	imagePath := flag.String("image", "", "review an image file instead of text")
	ruleID := flag.String("rule", "", "rule id (default: rule of the default policy)")
	classifier := flag.String("classifier", "", "override CLASSIFIER")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: censor-check [-rule id] [-classifier baidu|openai] <text>")
		fmt.Fprintln(os.Stderr, "       censor-check -image <file>")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *imagePath == "" && flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	// Load .env file
	_ = godotenv.Load()

	cfg, err := conf.LoadFromEnv()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *classifier != "" {
		cfg.Classifier = strings.ToLower(*classifier)
	}
	logger := conf.NewLogger(cfg.Log, os.Stderr)

	backend, err := data.NewClassifier(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to create classifier: %v", err)
	}

	rule := *ruleID
	if rule == "" {
		rule = cfg.Policy.DefaultPolicy().RuleID
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Review.TimeoutSeconds)*time.Second)
	defer cancel()

	content := "text"
	var verdict domain.Verdict
	if *imagePath != "" {
		var img []byte
		img, err = os.ReadFile(*imagePath)
		if err != nil {
			log.Fatalf("Failed to read image: %v", err)
		}
		content = "image " + *imagePath
		verdict, err = backend.ClassifyImage(ctx, img, rule)
	} else {
		verdict, err = backend.ClassifyText(ctx, strings.Join(flag.Args(), " "), rule)
	}
	if err != nil {
		fmt.Printf("%s: review failed: %v\n", content, err)
		os.Exit(1)
	}

	fmt.Printf("%s via %s (rule %s): %s\n", content, cfg.Classifier, rule, verdict.Kind)
	if verdict.Reason != "" {
		fmt.Printf("reason: %s\n", verdict.Reason)
	}
	if len(verdict.Hits) > 0 {
		fmt.Printf("hits:   %s\n", strings.Join(verdict.Hits, ", "))
	}
}

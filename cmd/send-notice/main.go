package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/groupguard/groupguard/internal/biz/usecase"
	"github.com/groupguard/groupguard/internal/conf"
	"github.com/groupguard/groupguard/internal/data"
)

// send-notice renders a notification template with sample values and posts it
// to a group through the configured platform. Useful to check bot permissions
// and template edits before going live.
func main() {
	_ = godotenv.Load()

	if len(os.Args) < 3 {
		fmt.Println("Usage: send-notice <group_id> <violation|suspicious|mute|kick|group_mute> [user]")
		os.Exit(1)
	}
	groupID := os.Args[1]
	kind := usecase.NoticeKind(os.Args[2])
	user := "test-user"
	if len(os.Args) > 3 {
		user = os.Args[3]
	}

	cfg, err := conf.LoadFromEnv()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	logger := conf.NewLogger(cfg.Log, os.Stderr)

	notices, err := usecase.NewNotices(cfg.Templates.ToNoticeTemplates())
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	policy := cfg.Policy.DefaultPolicy()
	text := notices.Render(kind, usecase.NoticeData{
		GroupID:      groupID,
		User:         user,
		ContentType:  "text",
		Reason:       "sample notice",
		RuleID:       policy.RuleID,
		UserCount:    policy.SingleUserThreshold,
		GroupCount:   policy.GroupThreshold,
		MuteDuration: usecase.FormatDuration(policy.MuteDuration),
		Block:        policy.KickAndBlock,
	})

	platform, _, err := data.NewPlatform(cfg, nil, logger)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if kind == usecase.NoticeGroupMute && policy.NotifyMentionAll {
		err = platform.SendGroupMessageMentionAll(ctx, groupID, text)
	} else {
		err = platform.SendGroupMessage(ctx, groupID, text)
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Notice sent successfully!")
}

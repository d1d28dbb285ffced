package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/QuickFix-Capstone/quickfix-messaging/internal/auth"
	"github.com/QuickFix-Capstone/quickfix-messaging/internal/config"
	"github.com/QuickFix-Capstone/quickfix-messaging/internal/gateway"
	"github.com/QuickFix-Capstone/quickfix-messaging/internal/profile"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides QMSG_PROFILE)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	_ = godotenv.Load()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load(profile.ConfigPath(profileName))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot load profile %q: %v\n", profileName, err)
		os.Exit(1)
	}

	if args[0] == "status" {
		cmdStatus(profileName, cfg, *jsonFlag)
		return
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	gw := gateway.New(gateway.Config{
		BaseURLs: cfg.RESTBaseURLs,
		Token:    auth.FromEnv(cfg.TokenEnv),
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch args[0] {
	case "conversations":
		cmdConversations(ctx, gw, *jsonFlag)
	case "messages":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: qmsgctl messages <conversation-id>")
			os.Exit(1)
		}
		cmdMessages(ctx, gw, args[1], *jsonFlag)
	case "send":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: qmsgctl send <conversation-id> <text>")
			os.Exit(1)
		}
		cmdSend(ctx, gw, args[1], args[2], *jsonFlag)
	case "create":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: qmsgctl create <other-user-id> [job-id]")
			os.Exit(1)
		}
		jobID := ""
		if len(args) >= 3 {
			jobID = args[2]
		}
		cmdCreate(ctx, gw, args[1], jobID, *jsonFlag)
	case "read":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: qmsgctl read <conversation-id>")
			os.Exit(1)
		}
		cmdRead(ctx, gw, args[1])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: qmsgctl [--profile <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                         Show profile configuration")
	fmt.Fprintln(os.Stderr, "  conversations                  List conversations")
	fmt.Fprintln(os.Stderr, "  messages <conversation-id>     Show recent messages")
	fmt.Fprintln(os.Stderr, "  send <conversation-id> <text>  Send a message")
	fmt.Fprintln(os.Stderr, "  create <other-user-id> [job]   Open a conversation")
	fmt.Fprintln(os.Stderr, "  read <conversation-id>         Mark a conversation read")
}

func cmdStatus(profileName string, cfg *config.Config, jsonOut bool) {
	hasToken := os.Getenv(cfg.TokenEnv) != ""
	if jsonOut {
		outputJSON(map[string]any{
			"profile":      profileName,
			"identity":     cfg.Identity,
			"realtimeUrl":  cfg.RealtimeURL,
			"restBaseUrls": cfg.RESTBaseURLs,
			"tokenEnv":     cfg.TokenEnv,
			"tokenPresent": hasToken,
		})
		return
	}
	fmt.Printf("Profile:   %s\n", profileName)
	fmt.Printf("Identity:  %s\n", cfg.Identity)
	fmt.Printf("Realtime:  %s\n", cfg.RealtimeURL)
	fmt.Printf("REST:      %v\n", cfg.RESTBaseURLs)
	if hasToken {
		fmt.Printf("Token:     present (%s)\n", cfg.TokenEnv)
	} else {
		fmt.Printf("Token:     missing (set %s)\n", cfg.TokenEnv)
	}
}

func cmdConversations(ctx context.Context, gw *gateway.Client, jsonOut bool) {
	convs, err := gw.ListConversations(ctx, 50)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(convs)
		return
	}
	for _, c := range convs {
		badge := ""
		if c.UnreadCount > 0 {
			badge = fmt.Sprintf(" (%d unread)", c.UnreadCount)
		}
		fmt.Printf("%s  %-20s %s%s\n", c.ID, c.Other.Name, c.LastMessagePreview, badge)
	}
}

func cmdMessages(ctx context.Context, gw *gateway.Client, conversationID string, jsonOut bool) {
	msgs, err := gw.ListMessages(ctx, conversationID, 50, 0)
	if err != nil {
		fatal(err)
	}
	// The endpoint returns newest first; print chronologically.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	if jsonOut {
		outputJSON(msgs)
		return
	}
	for _, m := range msgs {
		ts := time.UnixMilli(m.Timestamp).Format("2006-01-02 15:04")
		fmt.Printf("[%s] %s: %s\n", ts, m.SenderName, m.Text)
	}
}

func cmdSend(ctx context.Context, gw *gateway.Client, conversationID, text string, jsonOut bool) {
	msg, err := gw.SendMessage(ctx, conversationID, text)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(msg)
		return
	}
	fmt.Printf("sent %s\n", msg.ID)
}

func cmdCreate(ctx context.Context, gw *gateway.Client, otherUserID, jobID string, jsonOut bool) {
	conv, err := gw.CreateConversation(ctx, otherUserID, jobID)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(conv)
		return
	}
	fmt.Printf("conversation %s\n", conv.ID)
}

func cmdRead(ctx context.Context, gw *gateway.Client, conversationID string) {
	if _, err := gw.MarkRead(ctx, conversationID); err != nil {
		fatal(err)
	}
	fmt.Println("ok")
}

func outputJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(data))
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

// Package main provides zeus-msg, the agent-facing subprocess half of the
// Producer API (spec component G): a one-shot CLI an autonomous agent shells
// out to in order to queue a message for Zeus delivery, optionally blocking
// until that message is confirmed delivered.
//
// Grounded on original_source/zeus/msg_cli.py for the environment-variable
// sender identity and target resolution rules, with the subcommand/flag
// shape (flag.NewFlagSet per subcommand, stdout/stderr injected so the
// command body stays testable, integer exit codes returned rather than
// calling os.Exit inline) grounded on
// Mindburn-Labs-helm/apps/helm-node/replay_cmd.go.
//
// Called by: autonomous agent processes (via subprocess invocation).
// Calls: internal/producer, internal/config, internal/queue,
// internal/receipts, internal/fleet, internal/vfs.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeusbus/zeus/internal/config"
	"github.com/zeusbus/zeus/internal/envelope"
	"github.com/zeusbus/zeus/internal/fleet"
	"github.com/zeusbus/zeus/internal/producer"
	"github.com/zeusbus/zeus/internal/queue"
	"github.com/zeusbus/zeus/internal/receipts"
	"github.com/zeusbus/zeus/internal/vfs"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "zeus-msg: expected a subcommand (send)")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "send":
		os.Exit(runSendCmd(os.Args[2:], os.Stdout, os.Stderr))
	default:
		fmt.Fprintf(os.Stderr, "zeus-msg: unknown subcommand %q\n", os.Args[1])
		os.Exit(1)
	}
}

func errf(stderr io.Writer, format string, args ...any) int {
	fmt.Fprintf(stderr, "zeus-msg: "+format+"\n", args...)
	return 1
}

// runSendCmd implements `zeus-msg send` (spec §4.6/§6 CLI surface).
//
// Exit codes:
//
//	0 = enqueued (and, with --wait-delivery, confirmed delivered)
//	1 = validation, I/O, or timeout failure
func runSendCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("send", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		to            string
		file          string
		text          string
		stdin         bool
		from          string
		waitDelivery  bool
		timeoutSecond float64
	)
	cmd.StringVar(&to, "to", "", "polemarch | phalanx | hoplite:<id> | agent:<id> | <agent-id> | <display-name>")
	cmd.StringVar(&file, "file", "", "payload file path, must resolve under ZEUS_MESSAGE_TMP_DIR")
	cmd.StringVar(&text, "text", "", "payload given directly on the command line")
	cmd.BoolVar(&stdin, "stdin", false, "read the payload from stdin")
	cmd.StringVar(&from, "from", "", "override sender display name (defaults to ZEUS_AGENT_NAME or the agent id)")
	cmd.BoolVar(&waitDelivery, "wait-delivery", false, "block until the message is delivered or --timeout elapses")
	cmd.Float64Var(&timeoutSecond, "timeout", 30, "seconds to wait when --wait-delivery is set")

	if err := cmd.Parse(args); err != nil {
		return 1
	}

	if to == "" {
		return errf(stderr, "--to is required")
	}

	payload, err := resolvePayload(file, text, stdin)
	if err != nil {
		return errf(stderr, "%v", err)
	}

	sender, err := senderIdentityFromEnv()
	if err != nil {
		return errf(stderr, "%v", err)
	}
	if from != "" {
		sender.Name = from
	}

	cfg, err := config.Load(os.Getenv("ZEUS_CONFIG_FILE"))
	if err != nil {
		return errf(stderr, "load config: %v", err)
	}

	rootFS, err := vfs.New(cfg.StateDir, false)
	if err != nil {
		return errf(stderr, "open state dir: %v", err)
	}
	queueFS, err := vfs.New(filepath.Join(cfg.StateDir, "queue"), false)
	if err != nil {
		return errf(stderr, "open queue dir: %v", err)
	}
	queueStore, err := queue.New(queueFS)
	if err != nil {
		return errf(stderr, "init queue store: %v", err)
	}

	var tmpRoot *vfs.VFS
	if file != "" {
		tmpRoot, err = vfs.New(cfg.MessageTmpDir, true)
		if err != nil {
			return errf(stderr, "open message-tmp dir: %v", err)
		}
		payload, err = producer.ReadPayloadFile(tmpRoot, file)
		if err != nil {
			return errf(stderr, "%v", err)
		}
	}

	targetKind, targetRef, targetOwner, err := producer.ResolveSymbolicTarget(to, sender)
	if err != nil {
		return errf(stderr, "cannot resolve --to target %q: %v", to, err)
	}

	dependencies := fleet.LoadDependencies(rootFS)
	p := producer.New(queueStore, dependencies)

	params := producer.EnqueueParams{
		Sender:        sender,
		TargetKind:    targetKind,
		TargetRef:     targetRef,
		TargetOwnerID: targetOwner,
		Message:       payload,
	}
	if targetKind == envelope.TargetAgent {
		params.TargetAgentID = targetRef
	}

	id, err := p.EnqueueOutbound(params, time.Now())
	if err != nil {
		return errf(stderr, "%v", err)
	}
	fmt.Fprintf(stdout, "ZEUS_MSG_ENQUEUED=%s\n", id)

	if !waitDelivery {
		return 0
	}

	receiptTarget := ""
	if targetKind == envelope.TargetAgent || targetKind == envelope.TargetHoplite {
		receiptTarget = targetRef
	}
	receiptStore := receipts.New(rootFS)

	delivered, err := waitForDelivery(queueStore, receiptStore, id, receiptTarget, timeoutSecond)
	if err != nil {
		return errf(stderr, "%v", err)
	}
	if !delivered {
		return errf(stderr, "timed out after %.0fs waiting for delivery of %s", timeoutSecond, id)
	}
	fmt.Fprintf(stdout, "ZEUS_MSG_DELIVERED=%s\n", id)
	return 0
}

// resolvePayload validates that exactly one payload source was given
// (spec §4.6: "a payload from --file, --text, or stdin (exactly one
// source)"). --file's actual confinement check happens later through
// producer.ReadPayloadFile; this only enforces source-count exclusivity and
// reads stdin/--text directly.
func resolvePayload(file, text string, useStdin bool) (string, error) {
	sources := 0
	if file != "" {
		sources++
	}
	if text != "" {
		sources++
	}
	if useStdin {
		sources++
	}
	switch sources {
	case 0:
		return "", fmt.Errorf("exactly one of --file, --text, or --stdin is required")
	case 1:
	default:
		return "", fmt.Errorf("only one of --file, --text, or --stdin may be given")
	}

	if useStdin {
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(raw), nil
	}
	if text != "" {
		return text, nil
	}
	// --file: resolved later via producer.ReadPayloadFile once the
	// message-tmp VFS is open; return a placeholder that the caller
	// overwrites.
	return "", nil
}

// senderIdentityFromEnv reads the environment variables msg_cli.py's
// cmd_send reads (spec §4.6: "Reads sender identity from environment").
func senderIdentityFromEnv() (fleet.Identity, error) {
	agentID := strings.TrimSpace(os.Getenv("ZEUS_AGENT_ID"))
	if agentID == "" {
		return fleet.Identity{}, fmt.Errorf("ZEUS_AGENT_ID is required")
	}
	name := strings.TrimSpace(os.Getenv("ZEUS_AGENT_NAME"))
	if name == "" {
		name = agentID
	}
	return fleet.Identity{
		AgentID:   agentID,
		Name:      name,
		Role:      fleet.Role(strings.ToLower(strings.TrimSpace(os.Getenv("ZEUS_ROLE")))),
		ParentID:  strings.TrimSpace(os.Getenv("ZEUS_PARENT_ID")),
		PhalanxID: strings.TrimSpace(os.Getenv("ZEUS_PHALANX_ID")),
	}, nil
}

// waitForDelivery polls until the envelope leaves new/+inflight/ or (for a
// single concrete recipient) an accepted receipt appears, whichever comes
// first (spec §4.6/§5, CLI --wait-delivery cancellation rule). A phalanx
// target has no single receipt directory to poll, so it relies solely on
// queue disappearance.
func waitForDelivery(q *queue.Store, r *receipts.Store, envelopeID, receiptTarget string, timeoutSeconds float64) (bool, error) {
	deadline := time.Now().Add(time.Duration(timeoutSeconds * float64(time.Second)))
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		present, err := q.Contains(envelopeID)
		if err != nil {
			return false, err
		}
		if !present {
			return true, nil
		}
		if receiptTarget != "" && r.Has(receiptTarget, envelopeID) {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		<-ticker.C
	}
}

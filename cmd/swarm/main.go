// swarm runs simulated clients against a signaling relay and prints a
// negotiation summary when stopped.
// Usage: go run ./cmd/swarm --url ws://localhost:8080/ -n 10
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/rickgao/mist-signaling/internal/swarm"
)

func main() {
	url := pflag.String("url", "ws://localhost:8080/", "relay WebSocket URL")
	clients := pflag.IntP("clients", "n", 4, "number of simulated clients")
	prefix := pflag.String("prefix", "client-", "client id prefix")
	negotiate := pflag.Bool("negotiate", true, "create real WebRTC descriptions (false sends placeholders)")
	evalInterval := pflag.Duration("eval-interval", time.Second, "location report interval (0 disables)")
	spacing := pflag.Duration("spacing", 100*time.Millisecond, "delay between client starts")
	iceServers := pflag.StringSlice("ice-server", nil, "ICE server URL (repeatable)")
	verbose := pflag.BoolP("verbose", "v", false, "debug logging")
	pflag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	newNeg := func() swarm.Negotiator { return swarm.NewStaticNegotiator() }
	if *negotiate {
		servers := *iceServers
		newNeg = func() swarm.Negotiator { return swarm.NewPionNegotiator(servers) }
	}

	s := swarm.New(swarm.Config{
		URL:          *url,
		Clients:      *clients,
		IDPrefix:     *prefix,
		EvalInterval: *evalInterval,
		StartSpacing: *spacing,
	}, newNeg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Stop on signal or Enter
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	go func() {
		_, _ = bufio.NewReader(os.Stdin).ReadString('\n')
		cancel()
	}()

	fmt.Printf("Running %d clients against %s (press Enter to stop)\n", *clients, *url)
	started := time.Now()
	err := s.Run(ctx)

	printSummary(s, time.Since(started))
	if err != nil {
		color.Red("swarm error: %v", err)
		os.Exit(1)
	}
}

func printSummary(s *swarm.Swarm, elapsed time.Duration) {
	st := s.Stats()
	head := color.New(color.Bold, color.FgCyan)
	ok := color.New(color.FgGreen).SprintFunc()
	bad := color.New(color.FgRed).SprintFunc()

	fmt.Println()
	head.Printf("Swarm summary (%s)\n", elapsed.Round(time.Millisecond))
	fmt.Printf("  matches      %s\n", ok(st.Matches))
	fmt.Printf("  offers sent  %s\n", ok(st.OffersSent))
	fmt.Printf("  answers sent %s\n", ok(st.AnswersSent))
	fmt.Printf("  completed    %s\n", ok(st.Completed))
	fmt.Printf("  connected    %s\n", ok(st.Connected))
	fmt.Printf("  evaluations  %s\n", ok(st.Evaluations))
	if st.Errors > 0 {
		fmt.Printf("  errors       %s\n", bad(st.Errors))
	} else {
		fmt.Printf("  errors       %s\n", ok(st.Errors))
	}

	for _, a := range s.Agents() {
		as := a.Stats()
		line := fmt.Sprintf("    %-12s offers=%d answers=%d completed=%d", a.ID(), as.OffersSent, as.AnswersSent, as.Completed)
		if as.Errors > 0 {
			color.Yellow("%s errors=%d", line, as.Errors)
			continue
		}
		fmt.Println(line)
	}
}

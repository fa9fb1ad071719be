package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/terminal-planner/internal/application/planning"
	"github.com/turtacn/terminal-planner/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/terminal-planner/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/terminal-planner/pkg/errors"
)

type eventsOptions struct {
	group         string
	fromBeginning bool
	output        string
}

// NewEventsCmd tails the planning-events topic.
func NewEventsCmd() *cobra.Command {
	opts := &eventsOptions{}
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print planning events as they are published",
		Long: "Tails the planning-events topic and prints one line per event. Messages\n" +
			"that cannot be decoded are forwarded to the dead-letter topic.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runEvents(ctx, cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.group, "group", "", "consumer group (default: messaging.kafka.group_id)")
	f.BoolVar(&opts.fromBeginning, "from-beginning", false, "start from the oldest retained event for a new group")
	f.StringVarP(&opts.output, "output", "o", outputText, "output format (text, json)")
	return cmd
}

func runEvents(ctx context.Context, cmd *cobra.Command, opts *eventsOptions) error {
	if opts.output != outputText && opts.output != outputJSON {
		return errors.InvalidParam("unknown output format").WithDetail(opts.output)
	}
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	kc := cliCtx.Config.Messaging.Kafka
	group := opts.group
	if group == "" {
		group = kc.GroupID
	}
	offset := "latest"
	if opts.fromBeginning {
		offset = "earliest"
	}

	deadLetter, err := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      kc.Brokers,
		ClientID:     kc.ClientID,
		RequiredAcks: kc.RequiredAcks,
		WriteTimeout: kc.WriteTimeout,
	}, cliCtx.Logger)
	if err != nil {
		return err
	}
	defer deadLetter.Close()

	consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:         kc.Brokers,
		GroupID:         group,
		Topics:          []string{kc.Topic},
		AutoOffsetReset: offset,
		Retry:           kafka.RetryConfig{DeadLetterTopic: kafka.TopicDeadLetterDefault},
	}, deadLetter, cliCtx.Logger)
	if err != nil {
		return err
	}
	consumer.Subscribe(kc.Topic, envelopePrinter(cmd.OutOrStdout(), opts.output))
	if err := consumer.Start(ctx); err != nil {
		return err
	}
	cliCtx.Logger.Info("tailing planning events",
		logging.String("topic", kc.Topic),
		logging.String("group", group),
		logging.String("offset", offset))

	<-ctx.Done()
	return consumer.Close()
}

// envelopePrinter writes each event envelope to w. Undecodable messages are
// returned as errors so the consumer dead-letters them.
func envelopePrinter(w io.Writer, output string) kafka.MessageHandler {
	return func(ctx context.Context, msg *kafka.Message) error {
		env, err := kafka.ParseEnvelope(msg)
		if err != nil {
			return err
		}
		if output == outputJSON {
			_, err = fmt.Fprintf(w, "%s\n", msg.Value)
			return err
		}
		summary, err := summarizeEvent(env)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s  %-22s  %-36s  %s\n",
			env.Timestamp.UTC().Format(time.RFC3339), env.EventType, string(msg.Key), summary)
		return err
	}
}

// summarizeEvent renders the payload of the planner's event types as one
// line. Other types print their raw payload.
func summarizeEvent(env *kafka.EventEnvelope) (string, error) {
	switch env.EventType {
	case planning.EventTypeRunCompleted, planning.EventTypeRunFailed:
		var p planning.RunCompletedPayload
		if err := env.DecodePayload(&p); err != nil {
			return "", err
		}
		line := fmt.Sprintf("%s npv=%s elements=%d took=%s", p.Status, money(p.NPV), p.Elements,
			(time.Duration(p.DurationMS) * time.Millisecond).String())
		if p.Error != "" {
			line += " error=" + strconv.Quote(p.Error)
		}
		return line, nil
	case planning.EventTypeDecisions:
		var p planning.DecisionsPayload
		if err := env.DecodePayload(&p); err != nil {
			return "", err
		}
		counts := map[planning.EventType]int{}
		for _, ev := range p.Events {
			counts[ev.Type]++
		}
		return fmt.Sprintf("decisions=%d elements_added=%d", len(p.Events), counts[planning.EventElementAdded]), nil
	}
	return string(env.Payload), nil
}

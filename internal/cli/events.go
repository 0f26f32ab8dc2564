package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/HienH/sale-smell/internal/events"
	"github.com/HienH/sale-smell/internal/models"
)

func NewEventsCmd(deps *Dependencies) *cobra.Command {
	var runID string

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Tail transcription events from Kafka",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kc := deps.Config.Kafka
			consumer, err := events.NewConsumer(events.ConsumerConfig{
				Brokers:       kc.Brokers,
				TopicProgress: kc.TopicProgress,
				TopicResult:   kc.TopicResult,
				RunID:         runID,
			})
			if err != nil {
				return fmt.Errorf("creating consumer: %w", err)
			}
			defer consumer.Close()

			formatter := NewFormatter(cmd.OutOrStdout())
			return consumer.Run(cmd.Context(), events.Handlers{
				Progress: func(ev models.ProgressEvent) {
					formatter.Event(ev.RunID, fmt.Sprintf("%3d%% %s", ev.Percent, ev.Message))
				},
				Result: func(ev models.ResultEvent) {
					msg := ev.Outcome
					if ev.Error != "" {
						msg += ": " + ev.Error
					}
					formatter.Event(ev.RunID, msg)
				},
			})
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "Only show events for this run id")

	return cmd
}

package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/storeops/storeops/store/docstore"
)

// newWatchCmd creates the watch command. It subscribes to the change stream
// of a document store namespace and prints each event as a JSON line until
// the limit is reached or the process is interrupted. The caller of the
// subscription owns it: the command cancels it on every exit path.
func newWatchCmd(a *app) *cobra.Command {
	var (
		ns    string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream change events from a document store namespace",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			namespace := docstore.ParseNamespace(ns)
			if !namespace.IsValid() {
				return fmt.Errorf("invalid namespace %q, want db.collection", ns)
			}

			conn, err := a.deps.DocDialer(ctx, a.cfg.Doc.URI, a.lggr)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := conn.Close(ctx); cerr != nil {
					a.lggr.Errorw("Failed to release connection", "error", cerr)
				}
			}()

			stream, err := conn.Watch(ctx, namespace, mongo.Pipeline{})
			if err != nil {
				return err
			}

			sub := docstore.NewSubscription(stream, a.lggr)
			defer func() {
				if cerr := sub.Close(ctx); cerr != nil {
					a.lggr.Errorw("Failed to cancel subscription", "error", cerr)
				}
			}()

			a.lggr.Infow("Watching namespace", "namespace", namespace.FullName())

			enc := json.NewEncoder(cmd.OutOrStdout())
			seen := 0
			for ev := range sub.Events() {
				if err := enc.Encode(ev); err != nil {
					return err
				}

				seen++
				if limit > 0 && seen >= limit {
					break
				}
			}

			return sub.Err()
		},
	}

	cmd.Flags().StringVar(&ns, "ns", "", "Namespace to watch as db.collection (required)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Stop after this many events (0 streams until interrupted)")
	_ = cmd.MarkFlagRequired("ns")

	return cmd
}

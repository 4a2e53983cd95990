package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/storeops/storeops/operations"
	"github.com/storeops/storeops/plan"
	"github.com/storeops/storeops/runner"
	"github.com/storeops/storeops/store/docstore"
	"github.com/storeops/storeops/store/relstore"
)

// newRunCmd creates the run command group. Every run opens a single store
// connection, executes its operations strictly in order and releases the
// connection before returning.
func newRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute an ordered sequence of store operations",
	}

	cmd.AddCommand(newRunDocCmd(a), newRunSQLCmd(a), newRunPlanCmd(a))

	cmd.PersistentFlags().String("policy", "", "Failure policy (fail-fast or best-effort)")
	cmd.PersistentFlags().Uint("retry", 0, "Retry attempts per operation (0 disables retries)")

	return cmd
}

func newRunDocCmd(a *app) *cobra.Command {
	var sharding bool

	cmd := &cobra.Command{
		Use:   "doc",
		Short: "Run the document store demo sequence",
		RunE: func(cmd *cobra.Command, _ []string) error {
			steps := docstore.DemoSteps(a.cfg.Doc.Database)
			if sharding {
				steps = docstore.ShardingSteps(a.cfg.Doc.Database)
			}

			return a.execute(cmd, "doc-demo", a.docDial, steps, "")
		},
	}

	cmd.Flags().BoolVar(&sharding, "sharding", false, "Run the sharding setup sequence instead")

	return cmd
}

func newRunSQLCmd(a *app) *cobra.Command {
	var table string

	cmd := &cobra.Command{
		Use:   "sql",
		Short: "Run the relational store demo sequence",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.execute(cmd, "sql-demo", a.relDial, relstore.DemoSteps(table), "")
		},
	}

	cmd.Flags().StringVar(&table, "table", "employees", "Name of the demo table")

	return cmd
}

func newRunPlanCmd(a *app) *cobra.Command {
	var store string

	cmd := &cobra.Command{
		Use:   "plan <file>",
		Short: "Run the operations of a YAML plan file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := plan.Load(args[0])
			if err != nil {
				return err
			}

			steps, err := p.Resolve(a.registry())
			if err != nil {
				return err
			}

			// empty when the plan names no policy, letting the config decide
			return a.execute(cmd, p.Name, a.dialer(store), steps, runner.Policy(p.Policy))
		},
	}

	cmd.Flags().StringVar(&store, "store", "doc", "Store the plan runs against (doc or sql)")

	return cmd
}

// dialFunc opens the store connection of a run.
type dialFunc func(ctx context.Context) (runner.Conn, error)

func (a *app) docDial(ctx context.Context) (runner.Conn, error) {
	return a.deps.DocDialer(ctx, a.cfg.Doc.URI, a.lggr)
}

func (a *app) relDial(ctx context.Context) (runner.Conn, error) {
	return a.deps.RelDialer(ctx, a.cfg.Rel.DSN, a.lggr)
}

// dialer selects the dial function of the named store backend.
func (a *app) dialer(store string) dialFunc {
	if store == "sql" {
		return a.relDial
	}

	return a.docDial
}

// execute dials the store and runs the steps. The connection is dialed only
// after all options resolved, and is owned by the runner from there on,
// released exactly once. planPolicy is the policy named by a plan file; the
// --policy flag overrides it, and the config value is the fallback for both.
func (a *app) execute(
	cmd *cobra.Command, name string, dial dialFunc, steps []runner.Step, planPolicy runner.Policy,
) error {
	policy, err := a.resolvePolicy(cmd, planPolicy)
	if err != nil {
		return err
	}

	retry, err := cmd.Flags().GetUint("retry")
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("retry") {
		retry = a.cfg.Runner.RetryAttempts
	}

	opts := []runner.Option{runner.WithPolicy(policy)}
	if retry > 0 {
		opts = append(opts, runner.WithStepRetry(retry))
	}

	reporter, cleanup, err := a.reporter()
	if err != nil {
		return err
	}
	defer cleanup()

	conn, err := dial(cmd.Context())
	if err != nil {
		return err
	}

	b := operations.NewBundle(cmd.Context, a.lggr, reporter, operations.WithRegistry(a.registry()))

	_, err = runner.New(name, a.lggr, opts...).Run(b, conn, steps)

	return err
}

func (a *app) resolvePolicy(cmd *cobra.Command, planPolicy runner.Policy) (runner.Policy, error) {
	flag, err := cmd.Flags().GetString("policy")
	if err != nil {
		return "", err
	}

	switch {
	case cmd.Flags().Changed("policy"):
		return runner.ParsePolicy(flag)
	case planPolicy != "":
		return planPolicy, nil
	default:
		return runner.ParsePolicy(a.cfg.Runner.Policy)
	}
}

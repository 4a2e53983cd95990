package commands

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/storeops/storeops/config"
	"github.com/storeops/storeops/pkg/logger"
	"github.com/storeops/storeops/runner"
	"github.com/storeops/storeops/store/docstore"
	"github.com/storeops/storeops/store/relstore"
)

// fakeRelConn records statements and satisfies relstore.Conn.
type fakeRelConn struct {
	mu         sync.Mutex
	statements []string
	closed     int
}

func (c *fakeRelConn) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statements = append(c.statements, query)

	return 1, nil
}

func (c *fakeRelConn) Query(ctx context.Context, query string, args ...any) ([]relstore.Row, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statements = append(c.statements, query)

	return nil, nil
}

func (c *fakeRelConn) Ping(ctx context.Context) error { return nil }

func (c *fakeRelConn) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++

	return nil
}

// fakeWatchStream delivers queued change events and then blocks until closed.
type fakeWatchStream struct {
	events  []docstore.ChangeEvent
	pos     int
	current docstore.ChangeEvent
	closed  chan struct{}
}

func newFakeWatchStream(events ...docstore.ChangeEvent) *fakeWatchStream {
	return &fakeWatchStream{events: events, closed: make(chan struct{})}
}

func (s *fakeWatchStream) Next(ctx context.Context) bool {
	if s.pos < len(s.events) {
		s.current = s.events[s.pos]
		s.pos++

		return true
	}

	// block like a live tailing cursor until the stream is closed
	select {
	case <-ctx.Done():
	case <-s.closed:
	}

	return false
}

func (s *fakeWatchStream) Decode(val any) error {
	raw, err := bson.Marshal(s.current)
	if err != nil {
		return err
	}

	return bson.Unmarshal(raw, val)
}

func (s *fakeWatchStream) Err() error { return nil }

func (s *fakeWatchStream) Close(ctx context.Context) error {
	select {
	case <-s.closed:
	default:
		close(s.closed)
	}

	return nil
}

func (s *fakeWatchStream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// fakeDocConn satisfies docstore.Conn for the watch command; only Watch, Ping
// and Close are exercised.
type fakeDocConn struct {
	stream  *fakeWatchStream
	watched docstore.Namespace
	closed  int
}

func (c *fakeDocConn) CreateCollection(ctx context.Context, ns docstore.Namespace, validator bson.M) error {
	return nil
}

func (c *fakeDocConn) InsertMany(ctx context.Context, ns docstore.Namespace, docs []any) (int, error) {
	return 0, nil
}

func (c *fakeDocConn) UpdateMany(ctx context.Context, ns docstore.Namespace, filter, update bson.M) (int64, error) {
	return 0, nil
}

func (c *fakeDocConn) DeleteOne(ctx context.Context, ns docstore.Namespace, filter bson.M) (int64, error) {
	return 0, nil
}

func (c *fakeDocConn) Find(ctx context.Context, ns docstore.Namespace, filter bson.M, opts docstore.FindOptions, out any) error {
	return nil
}

func (c *fakeDocConn) Aggregate(ctx context.Context, ns docstore.Namespace, pipeline mongo.Pipeline, out any) error {
	return nil
}

func (c *fakeDocConn) CreateIndexes(ctx context.Context, ns docstore.Namespace, indexes []docstore.Index) ([]string, error) {
	return nil, nil
}

func (c *fakeDocConn) RunCommand(ctx context.Context, db string, cmd bson.D) (bson.M, error) {
	return nil, nil
}

func (c *fakeDocConn) Watch(ctx context.Context, ns docstore.Namespace, pipeline mongo.Pipeline) (docstore.ChangeStream, error) {
	c.watched = ns

	return c.stream, nil
}

func (c *fakeDocConn) Ping(ctx context.Context) error { return nil }

func (c *fakeDocConn) Close(ctx context.Context) error {
	c.closed++

	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Log:    config.LogConfig{Level: "info"},
		Doc:    config.DocConfig{URI: "mongodb://localhost:27017", Database: "demo"},
		Rel:    config.RelConfig{DSN: "postgres://localhost:5432/demo"},
		Runner: config.RunnerConfig{Policy: "fail-fast"},
	}
}

func execute(t *testing.T, args []string, opts ...RootOption) (string, error) {
	t.Helper()

	opts = append([]RootOption{
		WithConfig(testConfig()),
		WithLogger(logger.Test(t)),
	}, opts...)

	cmd := NewRootCmd(opts...)
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())

	return out.String(), err
}

func Test_OpsList(t *testing.T) {
	t.Parallel()

	out, err := execute(t, []string{"ops", "list"})

	require.NoError(t, err)
	assert.Contains(t, out, "doc/insert-places")
	assert.Contains(t, out, "doc/shard-collection")
	assert.Contains(t, out, "sql/create-schema")
	assert.Contains(t, out, "sql/create-publication")
}

func Test_RunSQL(t *testing.T) {
	t.Parallel()

	conn := &fakeRelConn{}
	deps := &Deps{
		RelDialer: func(ctx context.Context, dsn string, lggr logger.Logger) (relstore.Conn, error) {
			return conn, nil
		},
	}

	_, err := execute(t, []string{"run", "sql"}, WithDeps(deps))

	require.NoError(t, err)
	assert.Len(t, conn.statements, 16)
	assert.Equal(t, 1, conn.closed, "connection must be released exactly once")
}

func Test_RunSQL_InvalidPolicyFlag(t *testing.T) {
	t.Parallel()

	conn := &fakeRelConn{}
	deps := &Deps{
		RelDialer: func(ctx context.Context, dsn string, lggr logger.Logger) (relstore.Conn, error) {
			return conn, nil
		},
	}

	_, err := execute(t, []string{"run", "sql", "--policy", "retry-forever"}, WithDeps(deps))

	require.ErrorContains(t, err, "unknown failure policy")
	assert.Empty(t, conn.statements)
}

func Test_RunDoc_ConnectionErrorIsFatal(t *testing.T) {
	t.Parallel()

	deps := &Deps{
		DocDialer: func(ctx context.Context, uri string, lggr logger.Logger) (docstore.Conn, error) {
			return nil, fmt.Errorf("%w: connection refused", runner.ErrConnection)
		},
	}

	_, err := execute(t, []string{"run", "doc"}, WithDeps(deps))

	require.ErrorIs(t, err, runner.ErrConnection)
}

func Test_RunPlan(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "plan.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: schema-only
steps:
  - op: sql/create-schema
    input:
      table: employees
`), 0o600))

	conn := &fakeRelConn{}
	deps := &Deps{
		RelDialer: func(ctx context.Context, dsn string, lggr logger.Logger) (relstore.Conn, error) {
			return conn, nil
		},
	}

	_, err := execute(t, []string{"run", "plan", path, "--store", "sql"}, WithDeps(deps))

	require.NoError(t, err)
	require.Len(t, conn.statements, 1)
	assert.Contains(t, conn.statements[0], `CREATE TABLE "employees"`)
	assert.Equal(t, 1, conn.closed)
}

func Test_RunPlan_UnknownOperation(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "plan.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: bad
steps:
  - op: doc/does-not-exist
`), 0o600))

	_, err := execute(t, []string{"run", "plan", path})

	require.ErrorContains(t, err, "doc/does-not-exist")
}

func Test_Watch(t *testing.T) {
	t.Parallel()

	stream := newFakeWatchStream(
		docstore.ChangeEvent{OperationType: "insert", FullDocument: bson.M{"name": "Morris Park Bake Shop"}},
		docstore.ChangeEvent{OperationType: "delete", DocumentKey: bson.M{"_id": "x"}},
	)
	conn := &fakeDocConn{stream: stream}
	deps := &Deps{
		DocDialer: func(ctx context.Context, uri string, lggr logger.Logger) (docstore.Conn, error) {
			return conn, nil
		},
	}

	out, err := execute(t, []string{"watch", "--ns", "demo.places", "--limit", "2"}, WithDeps(deps))

	require.NoError(t, err)
	assert.Equal(t, docstore.NewNamespace("demo", "places"), conn.watched)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"OperationType":"insert"`)
	assert.Contains(t, lines[0], "Morris Park Bake Shop")
	assert.Contains(t, lines[1], `"OperationType":"delete"`)

	assert.Equal(t, 1, conn.closed, "connection must be released exactly once")
	assert.True(t, stream.isClosed(), "change stream must be released")
}

func Test_Watch_InvalidNamespace(t *testing.T) {
	t.Parallel()

	deps := &Deps{
		DocDialer: func(ctx context.Context, uri string, lggr logger.Logger) (docstore.Conn, error) {
			return nil, fmt.Errorf("dialed before namespace validation")
		},
	}

	_, err := execute(t, []string{"watch", "--ns", "noseparator"}, WithDeps(deps))

	require.ErrorContains(t, err, "invalid namespace")
}

package relstore_test

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"testing"

	_ "github.com/proullon/ramsql/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storeops/storeops/operations"
	"github.com/storeops/storeops/operations/optest"
	"github.com/storeops/storeops/pkg/logger"
	"github.com/storeops/storeops/runner"
	"github.com/storeops/storeops/store/relstore"
)

// fakeConn records every statement so tests can assert the exact SQL an
// operation emits without a live PostgreSQL.
type fakeConn struct {
	mu         sync.Mutex
	statements []string
	queryRows  []relstore.Row
	execErr    error
	closed     int
}

func (c *fakeConn) record(query string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statements = append(c.statements, query)
}

func (c *fakeConn) Statements() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	statements := make([]string, len(c.statements))
	copy(statements, c.statements)

	return statements
}

func (c *fakeConn) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	c.record(query)
	if c.execErr != nil {
		return 0, c.execErr
	}

	return 1, nil
}

func (c *fakeConn) Query(ctx context.Context, query string, args ...any) ([]relstore.Row, error) {
	c.record(query)

	return c.queryRows, nil
}

func (c *fakeConn) Ping(ctx context.Context) error { return nil }

func (c *fakeConn) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++

	return nil
}

func Test_DemoSteps_StatementOrder(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{}
	r := runner.New("sql-demo", logger.Test(t))

	report, err := r.Run(optest.NewBundle(t), conn, relstore.DemoSteps("employees"))

	require.NoError(t, err)
	assert.Len(t, report.Reports, 10)
	assert.Equal(t, 1, conn.closed)

	prefixes := []string{
		`CREATE TABLE "employees" `,
		`CREATE TABLE "employees_events" `,
		`CREATE TABLE "employees_events_2025" PARTITION OF`,
		`CREATE TABLE "employees_events_2026" PARTITION OF`,
		`CREATE TABLE "employees_events_default" PARTITION OF`,
		`INSERT INTO "employees" `,
		`INSERT INTO "employees" `,
		`INSERT INTO "employees" `,
		`UPDATE "employees" SET salary`,
		`DELETE FROM "employees" WHERE name`,
		`SELECT name, dept, salary FROM "employees" WHERE dept`,
		`SELECT dept, COUNT(*) AS count FROM "employees"`,
		`CREATE INDEX "idx_employees_dept" ON "employees"`,
		`CREATE ROLE "reporting_reader" `,
		`GRANT SELECT ON "employees" TO "reporting_reader"`,
		`CREATE PUBLICATION "employees_pub" FOR TABLE "employees"`,
	}

	statements := conn.Statements()
	require.Len(t, statements, len(prefixes))
	for i, prefix := range prefixes {
		assert.Truef(t, strings.HasPrefix(statements[i], prefix),
			"statement %d = %q, want prefix %q", i, statements[i], prefix)
	}
}

func Test_CRUDOps_AgainstSQLEngine(t *testing.T) {
	t.Parallel()

	db, err := sql.Open("ramsql", "Test_CRUDOps_AgainstSQLEngine")
	require.NoError(t, err)

	conn := relstore.NewConn(db, logger.Test(t))
	b := optest.NewBundle(t)
	table := "employees"

	_, err = operations.ExecuteOperation(b, relstore.CreateSchemaOp, conn,
		relstore.CreateSchemaInput{Table: table})
	require.NoError(t, err)

	insertOut, err := operations.ExecuteOperation(b, relstore.InsertEmployeesOp, conn,
		relstore.InsertEmployeesInput{
			Table: table,
			Employees: []relstore.Employee{
				{Name: "Ada", Dept: "engineering", Salary: 95000},
				{Name: "Grace", Dept: "engineering", Salary: 98000},
				{Name: "Edgar", Dept: "sales", Salary: 61000},
			},
		})
	require.NoError(t, err)
	assert.Equal(t, int64(3), insertOut.Output.Inserted)

	updateOut, err := operations.ExecuteOperation(b, relstore.SetSalaryOp, conn,
		relstore.SetSalaryInput{Table: table, Dept: "sales", Salary: 65000})
	require.NoError(t, err)
	assert.Equal(t, int64(1), updateOut.Output.Affected)

	selectOut, err := operations.ExecuteOperation(b, relstore.SelectEmployeesOp, conn,
		relstore.SelectEmployeesInput{Table: table, Dept: "engineering"})
	require.NoError(t, err)
	require.Len(t, selectOut.Output.Rows, 2)
	names := make([]any, 0, 2)
	for _, row := range selectOut.Output.Rows {
		names = append(names, row["name"])
	}
	assert.ElementsMatch(t, []any{"Ada", "Grace"}, names)

	deleteOut, err := operations.ExecuteOperation(b, relstore.DeleteEmployeeOp, conn,
		relstore.DeleteEmployeeInput{Table: table, Name: "Edgar"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleteOut.Output.Affected)

	selectOut, err = operations.ExecuteOperation(b, relstore.SelectEmployeesOp, conn,
		relstore.SelectEmployeesInput{Table: table})
	require.NoError(t, err)
	assert.Len(t, selectOut.Output.Rows, 2)

	require.NoError(t, conn.Close(context.Background()))
}

func Test_DeleteEmployeeOp_MissingRowIsNotAnError(t *testing.T) {
	t.Parallel()

	db, err := sql.Open("ramsql", "Test_DeleteEmployeeOp_MissingRowIsNotAnError")
	require.NoError(t, err)

	conn := relstore.NewConn(db, logger.Test(t))
	b := optest.NewBundle(t)

	_, err = operations.ExecuteOperation(b, relstore.CreateSchemaOp, conn,
		relstore.CreateSchemaInput{Table: "employees"})
	require.NoError(t, err)

	out, err := operations.ExecuteOperation(b, relstore.DeleteEmployeeOp, conn,
		relstore.DeleteEmployeeInput{Table: "employees", Name: "nobody"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), out.Output.Affected)

	require.NoError(t, conn.Close(context.Background()))
}

func Test_CountByDeptOp_GroupsByDepartment(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{queryRows: []relstore.Row{
		{"dept": "engineering", "count": int64(2)},
		{"dept": "sales", "count": int64(1)},
	}}
	b := optest.NewBundle(t)

	out, err := operations.ExecuteOperation(b, relstore.CountByDeptOp, relstore.Conn(conn),
		relstore.CountByDeptInput{Table: "employees"})

	require.NoError(t, err)
	require.Len(t, out.Output.Rows, 2)
	assert.Equal(t, "engineering", out.Output.Rows[0]["dept"])

	statements := conn.Statements()
	require.Len(t, statements, 1)
	assert.Contains(t, statements[0], "GROUP BY dept")
}

func Test_CreateReaderOp_QuotesCredentials(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{}
	b := optest.NewBundle(t)

	_, err := operations.ExecuteOperation(b, relstore.CreateReaderOp, relstore.Conn(conn),
		relstore.CreateReaderInput{Role: "reader", Password: "s3cret", Table: "employees"})

	require.NoError(t, err)
	statements := conn.Statements()
	require.Len(t, statements, 2)
	assert.Equal(t, `CREATE ROLE "reader" LOGIN PASSWORD 's3cret'`, statements[0])
	assert.Equal(t, `GRANT SELECT ON "employees" TO "reader"`, statements[1])
}

func Test_CreatePartitionedOp_EmitsChildPartitions(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{}
	b := optest.NewBundle(t)

	_, err := operations.ExecuteOperation(b, relstore.CreatePartitionedOp, relstore.Conn(conn),
		relstore.CreatePartitionedInput{Table: "events", Years: []int{2026}})

	require.NoError(t, err)
	statements := conn.Statements()
	require.Len(t, statements, 3)
	assert.Contains(t, statements[0], `PARTITION BY RANGE (happened_at)`)
	assert.Equal(t,
		`CREATE TABLE "events_2026" PARTITION OF "events" FOR VALUES FROM ('2026-01-01') TO ('2027-01-01')`,
		statements[1])
	assert.Equal(t, `CREATE TABLE "events_default" PARTITION OF "events" DEFAULT`, statements[2])
}

func Test_Register_ResolvesCatalog(t *testing.T) {
	t.Parallel()

	registry := operations.NewOperationRegistry()
	relstore.Register(registry)

	op, err := registry.Retrieve(relstore.InsertEmployeesOp.Def())
	require.NoError(t, err)
	assert.Equal(t, "sql/insert-employees", op.ID())

	op, err = registry.Retrieve(relstore.CreatePublicationOp.Def())
	require.NoError(t, err)
	assert.Equal(t, "sql/create-publication", op.ID())
}

package relstore

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/lib/pq"

	"github.com/storeops/storeops/operations"
	"github.com/storeops/storeops/runner"
)

// Version is the catalog version of the relational store operations.
var Version = semver.MustParse("1.0.0")

// Employee is the example row the demo sequence works with.
type Employee struct {
	Name   string `json:"name"`
	Dept   string `json:"dept"`
	Salary int64  `json:"salary"`
}

type CreateSchemaInput struct {
	Table string `json:"table"`
}

type ExecOutput struct {
	Affected int64 `json:"affected"`
}

// CreateSchemaOp creates the employees table. Creating an existing table
// surfaces the store's own error; the operation makes no idempotence promise.
var CreateSchemaOp = operations.NewOperation(
	"sql/create-schema", Version, "Create the employees table",
	func(b operations.Bundle, conn Conn, input CreateSchemaInput) (ExecOutput, error) {
		query := fmt.Sprintf(
			`CREATE TABLE %s (id BIGSERIAL PRIMARY KEY, name TEXT NOT NULL, dept TEXT NOT NULL, salary INT NOT NULL)`,
			pq.QuoteIdentifier(input.Table))

		affected, err := conn.Exec(b.GetContext(), query)
		if err != nil {
			return ExecOutput{}, err
		}

		return ExecOutput{Affected: affected}, nil
	})

type CreatePartitionedInput struct {
	Table string `json:"table"`
	Years []int  `json:"years"`
}

// CreatePartitionedOp creates a range-partitioned events table with one
// partition per requested year plus a default partition. Partition pruning
// and routing are delegated entirely to the store.
var CreatePartitionedOp = operations.NewOperation(
	"sql/create-partitioned", Version, "Create a range-partitioned events table",
	func(b operations.Bundle, conn Conn, input CreatePartitionedInput) (ExecOutput, error) {
		parent := pq.QuoteIdentifier(input.Table)
		query := fmt.Sprintf(
			`CREATE TABLE %s (id BIGSERIAL, happened_at DATE NOT NULL, payload TEXT) PARTITION BY RANGE (happened_at)`,
			parent)
		if _, err := conn.Exec(b.GetContext(), query); err != nil {
			return ExecOutput{}, err
		}

		for _, year := range input.Years {
			child := pq.QuoteIdentifier(fmt.Sprintf("%s_%d", input.Table, year))
			query := fmt.Sprintf(
				`CREATE TABLE %s PARTITION OF %s FOR VALUES FROM ('%d-01-01') TO ('%d-01-01')`,
				child, parent, year, year+1)
			if _, err := conn.Exec(b.GetContext(), query); err != nil {
				return ExecOutput{}, err
			}
		}

		def := pq.QuoteIdentifier(input.Table + "_default")
		query = fmt.Sprintf(`CREATE TABLE %s PARTITION OF %s DEFAULT`, def, parent)
		if _, err := conn.Exec(b.GetContext(), query); err != nil {
			return ExecOutput{}, err
		}

		return ExecOutput{}, nil
	})

type InsertEmployeesInput struct {
	Table     string     `json:"table"`
	Employees []Employee `json:"employees"`
}

type InsertEmployeesOutput struct {
	Inserted int64 `json:"inserted"`
}

// InsertEmployeesOp inserts the given rows. Not idempotent: every run
// inserts again.
var InsertEmployeesOp = operations.NewOperation(
	"sql/insert-employees", Version, "Insert example employees",
	func(b operations.Bundle, conn Conn, input InsertEmployeesInput) (InsertEmployeesOutput, error) {
		query := fmt.Sprintf(
			`INSERT INTO %s (name, dept, salary) VALUES ($1, $2, $3)`,
			pq.QuoteIdentifier(input.Table))

		var inserted int64
		for _, e := range input.Employees {
			n, err := conn.Exec(b.GetContext(), query, e.Name, e.Dept, e.Salary)
			if err != nil {
				return InsertEmployeesOutput{Inserted: inserted}, err
			}
			inserted += n
		}

		return InsertEmployeesOutput{Inserted: inserted}, nil
	})

type SetSalaryInput struct {
	Table  string `json:"table"`
	Dept   string `json:"dept"`
	Salary int64  `json:"salary"`
}

// SetSalaryOp updates the salary of every employee in a department.
var SetSalaryOp = operations.NewOperation(
	"sql/set-salary", Version, "Set the salary for a department",
	func(b operations.Bundle, conn Conn, input SetSalaryInput) (ExecOutput, error) {
		query := fmt.Sprintf(
			`UPDATE %s SET salary = $1 WHERE dept = $2`, pq.QuoteIdentifier(input.Table))

		affected, err := conn.Exec(b.GetContext(), query, input.Salary, input.Dept)
		if err != nil {
			return ExecOutput{}, err
		}

		return ExecOutput{Affected: affected}, nil
	})

type DeleteEmployeeInput struct {
	Table string `json:"table"`
	Name  string `json:"name"`
}

// DeleteEmployeeOp deletes a single employee by name. Deleting a missing row
// is not an error; the output reports zero affected rows.
var DeleteEmployeeOp = operations.NewOperation(
	"sql/delete-employee", Version, "Delete one employee by name",
	func(b operations.Bundle, conn Conn, input DeleteEmployeeInput) (ExecOutput, error) {
		query := fmt.Sprintf(
			`DELETE FROM %s WHERE name = $1`, pq.QuoteIdentifier(input.Table))

		affected, err := conn.Exec(b.GetContext(), query, input.Name)
		if err != nil {
			return ExecOutput{}, err
		}

		return ExecOutput{Affected: affected}, nil
	})

type SelectEmployeesInput struct {
	Table string `json:"table"`
	Dept  string `json:"dept"`
}

type SelectEmployeesOutput struct {
	Rows []Row `json:"rows"`
}

// SelectEmployeesOp retrieves employees, optionally filtered by department.
var SelectEmployeesOp = operations.NewOperation(
	"sql/select-employees", Version, "Select employees",
	func(b operations.Bundle, conn Conn, input SelectEmployeesInput) (SelectEmployeesOutput, error) {
		var (
			rows []Row
			err  error
		)
		if input.Dept != "" {
			query := fmt.Sprintf(
				`SELECT name, dept, salary FROM %s WHERE dept = $1`, pq.QuoteIdentifier(input.Table))
			rows, err = conn.Query(b.GetContext(), query, input.Dept)
		} else {
			query := fmt.Sprintf(
				`SELECT name, dept, salary FROM %s`, pq.QuoteIdentifier(input.Table))
			rows, err = conn.Query(b.GetContext(), query)
		}
		if err != nil {
			return SelectEmployeesOutput{}, err
		}

		return SelectEmployeesOutput{Rows: rows}, nil
	})

type CountByDeptInput struct {
	Table string `json:"table"`
}

// CountByDeptOp counts employees per department. The grouping is delegated
// to the store.
var CountByDeptOp = operations.NewOperation(
	"sql/count-by-dept", Version, "Count employees per department",
	func(b operations.Bundle, conn Conn, input CountByDeptInput) (SelectEmployeesOutput, error) {
		query := fmt.Sprintf(
			`SELECT dept, COUNT(*) AS count FROM %s GROUP BY dept ORDER BY dept`,
			pq.QuoteIdentifier(input.Table))

		rows, err := conn.Query(b.GetContext(), query)
		if err != nil {
			return SelectEmployeesOutput{}, err
		}

		return SelectEmployeesOutput{Rows: rows}, nil
	})

type CreateIndexInput struct {
	Table  string `json:"table"`
	Column string `json:"column"`
}

// CreateIndexOp creates a btree index on a single column.
var CreateIndexOp = operations.NewOperation(
	"sql/create-index", Version, "Create an index on a column",
	func(b operations.Bundle, conn Conn, input CreateIndexInput) (ExecOutput, error) {
		name := pq.QuoteIdentifier(fmt.Sprintf("idx_%s_%s", input.Table, input.Column))
		query := fmt.Sprintf(`CREATE INDEX %s ON %s (%s)`,
			name, pq.QuoteIdentifier(input.Table), pq.QuoteIdentifier(input.Column))

		if _, err := conn.Exec(b.GetContext(), query); err != nil {
			return ExecOutput{}, err
		}

		return ExecOutput{}, nil
	})

type CreateReaderInput struct {
	Role     string `json:"role"`
	Password string `json:"password"`
	Table    string `json:"table"`
}

// CreateReaderOp creates a read-only role and grants it SELECT on the table.
var CreateReaderOp = operations.NewOperation(
	"sql/create-reader", Version, "Create a read-only role with a grant",
	func(b operations.Bundle, conn Conn, input CreateReaderInput) (ExecOutput, error) {
		query := fmt.Sprintf(`CREATE ROLE %s LOGIN PASSWORD %s`,
			pq.QuoteIdentifier(input.Role), pq.QuoteLiteral(input.Password))
		if _, err := conn.Exec(b.GetContext(), query); err != nil {
			return ExecOutput{}, err
		}

		query = fmt.Sprintf(`GRANT SELECT ON %s TO %s`,
			pq.QuoteIdentifier(input.Table), pq.QuoteIdentifier(input.Role))
		if _, err := conn.Exec(b.GetContext(), query); err != nil {
			return ExecOutput{}, err
		}

		return ExecOutput{}, nil
	})

type CreatePublicationInput struct {
	Name  string `json:"name"`
	Table string `json:"table"`
}

// CreatePublicationOp creates a logical replication publication for the
// table. Replication itself is entirely the store's concern.
var CreatePublicationOp = operations.NewOperation(
	"sql/create-publication", Version, "Create a logical replication publication",
	func(b operations.Bundle, conn Conn, input CreatePublicationInput) (ExecOutput, error) {
		query := fmt.Sprintf(`CREATE PUBLICATION %s FOR TABLE %s`,
			pq.QuoteIdentifier(input.Name), pq.QuoteIdentifier(input.Table))

		if _, err := conn.Exec(b.GetContext(), query); err != nil {
			return ExecOutput{}, err
		}

		return ExecOutput{}, nil
	})

// Register adds the relational store operation catalog to the registry so
// plan files can resolve it.
func Register(r *operations.OperationRegistry) {
	operations.RegisterOperation(r, CreateSchemaOp)
	operations.RegisterOperation(r, CreatePartitionedOp)
	operations.RegisterOperation(r, InsertEmployeesOp)
	operations.RegisterOperation(r, SetSalaryOp)
	operations.RegisterOperation(r, DeleteEmployeeOp)
	operations.RegisterOperation(r, SelectEmployeesOp)
	operations.RegisterOperation(r, CountByDeptOp)
	operations.RegisterOperation(r, CreateIndexOp)
	operations.RegisterOperation(r, CreateReaderOp)
	operations.RegisterOperation(r, CreatePublicationOp)
}

// DemoSteps is the fixed demo sequence against the given table. The write
// ordering (insert before update before delete) is load-bearing and must not
// be reordered.
func DemoSteps(table string) []runner.Step {
	return []runner.Step{
		runner.NewStep(CreateSchemaOp, CreateSchemaInput{Table: table}),
		runner.NewStep(CreatePartitionedOp, CreatePartitionedInput{
			Table: table + "_events",
			Years: []int{2025, 2026},
		}),
		runner.NewStep(InsertEmployeesOp, InsertEmployeesInput{
			Table: table,
			Employees: []Employee{
				{Name: "Ada", Dept: "engineering", Salary: 95000},
				{Name: "Grace", Dept: "engineering", Salary: 98000},
				{Name: "Edgar", Dept: "sales", Salary: 61000},
			},
		}),
		runner.NewStep(SetSalaryOp, SetSalaryInput{
			Table:  table,
			Dept:   "sales",
			Salary: 65000,
		}),
		runner.NewStep(DeleteEmployeeOp, DeleteEmployeeInput{
			Table: table,
			Name:  "Edgar",
		}),
		runner.NewStep(SelectEmployeesOp, SelectEmployeesInput{
			Table: table,
			Dept:  "engineering",
		}),
		runner.NewStep(CountByDeptOp, CountByDeptInput{Table: table}),
		runner.NewStep(CreateIndexOp, CreateIndexInput{
			Table:  table,
			Column: "dept",
		}),
		runner.NewStep(CreateReaderOp, CreateReaderInput{
			Role:     "reporting_reader",
			Password: "reporting",
			Table:    table,
		}),
		runner.NewStep(CreatePublicationOp, CreatePublicationInput{
			Name:  table + "_pub",
			Table: table,
		}),
	}
}

/*
Package relstore provides the relational store backend: a thin connection
abstraction over database/sql with the PostgreSQL driver, and a catalog of
named operations against it (schema and partition setup, CRUD, aggregates,
indexing, roles and grants, logical replication setup).

The Conn interface is the unit-test seam. CRUD operations are exercised
against the in-process ramsql engine; DDL that only a real PostgreSQL parses
(partitions, roles, publications) is verified through a recording fake.
*/
package relstore

/*
Package docstore provides the document store backend: a thin connection
abstraction over the MongoDB driver, a catalog of named operations against it
(collection setup with schema validation, CRUD, geospatial and text queries,
aggregation, indexing, sharding commands), and an owned change-stream
subscription.

The Conn interface is the unit-test seam: operations speak to the store only
through it, so a recording fake can observe the exact request order without a
live server.
*/
package docstore

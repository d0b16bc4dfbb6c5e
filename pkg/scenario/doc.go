// Package scenario implements the two worked example applications this
// runtime ships in place of the original's separate vector-scal.c and
// spmv.c OS processes: a single-buffer scale task and a four-way
// partitioned sparse matrix-vector product. Both are plain consumers of
// pkg/runtime's public Submit/Wait surface, exercised by cmd/taskrunner's
// run subcommand and by this package's own tests.
package scenario

// Package history implements the rolling dedup store of processed message
// ids. An id stays in the store for seven days; within that window the
// pipeline will not act on the same message twice, even if it is still
// listed as unread.
package history

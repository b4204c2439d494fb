// Package health serves the liveness endpoint and pings it periodically so
// free-tier hosts keep the process awake.
package health

// Package scheduler triggers named jobs on cron expressions or fixed
// intervals (robfig/cron). A job that is still running when its next tick
// fires is skipped for that tick.
package scheduler

// Package schedule handles cron expressions and periodic execution.
//
// Cron functions validate expressions and compute upcoming run times in UTC.
// RunEvery calls a function on interval boundaries until its context ends.
package schedule

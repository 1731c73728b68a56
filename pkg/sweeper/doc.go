// Package sweeper downgrades subscriptions whose paid period has lapsed
// without a cancellation event arriving.
//
// Each expired row is leased with a conditional update before any side
// effects run, so concurrent sweepers never process the same subscription
// at once; a lease whose downgrade failed lapses and a later sweep retries
// the row. The sweep can run from the in-process cron Runner or be triggered
// externally through the authenticated HTTP Handler.
package sweeper

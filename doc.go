// Package tokenreq and its sub-packages implement the read model service of an organization's token requests.
/*
tokenreq derives a consistent, queryable state from the organization's event log: the tokens known to the
organization, the tokens it accepts as deposit and every token exchange request with its status.

Architecture

The events of the log are emitted by the ledger and carried by a message broker (package lib/msg), one ordered queue
per organization. The aggregator (package aggregator) consumes the queue one event at a time. Every event is applied by
the reducer (package aggregator/reducer), the single point of mutation of the state, producing a new immutable snapshot
(package lib/state). The snapshot is saved to the database (package lib/store), published to readers and only then the
event is acknowledged to the broker, so a restart resumes from the cached snapshot without losing or double applying
events.

Before consuming the log the bootstrap (package aggregator/bootstrap) discovers the organization's token managers and
its accepted deposit tokens on the ledger. Token display metadata is resolved (package lib/token) through the ledger
call service (package lib/block) with a per field fallback table, so a token with a broken contract degrades to known
good values instead of failing.

Errors never stop the service: each one is contained to the field, event or bootstrap it happened in and reported as
a diagnostic (package lib/diag) that readers can subscribe to.

Service

The service can be started running cmd/tokenreq/main.go with a JSON config file (see cmd/conf.json). It exposes an
HTTP RESTful API (package api) with the current state, and Prometheus metrics when the flag "-m" is set.

Feeder

cmd/feeder/main.go publishes a recorded JSON-lines event log to the broker, to replay it against a running service.

*/
package tokenreq

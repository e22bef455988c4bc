// Package marketgame and its sub-packages implement the backend bridge between the trading game's smart contract
// and its browser clients.
/*
The bridge provides one microservice (package bridge) with three responsibilities:

1) mirror the game contract's event stream (price updates, trades, registrations, round starts) into an in-process
 state aggregate, deduplicating the at-least-once delivery of the ledger subscription.

2) fan state changes out in real time to every connected browser over a websocket API, greeting each new session
 with a full snapshot before the live stream.

3) execute the backend's own writes: funding fresh player accounts, ticking the game once per block while a round is
 open, and the reset-and-start flow of a round restart. All writes flow through a single dispatcher so the backend
 account's transaction sequence never forks, and a nonce resync recovers from the races that one account shared with
 an impatient operator still allows.

Architecture

The ledger connection is implemented as a product agnostic layer (package lib/ledger) with an Ethereum implementation
(package lib/ledger/ethereum) over a websocket node endpoint, which carries both subscriptions and submissions.

Decoded chain events are additionally mirrored to a message broker (package lib/msg) so off-process consumers such as
leaderboards can follow the game without their own ledger subscription. Display names chosen by players and the latest
round checkpoint are persisted via a database layer (package lib/store) offering MongoDB and PostgreSQL backends; both
the broker and the database are optional and configured via a JSON config file at service startup.

The service can also be monitored via a Prometheus API by setting the flag "-m" at startup.

The bridge microservice can be started running cmd/bridge/main.go. Clients connect to ws://host:port/ws and speak a
small JSON protocol: they may set a display name, ask for their account's next nonce (which also triggers a funding
check), submit their own signed transactions for forwarding, and request a game restart.
*/
package marketgame

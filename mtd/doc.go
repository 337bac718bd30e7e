// Package mtd documents, but does not implement, the contract an external
// moving-target-defence supervisor is expected to drive against a running
// bftbank peer process. No code in this module starts, monitors, or
// restarts a peer — that responsibility belongs entirely to the
// collaborator process described here.
//
// Contract:
//
//   - The supervisor selects which peer binary/version to run and starts
//     it with the flags documented on `bftbank run` (--id, --addr,
//     --registry, --seed).
//   - The supervisor sends SIGTERM to request a graceful stop. A peer
//     process reacts by cancelling its run context, which drives
//     peer.Node.Run's shutdown path: deregister from the registry, close
//     the four listeners, return.
//   - The supervisor is responsible for restart cadence, health probing,
//     and binary selection across restarts; none of that state is
//     persisted by this module (spec §4.9, §6 "Persisted state": no
//     consensus log or supervisor bookkeeping survives a restart).
//   - A restarted peer rejoins the cluster exactly as a brand-new peer
//     would: register, pull the node list, push its directory entry.
package mtd

// Package audithook is a waypoint extension that turns thread lifecycle
// events into an audit trail of who-approved-what.
//
// Every thread and node hook emits a structured [AuditEvent] through the
// [Recorder] interface. Approvals and rejections are the events most
// deployments keep; node events are verbose and usually filtered out.
//
// # Logging recorder
//
//	audithook.New(audithook.LogRecorder(logger))
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionGateReached,
//	        audithook.ActionThreadApproved,
//	        audithook.ActionThreadRejected,
//	    ),
//	)
package audithook

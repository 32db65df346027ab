package waypoint

import "github.com/xraph/waypoint/id"

// ID is the primary identifier type for all Waypoint entities.
type ID = id.ID

// ThreadID identifies one run of the workflow.
type ThreadID = id.ThreadID
